package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ms-registration/internal/clock"
	"ms-registration/internal/config"
	"ms-registration/internal/database"
	"ms-registration/internal/logger"
	"ms-registration/internal/notify"
	"ms-registration/internal/payment"
	handlers "ms-registration/internal/payment/handler"
	paymentredis "ms-registration/internal/payment/redis"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/db"
	"ms-registration/internal/tickets/qr"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger("payment-gateway", cfg.Log.Dir)
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("STRIPE", "STRIPE_WEBHOOK_SECRET not set, webhooks will be rejected")
	}

	ctx := context.Background()

	bunDB, err := database.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer redisClient.Close()

	notifier, closeNotifier := notify.FromConfig(ctx, cfg.Kafka, log)
	defer func() {
		if err := closeNotifier(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Producer close: %v", err))
		}
	}()

	registrations := registration.NewRegistrationService(
		db.New(bunDB), notifier, qr.NewGenerator(cfg.QR.Secret, cfg.QR.Size), clock.NewSystem(), log)

	var gateway payment.Gateway
	if cfg.Stripe.Enabled() {
		stripeGateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, log)
		if err != nil {
			log.Fatal("STRIPE", err.Error())
		}
		gateway = stripeGateway
	} else {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, verification disabled")
	}
	locks := paymentredis.NewRedis(redisClient, cfg.Stripe.LockTTL, cfg.Stripe.EventTTL, log)
	service := payment.NewPaymentService(registrations, gateway, locks, cfg.Stripe, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-gateway"})
	})
	handlers.NewStripeHandler(service, cfg.Stripe.FrontendURL, log).Register(r)

	server := &http.Server{
		Addr:         cfg.Server.PaymentPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Payment Gateway running on %s", cfg.Server.PaymentPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("APP", "Shutdown signal received. Cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	log.Info("APP", "Server exited gracefully")
}
