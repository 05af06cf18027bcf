package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"

	"ms-registration/internal/auth"
	"ms-registration/internal/clock"
	"ms-registration/internal/config"
	"ms-registration/internal/database"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/logger"
	"ms-registration/internal/notify"
	"ms-registration/internal/payment"
	paymentredis "ms-registration/internal/payment/redis"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/api"
	"ms-registration/internal/registration/db"
	"ms-registration/internal/tickets/qr"
	"ms-registration/internal/users"
	"ms-registration/internal/utils"
)

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	if cfg.HMACSecret != "" {
		log.Info("AUTH", "Using HMAC token verification")
		return auth.NewHMACVerifier(cfg.HMACSecret, cfg.Issuer)
	}
	if cfg.Issuer == "" {
		log.Fatal("CONFIG", "AUTH_ISSUER or AUTH_HMAC_SECRET must be set")
	}
	verifier, err := auth.NewOIDCVerifier(ctx, cfg.Issuer, cfg.Audience)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.Issuer, err))
	}
	log.Info("AUTH", fmt.Sprintf("Using OIDC token verification against %s", cfg.Issuer))
	return verifier
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger("registration-service", cfg.Log.Dir)
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	log.Info("APP", "Starting Registration Service initialization")

	ctx := context.Background()

	bunDB, err := database.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			MigrationsDir: cfg.Database.MigrationsDir,
			AutoMigrate:   true,
		}, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	} else {
		log.Info("MIGRATE", "Auto-migration disabled, skipping")
	}

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

	clk := clock.NewSystem()
	tokens := qr.NewGenerator(cfg.QR.Secret, cfg.QR.Size)
	svc := registration.NewRegistrationService(db.New(bunDB), notifier, tokens, clk, log)
	svc.PromotionAttempts = cfg.Waitlist.PromotionAttempts

	handler := api.NewHandler(svc, nil, tokens, log)
	if cfg.Stripe.Enabled() {
		gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, log)
		if err != nil {
			log.Fatal("STRIPE", err.Error())
		}
		locks := paymentredis.NewRedis(redisClient, cfg.Stripe.LockTTL, cfg.Stripe.EventTTL, log)
		handler.Checkout = payment.NewPaymentService(svc, gateway, locks, cfg.Stripe, log)
	} else {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, online checkout disabled")
	}

	authMW := auth.Middleware(
		newVerifier(ctx, cfg.Auth, log),
		users.NewStore(bunDB, clk),
		auth.NewRedisUserCache(redisClient, 5*time.Minute),
		log,
	)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(api.RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(cfg.Server.RateLimit, time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("unhealthy", "database unreachable"))
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})
	handler.Routes(r, authMW)
	log.Info("ROUTER", "Registration routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Registration Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Registration Service shutdown complete")
	}
}
