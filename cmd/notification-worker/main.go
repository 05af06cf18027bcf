package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-registration/internal/config"
	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/notify"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger("notification-worker", cfg.Log.Dir)
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topics := []string{cfg.Kafka.Topics.Registrations, cfg.Kafka.Topics.Waitlist}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topics, cfg.Kafka.GroupID, log)
	defer consumer.Close()
	worker := notify.NewWorker(notify.NewSMTPMailer(cfg.Email), log)

	done := make(chan error, 1)
	go func() {
		log.Info("APP", fmt.Sprintf("Notification worker consuming %v as %s", topics, cfg.Kafka.GroupID))
		done <- consumer.Start(ctx, worker.Handle)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("APP", "Shutdown signal received, stopping consumer")
		cancel()
		if err := <-done; err != nil {
			log.Error("KAFKA", fmt.Sprintf("Consumer stopped with error: %v", err))
		}
	case err := <-done:
		if err != nil {
			log.Fatal("KAFKA", fmt.Sprintf("Consumer failed: %v", err))
		}
	}
	log.Info("APP", "Notification worker exited")
}
