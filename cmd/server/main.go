package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"feeportal/config"
	"feeportal/internal/database"
	"feeportal/internal/events"
	"feeportal/internal/mailer"
	"feeportal/internal/router"
	"feeportal/internal/ws"
	"feeportal/pkg/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var provider payment.Provider
	if cfg.Gateway.UseStub {
		if cfg.Server.Env == "production" {
			log.Fatalf("gateway: GATEWAY_STUB is not allowed in production")
		}
		log.Printf("[gateway] using stub provider, no real collect requests will be made")
		provider = &payment.StubProvider{}
	} else {
		provider = payment.NewCollectProvider(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.PGKey, cfg.Gateway.Timeout)
	}

	publisher := events.NewKafkaPublisher(&cfg.Kafka)
	if publisher != nil {
		log.Printf("[kafka] publishing status changes to %s", cfg.Kafka.Topic)
	} else {
		log.Printf("[kafka] status publishing disabled: set KAFKA_BROKERS to enable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	receipts := mailer.NewReceiptMailer(&cfg.Mail)
	if receipts != nil {
		log.Printf("[mail] receipt emails enabled via %s", cfg.Mail.Host)
		go receipts.Run(ctx)
	} else {
		log.Printf("[mail] receipt emails disabled: set SMTP_HOST to enable")
	}

	app := router.Setup(ctx, cfg, db, provider, ws.NewHub(), publisher, receipts)
	go app.Reconcile.RunExpirySweeper(ctx, cfg.Payment.ExpirySweepInterval)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Printf("[kafka] close: %v", err)
		}
	}
	if err := database.Close(db); err != nil {
		log.Printf("database close: %v", err)
	}
	log.Println("server stopped")
}
