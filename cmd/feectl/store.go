package main

import (
	"fmt"

	"feeportal/config"
	"feeportal/internal/database"
	"feeportal/internal/repository"
	"feeportal/internal/service"

	"gorm.io/gorm"
)

type store struct {
	cfg       *config.Config
	db        *gorm.DB
	orders    *service.OrderService
	reconcile *service.ReconcileService
}

// openStore connects with the server's configuration. No gateway calls are
// made by the commands that use it.
func openStore() (*store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return newStore(cfg, db), nil
}

func newStore(cfg *config.Config, db *gorm.DB) *store {
	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)
	return &store{
		cfg:       cfg,
		db:        db,
		orders:    service.NewOrderService(cfg, orderRepo, nil),
		reconcile: service.NewReconcileService(orderRepo, eventRepo, nil, cfg.Payment.PaymentExpiry),
	}
}

func (s *store) Close() error {
	return database.Close(s.db)
}
