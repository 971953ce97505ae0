package router

import (
	"context"
	"net/http"
	"time"

	"feeportal/config"
	"feeportal/internal/domain"
	"feeportal/internal/events"
	"feeportal/internal/handler"
	"feeportal/internal/mailer"
	"feeportal/internal/middleware"
	"feeportal/internal/repository"
	"feeportal/internal/service"
	"feeportal/internal/ws"
	"feeportal/pkg/payment"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Server is the wired HTTP engine plus the services main drives directly.
type Server struct {
	Engine    *gin.Engine
	Orders    *service.OrderService
	Reconcile *service.ReconcileService
}

// Setup wires repositories, services and handlers. ctx bounds background
// work started here. Every notifier may be nil.
func Setup(ctx context.Context, cfg *config.Config, db *gorm.DB, provider payment.Provider, hub *ws.Hub, publisher *events.KafkaPublisher, receipts *mailer.ReceiptMailer) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Server.RateLimit > 0 {
		r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(ctx, cfg.Server.RateLimit, time.Minute)))
	}

	// Repositories
	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Services
	var notifiers []service.StatusNotifier
	if hub != nil {
		notifiers = append(notifiers, hub)
	}
	notifiers = append(notifiers, publisher, receipts)
	orderSvc := service.NewOrderService(cfg, orderRepo, provider)
	reconcileSvc := service.NewReconcileService(orderRepo, eventRepo, service.NewNotifiers(notifiers...), cfg.Payment.PaymentExpiry)
	authSvc := service.NewAuthService(cfg, userRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	paymentHandler := handler.NewPaymentHandler(orderSvc)
	webhookHandler := handler.NewWebhookHandler(reconcileSvc, &cfg.Payment)
	txHandler := handler.NewTransactionHandler(orderSvc)
	adminHandler := handler.NewAdminHandler(reconcileSvc)

	authMw := middleware.AuthRequired(&cfg.JWT)

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)

		// The gateway authenticates with the body signature, not a JWT.
		api.POST("/payments/webhook", webhookHandler.Handle)

		payments := api.Group("/payments", authMw)
		payments.POST("", paymentHandler.Create)
		payments.POST("/:id/collect", paymentHandler.RetryCollect)

		tx := api.Group("/transactions", authMw)
		tx.GET("", txHandler.List)
		tx.GET("/export", txHandler.Export)
		tx.GET("/school/:school_id", txHandler.BySchool)
		tx.GET("/:id", txHandler.Get)
		tx.GET("/:id/gateway-status", txHandler.GatewayStatus)
		tx.GET("/:id/receipt", txHandler.Receipt)

		admin := api.Group("/admin", authMw, middleware.RequireRole(domain.RoleAdmin))
		admin.POST("/expire-stale", adminHandler.ExpireStale)
	}

	if hub != nil {
		r.GET("/ws/transactions/:id", ws.UpgradeTransactionWS(&cfg.JWT, hub, orderSvc))
	}

	return &Server{Engine: r, Orders: orderSvc, Reconcile: reconcileSvc}
}
