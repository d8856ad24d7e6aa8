package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pradiptarn/gigtix/config"
	"github.com/pradiptarn/gigtix/internal/handlers"
	"github.com/pradiptarn/gigtix/internal/middleware"
	"github.com/pradiptarn/gigtix/internal/payments"
	"github.com/pradiptarn/gigtix/internal/reservation"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	// The lock store is pinged at startup so a bad Redis address surfaces
	// here, not on the first checkout. Without Redis holds degrade to a
	// single-instance in-memory store.
	var store reservation.Store
	redisClient, err := config.InitRedis(cfg)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory reservation store", zap.Error(err))
		store = reservation.NewMemoryStore()
	} else {
		defer redisClient.Close()
		store = reservation.NewRedisStore(redisClient)
	}
	manager := reservation.NewManager(store, cfg.HoldTTL, logger)

	gateway := payments.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey)

	r := gin.Default()

	setupRoutes(r, db, manager, gateway, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupRoutes(r *gin.Engine, db *gorm.DB, manager *reservation.Manager, gateway *payments.Client, logger *zap.Logger) {
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.ReservationMiddleware(manager))
	r.Use(middleware.GatewayMiddleware(gateway))

	r.GET("/metrics", middleware.PrometheusHandler())

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("", handlers.ListEvents)
			eventPublic.GET("/:id", handlers.GetEvent)
			eventPublic.GET("/:id/tickets", handlers.ListEventTickets)
		}

		webhooks := public.Group("/webhooks")
		{
			webhooks.POST("/payment", handlers.HandlePaymentWebhook)
			webhooks.POST("/connect", handlers.HandleConnectWebhook)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		organizationProtected := protected.Group("/organizations")
		{
			organizationProtected.POST("", handlers.CreateOrganization)
			organizationProtected.GET("/:id", handlers.GetOrganization)
			organizationProtected.GET("/:id/payout", handlers.GetOrganizationPayoutStatus)
		}

		eventProtected := protected.Group("/events")
		{
			eventProtected.POST("", handlers.CreateEvent)
			eventProtected.PUT("/:id", handlers.UpdateEvent)
			eventProtected.DELETE("/:id", handlers.DeleteEvent)
			eventProtected.POST("/:id/publish", handlers.PublishEvent)
			eventProtected.POST("/:id/ticket-types", handlers.CreateTicketType)
		}

		protected.POST("/purchases", handlers.Purchase)
		protected.GET("/purchases/:id", handlers.GetOrder)
		protected.DELETE("/reservations", handlers.ReleaseReservations)

		ticketProtected := protected.Group("/tickets")
		{
			ticketProtected.GET("/:id/qr", handlers.GenerateTicketQR)
			ticketProtected.POST("/validate", handlers.ValidateTicket)
		}
	}
}
