package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/bookleaf/tracker/internal/config"
	"github.com/bookleaf/tracker/internal/http/handlers"
	"github.com/bookleaf/tracker/internal/http/middleware"
	"github.com/bookleaf/tracker/internal/metrics"
	"github.com/bookleaf/tracker/internal/service"

	_ "github.com/bookleaf/tracker/docs"
)

// Deps are the services the HTTP surface fronts. Store and Cache may be nil.
type Deps struct {
	Tracker  *service.Tracker
	Tickets  *service.TicketService
	Bookings *service.BookingService
	Store    handlers.Pinger
	Cache    handlers.Pinger
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(metrics.Middleware())
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id", handlers.SignatureHeader, handlers.WebhookSecretHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Tracker:              deps.Tracker,
		Tickets:              deps.Tickets,
		Bookings:             deps.Bookings,
		Store:                deps.Store,
		Cache:                deps.Cache,
		Validator:            validator.New(),
		Logger:               logger,
		AdminKey:             cfg.AdminKey,
		PaymentWebhookSecret: cfg.RazorpayWebhookSecret,
		TicketWebhookSecret:  cfg.FreshdeskWebhookSecret,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	{
		api.GET("/bookings/link/validate", h.ValidateBookingLink)
		api.POST("/bookings", h.CreateBooking)
		api.GET("/bookings/current", h.CurrentBooking)
		api.POST("/webhooks/payments", h.PaymentWebhook)
		api.POST("/webhooks/tickets", h.TicketWebhook)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/import/payments", h.ImportPayments)
		admin.POST("/import/tracker", h.ImportTracker)
		admin.GET("/authors", h.AuthorsList)
		admin.POST("/authors/auto-assign", h.AutoAssign)
		admin.POST("/authors/clear", h.ClearAssignments)
		admin.PATCH("/authors/:email", h.PatchAuthor)
		admin.GET("/overrides/:email", h.OverrideGet)
		admin.POST("/tickets/sync", h.SyncTickets)
		admin.GET("/tickets", h.TicketsList)
		admin.GET("/tickets/status", h.TicketStatus)
		admin.POST("/tickets/push", h.PushTickets)
		admin.POST("/tickets/:id/push", h.PushTicket)
		admin.POST("/tickets/auto-refresh", h.SetAutoRefresh)
		admin.GET("/bookings/link", h.BookingLink)
		admin.POST("/bookings/:id/status", h.UpdateBookingStatus)
		admin.GET("/webhooks/payments/recent", h.RecentWebhooks)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
