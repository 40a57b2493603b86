package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dzoniops/condo-booking/availability"
	"github.com/dzoniops/condo-booking/calsync"
	"github.com/dzoniops/condo-booking/models"
	"github.com/dzoniops/condo-booking/services"
)

type PropertyLister interface {
	ListProperties(ctx context.Context, activeOnly bool) ([]models.Property, error)
}

type Handler struct {
	Properties   PropertyLister
	Availability *availability.Service
	Bookings     *services.BookingService
	Revenue      *services.RevenueService
	Sync         *calsync.Reconciler
	// Ping reports whether the primary store is reachable.
	Ping     func(ctx context.Context) error
	Logger   log.Logger
	Now      func() time.Time
	Location *time.Location
}

// AdminCredentials guards /api/admin with HTTP basic auth. Admin routes are
// not registered when Password is empty.
type AdminCredentials struct {
	User     string
	Password string
}

func NewRouter(h *Handler, admin AdminCredentials) *gin.Engine {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Location == nil {
		h.Location = time.UTC
	}
	if h.Logger == nil {
		h.Logger = log.NewNopLogger()
	}

	r := gin.New()
	r.Use(requestLogger(h.Logger), gin.Recovery())

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.GET("/properties", h.ListProperties)
		api.GET("/properties/:id/availability", h.CheckAvailability)
		api.GET("/properties/:id/calendar", h.Calendar)
		api.POST("/bookings", h.CreateBooking)
		api.GET("/bookings/:id", h.GetBooking)
		api.GET("/bookings/number/:number", h.GetBookingByNumber)
	}

	if admin.Password != "" {
		a := api.Group("/admin", gin.BasicAuth(gin.Accounts{admin.User: admin.Password}))
		{
			a.GET("/bookings", h.ListBookings)
			a.PATCH("/bookings/:id/status", h.UpdateBookingStatus)
			a.DELETE("/bookings/:id", h.CancelBooking)
			a.POST("/properties/:id/blocks", h.AddBlock)
			a.DELETE("/blocks/:id", h.RemoveBlock)
			a.POST("/sync", h.SyncAll)
			a.POST("/sync/:id", h.SyncProperty)
			a.GET("/revenue", h.GetRevenue)
			a.GET("/revenue/monthly", h.MonthlyTrend)
			a.GET("/revenue/properties", h.PropertyBreakdown)
		}
	}
	return r
}

func (h *Handler) Health(c *gin.Context) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(logger log.Logger) gin.HandlerFunc {
	logger = log.With(logger, "component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		lvl := level.Debug
		if c.Writer.Status() >= http.StatusInternalServerError {
			lvl = level.Warn
		}
		_ = lvl(logger).Log(
			"msg", "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
