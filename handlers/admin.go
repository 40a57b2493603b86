package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dzoniops/condo-booking/models"
	"github.com/dzoniops/condo-booking/services"
)

func (h *Handler) SyncAll(c *gin.Context) {
	report, err := h.Sync.SyncAll(c.Request.Context())
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// SyncProperty reports feed failures in the body with a 200; only an
// unknown property or a property that cannot sync is an HTTP error.
func (h *Handler) SyncProperty(c *gin.Context) {
	res := h.Sync.SyncProperty(c.Request.Context(), c.Param("id"))
	if res.Err != nil {
		var verr *models.ValidationError
		if errors.Is(res.Err, models.ErrNotFound) || errors.As(res.Err, &verr) {
			writeError(c, h.Logger, res.Err)
			return
		}
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) revenueWindow(c *gin.Context) (models.Date, models.Date, error) {
	defStart, defEnd := services.CurrentMonth(h.Now(), h.Location)
	start, ok, err := queryDate(c, "start")
	if err != nil {
		return models.Date{}, models.Date{}, err
	}
	if !ok {
		start = defStart
	}
	end, ok, err := queryDate(c, "end")
	if err != nil {
		return models.Date{}, models.Date{}, err
	}
	if !ok {
		end = defEnd
	}
	return start, end, nil
}

// GetRevenue defaults to the current calendar month in the configured zone.
func (h *Handler) GetRevenue(c *gin.Context) {
	start, end, err := h.revenueWindow(c)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	w, err := h.Revenue.GetRevenue(c.Request.Context(), start, end, c.Query("property_id"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) MonthlyTrend(c *gin.Context) {
	start, end, err := h.revenueWindow(c)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	months, err := h.Revenue.MonthlyTrend(c.Request.Context(), start, end, c.Query("property_id"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": months})
}

func (h *Handler) PropertyBreakdown(c *gin.Context) {
	start, end, err := h.revenueWindow(c)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	rows, err := h.Revenue.PropertyBreakdown(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}
