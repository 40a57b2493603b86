package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dzoniops/condo-booking/models"
)

func (h *Handler) ListProperties(c *gin.Context) {
	props, err := h.Properties.ListProperties(c.Request.Context(), true)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": props})
}

// CheckAvailability answers whether [start, end) can be booked as a stay.
func (h *Handler) CheckAvailability(c *gin.Context) {
	start, err := requiredQueryDate(c, "start")
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	end, err := requiredQueryDate(c, "end")
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	res, err := h.Availability.CheckAvailability(c.Request.Context(), c.Param("id"), models.DateRange{Start: start, End: end})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"property_id": c.Param("id"),
		"start":       start,
		"end":         end,
		"available":   res.Available,
		"conflicts":   res.Conflicts,
	})
}

// Calendar returns per-day flags for [start, end). Without parameters the
// window starts today and covers 90 days.
func (h *Handler) Calendar(c *gin.Context) {
	start, ok, err := queryDate(c, "start")
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	if !ok {
		start = models.Today(h.Now(), h.Location)
	}
	end, ok, err := queryDate(c, "end")
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	if !ok {
		end = start.AddDays(defaultCalendarDays)
	}
	window, err := models.NewDateRange(start, end)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	days, err := h.Availability.Calendar(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"property_id": c.Param("id"), "start": start, "end": end, "days": days})
}

type blockRequest struct {
	StartDate models.Date `json:"start_date"`
	EndDate   models.Date `json:"end_date"`
	Reason    string      `json:"reason"`
}

func (h *Handler) AddBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.Logger, bindError(err))
		return
	}
	r, err := models.NewDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	block, err := h.Availability.AddManualBlock(c.Request.Context(), c.Param("id"), r, req.Reason)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, block)
}

func (h *Handler) RemoveBlock(c *gin.Context) {
	if err := h.Availability.RemoveManualBlock(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
