package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dzoniops/condo-booking/models"
	"github.com/dzoniops/condo-booking/services"
)

func (h *Handler) CreateBooking(c *gin.Context) {
	var in services.CreateBookingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.Logger, bindError(err))
		return
	}
	booking, err := h.Bookings.CreateBooking(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) GetBooking(c *gin.Context) {
	booking, err := h.Bookings.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) GetBookingByNumber(c *gin.Context) {
	booking, err := h.Bookings.GetBookingByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) ListBookings(c *gin.Context) {
	page, perPage, err := paging(c)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	f := models.BookingFilter{
		PropertyID: c.Query("property_id"),
		GuestID:    c.Query("guest_id"),
		Status:     models.BookingStatus(c.Query("status")),
		Page:       page,
		PerPage:    perPage,
	}
	if f.From, _, err = queryDate(c, "from"); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	if f.To, _, err = queryDate(c, "to"); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	bookings, total, err := h.Bookings.ListBookings(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	jsonPage(c, bookings, page, perPage, total)
}

type statusRequest struct {
	Status        models.BookingStatus `json:"status"`
	Reason        string               `json:"reason"`
	InternalNotes string               `json:"internal_notes"`
}

func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.Logger, bindError(err))
		return
	}
	booking, err := h.Bookings.UpdateBookingStatus(c.Request.Context(), c.Param("id"), req.Status,
		services.StatusMetadata{Reason: req.Reason, InternalNotes: req.InternalNotes})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBooking is a soft delete; the row stays with status cancelled.
func (h *Handler) CancelBooking(c *gin.Context) {
	booking, err := h.Bookings.CancelBooking(c.Request.Context(), c.Param("id"), c.Query("reason"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
