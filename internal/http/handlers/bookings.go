package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bookleaf/tracker/internal/metrics"
	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/service"
)

// @Summary Booking link for an author
// @Tags bookings
// @Produce json
// @Param email query string true "author email"
// @Success 200 {object} service.BookingLink
// @Failure 404 {object} map[string]any
// @Router /api/bookings/link [get]
func (h *Handler) BookingLink(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "email is required", nil)
		return
	}
	link, err := h.Bookings.Link(email)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// @Summary Validate a booking link
// @Tags bookings
// @Produce json
// @Param author query string true "author email"
// @Param consultant query string true "consultant name"
// @Param token query string true "capability token"
// @Success 200 {object} map[string]any
// @Failure 403 {object} map[string]any
// @Router /api/bookings/link/validate [get]
func (h *Handler) ValidateBookingLink(c *gin.Context) {
	email := c.Query("author")
	consultant := c.Query("consultant")
	if err := h.Bookings.ValidateLink(email, consultant, c.Query("token")); err != nil {
		writeServiceError(c, err)
		return
	}
	resp := gin.H{"valid": true, "consultant": consultant, "slots": service.TimeSlots()}
	if a, ok := h.Tracker.Author(email); ok {
		resp["author_name"] = a.Name
	}
	current, err := h.Bookings.Current(c.Request.Context(), email)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	resp["current"] = current
	c.JSON(http.StatusOK, resp)
}

// @Summary Book a session with the assigned consultant
// @Tags bookings
// @Accept json
// @Produce json
// @Param body body service.BookingRequest true "booking"
// @Success 201 {object} models.Booking
// @Failure 400 {object} map[string]any
// @Failure 403 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/bookings [post]
func (h *Handler) CreateBooking(c *gin.Context) {
	var req service.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	b, err := h.Bookings.Book(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	metrics.RecordBooking()
	c.JSON(http.StatusCreated, b)
}

// @Summary Current booking of an author
// @Tags bookings
// @Produce json
// @Param author query string true "author email"
// @Param consultant query string true "consultant name"
// @Param token query string true "capability token"
// @Success 200 {object} map[string]any
// @Router /api/bookings/current [get]
func (h *Handler) CurrentBooking(c *gin.Context) {
	email := c.Query("author")
	if err := h.Bookings.ValidateLink(email, c.Query("consultant"), c.Query("token")); err != nil {
		writeServiceError(c, err)
		return
	}
	current, err := h.Bookings.Current(c.Request.Context(), email)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": current})
}

type BookingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=completed cancelled"`
}

// @Summary Complete or cancel a booking
// @Tags bookings
// @Accept json
// @Produce json
// @Param id path string true "booking id"
// @Param body body BookingStatusRequest true "new status"
// @Success 200 {object} models.Booking
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/bookings/{id}/status [post]
func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	var req BookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	b, err := h.Bookings.UpdateStatus(c.Request.Context(), c.Param("id"), models.BookingStatus(req.Status))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
