package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bookleaf/tracker/internal/metrics"
	"github.com/bookleaf/tracker/internal/service"
)

// @Summary Fetch tickets from the help desk
// @Description Pages through recent tickets, refreshes the cache and promotes resolved authors
// @Tags tickets
// @Produce json
// @Success 200 {object} service.SyncResult
// @Failure 409 {object} map[string]any
// @Failure 429 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /api/tickets/sync [post]
func (h *Handler) SyncTickets(c *gin.Context) {
	res, err := h.Tickets.Sync(context.WithoutCancel(c.Request.Context()))
	switch {
	case err == nil:
		metrics.RecordSync(string(service.SyncSuccess))
	case errors.Is(err, service.ErrSyncInFlight):
	case errors.Is(err, service.ErrRateLimited):
		metrics.RecordSync(string(service.SyncRateLimited))
	default:
		metrics.RecordSync(string(service.SyncFailed))
	}
	if err != nil {
		h.Logger.Warn().Err(err).Msg("manual ticket sync failed")
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Cached tickets joined with authors
// @Tags tickets
// @Produce json
// @Param view query string false "admin or a consultant name"
// @Success 200 {object} service.TicketView
// @Failure 503 {object} map[string]any
// @Router /api/tickets [get]
func (h *Handler) TicketsList(c *gin.Context) {
	view := strings.TrimSpace(c.DefaultQuery("view", service.AdminScope))
	if view != service.AdminScope {
		if _, ok := h.Tracker.Consultant(view); !ok {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unknown view", view)
			return
		}
	}
	tv, err := h.Tickets.Cached(c.Request.Context(), view)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if c.Query("needs_reassign") != "" && boolParam(c, "needs_reassign", false) {
		filtered := tv.Tickets[:0]
		for _, t := range tv.Tickets {
			if t.NeedsReassign {
				filtered = append(filtered, t)
			}
		}
		tv.Tickets = filtered
	}
	c.JSON(http.StatusOK, tv)
}

// @Summary Ticket sync status
// @Tags tickets
// @Produce json
// @Success 200 {object} service.SyncStatus
// @Router /api/tickets/status [get]
func (h *Handler) TicketStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Tickets.Status())
}

// @Summary Push every needed reassignment to the help desk
// @Tags tickets
// @Produce json
// @Success 200 {object} service.PushResult
// @Failure 409 {object} map[string]any
// @Router /api/tickets/push [post]
func (h *Handler) PushTickets(c *gin.Context) {
	res, err := h.Tickets.PushReassignments(context.WithoutCancel(c.Request.Context()))
	metrics.RecordPush(res.Pushed, res.Failed, res.RateLimited)
	if err != nil && !res.RateLimited {
		writeServiceError(c, err)
		return
	}
	status := http.StatusOK
	if res.RateLimited {
		// partial progress is kept; the body says how far it got
		status = http.StatusTooManyRequests
	}
	c.JSON(status, res)
}

// @Summary Push one ticket's reassignment
// @Tags tickets
// @Produce json
// @Param id path int true "ticket id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/tickets/{id}/push [post]
func (h *Handler) PushTicket(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "ticket id must be a positive integer", nil)
		return
	}
	t, pushed, err := h.Tickets.PushOne(context.WithoutCancel(c.Request.Context()), id)
	rateLimited := errors.Is(err, service.ErrRateLimited)
	if pushed {
		metrics.RecordPush(1, 0, false)
	} else if err != nil && !errors.Is(err, service.ErrTicketNotFound) {
		metrics.RecordPush(0, 1, rateLimited)
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": t, "pushed": pushed})
}

type AutoRefreshRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// @Summary Turn timed ticket refresh on or off
// @Tags tickets
// @Accept json
// @Produce json
// @Param body body AutoRefreshRequest true "switch"
// @Success 200 {object} service.SyncStatus
// @Router /api/tickets/auto-refresh [post]
func (h *Handler) SetAutoRefresh(c *gin.Context) {
	var req AutoRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	h.Tickets.SetAutoRefresh(*req.Enabled)
	h.Logger.Info().Bool("enabled", *req.Enabled).Msg("auto-refresh toggled")
	c.JSON(http.StatusOK, h.Tickets.Status())
}
