package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bookleaf/tracker/internal/metrics"
	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/normalize"
	"github.com/bookleaf/tracker/internal/service"
)

// @Summary Import a payment export
// @Description Reconcile a payment CSV against the override store and round-robin new authors
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "payments.csv"
// @Param include_indian formData bool false "keep Indian Bestseller payments (default true)"
// @Param include_intl formData bool false "keep Intl Bestseller payments (default true)"
// @Success 200 {object} service.ImportSummary
// @Failure 400 {object} map[string]any
// @Router /api/import/payments [post]
func (h *Handler) ImportPayments(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file required", nil)
		return
	}
	if !validateExt(file.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file must be .csv", nil)
		return
	}
	rows, problems, err := readCSV(file)
	if err != nil {
		writeError(c, http.StatusBadRequest, "CSV_PARSE_ERROR", "Could not read CSV", err.Error())
		return
	}

	payments := make([]normalize.PaymentRow, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, normalize.PaymentRowFrom(r))
	}
	filter := normalize.PackageFilter{
		IncludeIndian: boolParam(c, "include_indian", true),
		IncludeIntl:   boolParam(c, "include_intl", true),
	}

	summary, err := h.Tracker.ImportPayments(c.Request.Context(), payments, filter)
	if err != nil {
		h.Logger.Error().Err(err).Msg("payment import failed")
		writeServiceError(c, err)
		return
	}
	summary.Malformed += len(problems)
	metrics.RecordImport(summary.PreAssigned, summary.NewlyAssigned, summary.TrackerOnly)
	c.JSON(http.StatusOK, summary)
}

// @Summary Import a consultant tracker sheet
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param consultant formData string true "consultant name"
// @Param file formData file true "tracker.csv"
// @Success 200 {object} service.TrackerImportSummary
// @Failure 400 {object} map[string]any
// @Router /api/import/tracker [post]
func (h *Handler) ImportTracker(c *gin.Context) {
	consultant := strings.TrimSpace(c.PostForm("consultant"))
	if consultant == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "consultant is required", nil)
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file required", nil)
		return
	}
	if !validateExt(file.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file must be .csv", nil)
		return
	}
	rows, problems, err := readCSV(file)
	if err != nil {
		writeError(c, http.StatusBadRequest, "CSV_PARSE_ERROR", "Could not read CSV", err.Error())
		return
	}

	summary, err := h.Tracker.ImportTracker(c.Request.Context(), consultant, rows)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	summary.Malformed += len(problems)
	c.JSON(http.StatusOK, summary)
}

// @Summary List authors
// @Tags authors
// @Produce json
// @Param view query string false "admin or a consultant name"
// @Success 200 {object} map[string]any
// @Router /api/authors [get]
func (h *Handler) AuthorsList(c *gin.Context) {
	view := strings.TrimSpace(c.DefaultQuery("view", service.AdminScope))
	if view != service.AdminScope {
		if _, ok := h.Tracker.Consultant(view); !ok {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unknown view", view)
			return
		}
	}
	status := models.Status(strings.TrimSpace(c.Query("status")))
	items := h.Tracker.Authors(view)
	if status != "" {
		filtered := items[:0]
		for _, a := range items {
			if a.Status == status {
				filtered = append(filtered, a)
			}
		}
		items = filtered
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items), "cursor": int(h.Tracker.Cursor())})
}

// @Summary Round-robin every assigned author across active consultants
// @Tags authors
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/authors/auto-assign [post]
func (h *Handler) AutoAssign(c *gin.Context) {
	n, err := h.Tracker.AutoAssign(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "reassigned": n})
}

// @Summary Clear every consultant assignment
// @Tags authors
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/authors/clear [post]
func (h *Handler) ClearAssignments(c *gin.Context) {
	n, err := h.Tracker.ClearAssignments(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cleared": n})
}

type AuthorPatchRequest struct {
	Status      *string         `json:"status" validate:"omitempty,oneof=assigned in-progress good-to-go completed"`
	Consultant  *string         `json:"consultant" validate:"omitempty,max=64"`
	Remarks     *string         `json:"remarks" validate:"omitempty,max=2000"`
	Stages      map[string]bool `json:"stages"`
	ToggleStage string          `json:"toggle_stage" validate:"omitempty,max=64"`
}

// @Summary Live edit of one author
// @Tags authors
// @Accept json
// @Produce json
// @Param email path string true "author email"
// @Param body body AuthorPatchRequest true "fields to change"
// @Success 200 {object} models.Author
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/authors/{email} [patch]
func (h *Handler) PatchAuthor(c *gin.Context) {
	email := normalize.NormalizeEmail(c.Param("email"))
	var req AuthorPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	ctx := c.Request.Context()
	if req.ToggleStage != "" {
		if _, err := h.Tracker.ToggleStage(ctx, email, req.ToggleStage); err != nil {
			writeServiceError(c, err)
			return
		}
	}

	patch := models.OverridePatch{
		Consultant: req.Consultant,
		Remarks:    req.Remarks,
	}
	if req.Status != nil {
		st := models.Status(*req.Status)
		patch.Status = &st
	}
	if len(req.Stages) > 0 {
		patch.Stages = models.StagePatch(req.Stages)
	}
	if patch.Consultant == nil && patch.Remarks == nil && patch.Status == nil && patch.Stages == nil {
		a, ok := h.Tracker.Author(email)
		if !ok {
			writeServiceError(c, service.ErrAuthorNotFound)
			return
		}
		c.JSON(http.StatusOK, a)
		return
	}

	a, err := h.Tracker.UpdateAuthor(ctx, email, patch)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Override record for one author
// @Tags authors
// @Produce json
// @Param email path string true "author email"
// @Success 200 {object} models.OverrideRecord
// @Failure 404 {object} map[string]any
// @Router /api/overrides/{email} [get]
func (h *Handler) OverrideGet(c *gin.Context) {
	rec, ok := h.Tracker.Overrides().Get(c.Param("email"))
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "No override for this author", nil)
		return
	}
	c.JSON(http.StatusOK, rec)
}
