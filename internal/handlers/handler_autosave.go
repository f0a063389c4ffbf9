package handlers

import (
	"log/slog"
	"net/http"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/dto"
	"github.com/SscSPs/fin_model_app/internal/middleware"
	"github.com/gin-gonic/gin"
)

// autoSaveHandler serves debounced saves and per-section history.
type autoSaveHandler struct {
	autoSave    portssvc.AutoSaveSvc
	dataService portssvc.FinancialDataReaderSvc
}

// RegisterAutoSaveRoutes registers the project section routes.
func RegisterAutoSaveRoutes(rg *gin.RouterGroup, autoSave portssvc.AutoSaveSvc, dataService portssvc.FinancialDataReaderSvc) {
	h := &autoSaveHandler{autoSave: autoSave, dataService: dataService}

	projects := rg.Group("/projects/:projectId")
	{
		sections := projects.Group("/sections/:section")
		sections.POST("/auto-save", h.autoSaveSection)
		sections.POST("/force-save", h.forceSaveSection)
		sections.GET("/save-status", h.getSaveStatus)
		sections.GET("/audit-history", h.getAuditHistory)
		sections.GET("/fields/:fieldName/history", h.getFieldHistory)

		projects.DELETE("/cancel-pending-saves", h.cancelPendingSaves)
	}
}

// autoSaveSection godoc
// @Summary Schedule an auto-save
// @Description Replaces any pending save of the section and saves after the quiet period
// @Tags auto-save
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param section path string true "Section slug"
// @Param body body dto.AutoSaveRequest true "Field values"
// @Success 202 {object} dto.SuccessResponse{data=domain.SaveStatus}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse "Scheduler shutting down"
// @Security BearerAuth
// @Router /projects/{projectId}/sections/{section}/auto-save [post]
func (h *autoSaveHandler) autoSaveSection(c *gin.Context) {
	req, ok := h.bindSave(c)
	if !ok {
		return
	}

	status, err := h.autoSave.AutoSave(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to schedule auto-save")
		return
	}
	middleware.PosthogEvent(c, "section_auto_save_scheduled", map[string]any{"field_count": len(req.Data)})
	c.JSON(http.StatusAccepted, dto.OKWithMessage(status, "Auto-save scheduled"))
}

// forceSaveSection godoc
// @Summary Save immediately
// @Description Discards any pending auto-save of the section and saves now
// @Tags auto-save
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param section path string true "Section slug"
// @Param body body dto.AutoSaveRequest true "Field values"
// @Success 200 {object} dto.SuccessResponse{data=dto.SectionRecordResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Concurrent modification"
// @Failure 503 {object} dto.ErrorResponse "Section is being saved elsewhere"
// @Security BearerAuth
// @Router /projects/{projectId}/sections/{section}/force-save [post]
func (h *autoSaveHandler) forceSaveSection(c *gin.Context) {
	req, ok := h.bindSave(c)
	if !ok {
		return
	}

	res, err := h.autoSave.ForceSave(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to save section")
		return
	}
	middleware.PosthogEvent(c, "section_force_saved", map[string]any{
		"changes_detected": res.ChangesDetected,
		"changed_fields":   len(res.ChangedFields),
	})
	c.JSON(http.StatusOK, dto.ToSaveResponse(res))
}

// getSaveStatus godoc
// @Summary Auto-save status
// @Description Reports whether a save is pending and the outcome of the last one
// @Tags auto-save
// @Produce json
// @Param projectId path string true "Project ID"
// @Param section path string true "Section slug"
// @Success 200 {object} dto.SuccessResponse{data=domain.SaveStatus}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /projects/{projectId}/sections/{section}/save-status [get]
func (h *autoSaveHandler) getSaveStatus(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	status, err := h.autoSave.GetSaveStatus(projectID, c.Param("section"))
	if err != nil {
		respondError(c, err, "Failed to get save status")
		return
	}
	c.JSON(http.StatusOK, dto.OK(status))
}

// getAuditHistory godoc
// @Summary Section audit history
// @Tags auto-save
// @Produce json
// @Param projectId path string true "Project ID"
// @Param section path string true "Section slug"
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Param action query string false "Action filter" Enums(INSERT, UPDATE, DELETE)
// @Success 200 {object} dto.SuccessResponse{data=[]domain.AuditLogEntry}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /projects/{projectId}/sections/{section}/audit-history [get]
func (h *autoSaveHandler) getAuditHistory(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	var params dto.AuditHistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	entries, err := h.dataService.GetAuditHistory(c.Request.Context(), c.Param("section"), projectID, params.ToFilter())
	if err != nil {
		respondError(c, err, "Failed to retrieve audit history")
		return
	}
	c.JSON(http.StatusOK, dto.OK(dto.NonNilEntries(entries)))
}

// getFieldHistory godoc
// @Summary Field history
// @Description Lists the audit entries that changed one field of the section
// @Tags auto-save
// @Produce json
// @Param projectId path string true "Project ID"
// @Param section path string true "Section slug"
// @Param fieldName path string true "Field name"
// @Param limit query int false "Limit" default(20)
// @Success 200 {object} dto.SuccessResponse{data=[]domain.AuditLogEntry}
// @Failure 400 {object} dto.ErrorResponse "Unknown section or field"
// @Security BearerAuth
// @Router /projects/{projectId}/sections/{section}/fields/{fieldName}/history [get]
func (h *autoSaveHandler) getFieldHistory(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	var params dto.FieldHistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	entries, err := h.dataService.GetFieldHistory(c.Request.Context(), c.Param("section"), projectID, c.Param("fieldName"), params.Limit)
	if err != nil {
		respondError(c, err, "Failed to retrieve field history")
		return
	}
	c.JSON(http.StatusOK, dto.OK(dto.NonNilEntries(entries)))
}

// cancelPendingSaves godoc
// @Summary Cancel pending auto-saves
// @Description Drops every pending auto-save of the project without saving
// @Tags auto-save
// @Produce json
// @Param projectId path string true "Project ID"
// @Success 200 {object} dto.SuccessResponse{data=dto.CancelPendingSavesResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /projects/{projectId}/cancel-pending-saves [delete]
func (h *autoSaveHandler) cancelPendingSaves(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	n := h.autoSave.CancelPendingSaves(projectID)
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Pending saves cancelled",
		slog.String("project_id", projectID), slog.Int("cancelled", n))
	c.JSON(http.StatusOK, dto.OK(dto.CancelPendingSavesResponse{ProjectID: projectID, Cancelled: n}))
}

func (h *autoSaveHandler) bindSave(c *gin.Context) (portssvc.AutoSaveRequest, bool) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return portssvc.AutoSaveRequest{}, false
	}
	var body dto.AutoSaveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err, "request format")
		return portssvc.AutoSaveRequest{}, false
	}
	userID, ok := currentUserID(c)
	if !ok {
		return portssvc.AutoSaveRequest{}, false
	}
	return portssvc.AutoSaveRequest{
		ProjectID:    projectID,
		Section:      c.Param("section"),
		Data:         domain.FieldValues(body.Data),
		UserID:       userID,
		ChangeReason: body.ChangeReason,
		IPAddress:    clientIP(c),
	}, true
}
