package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/dto"
	"github.com/SscSPs/fin_model_app/internal/middleware"
	"github.com/gin-gonic/gin"
)

// sectionHandler serves one financial data section.
type sectionHandler struct {
	dataService portssvc.FinancialDataSvcFacade
	section     string
}

// RegisterSectionRoutes registers one route group per section slug.
func RegisterSectionRoutes(rg *gin.RouterGroup, dataService portssvc.FinancialDataSvcFacade) {
	for _, schema := range domain.Sections() {
		h := &sectionHandler{dataService: dataService, section: schema.Section}

		g := rg.Group("/" + schema.Section)
		{
			g.GET("/:projectId", h.getSection)
			g.POST("/:projectId", h.createSection)
			g.PUT("/:projectId", h.upsertSection)
			g.PATCH("/:projectId", h.patchSection)
			g.DELETE("/:projectId", h.deleteSection)
			g.GET("/:projectId/audit", h.getSectionAudit)
			g.GET("/:projectId/audit/stats", h.getSectionAuditStats)
		}
	}
}

// getSection godoc
// @Summary Get section data
// @Description Returns the latest record of a section for a project
// @Tags sections
// @Produce json
// @Param section path string true "Section slug" Enums(company-details, profit-loss, balance-sheet, debt-structure, growth-assumptions, working-capital, seasonality, cash-flow)
// @Param projectId path string true "Project ID"
// @Success 200 {object} dto.SuccessResponse{data=dto.SectionRecordResponse}
// @Failure 400 {object} dto.ErrorResponse "Invalid project ID"
// @Failure 404 {object} dto.ErrorResponse "No data for this project"
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /{section}/{projectId} [get]
func (h *sectionHandler) getSection(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	record, err := h.dataService.GetByProjectID(c.Request.Context(), h.section, projectID)
	if err != nil {
		respondError(c, err, "Failed to retrieve "+h.section+" data")
		return
	}
	c.JSON(http.StatusOK, dto.OK(dto.ToSectionRecordResponse(record)))
}

// createSection godoc
// @Summary Create section data
// @Description Creates the first record of a section for a project
// @Tags sections
// @Accept json
// @Produce json
// @Param section path string true "Section slug"
// @Param projectId path string true "Project ID"
// @Param body body dto.UpsertSectionRequest true "Field values"
// @Success 201 {object} dto.SuccessResponse{data=dto.SectionRecordResponse}
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 409 {object} dto.ErrorResponse "Data already exists"
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /{section}/{projectId} [post]
func (h *sectionHandler) createSection(c *gin.Context) {
	var req dto.UpsertSectionRequest
	cmd, ok := h.bindWrite(c, &req, func() (map[string]any, string, bool) {
		return req.Data, req.ChangeReason, req.CalculateDerived
	})
	if !ok {
		return
	}

	res, err := h.dataService.Create(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err, "Failed to create "+h.section+" data")
		return
	}
	c.JSON(http.StatusCreated, dto.ToSaveResponse(res))
}

// upsertSection godoc
// @Summary Save section data
// @Description Inserts the first record or updates only the fields that changed.
// @Description Responds with "No changes detected" when nothing differs.
// @Tags sections
// @Accept json
// @Produce json
// @Param section path string true "Section slug"
// @Param projectId path string true "Project ID"
// @Param body body dto.UpsertSectionRequest true "Field values"
// @Success 200 {object} dto.SuccessResponse{data=dto.SectionRecordResponse}
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 409 {object} dto.ErrorResponse "Concurrent modification"
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /{section}/{projectId} [put]
func (h *sectionHandler) upsertSection(c *gin.Context) {
	var req dto.UpsertSectionRequest
	cmd, ok := h.bindWrite(c, &req, func() (map[string]any, string, bool) {
		return req.Data, req.ChangeReason, req.CalculateDerived
	})
	if !ok {
		return
	}

	res, err := h.dataService.Upsert(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err, "Failed to save "+h.section+" data")
		return
	}
	c.JSON(http.StatusOK, dto.ToSaveResponse(res))
}

// patchSection godoc
// @Summary Partially update section data
// @Description Updates the given fields of the existing record
// @Tags sections
// @Accept json
// @Produce json
// @Param section path string true "Section slug"
// @Param projectId path string true "Project ID"
// @Param body body dto.PatchSectionRequest true "Field updates"
// @Success 200 {object} dto.SuccessResponse{data=dto.SectionRecordResponse}
// @Failure 400 {object} dto.ErrorResponse "Invalid input"
// @Failure 404 {object} dto.ErrorResponse "No data for this project"
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /{section}/{projectId} [patch]
func (h *sectionHandler) patchSection(c *gin.Context) {
	var req dto.PatchSectionRequest
	cmd, ok := h.bindWrite(c, &req, func() (map[string]any, string, bool) {
		return req.FieldUpdates, req.ChangeReason, req.CalculateDerived
	})
	if !ok {
		return
	}

	res, err := h.dataService.PartialUpdate(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err, "Failed to update "+h.section+" data")
		return
	}
	c.JSON(http.StatusOK, dto.ToSaveResponse(res))
}

// deleteSection godoc
// @Summary Delete section data
// @Description Deletes the project's records of a section. Each removal is audited.
// @Tags sections
// @Accept json
// @Produce json
// @Param section path string true "Section slug"
// @Param projectId path string true "Project ID"
// @Param body body dto.DeleteSectionRequest false "Reason"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse "No data for this project"
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /{section}/{projectId} [delete]
func (h *sectionHandler) deleteSection(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.DeleteSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(c, err, "request body")
		return
	}

	deleted, err := h.dataService.Delete(c.Request.Context(), domain.DeleteCommand{
		Section:      h.section,
		ProjectID:    projectID,
		UserID:       userID,
		ChangeReason: req.ChangeReason,
		IPAddress:    clientIP(c),
	})
	if err != nil {
		respondError(c, err, "Failed to delete "+h.section+" data")
		return
	}

	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Section data deleted",
		slog.String("section", h.section), slog.String("project_id", projectID), slog.Int("records", deleted))
	c.JSON(http.StatusOK, dto.OKWithMessage(gin.H{"deleted": deleted}, "Data deleted"))
}

// getSectionAudit godoc
// @Summary Section audit history
// @Description Lists audit entries of the project's records in the section, newest first
// @Tags sections
// @Produce json
// @Param section path string true "Section slug"
// @Param projectId path string true "Project ID"
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Param action query string false "Action filter" Enums(INSERT, UPDATE, DELETE)
// @Success 200 {object} dto.SuccessResponse{data=[]domain.AuditLogEntry}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /{section}/{projectId}/audit [get]
func (h *sectionHandler) getSectionAudit(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	var params dto.AuditHistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	entries, err := h.dataService.GetAuditHistory(c.Request.Context(), h.section, projectID, params.ToFilter())
	if err != nil {
		respondError(c, err, "Failed to retrieve audit history")
		return
	}
	c.JSON(http.StatusOK, dto.OK(dto.NonNilEntries(entries)))
}

// getSectionAuditStats godoc
// @Summary Section audit statistics
// @Description Aggregates audit entries of the section per action
// @Tags sections
// @Produce json
// @Param section path string true "Section slug"
// @Param projectId path string true "Project ID"
// @Success 200 {object} dto.SuccessResponse{data=[]domain.AuditStat}
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /{section}/{projectId}/audit/stats [get]
func (h *sectionHandler) getSectionAuditStats(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	stats, err := h.dataService.GetAuditStats(c.Request.Context(), h.section, projectID)
	if err != nil {
		respondError(c, err, "Failed to retrieve audit statistics")
		return
	}
	if stats == nil {
		stats = []domain.AuditStat{}
	}
	c.JSON(http.StatusOK, dto.OK(stats))
}

// bindWrite validates the path and body of a write and builds the command.
// fields reads the bound request once binding succeeded.
func (h *sectionHandler) bindWrite(c *gin.Context, req any, fields func() (map[string]any, string, bool)) (domain.UpsertCommand, bool) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return domain.UpsertCommand{}, false
	}
	if err := c.ShouldBindJSON(req); err != nil {
		respondBindError(c, err, "request format")
		return domain.UpsertCommand{}, false
	}
	userID, ok := currentUserID(c)
	if !ok {
		return domain.UpsertCommand{}, false
	}

	data, reason, derive := fields()
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Received section write",
		slog.String("section", h.section),
		slog.String("project_id", projectID),
		slog.Int("fields", len(data)))

	return domain.UpsertCommand{
		Section:          h.section,
		ProjectID:        projectID,
		Data:             domain.FieldValues(data),
		UserID:           userID,
		ChangeReason:     reason,
		IPAddress:        clientIP(c),
		CalculateDerived: derive,
	}, true
}
