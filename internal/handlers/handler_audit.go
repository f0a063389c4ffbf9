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
	"github.com/SscSPs/fin_model_app/internal/utils/pagination"
	"github.com/gin-gonic/gin"
)

// auditHandler serves project wide audit queries and retention.
type auditHandler struct {
	auditService      portssvc.AuditSvcFacade
	defaultDaysToKeep int
}

// RegisterAuditRoutes registers the audit routes. defaultDaysToKeep applies when a cleanup
// request names no retention.
func RegisterAuditRoutes(rg *gin.RouterGroup, auditService portssvc.AuditSvcFacade, defaultDaysToKeep int) {
	h := &auditHandler{auditService: auditService, defaultDaysToKeep: defaultDaysToKeep}

	rg.GET("/projects/:projectId/audit/history", h.getProjectHistory)
	rg.GET("/projects/:projectId/audit/stats", h.getProjectStats)

	audit := rg.Group("/audit")
	{
		audit.GET("/compare", h.compareVersions)
		audit.GET("/records/:table/:recordId", h.getRecordHistory)
		audit.GET("/records/:table/:recordId/stats", h.getRecordStats)
		audit.POST("/cleanup", h.cleanup)
	}
}

// getProjectHistory godoc
// @Summary Project audit history
// @Description Lists audit entries of every record of the project, newest first.
// @Description Pass nextToken from the previous page to continue.
// @Tags audit
// @Produce json
// @Param projectId path string true "Project ID"
// @Param limit query int false "Limit" default(100)
// @Param offset query int false "Offset, ignored with nextToken" default(0)
// @Param action query string false "Action filter" Enums(INSERT, UPDATE, DELETE)
// @Param nextToken query string false "Token for the next page"
// @Success 200 {object} dto.SuccessResponse{data=dto.ProjectAuditHistoryResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /projects/{projectId}/audit/history [get]
func (h *auditHandler) getProjectHistory(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	var params dto.ProjectAuditParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	filter := domain.AuditHistoryFilter{
		Limit:  params.Limit,
		Offset: params.Offset,
		Action: domain.AuditAction(params.Action),
	}
	if params.NextToken != nil && *params.NextToken != "" {
		ts, id, err := pagination.DecodeToken(*params.NextToken)
		if err != nil {
			respondBindError(c, err, "nextToken")
			return
		}
		filter.Before = &domain.AuditCursor{Timestamp: ts, ID: id}
		filter.Offset = 0
	}

	entries, next, err := h.auditService.GetProjectHistory(c.Request.Context(), projectID, filter)
	if err != nil {
		respondError(c, err, "Failed to retrieve project audit history")
		return
	}

	resp := dto.ProjectAuditHistoryResponse{Entries: dto.NonNilEntries(entries)}
	if next != "" {
		resp.NextToken = &next
	}
	c.JSON(http.StatusOK, dto.OK(resp))
}

// getProjectStats godoc
// @Summary Project audit statistics
// @Description Aggregates audit entries of the project per table and action
// @Tags audit
// @Produce json
// @Param projectId path string true "Project ID"
// @Success 200 {object} dto.SuccessResponse{data=[]domain.AuditStat}
// @Security BearerAuth
// @Router /projects/{projectId}/audit/stats [get]
func (h *auditHandler) getProjectStats(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	stats, err := h.auditService.GetProjectStats(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err, "Failed to retrieve project audit statistics")
		return
	}
	if stats == nil {
		stats = []domain.AuditStat{}
	}
	c.JSON(http.StatusOK, dto.OK(stats))
}

// getRecordHistory godoc
// @Summary Record audit history
// @Description Lists the audit entries of one section record or calculation run, newest first
// @Tags audit
// @Produce json
// @Param table path string true "Audited table, e.g. balance_sheet_data or calculation_runs"
// @Param recordId path string true "Record ID"
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Param action query string false "Action filter" Enums(INSERT, UPDATE, DELETE)
// @Success 200 {object} dto.SuccessResponse{data=[]domain.AuditLogEntry}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /audit/records/{table}/{recordId} [get]
func (h *auditHandler) getRecordHistory(c *gin.Context) {
	var params dto.AuditHistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	entries, err := h.auditService.GetRecordHistory(c.Request.Context(), c.Param("table"), c.Param("recordId"), params.ToFilter())
	if err != nil {
		respondError(c, err, "Failed to retrieve record audit history")
		return
	}
	c.JSON(http.StatusOK, dto.OK(dto.NonNilEntries(entries)))
}

// getRecordStats godoc
// @Summary Record audit statistics
// @Description Aggregates the audit entries of one record per action
// @Tags audit
// @Produce json
// @Param table path string true "Audited table"
// @Param recordId path string true "Record ID"
// @Success 200 {object} dto.SuccessResponse{data=[]domain.AuditStat}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /audit/records/{table}/{recordId}/stats [get]
func (h *auditHandler) getRecordStats(c *gin.Context) {
	stats, err := h.auditService.GetRecordStats(c.Request.Context(), c.Param("table"), c.Param("recordId"))
	if err != nil {
		respondError(c, err, "Failed to retrieve record audit statistics")
		return
	}
	if stats == nil {
		stats = []domain.AuditStat{}
	}
	c.JSON(http.StatusOK, dto.OK(stats))
}

// compareVersions godoc
// @Summary Compare audit versions
// @Description Diffs the new values of two audit entries
// @Tags audit
// @Produce json
// @Param from query int true "Older audit entry ID"
// @Param to query int true "Newer audit entry ID"
// @Success 200 {object} dto.SuccessResponse{data=domain.VersionComparison}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /audit/compare [get]
func (h *auditHandler) compareVersions(c *gin.Context) {
	var params dto.CompareVersionsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	cmp, err := h.auditService.CompareVersions(c.Request.Context(), params.From, params.To)
	if err != nil {
		respondError(c, err, "Failed to compare versions")
		return
	}
	c.JSON(http.StatusOK, dto.OK(cmp))
}

// cleanup godoc
// @Summary Audit retention cleanup
// @Description Archives and deletes audit entries older than daysToKeep days
// @Tags audit
// @Accept json
// @Produce json
// @Param body body dto.AuditCleanupRequest false "Retention"
// @Success 200 {object} dto.SuccessResponse{data=dto.AuditCleanupResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /audit/cleanup [post]
func (h *auditHandler) cleanup(c *gin.Context) {
	var req dto.AuditCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(c, err, "request body")
		return
	}
	if req.DaysToKeep == 0 {
		req.DaysToKeep = h.defaultDaysToKeep
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	deleted, err := h.auditService.Cleanup(c.Request.Context(), req.DaysToKeep)
	if err != nil {
		respondError(c, err, "Failed to clean up audit log")
		return
	}

	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Audit cleanup requested",
		slog.String("requested_by", userID), slog.Int("days_to_keep", req.DaysToKeep), slog.Int64("deleted", deleted))
	c.JSON(http.StatusOK, dto.OK(dto.AuditCleanupResponse{DaysToKeep: req.DaysToKeep, Deleted: deleted}))
}
