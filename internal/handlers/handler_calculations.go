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

// calculationHandler serves calculation runs and their execution.
type calculationHandler struct {
	tracker  portssvc.CalculationTrackerSvcFacade
	executor portssvc.CalculationExecutorSvc
}

// RegisterCalculationRoutes registers the calculation routes.
func RegisterCalculationRoutes(rg *gin.RouterGroup, tracker portssvc.CalculationTrackerSvcFacade, executor portssvc.CalculationExecutorSvc) {
	h := &calculationHandler{tracker: tracker, executor: executor}

	projectCalcs := rg.Group("/projects/:projectId/calculations")
	{
		projectCalcs.POST("/runs", h.createRun)
		projectCalcs.GET("/history", h.getHistory)
		projectCalcs.GET("/stats", h.getStats)
		projectCalcs.DELETE("/clean-old-runs", h.cleanOldRuns)
		projectCalcs.POST("/runs/:runId/restore", h.restoreRun)
		projectCalcs.GET("/:calculationType/validate", h.validate)
		projectCalcs.POST("/:calculationType/execute", h.execute)
	}

	calcs := rg.Group("/calculations")
	{
		calcs.GET("/compare", h.compareRuns)
		calcs.GET("/runs/:runId", h.getRun)
		calcs.PUT("/runs/:runId/complete", h.completeRun)
		calcs.PUT("/runs/:runId/fail", h.failRun)
		calcs.POST("/runs/:runId/iterations", h.saveIteration)
		calcs.POST("/runs/:runId/schedules", h.saveSchedules)
	}
}

// createRun godoc
// @Summary Start a calculation run
// @Tags calculations
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param body body dto.CreateRunRequest true "Run"
// @Success 201 {object} dto.SuccessResponse{data=domain.CalculationRun}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /projects/{projectId}/calculations/runs [post]
func (h *calculationHandler) createRun(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "request format")
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	run, err := h.tracker.CreateRun(c.Request.Context(), domain.NewCalculationRun{
		ProjectID:       projectID,
		CalculationType: domain.CalculationType(req.CalculationType),
		RunName:         req.RunName,
		InputData:       req.InputData,
		CreatedBy:       userID,
	})
	if err != nil {
		respondError(c, err, "Failed to create calculation run")
		return
	}
	c.JSON(http.StatusCreated, dto.OK(run))
}

// completeRun godoc
// @Summary Complete a calculation run
// @Tags calculations
// @Accept json
// @Produce json
// @Param runId path string true "Run ID"
// @Param body body dto.CompleteRunRequest true "Output"
// @Success 200 {object} dto.SuccessResponse{data=domain.CalculationRun}
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Run is not running"
// @Security BearerAuth
// @Router /calculations/runs/{runId}/complete [put]
func (h *calculationHandler) completeRun(c *gin.Context) {
	runID, ok := runIDParam(c)
	if !ok {
		return
	}
	var req dto.CompleteRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "request format")
		return
	}

	run, err := h.tracker.CompleteRun(c.Request.Context(), runID, req.OutputData, req.ExecutionTimeMs)
	if err != nil {
		respondError(c, err, "Failed to complete calculation run")
		return
	}
	c.JSON(http.StatusOK, dto.OK(run))
}

// failRun godoc
// @Summary Fail a calculation run
// @Tags calculations
// @Accept json
// @Produce json
// @Param runId path string true "Run ID"
// @Param body body dto.FailRunRequest false "Failure"
// @Success 200 {object} dto.SuccessResponse{data=domain.CalculationRun}
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Run is not running"
// @Security BearerAuth
// @Router /calculations/runs/{runId}/fail [put]
func (h *calculationHandler) failRun(c *gin.Context) {
	runID, ok := runIDParam(c)
	if !ok {
		return
	}
	var req dto.FailRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(c, err, "request format")
		return
	}

	run, err := h.tracker.FailRun(c.Request.Context(), runID, req.ErrorMessage, req.ExecutionTimeMs)
	if err != nil {
		respondError(c, err, "Failed to fail calculation run")
		return
	}
	c.JSON(http.StatusOK, dto.OK(run))
}

// saveIteration godoc
// @Summary Record an iteration
// @Tags calculations
// @Accept json
// @Produce json
// @Param runId path string true "Run ID"
// @Param body body dto.SaveIterationRequest true "Iteration"
// @Success 201 {object} dto.SuccessResponse{data=domain.CalculationIteration}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Iteration number already used"
// @Security BearerAuth
// @Router /calculations/runs/{runId}/iterations [post]
func (h *calculationHandler) saveIteration(c *gin.Context) {
	runID, ok := runIDParam(c)
	if !ok {
		return
	}
	var req dto.SaveIterationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "request format")
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	it, err := h.tracker.SaveIteration(c.Request.Context(), domain.CalculationIteration{
		RunID:           runID,
		IterationNumber: req.IterationNumber,
		InputChanges:    req.InputChanges,
		OutputChanges:   req.OutputChanges,
		CreatedBy:       userID,
	})
	if err != nil {
		respondError(c, err, "Failed to save iteration")
		return
	}
	c.JSON(http.StatusCreated, dto.OK(it))
}

// saveSchedules godoc
// @Summary Record schedules
// @Tags calculations
// @Accept json
// @Produce json
// @Param runId path string true "Run ID"
// @Param body body dto.SaveSchedulesRequest true "Schedules"
// @Success 201 {object} dto.SuccessResponse{data=[]domain.CalculationSchedule}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /calculations/runs/{runId}/schedules [post]
func (h *calculationHandler) saveSchedules(c *gin.Context) {
	runID, ok := runIDParam(c)
	if !ok {
		return
	}
	var req dto.SaveSchedulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "request format")
		return
	}

	schedules, err := h.tracker.SaveSchedules(c.Request.Context(), runID, req.ToDomain())
	if err != nil {
		respondError(c, err, "Failed to save schedules")
		return
	}
	c.JSON(http.StatusCreated, dto.OK(schedules))
}

// getHistory godoc
// @Summary Calculation history
// @Tags calculations
// @Produce json
// @Param projectId path string true "Project ID"
// @Param type query string false "Calculation type"
// @Param limit query int false "Limit" default(20)
// @Success 200 {object} dto.SuccessResponse{data=[]domain.CalculationRun}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /projects/{projectId}/calculations/history [get]
func (h *calculationHandler) getHistory(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	var params dto.CalculationHistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	runs, err := h.tracker.GetHistory(c.Request.Context(), projectID, domain.CalculationType(params.Type), params.Limit)
	if err != nil {
		respondError(c, err, "Failed to retrieve calculation history")
		return
	}
	c.JSON(http.StatusOK, dto.OK(dto.NonNilRuns(runs)))
}

// getRun godoc
// @Summary Get a calculation run
// @Description Returns a run with its iterations and schedules
// @Tags calculations
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} dto.SuccessResponse{data=domain.CalculationRun}
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /calculations/runs/{runId} [get]
func (h *calculationHandler) getRun(c *gin.Context) {
	runID, ok := runIDParam(c)
	if !ok {
		return
	}

	run, err := h.tracker.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err, "Failed to retrieve calculation run")
		return
	}
	c.JSON(http.StatusOK, dto.OK(run))
}

// compareRuns godoc
// @Summary Compare two runs
// @Tags calculations
// @Produce json
// @Param run1 query string true "First run ID"
// @Param run2 query string true "Second run ID"
// @Success 200 {object} dto.SuccessResponse{data=domain.RunComparison}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /calculations/compare [get]
func (h *calculationHandler) compareRuns(c *gin.Context) {
	var params dto.CompareRunsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	cmp, err := h.tracker.CompareRuns(c.Request.Context(), params.Run1, params.Run2)
	if err != nil {
		respondError(c, err, "Failed to compare calculation runs")
		return
	}
	c.JSON(http.StatusOK, dto.OK(cmp))
}

// getStats godoc
// @Summary Calculation statistics
// @Tags calculations
// @Produce json
// @Param projectId path string true "Project ID"
// @Success 200 {object} dto.SuccessResponse{data=[]domain.CalculationStat}
// @Security BearerAuth
// @Router /projects/{projectId}/calculations/stats [get]
func (h *calculationHandler) getStats(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	stats, err := h.tracker.GetStats(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err, "Failed to retrieve calculation statistics")
		return
	}
	if stats == nil {
		stats = []domain.CalculationStat{}
	}
	c.JSON(http.StatusOK, dto.OK(stats))
}

// cleanOldRuns godoc
// @Summary Delete old runs
// @Description Keeps the newest runs of a type and deletes the rest
// @Tags calculations
// @Produce json
// @Param projectId path string true "Project ID"
// @Param type query string true "Calculation type"
// @Param keep query int false "Runs to keep"
// @Success 200 {object} dto.SuccessResponse{data=dto.CleanOldRunsResponse}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /projects/{projectId}/calculations/clean-old-runs [delete]
func (h *calculationHandler) cleanOldRuns(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	var params dto.CleanOldRunsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err, "query parameters")
		return
	}

	deleted, err := h.tracker.CleanOldRuns(c.Request.Context(), projectID, domain.CalculationType(params.Type), params.Keep)
	if err != nil {
		respondError(c, err, "Failed to clean old calculation runs")
		return
	}
	c.JSON(http.StatusOK, dto.OK(dto.CleanOldRunsResponse{CalculationType: params.Type, Deleted: deleted}))
}

// execute godoc
// @Summary Execute a calculation
// @Description Checks prerequisites, runs the calculation script and records the run
// @Tags calculations
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param calculationType path string true "Calculation type" Enums(debt_schedule, depreciation_schedule, consolidated_monthly, consolidated_quarterly, consolidated_yearly, kpi)
// @Param body body dto.ExecuteCalculationRequest false "Parameters"
// @Success 200 {object} dto.SuccessResponse{data=domain.CalculationOutcome}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse "Prerequisites missing"
// @Failure 502 {object} dto.ErrorResponse "Calculation failed"
// @Failure 503 {object} dto.ErrorResponse "Calculation engine unavailable"
// @Security BearerAuth
// @Router /projects/{projectId}/calculations/{calculationType}/execute [post]
func (h *calculationHandler) execute(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	var req dto.ExecuteCalculationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(c, err, "request format")
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	calcType := domain.CalculationType(c.Param("calculationType"))
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Received calculation request",
		slog.String("project_id", projectID), slog.String("type", string(calcType)))

	outcome, err := h.executor.Execute(c.Request.Context(), portssvc.CalculationRequest{
		ProjectID:       projectID,
		CalculationType: calcType,
		RunName:         req.RunName,
		Params:          req.Params,
		UserID:          userID,
		IPAddress:       clientIP(c),
	})
	if err != nil {
		respondError(c, err, "Failed to execute calculation")
		return
	}
	c.JSON(http.StatusOK, dto.OKWithMessage(outcome, string(calcType)+" calculation completed"))
}

// validate godoc
// @Summary Check calculation prerequisites
// @Description Reports what a calculation still needs without running it
// @Tags calculations
// @Produce json
// @Param projectId path string true "Project ID"
// @Param calculationType path string true "Calculation type"
// @Success 200 {object} dto.SuccessResponse{data=domain.PrerequisiteCheck}
// @Failure 400 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /projects/{projectId}/calculations/{calculationType}/validate [get]
func (h *calculationHandler) validate(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	check, err := h.executor.Validate(c.Request.Context(), projectID, domain.CalculationType(c.Param("calculationType")))
	if err != nil {
		respondError(c, err, "Failed to validate calculation data")
		return
	}
	c.JSON(http.StatusOK, dto.OK(check))
}

// restoreRun godoc
// @Summary Restore a calculation run
// @Description Copies a completed run into a new completed run that becomes the latest result
// @Tags calculations
// @Produce json
// @Param projectId path string true "Project ID"
// @Param runId path string true "Run ID"
// @Success 201 {object} dto.SuccessResponse{data=domain.CalculationRun}
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Run is not completed"
// @Security BearerAuth
// @Router /projects/{projectId}/calculations/runs/{runId}/restore [post]
func (h *calculationHandler) restoreRun(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	runID, ok := runIDParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	run, err := h.executor.Restore(c.Request.Context(), portssvc.RestoreRequest{
		ProjectID: projectID,
		RunID:     runID,
		UserID:    userID,
		IPAddress: clientIP(c),
	})
	if err != nil {
		respondError(c, err, "Failed to restore calculation run")
		return
	}
	c.JSON(http.StatusCreated, dto.OKWithMessage(run, "Calculation run restored"))
}
