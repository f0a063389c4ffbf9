package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/SscSPs/fin_model_app/internal/dto"
	"github.com/SscSPs/fin_model_app/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrDuplicate),
		errors.Is(err, apperrors.ErrVersionConflict),
		errors.Is(err, apperrors.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrPrerequisite):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrCalculationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope for err. Internal errors are logged and their
// message replaced by fallback.
func respondError(c *gin.Context, err error, fallback string) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, slog.String("error", err.Error()))
		c.JSON(status, dto.Fail(fallback))
		return
	}

	logger.Warn("Request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	resp := dto.Fail(err.Error())
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	c.JSON(status, resp)
}

// respondBindError writes a 400 for a request that failed binding or tag validation.
func respondBindError(c *gin.Context, err error, what string) {
	middleware.GetLoggerFromCtx(c.Request.Context()).Warn("Failed to bind "+what, slog.String("error", err.Error()))
	resp := dto.Fail("Invalid " + what + ": " + err.Error())
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[fe.Field()] = "failed on the '" + fe.Tag() + "' rule"
		}
	}
	c.JSON(http.StatusBadRequest, resp)
}

// currentUserID returns the authenticated user, writing a 401 when there is none.
func currentUserID(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		middleware.GetLoggerFromCtx(c.Request.Context()).Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, dto.Fail("Unauthorized"))
	}
	return userID, ok
}

// projectIDParam returns the normalized projectId path parameter, writing a 400 when it is not a UUID.
func projectIDParam(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		middleware.GetLoggerFromCtx(c.Request.Context()).Warn("Invalid project ID", slog.String("project_id", c.Param("projectId")))
		c.JSON(http.StatusBadRequest, dto.Fail("Invalid project ID format"))
		return "", false
	}
	return id.String(), true
}

// runIDParam returns the runId path parameter, writing a 400 when it is not a UUID.
func runIDParam(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("Invalid run ID format"))
		return "", false
	}
	return id.String(), true
}

// clientIP is the address recorded in audit entries.
func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return domain.UnknownIPAddress
}
