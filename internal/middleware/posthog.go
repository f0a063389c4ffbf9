package middleware

import (
	"net/http"
	"strings"

	"github.com/SscSPs/fin_model_app/internal/platform/analytics"
	"github.com/gin-gonic/gin"
)

const trackerKey = contextKey("tracker")

// pathsToSkip contains paths that should not be tracked by PostHog
var pathsToSkip = map[string]bool{
	"/health": true,
}

// trackedParams maps route parameters to top-level event properties so events can be filtered per project.
var trackedParams = map[string]string{
	"projectId":       "project_id",
	"section":         "section",
	"calculationType": "calculation_type",
	"runId":           "run_id",
}

// PosthogMiddleware tracks one event per successful API call and exposes the tracker to PosthogEvent.
func PosthogMiddleware(tracker analytics.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !trackerReady(tracker) || pathsToSkip[c.Request.URL.Path] {
			c.Next()
			return
		}
		c.Set(string(trackerKey), tracker)

		c.Next()

		if len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		userID, exists := GetUserIDFromContext(c)
		if !exists {
			return
		}

		// "/api/v1/projects/:projectId/calculations/:calculationType/execute" -> "api_v1_projects_:projectId_calculations_:calculationType_execute"
		eventName := strings.ReplaceAll(strings.TrimPrefix(c.FullPath(), "/"), "/", "_")
		if eventName == "" {
			return
		}

		props := requestProperties(c, nil)
		props["status_code"] = c.Writer.Status()
		tracker.Enqueue(userID, eventName, props)
	}
}

// PosthogEvent sends a custom event through the tracker installed by PosthogMiddleware.
// It is a no-op when tracking is off or the caller is anonymous.
func PosthogEvent(c *gin.Context, eventName string, properties map[string]any) {
	val, ok := c.Get(string(trackerKey))
	if !ok {
		return
	}
	tracker, ok := val.(analytics.Tracker)
	if !ok {
		return
	}
	userID, exists := GetUserIDFromContext(c)
	if !exists {
		return
	}
	tracker.Enqueue(userID, eventName, requestProperties(c, properties))
}

func requestProperties(c *gin.Context, properties map[string]any) map[string]any {
	props := make(map[string]any, len(properties)+len(c.Params)+2)
	for k, v := range properties {
		props[k] = v
	}
	props["method"] = c.Request.Method
	props["path"] = c.Request.URL.Path
	for _, param := range c.Params {
		if name, ok := trackedParams[param.Key]; ok {
			props[name] = param.Value
		}
	}
	return props
}

func trackerReady(tracker analytics.Tracker) bool {
	if tracker == nil {
		return false
	}
	if w, ok := tracker.(*analytics.PosthogClientWrapper); ok {
		return w.IsInitialized()
	}
	return true
}
