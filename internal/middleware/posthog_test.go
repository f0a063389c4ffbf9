package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/SscSPs/fin_model_app/internal/platform/analytics"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

type trackedEvent struct {
	userID string
	name   string
	props  map[string]any
}

type recordingTracker struct {
	mu     sync.Mutex
	events []trackedEvent
}

func (t *recordingTracker) Enqueue(distinctID, event string, properties map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, trackedEvent{userID: distinctID, name: event, props: properties})
}

type PosthogTestSuite struct {
	suite.Suite
	tracker *recordingTracker
	router  *gin.Engine
}

func TestPosthogSuite(t *testing.T) {
	suite.Run(t, new(PosthogTestSuite))
}

func (s *PosthogTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.tracker = &recordingTracker{}
	s.router = s.newRouter(s.tracker)
}

func (s *PosthogTestSuite) newRouter(tracker analytics.Tracker) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(string(userIDKey), user)
		}
		c.Next()
	})
	r.Use(PosthogMiddleware(tracker))
	r.POST("/projects/:projectId/sections/:section/force-save", func(c *gin.Context) {
		PosthogEvent(c, "section_force_saved", map[string]any{"changes_detected": true})
		c.Status(http.StatusOK)
	})
	r.POST("/projects/:projectId/calculations/:calculationType/execute", func(c *gin.Context) {
		c.Status(http.StatusBadGateway)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func (s *PosthogTestSuite) serve(router *gin.Engine, method, path, user string) {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	router.ServeHTTP(httptest.NewRecorder(), req)
}

func (s *PosthogTestSuite) TestRouteParamsAreTopLevelProperties() {
	s.serve(s.router, http.MethodPost, "/projects/p-1/sections/balance-sheet/force-save", "user-1")

	s.Require().Len(s.tracker.events, 2)

	custom := s.tracker.events[0]
	s.Equal("user-1", custom.userID)
	s.Equal("section_force_saved", custom.name)
	s.Equal("p-1", custom.props["project_id"])
	s.Equal("balance-sheet", custom.props["section"])
	s.Equal(true, custom.props["changes_detected"])
	s.Equal(http.MethodPost, custom.props["method"])

	route := s.tracker.events[1]
	s.Equal("projects_:projectId_sections_:section_force-save", route.name)
	s.Equal("p-1", route.props["project_id"])
	s.Equal("balance-sheet", route.props["section"])
	s.Equal(http.StatusOK, route.props["status_code"])
	s.NotContains(route.props, "params")
}

func (s *PosthogTestSuite) TestSkipsFailuresAnonymousAndHealth() {
	s.serve(s.router, http.MethodPost, "/projects/p-1/calculations/kpi/execute", "user-1")
	s.serve(s.router, http.MethodPost, "/projects/p-1/sections/balance-sheet/force-save", "")
	s.serve(s.router, http.MethodGet, "/health", "user-1")

	s.Empty(s.tracker.events)
}

func (s *PosthogTestSuite) TestUnconfiguredClientTracksNothing() {
	for _, tracker := range []analytics.Tracker{nil, &analytics.PosthogClientWrapper{}} {
		router := s.newRouter(tracker)
		s.NotPanics(func() {
			s.serve(router, http.MethodPost, "/projects/p-1/sections/balance-sheet/force-save", "user-1")
		})
	}
	s.Empty(s.tracker.events)
}
