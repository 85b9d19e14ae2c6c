// Package restapi is the thin REST command surface of spec §6: each
// handler maps one HTTP call onto a bus.Bus command, translates apierr
// kinds to status codes, and otherwise carries no business logic of its
// own. Grounded on the teacher's apps/mcp-server/internal/api/server.go
// gin route/group/middleware idiom. Per spec §1 this surface (like the AI
// backend clients, PDF rendering, and embedding search) is an excluded
// collaborator specified only by its interface with the core — so this
// package stays a thin mapping layer. Outside bus.Bus it touches only the
// project store (session create/load/list) and the session's CRDT manager
// (node setup and saved-state load when a session opens, and read-only
// prompt assembly).
package restapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/aiclient"
	"github.com/scriptroom/storyengine/internal/config"
	"github.com/scriptroom/storyengine/internal/observability"
	"github.com/scriptroom/storyengine/internal/store"
)

// Server wires the single active project session (spec §1 Non-goal:
// multi-project tenancy within one server process) to a gin.Engine.
type Server struct {
	cfg     config.Config
	store   store.PersistenceStore
	logger  observability.Logger
	metrics observability.MetricsClient
	tracer  *observability.TracingHandler

	sessions *sessionManager
	chat     aiclient.ChatClient
}

// NewServer constructs a Server around a persistence store and the
// ambient stack. The one active project must be created or loaded (via the
// project routes or LoadProject) before any timeline/story/content/diffusion
// request can succeed; Session() only returns it. The AI
// backend defaults to aiclient.NoOpChatClient until a transport adapter is
// wired in via WithChatClient.
func NewServer(cfg config.Config, persistence store.PersistenceStore, logger observability.Logger, metrics observability.MetricsClient, tracer *observability.TracingHandler) *Server {
	return &Server{
		cfg:      cfg,
		store:    persistence,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		sessions: newSessionManager(cfg, persistence, logger, metrics, tracer),
		chat:     aiclient.NoOpChatClient{},
	}
}

// WithChatClient replaces the server's AI backend, for cmd/storyserver to
// wire in a real transport adapter once one exists.
func (s *Server) WithChatClient(c aiclient.ChatClient) *Server {
	s.chat = c
	return s
}

// Session exposes the active project session for cmd/storyserver to wire
// the WebSocket multiplex against the same bus.
func (s *Server) Session() *projectSession {
	return s.sessions.current()
}

// LoadProject loads projectID from the store and makes it the active
// session, for cmd/storyserver to resume the most recently saved project
// at startup.
func (s *Server) LoadProject(projectID uuid.UUID) error {
	_, err := s.sessions.Load(projectID)
	return err
}

// requestLogger mirrors the teacher's RequestLogger gin middleware:
// structured start/end log lines instead of gin's default text format.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

// errorMiddleware maps the last gin error (if any) through apierr's status
// table, in the idiom of the teacher's ErrorHandlerMiddleware.
func (s *Server) errorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		respondError(c, err)
	}
}

// RegisterRoutes builds the full route tree onto engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.Use(gin.Recovery(), s.requestLogger(), s.errorMiddleware())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")
	s.registerProjectRoutes(v1)
	s.registerTimelineRoutes(v1)
	s.registerStoryRoutes(v1)
	s.registerContentRoutes(v1)
	s.registerDiffusionRoutes(v1)
}
