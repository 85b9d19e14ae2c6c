package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/timeline"
)

func (s *Server) registerProjectRoutes(v1 *gin.RouterGroup) {
	g := v1.Group("/projects")
	g.GET("", s.handleListProjects)
	g.POST("", s.handleCreateProject)
	g.GET("/current", s.handleCurrentProject)
	g.PATCH("/current", s.handleRenameProject)
	g.POST("/:id/load", s.handleLoadProject)
}

type createProjectRequest struct {
	Name     string `json:"name" binding:"required"`
	Template string `json:"template" binding:"required"` // "multicam" | "singlecam" | "animated"
}

func templateKindFor(name string) (timeline.TemplateKind, error) {
	switch name {
	case "multicam":
		return timeline.MultiCam, nil
	case "singlecam":
		return timeline.SingleCam, nil
	case "animated":
		return timeline.Animated, nil
	default:
		return 0, apierr.Newf(apierr.InvalidOperation, "unknown template %q", name)
	}
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	kind, err := templateKindFor(req.Template)
	if err != nil {
		fail(c, err)
		return
	}
	sess, err := s.sessions.CreateFromTemplate(req.Name, kind)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, projectDTO(sess))
}

func (s *Server) handleLoadProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, apierr.Wrap(apierr.InvalidOperation, "parse project id", err))
		return
	}
	sess, err := s.sessions.Load(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, projectDTO(sess))
}

func (s *Server) handleCurrentProject(c *gin.Context) {
	sess := s.Session()
	if sess == nil {
		fail(c, noActiveProject())
		return
	}
	c.JSON(http.StatusOK, projectDTO(sess))
}

type renameProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) handleRenameProject(c *gin.Context) {
	var req renameProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.sessions.Rename(req.Name); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, projectDTO(s.Session()))
}

func (s *Server) handleListProjects(c *gin.Context) {
	ids, err := s.store.List()
	if err != nil {
		fail(c, apierr.Wrap(apierr.Serialization, "list projects", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": ids})
}

func projectDTO(sess *projectSession) gin.H {
	return gin.H{
		"id":   sess.ID,
		"name": sess.Name,
	}
}
