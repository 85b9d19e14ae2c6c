package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/timeline"
)

func (s *Server) registerStoryRoutes(v1 *gin.RouterGroup) {
	arcs := v1.Group("/arcs")
	arcs.GET("", s.handleListArcs)
	arcs.POST("", s.handleAddArc)
	arcs.PUT("/:id", s.handleUpdateArc)
	arcs.DELETE("/:id", s.handleRemoveArc)
	arcs.POST("/:id/tag/:nodeId", s.handleTagNode)
	arcs.DELETE("/:id/tag/:nodeId", s.handleUntagNode)

	v1.GET("/progression", s.handleAnalyzeProgression)
}

type arcRequest struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Type        timeline.ArcType  `json:"type"`
	Color       timeline.RGB      `json:"color"`
}

func (s *Server) handleListArcs(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"arcs": sess.Bus.Timeline().Arcs})
}

func (s *Server) handleAddArc(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	var req arcRequest
	if !bindJSON(c, &req) {
		return
	}
	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	arc := &timeline.StoryArc{ID: id, Name: req.Name, Description: req.Description, Type: req.Type, Color: req.Color}
	if err := sess.Bus.AddArc(arc); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, arc)
}

func (s *Server) handleUpdateArc(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req arcRequest
	if !bindJSON(c, &req) {
		return
	}
	arc := &timeline.StoryArc{ID: id, Name: req.Name, Description: req.Description, Type: req.Type, Color: req.Color}
	if err := sess.Bus.UpdateArc(arc); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, arc)
}

func (s *Server) handleRemoveArc(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := sess.Bus.RemoveArc(id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTagNode(c *gin.Context) {
	s.setNodeTag(c, true)
}

func (s *Server) handleUntagNode(c *gin.Context) {
	s.setNodeTag(c, false)
}

func (s *Server) setNodeTag(c *gin.Context, tag bool) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	arcID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	nodeID, ok := parseUUIDParam(c, "nodeId")
	if !ok {
		return
	}
	var err error
	if tag {
		err = sess.Bus.TagNode(nodeID, arcID)
	} else {
		err = sess.Bus.UntagNode(nodeID, arcID)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAnalyzeProgression(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"progression": sess.Bus.Timeline().AnalyzeProgression()})
}
