package restapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/timeline"
)

func (s *Server) registerTimelineRoutes(v1 *gin.RouterGroup) {
	g := v1.Group("/timeline")
	g.GET("", s.handleGetTimeline)
	g.POST("/undo", s.handleUndo)

	nodes := g.Group("/nodes")
	nodes.POST("", s.handleAddNode)
	nodes.DELETE("/:id", s.handleRemoveNode)
	nodes.PATCH("/:id/resize", s.handleResizeNode)
	nodes.POST("/:id/split", s.handleSplitNode)
	nodes.GET("/:id/children", s.handleChildrenOf)
	nodes.GET("/:id/siblings", s.handleSiblingsOf)
	nodes.GET("/:id/descendants", s.handleDescendantsOf)
	nodes.GET("/:id/ancestors", s.handleAncestorsOf)
	nodes.POST("/:id/lock", s.handleLockNode)
	nodes.POST("/:id/unlock", s.handleUnlockNode)

	g.GET("/gaps", s.handleFindGaps)
	g.POST("/scenes/infer", s.handleInferScenes)

	rels := g.Group("/relationships")
	rels.POST("", s.handleAddRelationship)
	rels.DELETE("/:id", s.handleRemoveRelationship)
}

func (s *Server) sessionOr404(c *gin.Context) *projectSession {
	sess := s.Session()
	if sess == nil {
		fail(c, noActiveProject())
		return nil
	}
	return sess
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		fail(c, apierr.Wrap(apierr.InvalidOperation, "parse "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetTimeline(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	tl := sess.Bus.Timeline()
	c.JSON(http.StatusOK, gin.H{
		"total_duration_ms": tl.TotalDurationMs,
		"structure":         tl.Structure,
		"nodes":             tl.Nodes,
		"arcs":              tl.Arcs,
		"node_arcs":         tl.NodeArcs,
		"relationships":     tl.Relationships,
	})
}

type addNodeRequest struct {
	ID         uuid.UUID         `json:"id"`
	ParentID   *uuid.UUID        `json:"parent_id"`
	Level      timeline.Level    `json:"level"`
	SortOrder  int               `json:"sort_order"`
	Range      timeline.TimeRange `json:"range"`
	Name       string            `json:"name"`
	Notes      string            `json:"notes"`
	BeatType   *timeline.BeatType `json:"beat_type"`
}

func (s *Server) handleAddNode(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	var req addNodeRequest
	if !bindJSON(c, &req) {
		return
	}
	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	node := &timeline.StoryNode{
		ID: id, ParentID: req.ParentID, Level: req.Level, SortOrder: req.SortOrder,
		Range: req.Range, Name: req.Name, Notes: req.Notes, BeatType: req.BeatType,
	}
	if err := sess.Bus.AddNode(c.Request.Context(), node); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

func (s *Server) handleRemoveNode(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := sess.Bus.RemoveNode(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type resizeNodeRequest struct {
	Range timeline.TimeRange `json:"range" binding:"required"`
}

func (s *Server) handleResizeNode(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req resizeNodeRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := sess.Bus.ResizeNode(c.Request.Context(), id, req.Range); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type splitNodeRequest struct {
	AtMs int64 `json:"at_ms"`
}

func (s *Server) handleSplitNode(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req splitNodeRequest
	if !bindJSON(c, &req) {
		return
	}
	left, right, err := sess.Bus.SplitNode(c.Request.Context(), id, req.AtMs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left_id": left, "right_id": right})
}

func (s *Server) handleChildrenOf(c *gin.Context) {
	s.respondNodeList(c, (*timeline.Timeline).ChildrenOf)
}

func (s *Server) handleSiblingsOf(c *gin.Context) {
	s.respondNodeList(c, (*timeline.Timeline).SiblingsOf)
}

func (s *Server) handleDescendantsOf(c *gin.Context) {
	s.respondNodeList(c, (*timeline.Timeline).DescendantsOf)
}

func (s *Server) handleAncestorsOf(c *gin.Context) {
	s.respondNodeList(c, (*timeline.Timeline).AncestorsOf)
}

func (s *Server) respondNodeList(c *gin.Context, query func(*timeline.Timeline, uuid.UUID) []*timeline.StoryNode) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	nodes := query(sess.Bus.Timeline(), id)
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func (s *Server) handleLockNode(c *gin.Context) {
	s.setNodeLock(c, true)
}

func (s *Server) handleUnlockNode(c *gin.Context) {
	s.setNodeLock(c, false)
}

func (s *Server) setNodeLock(c *gin.Context, locked bool) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var err error
	if locked {
		err = sess.Bus.LockNode(id)
	} else {
		err = sess.Bus.UnlockNode(id)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFindGaps(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	levelParam := c.Query("level")
	level, err := parseLevel(levelParam)
	if err != nil {
		fail(c, err)
		return
	}
	minDuration, _ := strconv.ParseInt(c.DefaultQuery("min_duration_ms", "0"), 10, 64)
	gaps := sess.Bus.Timeline().FindGaps(level, minDuration)
	c.JSON(http.StatusOK, gin.H{"gaps": gaps})
}

func parseLevel(s string) (timeline.Level, error) {
	switch s {
	case "Premise":
		return timeline.Premise, nil
	case "Act":
		return timeline.Act, nil
	case "Sequence":
		return timeline.Sequence, nil
	case "Scene":
		return timeline.Scene, nil
	case "Beat":
		return timeline.Beat, nil
	default:
		return 0, apierr.Newf(apierr.InvalidOperation, "unknown level %q", s)
	}
}

type inferScenesRequest struct {
	Clips []timeline.Clip `json:"clips"`
}

func (s *Server) handleInferScenes(c *gin.Context) {
	var req inferScenesRequest
	if !bindJSON(c, &req) {
		return
	}
	scenes := timeline.InferScenes(req.Clips)
	c.JSON(http.StatusOK, gin.H{"scenes": scenes})
}

type addRelationshipRequest struct {
	ID          uuid.UUID                 `json:"id"`
	FromID      uuid.UUID                 `json:"from_id" binding:"required"`
	ToID        uuid.UUID                 `json:"to_id" binding:"required"`
	Kind        timeline.RelationshipKind `json:"kind"`
	ArcIDs      []uuid.UUID               `json:"arc_ids"`
	CharacterID uuid.UUID                 `json:"character_id"`
}

func (s *Server) handleAddRelationship(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	var req addRelationshipRequest
	if !bindJSON(c, &req) {
		return
	}
	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	rel := &timeline.Relationship{
		ID: id, FromID: req.FromID, ToID: req.ToID, Kind: req.Kind,
		ArcIDs: req.ArcIDs, CharacterID: req.CharacterID,
	}
	if err := sess.Bus.AddRelationship(rel); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rel)
}

func (s *Server) handleRemoveRelationship(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := sess.Bus.RemoveRelationship(id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUndo(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	if err := sess.Bus.Undo(); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
