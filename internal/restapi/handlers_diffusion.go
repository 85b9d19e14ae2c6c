package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scriptroom/storyengine/internal/bus"
)

func (s *Server) registerDiffusionRoutes(v1 *gin.RouterGroup) {
	g := v1.Group("/diffusion")
	g.GET("/status", s.handleDiffusionStatus)
	g.POST("/load", s.handleDiffusionLoad)
	g.POST("/unload", s.handleDiffusionUnload)
	g.POST("/nodes/:id/diffuse", s.handleDiffuse)
}

func (s *Server) handleDiffusionStatus(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	status, err := sess.Bus.DiffusionStatus(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type diffusionLoadRequest struct {
	Path   string `json:"path" binding:"required"`
	Device string `json:"device"`
}

func (s *Server) handleDiffusionLoad(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	var req diffusionLoadRequest
	if !bindJSON(c, &req) {
		return
	}
	device := req.Device
	if device == "" {
		device = "cpu"
	}
	if err := sess.Bus.LoadDiffusionModel(c.Request.Context(), req.Path, device); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDiffusionUnload(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	if err := sess.Bus.UnloadDiffusionModel(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type anchorRangeDTO struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type diffuseRequest struct {
	AnchorRanges     []anchorRangeDTO `json:"anchor_ranges" binding:"required"`
	MaskBudget       int              `json:"mask_budget"`
	StepsPerBlock    int              `json:"steps_per_block"`
	BlockLength      int              `json:"block_length"`
	Temperature      float32          `json:"temperature"`
	DynamicThreshold float32          `json:"dynamic_threshold"`
}

func (s *Server) handleDiffuse(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req diffuseRequest
	if !bindJSON(c, &req) {
		return
	}

	ranges := make([]bus.AnchorRange, len(req.AnchorRanges))
	for i, r := range req.AnchorRanges {
		ranges[i] = bus.AnchorRange{Start: r.Start, End: r.End}
	}

	err := sess.Bus.CoordinatedRewrite(c.Request.Context(), bus.DiffuseRequest{
		NodeID:           id,
		AnchorRanges:     ranges,
		MaskBudget:       req.MaskBudget,
		StepsPerBlock:    req.StepsPerBlock,
		BlockLength:      req.BlockLength,
		Temperature:      req.Temperature,
		DynamicThreshold: req.DynamicThreshold,
	})
	if err != nil {
		fail(c, err)
		return
	}

	snap, err := sess.Bus.GetNodeContent(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
