package restapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/aiclient"
	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/promptctx"
)

func (s *Server) registerContentRoutes(v1 *gin.RouterGroup) {
	nodes := v1.Group("/content/nodes")
	nodes.GET("/:id", s.handleGetNodeContent)
	nodes.PUT("/:id/notes", s.handleUpdateNotes)
	nodes.PUT("/:id/script", s.handleUpdateScript)
	nodes.POST("/:id/generate", s.handleGenerateScript)
}

func (s *Server) handleGetNodeContent(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	snap, err := sess.Bus.GetNodeContent(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type updateContentRequest struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// restAuthor defaults to "human:rest" when the caller doesn't identify
// itself — WebSocket clients stamp "human:<client_id>" instead (see
// internal/wsmux), since only that transport has a durable per-connection
// identity to attribute edits to.
func restAuthor(a string) string {
	if a == "" {
		return "human:rest"
	}
	return a
}

func (s *Server) handleUpdateNotes(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req updateContentRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := sess.Bus.UpdateNotes(c.Request.Context(), id, req.Text, restAuthor(req.Author)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdateScript(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req updateContentRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := sess.Bus.UpdateScript(c.Request.Context(), id, req.Text, restAuthor(req.Author)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bibleEntityDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Text string    `json:"text"`
}

func toBibleEntities(dtos []bibleEntityDTO) []promptctx.BibleEntity {
	out := make([]promptctx.BibleEntity, len(dtos))
	for i, d := range dtos {
		out[i] = promptctx.BibleEntity{ID: d.ID, Name: d.Name, Text: d.Text}
	}
	return out
}

type generateScriptRequest struct {
	ReferencedBible []bibleEntityDTO `json:"referenced_bible"`
	OtherBible      []bibleEntityDTO `json:"other_bible"`
	BudgetTokens    int              `json:"budget_tokens"`
	MaxTokens       int              `json:"max_tokens"`
	Temperature     float32          `json:"temperature"`
	Author          string           `json:"author"`
}

// handleGenerateScript packs prompt context for the target node (spec
// §4.4's priority ladder) and asks the configured ChatClient to draft
// content for it, writing any result into the node's script field
// attributed to the author. A NoOp ChatClient (no transport configured)
// surfaces as a 400 InvalidOperation rather than silently no-opping.
func (s *Server) handleGenerateScript(c *gin.Context) {
	sess := s.sessionOr404(c)
	if sess == nil {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req generateScriptRequest
	if !bindJSON(c, &req) {
		return
	}
	budget := req.BudgetTokens
	if budget <= 0 {
		budget = 2000
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	assembler := promptctx.NewAssembler(sess.Bus.Timeline(), sess.CRDTMgr)
	if sess.Cache != nil {
		assembler.Cache = sess.Cache
	}
	packed, err := assembler.Assemble(c.Request.Context(), id, toBibleEntities(req.ReferencedBible), toBibleEntities(req.OtherBible), budget)
	if err != nil {
		fail(c, err)
		return
	}

	parts := make([]string, len(packed.Items))
	for i, item := range packed.Items {
		parts[i] = item.Text
	}
	prompt := strings.Join(parts, "\n\n")

	text, err := s.chat.Complete(c.Request.Context(), prompt, aiclient.CompletionOptions{
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		fail(c, apierr.Wrap(apierr.InvalidOperation, "generation failed", err))
		return
	}

	author := req.Author
	if author == "" {
		author = "ai:generate"
	}
	if err := sess.Bus.UpdateScript(c.Request.Context(), id, text, author); err != nil {
		fail(c, err)
		return
	}

	snap, err := sess.Bus.GetNodeContent(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": snap, "tokens_used": packed.TokensUsed})
}
