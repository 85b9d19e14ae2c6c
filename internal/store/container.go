// Package store persists one project per on-disk container: the timeline
// value (nodes, arcs, relationships, tags, episode structure) serialized as
// JSON, plus the CRDT's full-state blob (spec §6's "single on-disk
// container per project"). It stands in for the excluded SQLite schema —
// see spec §1's excluded-collaborator list — behind a narrow
// PersistenceStore interface so a real SQL-backed implementation could
// later replace FileStore without touching any caller.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/scriptroom/storyengine/internal/timeline"
)

// ProjectMeta is the small header every container carries alongside the
// timeline and CRDT blob.
type ProjectMeta struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Container is the full on-disk shape of one project: current-schema
// timeline data plus the CRDT's serialized update.
type Container struct {
	Schema   int             `json:"schema"`
	Meta     ProjectMeta     `json:"meta"`
	Timeline timelineDTO     `json:"timeline"`
	CRDTBlob []byte          `json:"crdt_blob"`
}

// currentSchema is bumped whenever Container's shape changes in a way
// LoadContainer must branch on. schemaLegacy is the one migration spec §6
// names explicitly: the generated/user-refined two-field content split
// with a richer status enum.
const (
	schemaLegacy  = 1
	currentSchema = 2
)

// timelineDTO is the JSON-serializable projection of *timeline.Timeline.
// Kept distinct from the in-memory type so the wire shape (and its legacy
// variant, legacyTimelineDTO) can evolve independently of the value type
// the rest of the server operates on.
type timelineDTO struct {
	TotalDurationMs int64                `json:"total_duration_ms"`
	Structure       timeline.EpisodeStructure `json:"structure"`
	Nodes           []nodeDTO            `json:"nodes"`
	Arcs            []*timeline.StoryArc `json:"arcs"`
	NodeArcs        []timeline.NodeArc   `json:"node_arcs"`
	Relationships   []*timeline.Relationship `json:"relationships"`
}

// nodeDTO is the current-schema node shape: a single cached Content field
// and the collapsed NodeStatus enum (spec §6's migration target).
type nodeDTO struct {
	ID         uuid.UUID          `json:"id"`
	ParentID   *uuid.UUID         `json:"parent_id,omitempty"`
	Level      timeline.Level     `json:"level"`
	SortOrder  int                `json:"sort_order"`
	Range      timeline.TimeRange `json:"range"`
	Name       string             `json:"name"`
	Notes      string             `json:"notes"`
	Content    string             `json:"content"`
	Status     timeline.NodeStatus `json:"status"`
	SceneRecap string             `json:"scene_recap"`
	BeatType   *timeline.BeatType `json:"beat_type,omitempty"`
	Locked     bool               `json:"locked"`
}

func toNodeDTO(n *timeline.StoryNode) nodeDTO {
	return nodeDTO{
		ID: n.ID, ParentID: n.ParentID, Level: n.Level, SortOrder: n.SortOrder,
		Range: n.Range, Name: n.Name, Notes: n.Notes, Content: n.Content,
		Status: n.Status, SceneRecap: n.SceneRecap, BeatType: n.BeatType, Locked: n.Locked,
	}
}

func (d nodeDTO) toNode() *timeline.StoryNode {
	return &timeline.StoryNode{
		ID: d.ID, ParentID: d.ParentID, Level: d.Level, SortOrder: d.SortOrder,
		Range: d.Range, Name: d.Name, Notes: d.Notes, Content: d.Content,
		Status: d.Status, SceneRecap: d.SceneRecap, BeatType: d.BeatType, Locked: d.Locked,
	}
}

// toTimelineDTO flattens a *timeline.Timeline into its wire shape.
func toTimelineDTO(t *timeline.Timeline) timelineDTO {
	dto := timelineDTO{
		TotalDurationMs: t.TotalDurationMs,
		Structure:       t.Structure,
		NodeArcs:        t.NodeArcs,
	}
	for _, n := range t.Nodes {
		dto.Nodes = append(dto.Nodes, toNodeDTO(n))
	}
	for _, a := range t.Arcs {
		dto.Arcs = append(dto.Arcs, a)
	}
	for _, r := range t.Relationships {
		dto.Relationships = append(dto.Relationships, r)
	}
	return dto
}

// toTimeline reconstructs a *timeline.Timeline from its wire shape.
func (d timelineDTO) toTimeline() *timeline.Timeline {
	t := timeline.New(d.TotalDurationMs, d.Structure)
	for _, n := range d.Nodes {
		t.Nodes[n.ID] = n.toNode()
	}
	for _, a := range d.Arcs {
		t.Arcs[a.ID] = a
	}
	t.NodeArcs = d.NodeArcs
	for _, r := range d.Relationships {
		t.Relationships[r.ID] = r
	}
	return t
}

// marshalContainer is a thin json.Marshal wrapper so every call site wraps
// errors with the same pkg/errors context.
func marshalContainer(c Container) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshal project container")
	}
	return data, nil
}
