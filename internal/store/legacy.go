package store

import (
	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/timeline"
)

// legacyStatus is the richer pre-migration status enum: Empty/Drafted
// precede any generation; Generated/Refined/Polished are the three
// post-generation states the original schema tracked separately; Locked
// mirrored the node's lock flag in the status itself rather than as a
// separate bool (spec §6).
type legacyStatus int

const (
	legacyEmpty legacyStatus = iota
	legacyDrafted
	legacyGenerated
	legacyRefined
	legacyPolished
	legacyLocked
)

// legacyNodeDTO is the pre-migration node shape: content split across a
// raw AI-generated field and a separately-tracked user-refined field,
// instead of the current schema's single Content field.
type legacyNodeDTO struct {
	ID               uuid.UUID          `json:"id"`
	ParentID         *uuid.UUID         `json:"parent_id,omitempty"`
	Level            timeline.Level     `json:"level"`
	SortOrder        int                `json:"sort_order"`
	Range            timeline.TimeRange `json:"range"`
	Name             string             `json:"name"`
	Notes            string             `json:"notes"`
	GeneratedContent string             `json:"generated_content"`
	RefinedContent   string             `json:"refined_content"`
	Status           legacyStatus       `json:"status"`
	SceneRecap       string             `json:"scene_recap"`
	BeatType         *timeline.BeatType `json:"beat_type,omitempty"`
}

type legacyTimelineDTO struct {
	TotalDurationMs int64                     `json:"total_duration_ms"`
	Structure       timeline.EpisodeStructure `json:"structure"`
	Nodes           []legacyNodeDTO           `json:"nodes"`
	Arcs            []*timeline.StoryArc      `json:"arcs"`
	NodeArcs        []timeline.NodeArc        `json:"node_arcs"`
	Relationships   []*timeline.Relationship  `json:"relationships"`
}

type legacyContainer struct {
	Schema   int               `json:"schema"`
	Meta     ProjectMeta       `json:"meta"`
	Timeline legacyTimelineDTO `json:"timeline"`
	CRDTBlob []byte            `json:"crdt_blob"`
}

// migrateLegacyNode applies spec §6's single named migration: prefer the
// user-refined text over the raw generated text, and collapse every
// post-generation status (Generated, Refined, Polished) to the current
// schema's single StatusHasContent. Locked is carried onto the node's
// Locked bool rather than remaining folded into status.
func migrateLegacyNode(l legacyNodeDTO) nodeDTO {
	content := l.RefinedContent
	if content == "" {
		content = l.GeneratedContent
	}

	status := timeline.StatusEmpty
	locked := false
	switch l.Status {
	case legacyEmpty, legacyDrafted:
		status = timeline.StatusEmpty
	case legacyGenerated, legacyRefined, legacyPolished:
		status = timeline.StatusHasContent
	case legacyLocked:
		status = timeline.StatusHasContent
		locked = true
	}
	if content != "" {
		status = timeline.StatusHasContent
	}

	return nodeDTO{
		ID: l.ID, ParentID: l.ParentID, Level: l.Level, SortOrder: l.SortOrder,
		Range: l.Range, Name: l.Name, Notes: l.Notes, Content: content,
		Status: status, SceneRecap: l.SceneRecap, BeatType: l.BeatType, Locked: locked,
	}
}

// migrateLegacyContainer converts a schema-1 container into the current
// schema-2 shape.
func migrateLegacyContainer(l legacyContainer) Container {
	dto := timelineDTO{
		TotalDurationMs: l.Timeline.TotalDurationMs,
		Structure:       l.Timeline.Structure,
		Arcs:            l.Timeline.Arcs,
		NodeArcs:        l.Timeline.NodeArcs,
		Relationships:   l.Timeline.Relationships,
	}
	for _, n := range l.Timeline.Nodes {
		dto.Nodes = append(dto.Nodes, migrateLegacyNode(n))
	}
	return Container{
		Schema:   currentSchema,
		Meta:     l.Meta,
		Timeline: dto,
		CRDTBlob: l.CRDTBlob,
	}
}
