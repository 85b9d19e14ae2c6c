package timeline

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Thresholds governing the progression-analysis heuristics. None of these
// are load-bearing for correctness, only for which advisory warnings fire;
// see DESIGN.md for the reasoning behind the chosen values.
const (
	lowNodeCountThreshold  = 2
	lowCoveragePercent     = 10.0
	excessiveGapFraction   = 0.25 // of total duration
)

// ProgressionWarning is always Warning severity per spec §4.2 — these
// heuristics never fail a request, only advise.
type ProgressionWarning struct {
	Message string
}

// ArcProgression summarizes one arc's tagged-node coverage across the
// timeline.
type ArcProgression struct {
	ArcID            uuid.UUID
	NodeCount        int
	CoveragePercent  float64
	LongestGapMs     int64
	HasSetup         bool
	HasResolutionEnd bool // Resolution or Payoff beat present
	Warnings         []ProgressionWarning
}

// AnalyzeProgression computes an ArcProgression for every arc in the
// timeline, over its tagged Scene and Beat nodes sorted by start time
// (spec §4.2 progression analysis).
func (t *Timeline) AnalyzeProgression() []ArcProgression {
	arcIDs := make([]uuid.UUID, 0, len(t.Arcs))
	for id := range t.Arcs {
		arcIDs = append(arcIDs, id)
	}
	sort.Slice(arcIDs, func(i, j int) bool { return arcIDs[i].String() < arcIDs[j].String() })

	out := make([]ArcProgression, 0, len(arcIDs))
	for _, arcID := range arcIDs {
		out = append(out, t.analyzeOneArc(arcID))
	}
	return out
}

func (t *Timeline) analyzeOneArc(arcID uuid.UUID) ArcProgression {
	taggedIDs := make(map[uuid.UUID]bool)
	for _, na := range t.NodeArcs {
		if na.ArcID == arcID {
			taggedIDs[na.NodeID] = true
		}
	}

	var nodes []*StoryNode
	for id := range taggedIDs {
		n, ok := t.Nodes[id]
		if !ok || (n.Level != Scene && n.Level != Beat) {
			continue
		}
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Range.Start < nodes[j].Range.Start })

	p := ArcProgression{ArcID: arcID, NodeCount: len(nodes)}

	if len(nodes) == 0 {
		p.Warnings = append(p.Warnings, ProgressionWarning{Message: "No nodes tagged with this arc"})
		return p
	}

	var covered int64
	var longestGap int64
	for i, n := range nodes {
		covered += n.Range.Duration()
		if i > 0 {
			gap := n.Range.Start - nodes[i-1].Range.End
			if gap > longestGap {
				longestGap = gap
			}
		}
		if n.Level == Beat && n.BeatType != nil {
			switch n.BeatType.Kind {
			case BeatSetup:
				p.HasSetup = true
			case BeatResolution, BeatPayoff:
				p.HasResolutionEnd = true
			}
		}
	}
	p.LongestGapMs = longestGap

	if t.TotalDurationMs > 0 {
		p.CoveragePercent = 100 * float64(covered) / float64(t.TotalDurationMs)
	}

	if p.NodeCount < lowNodeCountThreshold {
		p.Warnings = append(p.Warnings, ProgressionWarning{Message: fmt.Sprintf("Low node count (%d)", p.NodeCount)})
	}
	if !p.HasSetup {
		p.Warnings = append(p.Warnings, ProgressionWarning{Message: "No Setup beat found"})
	}
	if !p.HasResolutionEnd {
		p.Warnings = append(p.Warnings, ProgressionWarning{Message: "No Resolution or Payoff beat found"})
	}
	if t.TotalDurationMs > 0 && float64(longestGap) > excessiveGapFraction*float64(t.TotalDurationMs) {
		p.Warnings = append(p.Warnings, ProgressionWarning{Message: fmt.Sprintf("Excessive gap of %dms within arc", longestGap)})
	}
	if p.CoveragePercent < lowCoveragePercent {
		p.Warnings = append(p.Warnings, ProgressionWarning{Message: fmt.Sprintf("Low coverage (%.1f%%)", p.CoveragePercent)})
	}

	return p
}
