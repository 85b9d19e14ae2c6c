package timeline

import (
	"sort"

	"github.com/google/uuid"
)

// Clip is the minimal shape scene inference needs from a contributing
// beat or scene placement: a time range, the arcs active on it, and its
// own id for provenance.
type Clip struct {
	ID    uuid.UUID
	Range TimeRange
	Arcs  []uuid.UUID
}

// InferredScene is a derived interval during which a constant set of arcs
// is simultaneously active, built from overlapping clip placements.
type InferredScene struct {
	Range          TimeRange
	ActiveArcs     []uuid.UUID
	ContributingID []uuid.UUID
}

// InferScenes implements spec §4.2's scene inference: collect every clip
// boundary into a sorted, deduplicated set; for each adjacent pair sample
// the clips active at the midpoint; skip pairs with no active clips; merge
// successive intervals sharing an identical active-arc set whose ends and
// starts meet exactly.
func InferScenes(clips []Clip) []InferredScene {
	if len(clips) == 0 {
		return nil
	}

	boundarySet := make(map[int64]struct{})
	for _, c := range clips {
		boundarySet[c.Range.Start] = struct{}{}
		boundarySet[c.Range.End] = struct{}{}
	}
	boundaries := make([]int64, 0, len(boundarySet))
	for b := range boundarySet {
		boundaries = append(boundaries, b)
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] })

	var raw []InferredScene
	for i := 0; i+1 < len(boundaries); i++ {
		s, e := boundaries[i], boundaries[i+1]
		mid := (s + e) / 2

		var activeArcs []uuid.UUID
		var contributing []uuid.UUID
		seenArc := make(map[uuid.UUID]bool)
		for _, c := range clips {
			if c.Range.Start <= mid && mid < c.Range.End {
				contributing = append(contributing, c.ID)
				for _, a := range c.Arcs {
					if !seenArc[a] {
						seenArc[a] = true
						activeArcs = append(activeArcs, a)
					}
				}
			}
		}
		if len(contributing) == 0 {
			continue
		}
		sortUUIDs(activeArcs)
		raw = append(raw, InferredScene{
			Range:          TimeRange{Start: s, End: e},
			ActiveArcs:     activeArcs,
			ContributingID: contributing,
		})
	}

	return mergeAdjacentScenes(raw)
}

func mergeAdjacentScenes(raw []InferredScene) []InferredScene {
	var merged []InferredScene
	for _, sc := range raw {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Range.End == sc.Range.Start && sameArcSet(last.ActiveArcs, sc.ActiveArcs) {
				last.Range.End = sc.Range.End
				last.ContributingID = append(last.ContributingID, sc.ContributingID...)
				continue
			}
		}
		merged = append(merged, sc)
	}
	return merged
}

func sameArcSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
