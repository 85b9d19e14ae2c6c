package timeline

import (
	"fmt"

	"github.com/google/uuid"
)

// Validate checks the structural invariants of spec §3 hold over the
// whole timeline. It is used by tests and can be run after any batch of
// mutations as a consistency check; individual operations already enforce
// these invariants incrementally, so a clean Validate is expected to
// always pass on a timeline built exclusively through this package's API.
func (t *Timeline) Validate() error {
	var roots int
	for _, n := range t.Nodes {
		if n.ParentID == nil {
			roots++
			if n.Level != Premise {
				return fmt.Errorf("root node %s has level %s, want Premise", n.ID, n.Level)
			}
		} else {
			parent, ok := t.Nodes[*n.ParentID]
			if !ok {
				return fmt.Errorf("node %s has dangling parent %s", n.ID, *n.ParentID)
			}
			childLevel, hasChildren := parent.Level.ChildLevel()
			if !hasChildren || childLevel != n.Level {
				return fmt.Errorf("node %s (level %s) is not a valid child of %s (level %s)", n.ID, n.Level, parent.ID, parent.Level)
			}
		}

		if n.Range.Start >= n.Range.End {
			return fmt.Errorf("node %s has invalid range [%d,%d)", n.ID, n.Range.Start, n.Range.End)
		}
		if n.Range.Start < 0 || n.Range.End > t.TotalDurationMs {
			return fmt.Errorf("node %s range [%d,%d) exceeds total duration %d", n.ID, n.Range.Start, n.Range.End, t.TotalDurationMs)
		}
	}

	if roots != 1 {
		return fmt.Errorf("expected exactly one root node, found %d", roots)
	}

	for _, scene := range t.NodesAtLevel(Scene) {
		for _, other := range t.SiblingsOf(scene.ID) {
			if other.Level == Scene && scene.Range.Overlaps(other.Range) {
				return fmt.Errorf("sibling scenes %s and %s overlap", scene.ID, other.ID)
			}
		}
	}

	for _, rel := range t.Relationships {
		if _, ok := t.Nodes[rel.FromID]; !ok {
			return fmt.Errorf("relationship %s references missing node %s", rel.ID, rel.FromID)
		}
		if _, ok := t.Nodes[rel.ToID]; !ok {
			return fmt.Errorf("relationship %s references missing node %s", rel.ID, rel.ToID)
		}
	}

	for _, na := range t.NodeArcs {
		if _, ok := t.Nodes[na.NodeID]; !ok {
			return fmt.Errorf("arc tag references missing node %s", na.NodeID)
		}
		if _, ok := t.Arcs[na.ArcID]; !ok {
			return fmt.Errorf("arc tag references missing arc %s", na.ArcID)
		}
	}

	return nil
}

// ReferencesRemoved reports whether any relationship or arc tag in t
// references id, used by tests asserting invariant 6's cascade
// atomicity after RemoveNode.
func (t *Timeline) ReferencesRemoved(id uuid.UUID) bool {
	for _, rel := range t.Relationships {
		if rel.FromID == id || rel.ToID == id {
			return true
		}
	}
	for _, na := range t.NodeArcs {
		if na.NodeID == id {
			return true
		}
	}
	return false
}
