package timeline

import (
	"sort"

	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/apierr"
)

func (t *Timeline) validateRange(r TimeRange) error {
	if r.Start >= r.End {
		return apierr.Newf(apierr.InvalidTimeRange, "start %d must be < end %d", r.Start, r.End)
	}
	if r.Start < 0 || r.End > t.TotalDurationMs {
		return apierr.Newf(apierr.NodeExceedsTimeline, "range [%d,%d) exceeds total duration %d", r.Start, r.End, t.TotalDurationMs)
	}
	return nil
}

// AddNode inserts node into the timeline after validating its range and
// hierarchy position (spec §4.2 add_node).
func (t *Timeline) AddNode(node *StoryNode) error {
	if err := t.validateRange(node.Range); err != nil {
		return err
	}

	if node.ParentID == nil {
		if node.Level != Premise {
			return apierr.New(apierr.InvalidHierarchy, "a node with no parent must be a Premise")
		}
		if _, exists := t.Premise(); exists {
			return apierr.New(apierr.InvalidHierarchy, "a Premise node already exists")
		}
	} else {
		parent, ok := t.Nodes[*node.ParentID]
		if !ok {
			return apierr.Newf(apierr.NodeNotFound, "parent %s not found", *node.ParentID)
		}
		childLevel, hasChildren := parent.Level.ChildLevel()
		if !hasChildren || childLevel != node.Level {
			return apierr.Newf(apierr.InvalidHierarchy, "parent level %s cannot have child level %s", parent.Level, node.Level)
		}
	}

	t.Nodes[node.ID] = node
	return nil
}

// RemoveNode deletes id and its entire subtree, plus every relationship and
// arc tag referencing any removed id, atomically (spec §4.2 remove_node,
// invariant 6).
func (t *Timeline) RemoveNode(id uuid.UUID) error {
	if _, ok := t.Nodes[id]; !ok {
		return apierr.Newf(apierr.NodeNotFound, "node %s not found", id)
	}

	removed := map[uuid.UUID]bool{id: true}
	for _, d := range t.DescendantsOf(id) {
		removed[d.ID] = true
	}

	for rid := range removed {
		delete(t.Nodes, rid)
	}

	keptArcs := t.NodeArcs[:0:0]
	for _, na := range t.NodeArcs {
		if !removed[na.NodeID] {
			keptArcs = append(keptArcs, na)
		}
	}
	t.NodeArcs = keptArcs

	for rid, rel := range t.Relationships {
		if removed[rel.FromID] || removed[rel.ToID] {
			delete(t.Relationships, rid)
		}
	}
	return nil
}

// ResizeNode changes id's range and proportionally rescales every
// descendant's range to fit inside the new range (spec §4.2 resize_node,
// invariant 8).
func (t *Timeline) ResizeNode(id uuid.UUID, newRange TimeRange) error {
	node, ok := t.Nodes[id]
	if !ok {
		return apierr.Newf(apierr.NodeNotFound, "node %s not found", id)
	}
	if err := t.validateRange(newRange); err != nil {
		return err
	}

	oldRange := node.Range
	oldDuration := oldRange.Duration()
	node.Range = newRange

	if oldDuration <= 0 {
		return nil
	}

	newDuration := newRange.Duration()
	for _, d := range t.DescendantsOf(id) {
		relStart := float64(d.Range.Start-oldRange.Start) / float64(oldDuration)
		relEnd := float64(d.Range.End-oldRange.Start) / float64(oldDuration)

		newStart := newRange.Start + int64(relStart*float64(newDuration))
		newEnd := newRange.Start + int64(relEnd*float64(newDuration))

		newStart = clampInt64(newStart, newRange.Start, newRange.End)
		newEnd = clampInt64(newEnd, newRange.Start, newRange.End)
		if newEnd <= newStart {
			newEnd = newStart + 1
			if newEnd > newRange.End {
				newEnd = newRange.End
				newStart = newEnd - 1
			}
		}
		d.Range = TimeRange{Start: newStart, End: newEnd}
	}
	return nil
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SplitNode splits id at atMs into two fresh nodes inheriting level,
// parent, beat type, locked state, and sort order (right gets
// sort_order+1); direct children are reassigned to left or right by the
// midpoint of their own range versus atMs (a grandchild's parent_id
// already points at that reassigned child, so it moves with it rather
// than being touched directly); relationships incoming to the original
// are repointed to the right half, outgoing to the left half; arc tags
// are duplicated onto both halves (spec §4.2 split_node, invariant 7).
func (t *Timeline) SplitNode(id uuid.UUID, atMs int64) (leftID, rightID uuid.UUID, err error) {
	node, ok := t.Nodes[id]
	if !ok {
		return uuid.Nil, uuid.Nil, apierr.Newf(apierr.NodeNotFound, "node %s not found", id)
	}
	if !(node.Range.Start < atMs && atMs < node.Range.End) {
		return uuid.Nil, uuid.Nil, apierr.Newf(apierr.SplitOutOfRange, "split point %d must lie strictly within [%d,%d)", atMs, node.Range.Start, node.Range.End)
	}

	left := *node
	left.ID = uuid.New()
	left.Range = TimeRange{Start: node.Range.Start, End: atMs}

	right := *node
	right.ID = uuid.New()
	right.Range = TimeRange{Start: atMs, End: node.Range.End}
	right.SortOrder = node.SortOrder + 1

	delete(t.Nodes, id)
	t.Nodes[left.ID] = &left
	t.Nodes[right.ID] = &right

	for _, d := range t.ChildrenOf(id) {
		if d.Range.Midpoint() < atMs {
			d.ParentID = &left.ID
		} else {
			d.ParentID = &right.ID
		}
	}

	for _, rel := range t.Relationships {
		if rel.ToID == id {
			rel.ToID = right.ID
		}
		if rel.FromID == id {
			rel.FromID = left.ID
		}
	}

	var dupArcs []NodeArc
	for _, na := range t.NodeArcs {
		if na.NodeID == id {
			dupArcs = append(dupArcs, NodeArc{NodeID: left.ID, ArcID: na.ArcID}, NodeArc{NodeID: right.ID, ArcID: na.ArcID})
		}
	}
	filtered := t.NodeArcs[:0:0]
	for _, na := range t.NodeArcs {
		if na.NodeID != id {
			filtered = append(filtered, na)
		}
	}
	t.NodeArcs = append(filtered, dupArcs...)

	return left.ID, right.ID, nil
}

// TagNode tags node with arc, idempotently (duplicates forbidden).
func (t *Timeline) TagNode(nodeID, arcID uuid.UUID) error {
	if _, ok := t.Nodes[nodeID]; !ok {
		return apierr.Newf(apierr.NodeNotFound, "node %s not found", nodeID)
	}
	if _, ok := t.Arcs[arcID]; !ok {
		return apierr.Newf(apierr.ArcNotFound, "arc %s not found", arcID)
	}
	for _, na := range t.NodeArcs {
		if na.NodeID == nodeID && na.ArcID == arcID {
			return nil
		}
	}
	t.NodeArcs = append(t.NodeArcs, NodeArc{NodeID: nodeID, ArcID: arcID})
	return nil
}

// UntagNode removes the node-arc edge if present; idempotent.
func (t *Timeline) UntagNode(nodeID, arcID uuid.UUID) error {
	kept := t.NodeArcs[:0:0]
	for _, na := range t.NodeArcs {
		if na.NodeID == nodeID && na.ArcID == arcID {
			continue
		}
		kept = append(kept, na)
	}
	t.NodeArcs = kept
	return nil
}

// AddRelationship records a directed edge; both endpoints must exist.
func (t *Timeline) AddRelationship(rel *Relationship) error {
	if _, ok := t.Nodes[rel.FromID]; !ok {
		return apierr.Newf(apierr.NodeNotFound, "relationship source %s not found", rel.FromID)
	}
	if _, ok := t.Nodes[rel.ToID]; !ok {
		return apierr.Newf(apierr.NodeNotFound, "relationship target %s not found", rel.ToID)
	}
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	t.Relationships[rel.ID] = rel
	return nil
}

// RemoveRelationship deletes rel by id. Removing an absent id is a
// NotFound error rather than a silent no-op, matching RemoveArc/RemoveNode.
func (t *Timeline) RemoveRelationship(id uuid.UUID) error {
	if _, ok := t.Relationships[id]; !ok {
		return apierr.Newf(apierr.RelationshipNotFound, "relationship %s not found", id)
	}
	delete(t.Relationships, id)
	return nil
}

// Gap is an uncovered interval at a given level, bounded by the node
// preceding and following it (nil at the timeline's edges).
type Gap struct {
	Range           TimeRange
	PrecedingNodeID *uuid.UUID
	FollowingNodeID *uuid.UUID
}

// FindGaps collects uncovered intervals across nodes at level, discarding
// any shorter than minDuration, including a final gap to the total
// duration if long enough (spec §4.2 find_gaps).
func (t *Timeline) FindGaps(level Level, minDuration int64) []Gap {
	nodes := t.NodesAtLevel(level)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Range.Start < nodes[j].Range.Start })

	var gaps []Gap
	var cursor int64
	var preceding *uuid.UUID

	for _, n := range nodes {
		if n.Range.Start > cursor {
			r := TimeRange{Start: cursor, End: n.Range.Start}
			if r.Duration() >= minDuration {
				id := n.ID
				gaps = append(gaps, Gap{Range: r, PrecedingNodeID: preceding, FollowingNodeID: &id})
			}
		}
		if n.Range.End > cursor {
			cursor = n.Range.End
			id := n.ID
			preceding = &id
		}
	}

	if t.TotalDurationMs > cursor {
		r := TimeRange{Start: cursor, End: t.TotalDurationMs}
		if r.Duration() >= minDuration {
			gaps = append(gaps, Gap{Range: r, PrecedingNodeID: preceding, FollowingNodeID: nil})
		}
	}
	return gaps
}

// AddArc registers a new story arc, assigning an id if arc.ID is nil.
func (t *Timeline) AddArc(arc *StoryArc) error {
	if arc.ID == uuid.Nil {
		arc.ID = uuid.New()
	}
	t.Arcs[arc.ID] = arc
	return nil
}

// UpdateArc replaces the stored arc with the same id.
func (t *Timeline) UpdateArc(arc *StoryArc) error {
	if _, ok := t.Arcs[arc.ID]; !ok {
		return apierr.Newf(apierr.ArcNotFound, "arc %s not found", arc.ID)
	}
	t.Arcs[arc.ID] = arc
	return nil
}

// RemoveArc deletes an arc and every tag and relationship reference to it.
func (t *Timeline) RemoveArc(id uuid.UUID) error {
	if _, ok := t.Arcs[id]; !ok {
		return apierr.Newf(apierr.ArcNotFound, "arc %s not found", id)
	}
	delete(t.Arcs, id)

	kept := t.NodeArcs[:0:0]
	for _, na := range t.NodeArcs {
		if na.ArcID != id {
			kept = append(kept, na)
		}
	}
	t.NodeArcs = kept

	for _, rel := range t.Relationships {
		filtered := rel.ArcIDs[:0:0]
		for _, a := range rel.ArcIDs {
			if a != id {
				filtered = append(filtered, a)
			}
		}
		rel.ArcIDs = filtered
	}
	return nil
}

// Clone returns a deep copy, used by the bus to snapshot the timeline
// before a mutation so a failed or undesired change can be rolled back.
func (t *Timeline) Clone() *Timeline {
	out := &Timeline{
		TotalDurationMs: t.TotalDurationMs,
		Structure:       EpisodeStructure{Segments: append([]Segment(nil), t.Structure.Segments...)},
		Nodes:           make(map[uuid.UUID]*StoryNode, len(t.Nodes)),
		Arcs:            make(map[uuid.UUID]*StoryArc, len(t.Arcs)),
		NodeArcs:        append([]NodeArc(nil), t.NodeArcs...),
		Relationships:   make(map[uuid.UUID]*Relationship, len(t.Relationships)),
	}
	for id, n := range t.Nodes {
		cp := *n
		if n.BeatType != nil {
			bt := *n.BeatType
			cp.BeatType = &bt
		}
		if n.ParentID != nil {
			p := *n.ParentID
			cp.ParentID = &p
		}
		out.Nodes[id] = &cp
	}
	for id, a := range t.Arcs {
		cp := *a
		out.Arcs[id] = &cp
	}
	for id, r := range t.Relationships {
		cp := *r
		cp.ArcIDs = append([]uuid.UUID(nil), r.ArcIDs...)
		out.Relationships[id] = &cp
	}
	return out
}
