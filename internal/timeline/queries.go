package timeline

import (
	"sort"

	"github.com/google/uuid"
)

// ChildrenOf returns the direct children of id, ordered by
// (sort_order, start_ms).
func (t *Timeline) ChildrenOf(id uuid.UUID) []*StoryNode {
	var out []*StoryNode
	for _, n := range t.Nodes {
		if n.ParentID != nil && *n.ParentID == id {
			out = append(out, n)
		}
	}
	sortSiblings(out)
	return out
}

// SiblingsOf returns every other node sharing id's parent (or every other
// root node, if id is the Premise), ordered by (sort_order, start_ms). id
// itself is excluded.
func (t *Timeline) SiblingsOf(id uuid.UUID) []*StoryNode {
	n, ok := t.Nodes[id]
	if !ok {
		return nil
	}
	var out []*StoryNode
	for _, other := range t.Nodes {
		if other.ID == id {
			continue
		}
		if sameParent(n.ParentID, other.ParentID) {
			out = append(out, other)
		}
	}
	sortSiblings(out)
	return out
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DescendantsOf returns every node transitively parented under id, ordered
// by (level, start_ms).
func (t *Timeline) DescendantsOf(id uuid.UUID) []*StoryNode {
	var out []*StoryNode
	t.collectDescendants(id, &out)
	sortByLevelThenStart(out)
	return out
}

func (t *Timeline) collectDescendants(id uuid.UUID, out *[]*StoryNode) {
	for _, child := range t.ChildrenOf(id) {
		*out = append(*out, child)
		t.collectDescendants(child.ID, out)
	}
}

// AncestorsOf returns id's ancestors, parent-first (nearest ancestor last
// is NOT the order — parent-first means the immediate parent comes first,
// then grandparent, and so on up to the Premise).
func (t *Timeline) AncestorsOf(id uuid.UUID) []*StoryNode {
	var out []*StoryNode
	n, ok := t.Nodes[id]
	if !ok {
		return nil
	}
	cur := n.ParentID
	for cur != nil {
		parent, ok := t.Nodes[*cur]
		if !ok {
			break
		}
		out = append(out, parent)
		cur = parent.ParentID
	}
	return out
}

// NodesAtLevel returns every node at level, sorted by start time.
func (t *Timeline) NodesAtLevel(level Level) []*StoryNode {
	var out []*StoryNode
	for _, n := range t.Nodes {
		if n.Level == level {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start < out[j].Range.Start })
	return out
}

// Premise returns the timeline's single root node, if present.
func (t *Timeline) Premise() (*StoryNode, bool) {
	for _, n := range t.Nodes {
		if n.ParentID == nil {
			return n, true
		}
	}
	return nil, false
}
