package crdt

// element is a single replicated character: value, the author attribute
// carried for attribution, and a tombstone flag. Unlike the grounding
// example, delete is expressed by adding a replacement op with the same
// ID.Replica/Counter marked Deleted=true rather than mutating in place,
// so Encode/Decode stay pure append-only op logs (see doc.go).
type element struct {
	ID       ID
	ParentID ID
	Value    rune
	Author   string
	Deleted  bool
}

// node is the in-memory linked-list cell built from an element once
// integrated.
type node struct {
	element
	next *node
}

// sequence is one replicated text field (a node's "notes" or "content",
// or the project premise text): a tombstone-preserving RGA exactly like
// the grounding example's RGA type, plus the author attribute on each
// character.
type sequence struct {
	root           *node
	registry       map[ID]*node
	pendingOrphans map[ID][]element
}

func newSequence() *sequence {
	root := &node{}
	return &sequence{
		root:           root,
		registry:       map[ID]*node{Zero: root},
		pendingOrphans: make(map[ID][]element),
	}
}

// integrate performs the same deterministic pointer-linking as the
// grounding example: siblings under one parent are ordered by ID so every
// replica that applies the same op set converges to the same sequence.
func (s *sequence) integrate(e element) {
	parent, ok := s.registry[e.ParentID]
	if !ok {
		s.pendingOrphans[e.ParentID] = append(s.pendingOrphans[e.ParentID], e)
		return
	}

	if existing, ok := s.registry[e.ID]; ok {
		if e.Deleted {
			existing.Deleted = true
		}
		return
	}

	prev := parent
	cur := parent.next
	for cur != nil && cur.ParentID == e.ParentID {
		if e.ID.Greater(cur.ID) {
			break
		}
		prev = cur
		cur = cur.next
	}

	n := &node{element: e, next: cur}
	prev.next = n
	s.registry[e.ID] = n

	if orphans, ok := s.pendingOrphans[e.ID]; ok {
		delete(s.pendingOrphans, e.ID)
		for _, child := range orphans {
			s.integrate(child)
		}
	}
}

// insertRunes appends runs []rune after afterID, each carrying author,
// consuming one ID per rune from next. It returns the ID of the last
// inserted rune (the new "tail" to insert after, for a subsequent call).
func (s *sequence) insertRunes(runes []rune, author string, afterID ID, next func(replica string) ID) ID {
	parent := afterID
	for _, r := range runes {
		id := next(author)
		s.integrate(element{ID: id, ParentID: parent, Value: r, Author: author})
		parent = id
	}
	return parent
}

// deleteRange marks the visible characters in [start,end) as tombstoned.
func (s *sequence) deleteRange(start, end int) {
	i := 0
	cur := s.root.next
	for cur != nil {
		if !cur.Deleted {
			if i >= start && i < end {
				cur.Deleted = true
			}
			i++
		}
		cur = cur.next
	}
}

// plainText renders the visible (non-tombstoned) characters in order.
func (s *sequence) plainText() string {
	var out []rune
	cur := s.root.next
	for cur != nil {
		if !cur.Deleted {
			out = append(out, cur.Value)
		}
		cur = cur.next
	}
	return string(out)
}

// lastVisibleID returns the ID of the last visible character, or Zero if
// the sequence is empty — the anchor to append after.
func (s *sequence) lastVisibleID() ID {
	last := Zero
	cur := s.root.next
	for cur != nil {
		if !cur.Deleted {
			last = cur.ID
		}
		cur = cur.next
	}
	return last
}

// idAtVisibleIndex returns the ID of the visible character at position i
// (0-based), or Zero/false if out of range — used to find the anchor for
// mid-sequence inserts (RewriteRegion's insertion point).
func (s *sequence) idAtVisibleIndex(i int) (ID, bool) {
	j := 0
	cur := s.root.next
	for cur != nil {
		if !cur.Deleted {
			if j == i {
				return cur.ID, true
			}
			j++
		}
		cur = cur.next
	}
	return Zero, false
}

// attributedSpans groups visible characters into contiguous same-author
// runs: (text, author, start, end) tiling the field exactly, per spec
// §4.1's authorship read.
type AttributedSpan struct {
	Text   string
	Author string
	Start  int
	End    int
}

func (s *sequence) attributedSpans() []AttributedSpan {
	var spans []AttributedSpan
	var cur *node = s.root.next
	pos := 0
	var curSpan *AttributedSpan

	for cur != nil {
		if !cur.Deleted {
			if curSpan != nil && curSpan.Author == cur.Author {
				curSpan.Text += string(cur.Value)
				curSpan.End = pos + 1
			} else {
				if curSpan != nil {
					spans = append(spans, *curSpan)
				}
				curSpan = &AttributedSpan{Text: string(cur.Value), Author: cur.Author, Start: pos, End: pos + 1}
			}
			pos++
		}
		cur = cur.next
	}
	if curSpan != nil {
		spans = append(spans, *curSpan)
	}
	return spans
}

// elementsAfter returns every element (visible or tombstoned) this
// sequence has ever integrated whose ID was assigned by replica with a
// counter greater than sinceCounter — used by Doc.Encode to build a diff
// against a remote state vector.
func (s *sequence) elementsAfter(sv map[string]uint64) []element {
	var out []element
	for id, n := range s.registry {
		if id == Zero {
			continue
		}
		if id.Counter > sv[id.Replica] {
			out = append(out, n.element)
		}
	}
	return out
}
