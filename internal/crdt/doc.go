package crdt

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Field discriminates which text a (node, field) key addresses. FieldPremise
// ignores its NodeID (there is exactly one premise text for the whole
// project, matching the CRDT schema's separate root.map("project_text")).
type Field int

const (
	FieldNotes Field = iota
	FieldContent
	FieldPremise
)

func (f Field) String() string {
	switch f {
	case FieldNotes:
		return "notes"
	case FieldContent:
		return "content"
	case FieldPremise:
		return "premise"
	default:
		return "unknown"
	}
}

type fieldKey struct {
	NodeID string
	Field  Field
}

// op is one wire-level record of a replicated op: which (node, field) it
// belongs to, plus the element itself. Update is a flat slice of these.
type op struct {
	NodeID string
	Field  Field
	Elem   element
}

// Update is the encoded form of a set of CRDT ops, exchanged as the
// "update bytes" of spec §4.1 (ApplyUpdate/GetDiff/Serialize/Load all
// move Updates across the wire, gob-encoded).
type Update struct {
	Ops []op
}

// StateVector maps each replica id to the highest counter this Doc has
// observed from it — the sync handshake value of spec §4.1's
// GetStateVector.
type StateVector map[string]uint64

// NodeSnapshot is the ReadNodeContent/ReadAllNodes result shape: the two
// plain-text projections plus the content field's attributed spans.
type NodeSnapshot struct {
	Notes        string
	Content      string
	ContentSpans []AttributedSpan
}

// Doc is the single collaborative document: every node's notes/content
// sequence plus the project premise text, addressed by fieldKey, with a
// document-wide per-replica Lamport clock.
type Doc struct {
	fields  map[fieldKey]*sequence
	clocks  map[string]uint64
}

// NewDoc creates an empty document (no nodes, no premise text).
func NewDoc() *Doc {
	return &Doc{
		fields: make(map[fieldKey]*sequence),
		clocks: make(map[string]uint64),
	}
}

func (d *Doc) nextID(replica string) ID {
	d.clocks[replica]++
	return ID{Counter: d.clocks[replica], Replica: replica}
}

func (d *Doc) observe(id ID) {
	if id.Counter > d.clocks[id.Replica] {
		d.clocks[id.Replica] = id.Counter
	}
}

func (d *Doc) seq(key fieldKey) *sequence {
	s, ok := d.fields[key]
	if !ok {
		s = newSequence()
		d.fields[key] = s
	}
	return s
}

// EnsureNode idempotently creates empty notes and content entries for
// nodeID.
func (d *Doc) EnsureNode(nodeID string) {
	d.seq(fieldKey{NodeID: nodeID, Field: FieldNotes})
	d.seq(fieldKey{NodeID: nodeID, Field: FieldContent})
}

// RemoveNode deletes nodeID's entire map entry (both fields).
func (d *Doc) RemoveNode(nodeID string) {
	delete(d.fields, fieldKey{NodeID: nodeID, Field: FieldNotes})
	delete(d.fields, fieldKey{NodeID: nodeID, Field: FieldContent})
}

// WriteNodeContent replaces field's entire text with t, every character
// attributed to author. The prior sequence's ops are discarded; this
// command is a hard overwrite, not a merge.
func (d *Doc) WriteNodeContent(nodeID string, field Field, t string, author string) {
	key := fieldKey{NodeID: nodeID, Field: field}
	s := newSequence()
	s.insertRunes([]rune(t), author, Zero, d.nextID)
	d.fields[key] = s
}

// FlushTokens appends tokens to nodeID's content field with attribution,
// for AI streaming.
func (d *Doc) FlushTokens(nodeID string, tokens string, author string) {
	s := d.seq(fieldKey{NodeID: nodeID, Field: FieldContent})
	anchor := s.lastVisibleID()
	s.insertRunes([]rune(tokens), author, anchor, d.nextID)
}

// RewriteRegion clamps [start,end) to field's current length; if start>=end
// after clamping it is a no-op (the caller is expected to warn); otherwise
// it removes [start,end) and inserts newText at start, attributed to
// author.
func (d *Doc) RewriteRegion(nodeID string, field Field, start, end int, newText string, author string) (applied bool) {
	key := fieldKey{NodeID: nodeID, Field: field}
	s := d.seq(key)

	length := len([]rune(s.plainText()))
	start = clamp(start, 0, length)
	end = clamp(end, 0, length)
	if start >= end {
		return false
	}

	var anchor ID
	if start == 0 {
		anchor = Zero
	} else {
		anchor, _ = s.idAtVisibleIndex(start - 1)
	}

	s.deleteRange(start, end)
	s.insertRunes([]rune(newText), author, anchor, d.nextID)
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ReadNodeContent returns nodeID's current notes, content, and the
// content field's attributed spans.
func (d *Doc) ReadNodeContent(nodeID string) NodeSnapshot {
	notes := d.seq(fieldKey{NodeID: nodeID, Field: FieldNotes})
	content := d.seq(fieldKey{NodeID: nodeID, Field: FieldContent})
	return NodeSnapshot{
		Notes:        notes.plainText(),
		Content:      content.plainText(),
		ContentSpans: content.attributedSpans(),
	}
}

// ReadAllNodes returns every node id's snapshot, for persistence.
func (d *Doc) ReadAllNodes() map[string]NodeSnapshot {
	ids := make(map[string]bool)
	for key := range d.fields {
		if key.Field == FieldNotes || key.Field == FieldContent {
			ids[key.NodeID] = true
		}
	}
	out := make(map[string]NodeSnapshot, len(ids))
	for id := range ids {
		out[id] = d.ReadNodeContent(id)
	}
	return out
}

// PremiseText returns the project premise text.
func (d *Doc) PremiseText() string {
	return d.seq(fieldKey{Field: FieldPremise}).plainText()
}

// WritePremiseText replaces the premise text, attributed to author.
func (d *Doc) WritePremiseText(t string, author string) {
	d.WriteNodeContent("", FieldPremise, t, author)
}

// StateVector returns the document's current per-replica high-water
// counters, for the sync handshake.
func (d *Doc) StateVector() StateVector {
	sv := make(StateVector, len(d.clocks))
	for r, c := range d.clocks {
		sv[r] = c
	}
	return sv
}

// Encode builds the Update containing every op this Doc has integrated
// whose counter exceeds remote's entry for that op's replica — "local
// state minus remote" (spec §4.1 GetDiff; Serialize calls this with an
// empty state vector).
func (d *Doc) Encode(remote StateVector) Update {
	var ops []op
	for key, s := range d.fields {
		for _, e := range s.elementsAfter(remote) {
			ops = append(ops, op{NodeID: key.NodeID, Field: key.Field, Elem: e})
		}
	}
	return Update{Ops: ops}
}

// Apply integrates every op in u into this Doc (additive merge).
func (d *Doc) Apply(u Update) {
	for _, o := range u.Ops {
		s := d.seq(fieldKey{NodeID: o.NodeID, Field: o.Field})
		s.integrate(o.Elem)
		d.observe(o.Elem.ID)
	}
}

// EncodeBytes gob-encodes u for wire transmission.
func EncodeBytes(u Update) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(u); err != nil {
		return nil, fmt.Errorf("encode crdt update: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBytes gob-decodes an Update previously produced by EncodeBytes.
func DecodeBytes(data []byte) (Update, error) {
	var u Update
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&u); err != nil {
		return Update{}, fmt.Errorf("decode crdt update: %w", err)
	}
	return u, nil
}
