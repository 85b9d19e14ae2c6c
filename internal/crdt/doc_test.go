package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario C: EnsureNode, WriteNodeContent, FlushTokens compose into the
// expected content and attributed spans.
func TestDoc_ScenarioC(t *testing.T) {
	d := NewDoc()
	d.EnsureNode("N")
	d.WriteNodeContent("N", FieldContent, "Hello ", "human:7")
	d.FlushTokens("N", "world", "ai:g1")

	snap := d.ReadNodeContent("N")
	assert.Equal(t, "Hello world", snap.Content)
	require.Len(t, snap.ContentSpans, 2)
	assert.Equal(t, AttributedSpan{Text: "Hello ", Author: "human:7", Start: 0, End: 6}, snap.ContentSpans[0])
	assert.Equal(t, AttributedSpan{Text: "world", Author: "ai:g1", Start: 6, End: 11}, snap.ContentSpans[1])
}

// Scenario E: RewriteRegion after scenario C replaces "world" with "there"
// and attributes the new span to the diffusion author.
func TestDoc_ScenarioE(t *testing.T) {
	d := NewDoc()
	d.EnsureNode("N")
	d.WriteNodeContent("N", FieldContent, "Hello ", "human:7")
	d.FlushTokens("N", "world", "ai:g1")

	applied := d.RewriteRegion("N", FieldContent, 6, 11, "there", "ai:diffuse-N")
	require.True(t, applied)

	snap := d.ReadNodeContent("N")
	assert.Equal(t, "Hello there", snap.Content)
	require.Len(t, snap.ContentSpans, 2)
	assert.Equal(t, "ai:diffuse-N", snap.ContentSpans[1].Author)
	assert.Equal(t, "there", snap.ContentSpans[1].Text)
}

// Testable property 6: author idempotence.
func TestDoc_AuthorIdempotence(t *testing.T) {
	d := NewDoc()
	d.EnsureNode("N")
	d.WriteNodeContent("N", FieldNotes, "draft notes", "human:1")
	d.WriteNodeContent("N", FieldContent, "scene text", "human:1")

	snap := d.ReadNodeContent("N")
	assert.Equal(t, "draft notes", snap.Notes)
	assert.Equal(t, "scene text", snap.Content)
	require.Len(t, snap.ContentSpans, 1)
	assert.Equal(t, AttributedSpan{Text: "scene text", Author: "human:1", Start: 0, End: 10}, snap.ContentSpans[0])
}

// Testable property 7: append concatenation.
func TestDoc_FlushTokensConcatenates(t *testing.T) {
	d := NewDoc()
	d.EnsureNode("N")
	d.WriteNodeContent("N", FieldContent, "A", "human:1")
	d.FlushTokens("N", "B", "ai:g1")
	d.FlushTokens("N", "C", "ai:g1")

	assert.Equal(t, "ABC", d.ReadNodeContent("N").Content)
}

// Testable property 8: rewrite bounds.
func TestDoc_RewriteRegionBounds(t *testing.T) {
	d := NewDoc()
	d.EnsureNode("N")
	d.WriteNodeContent("N", FieldContent, "0123456789", "human:1")

	applied := d.RewriteRegion("N", FieldContent, 3, 6, "XY", "ai:g2")
	require.True(t, applied)
	assert.Equal(t, "012XY6789", d.ReadNodeContent("N").Content)

	for _, span := range d.ReadNodeContent("N").ContentSpans {
		if span.Text == "XY" {
			assert.Equal(t, "ai:g2", span.Author)
		}
	}
}

func TestDoc_RewriteRegionNoOpWhenClampedEmpty(t *testing.T) {
	d := NewDoc()
	d.EnsureNode("N")
	d.WriteNodeContent("N", FieldContent, "short", "human:1")

	applied := d.RewriteRegion("N", FieldContent, 10, 20, "ignored", "ai:g3")
	assert.False(t, applied)
	assert.Equal(t, "short", d.ReadNodeContent("N").Content)
}

// Testable property 5: round-trip Load(Serialize(S)) observationally
// equals S.
func TestDoc_EncodeDecodeRoundTrip(t *testing.T) {
	d := NewDoc()
	d.EnsureNode("N1")
	d.WriteNodeContent("N1", FieldContent, "alpha beta", "human:1")
	d.WriteNodeContent("N1", FieldNotes, "a note", "human:1")
	d.WritePremiseText("The premise", "human:1")

	u := d.Encode(StateVector{})
	bytes, err := EncodeBytes(u)
	require.NoError(t, err)

	u2, err := DecodeBytes(bytes)
	require.NoError(t, err)

	fresh := NewDoc()
	fresh.Apply(u2)

	assert.Equal(t, d.ReadNodeContent("N1"), fresh.ReadNodeContent("N1"))
	assert.Equal(t, d.PremiseText(), fresh.PremiseText())
}

func TestDoc_RemoveNodeDeletesEntry(t *testing.T) {
	d := NewDoc()
	d.EnsureNode("N")
	d.WriteNodeContent("N", FieldContent, "x", "human:1")
	d.RemoveNode("N")

	assert.Empty(t, d.ReadAllNodes())
	snap := d.ReadNodeContent("N")
	assert.Equal(t, "", snap.Content)
}
