package promptctx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scriptroom/storyengine/internal/promptctx"
)

func TestPack_FitsBudget_NoOverflowBeatsLowerPriority(t *testing.T) {
	// One huge priority-0 item that alone would consume the whole budget,
	// followed by several small lower-priority items. Spec §4.4: an item
	// that would overflow is skipped, not fatal, and scanning continues so
	// the small items still fit.
	big := promptctx.Item{Kind: "big", Priority: 0, Text: stringOfLen(400)} // ~100 tokens
	small1 := promptctx.Item{Kind: "s1", Priority: 1, Text: "tiny"}
	small2 := promptctx.Item{Kind: "s2", Priority: 2, Text: "also tiny"}

	result := promptctx.Pack([]promptctx.Item{big, small1, small2}, 10)

	assert.Len(t, result.Items, 2)
	assert.Equal(t, "s1", result.Items[0].Kind)
	assert.Equal(t, "s2", result.Items[1].Kind)
	assert.LessOrEqual(t, result.TokensUsed, 10)
}

func TestPack_PriorityOrderPreserved(t *testing.T) {
	items := []promptctx.Item{
		{Kind: "low", Priority: promptctx.PriorityOtherBible, Text: "z"},
		{Kind: "high", Priority: promptctx.PriorityTargetNotes, Text: "a"},
		{Kind: "mid", Priority: promptctx.PriorityAncestors, Text: "m"},
	}
	result := promptctx.Pack(items, 1000)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{
		result.Items[0].Kind, result.Items[1].Kind, result.Items[2].Kind,
	})
}

func TestEstimateTokens_RoundsUp(t *testing.T) {
	assert.Equal(t, 0, promptctx.EstimateTokens(""))
	assert.Equal(t, 1, promptctx.EstimateTokens("abc"))
	assert.Equal(t, 1, promptctx.EstimateTokens("abcd"))
	assert.Equal(t, 2, promptctx.EstimateTokens("abcde"))
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
