// Package promptctx assembles the AI-assist prompt context for a target
// node: a token-budgeted, priority-ordered bundle of notes, ancestry,
// sibling text, bible entities, arc descriptions, and continuity recaps
// (spec §4.4). It mirrors the teacher's context_manager.go token-budget
// idiom (MaxTokens/CurrentTokens) generalized to a priority ladder instead
// of a single FIFO truncation.
package promptctx

import (
	"sort"

	"github.com/google/uuid"
)

// Priority ladder (spec §4.4), low number included first.
const (
	PriorityTargetNotes Priority = iota
	PriorityAncestors
	PrioritySiblings
	PriorityReferencedBible
	PriorityArcDescriptions
	PriorityOtherBible
	PriorityContinuity
)

// Priority is a context item's rung on the priority ladder. Lower values
// are more important and are considered for inclusion first.
type Priority int

// Item is one candidate piece of context text with an estimated token cost.
type Item struct {
	Kind     string
	Priority Priority
	Text     string
	NodeID   uuid.UUID
}

// EstimateTokens approximates a token count as one token per four
// characters, rounded up, per spec §4.4.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// Packed is the result of Pack: the items that made the cut, in the order
// they were selected, plus the total token estimate spent.
type Packed struct {
	Items      []Item
	TokensUsed int
}

// Pack sorts candidates by priority ascending and greedily includes items
// whose cumulative token estimate fits budget. An item that would overflow
// the remaining budget is skipped, not rejected outright — scanning
// continues so a later, smaller, higher-priority-tied item still has a
// chance to fit (spec §4.4: "skip items that would overflow but continue
// scanning so that small high-priority items do not starve").
func Pack(candidates []Item, budgetTokens int) Packed {
	sorted := make([]Item, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	var result Packed
	remaining := budgetTokens
	for _, item := range sorted {
		cost := EstimateTokens(item.Text)
		if cost > remaining {
			continue
		}
		result.Items = append(result.Items, item)
		result.TokensUsed += cost
		remaining -= cost
	}
	return result
}
