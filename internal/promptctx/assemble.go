package promptctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/cache"
	"github.com/scriptroom/storyengine/internal/crdt"
	"github.com/scriptroom/storyengine/internal/timeline"
)

// ContentReader is the narrow slice of *crdt.Manager the assembler needs,
// so tests can stub it without running a real manager goroutine.
type ContentReader interface {
	ReadNodeContent(ctx context.Context, nodeID string) (crdt.NodeSnapshot, error)
}

// recapCacheTTL bounds how long a packed recap set is reused before being
// recomputed from the live timeline; short enough that a split/resize a
// few seconds earlier is reflected promptly.
const recapCacheTTL = 30 * time.Second

// Assembler builds the full candidate item set for a target node and packs
// it against a token budget (spec §4.4's complete priority ladder).
type Assembler struct {
	Timeline *timeline.Timeline
	Content  ContentReader

	// Cache is consulted to avoid re-walking every node for recaps on
	// every request; a cache.NoOpCache is a correct, if unoptimized,
	// default (spec §4.4 names no persistence requirement for packing).
	Cache cache.Cache
}

// NewAssembler wires an assembler around a live timeline and CRDT manager,
// with no recap cache (every call recomputes from the live timeline).
func NewAssembler(t *timeline.Timeline, content ContentReader) *Assembler {
	return &Assembler{Timeline: t, Content: content, Cache: cache.NewNoOpCache()}
}

// Assemble gathers every candidate item for target per spec §4.4's priority
// ladder (target notes; ancestors; siblings; referenced bible entities;
// arc descriptions; other bible entities; recaps) and packs it into
// budgetTokens.
func (a *Assembler) Assemble(ctx context.Context, targetID uuid.UUID, referenced, other []BibleEntity, budgetTokens int) (Packed, error) {
	target, ok := a.Timeline.Nodes[targetID]
	if !ok {
		return Packed{}, fmt.Errorf("promptctx: node %s not found", targetID)
	}

	var items []Item

	if snap, err := a.Content.ReadNodeContent(ctx, target.ID.String()); err == nil && snap.Notes != "" {
		items = append(items, Item{Kind: "target_notes", Priority: PriorityTargetNotes, Text: snap.Notes, NodeID: target.ID})
	}

	for _, ancestor := range a.Timeline.AncestorsOf(target.ID) {
		if ancestor.Name != "" {
			items = append(items, Item{Kind: "ancestor", Priority: PriorityAncestors, Text: ancestor.Level.String() + ": " + ancestor.Name, NodeID: ancestor.ID})
		}
	}

	for _, sibling := range a.Timeline.SiblingsOf(target.ID) {
		if sibling.ID == target.ID || sibling.Name == "" {
			continue
		}
		items = append(items, Item{Kind: "sibling", Priority: PrioritySiblings, Text: sibling.Name, NodeID: sibling.ID})
	}

	for _, e := range referenced {
		items = append(items, referencedItem(e))
	}

	for _, arcID := range a.Timeline.ArcsForNode(target.ID) {
		if arc, ok := a.Timeline.Arcs[arcID]; ok && arc.Description != "" {
			items = append(items, Item{Kind: "arc", Priority: PriorityArcDescriptions, Text: arc.Name + ": " + arc.Description, NodeID: arc.ID})
		}
	}

	for _, e := range other {
		items = append(items, compactItem(e))
	}

	for _, recap := range a.recaps(ctx, target) {
		items = append(items, recap.AsItem())
	}

	return Pack(items, budgetTokens), nil
}

// recaps returns GatherRecaps(target), consulting a.Cache first and
// populating it on a miss.
func (a *Assembler) recaps(ctx context.Context, target *timeline.StoryNode) []Recap {
	cacheKey := "promptctx:recaps:" + target.ID.String()

	var cached []Recap
	if a.Cache != nil {
		if err := a.Cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached
		}
	}

	recaps := GatherRecaps(a.Timeline, target)
	if a.Cache != nil {
		_ = a.Cache.Set(ctx, cacheKey, recaps, recapCacheTTL)
	}
	return recaps
}
