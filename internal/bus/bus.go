package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/crdt"
	"github.com/scriptroom/storyengine/internal/diffusion"
	"github.com/scriptroom/storyengine/internal/observability"
	"github.com/scriptroom/storyengine/internal/timeline"
)

// Bus wires request handlers to the timeline value, the CRDT manager, and
// the diffusion coordinator (spec §2 point 4, §5's shared-resource table):
// the timeline lives behind one mutex held only across each mutation; the
// CRDT document and the diffusion engine are reached exclusively through
// their own command channels. Every mutation here emits a structural event
// and schedules a debounced save.
type Bus struct {
	mu           sync.Mutex
	timeline     *timeline.Timeline
	lastSnapshot *timeline.Timeline

	crdtMgr   *crdt.Manager
	diffusion *diffusion.Coordinator
	saver     *DebouncedSaver
	locks     *diffusionLockSet

	logger  observability.Logger
	tracer  *observability.TracingHandler
	metrics observability.MetricsClient

	eventSubsMu  sync.Mutex
	eventSubs    map[uint64]chan Event
	nextEventSub uint64
}

// New wires a Bus around an already-running CRDT manager and diffusion
// coordinator, building its own DebouncedSaver (saveFn persists the
// current timeline + CRDT state; saveDebounce is its quiet-period). The
// returned Bus owns the saver but does not start it — callers run
// Saver().Run(ctx) themselves so its lifecycle matches the server's.
func New(
	tl *timeline.Timeline,
	crdtMgr *crdt.Manager,
	diffusionCoord *diffusion.Coordinator,
	saveFn SaveFunc,
	saveDebounce time.Duration,
	logger observability.Logger,
	tracer *observability.TracingHandler,
	metrics observability.MetricsClient,
) *Bus {
	b := &Bus{
		timeline:  tl,
		crdtMgr:   crdtMgr,
		diffusion: diffusionCoord,
		locks:     newDiffusionLockSet(),
		logger:    logger,
		tracer:    tracer,
		metrics:   metrics,
		eventSubs: make(map[uint64]chan Event),
	}
	b.saver = NewDebouncedSaver(saveDebounce, saveFn, logger)
	return b
}

// Saver returns the Bus's debounced-save scheduler, for the caller to run
// on its own goroutine (`go bus.Saver().Run(ctx)`).
func (b *Bus) Saver() *DebouncedSaver {
	return b.saver
}

// Subscribe registers a listener for structural events.
func (b *Bus) Subscribe(bufferDepth int) (uint64, <-chan Event) {
	b.eventSubsMu.Lock()
	defer b.eventSubsMu.Unlock()
	id := b.nextEventSub
	b.nextEventSub++
	ch := make(chan Event, bufferDepth)
	b.eventSubs[id] = ch
	return id, ch
}

// Unsubscribe removes a previously registered listener.
func (b *Bus) Unsubscribe(id uint64) {
	b.eventSubsMu.Lock()
	defer b.eventSubsMu.Unlock()
	if ch, ok := b.eventSubs[id]; ok {
		delete(b.eventSubs, id)
		close(ch)
	}
}

func (b *Bus) publish(e Event) {
	b.eventSubsMu.Lock()
	defer b.eventSubsMu.Unlock()
	for id, ch := range b.eventSubs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("dropping structural event for lagging subscriber", map[string]interface{}{"subscriber": id, "event": string(e.Type)})
		}
	}
}

func (b *Bus) triggerSave() {
	if b.saver != nil {
		b.saver.TriggerSave()
	}
}

// withTimeline snapshots the timeline (for undo), runs mutate under the
// bus's mutex, and on success publishes evt and triggers a save. mutate
// returning an error leaves the timeline untouched by the caller's
// intent, but since mutate operates on the live value directly, mutate
// implementations must themselves only commit on success (every
// timeline.* operation already follows that contract).
func (b *Bus) withTimeline(evt Event, mutate func(*timeline.Timeline) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSnapshot = b.timeline.Clone()
	if err := mutate(b.timeline); err != nil {
		return err
	}
	b.publish(evt)
	b.triggerSave()
	return nil
}

// Undo restores the timeline to the state captured by the most recent
// mutation's pre-image. There is exactly one level of undo; calling it
// twice in a row without an intervening mutation leaves the timeline
// unchanged on the second call and returns an InvalidOperation error (no
// snapshot precedes a snapshot).
func (b *Bus) Undo() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastSnapshot == nil {
		return apierr.New(apierr.InvalidOperation, "no mutation to undo")
	}
	b.timeline = b.lastSnapshot
	b.lastSnapshot = nil
	b.publish(timelineChanged())
	b.triggerSave()
	return nil
}

// Timeline returns the live timeline value. Callers must not retain a
// reference across a subsequent Bus mutation; prefer the query methods on
// *timeline.Timeline for read access.
func (b *Bus) Timeline() *timeline.Timeline {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeline
}

// AddNode adds a node, ensures its CRDT entry exists, and emits
// TimelineChanged.
func (b *Bus) AddNode(ctx context.Context, node *timeline.StoryNode) error {
	err := b.withTimeline(timelineChanged(), func(t *timeline.Timeline) error {
		return t.AddNode(node)
	})
	if err != nil {
		return err
	}
	return b.crdtMgr.EnsureNode(ctx, node.ID.String())
}

// RemoveNode removes a node and its subtree, then removes every affected
// node's CRDT entry. The set of removed nodes is captured inside the same
// locked mutation as the removal itself — computing it in a separate,
// earlier critical section would let a concurrent request (gin serves
// handlers on their own goroutines) change the subtree in between,
// leaving this method cleaning up a stale set of CRDT entries.
func (b *Bus) RemoveNode(ctx context.Context, id uuid.UUID) error {
	var removed []*timeline.StoryNode

	err := b.withTimeline(timelineChanged(), func(t *timeline.Timeline) error {
		removed = t.DescendantsOf(id)
		if n, ok := t.Nodes[id]; ok {
			removed = append(removed, n)
		}
		return t.RemoveNode(id)
	})
	if err != nil {
		return err
	}
	for _, n := range removed {
		if n == nil {
			continue
		}
		if rmErr := b.crdtMgr.RemoveNode(ctx, n.ID.String()); rmErr != nil {
			b.logger.Warn("failed to remove crdt entry for deleted node", map[string]interface{}{"node_id": n.ID.String(), "error": rmErr.Error()})
		}
	}
	return nil
}

// ResizeNode rescales a node's range and its descendants'.
func (b *Bus) ResizeNode(_ context.Context, id uuid.UUID, newRange timeline.TimeRange) error {
	return b.withTimeline(timelineChanged(), func(t *timeline.Timeline) error {
		return t.ResizeNode(id, newRange)
	})
}

// SplitNode splits a node at atMs, ensuring CRDT entries for both halves.
func (b *Bus) SplitNode(ctx context.Context, id uuid.UUID, atMs int64) (left, right uuid.UUID, err error) {
	b.mu.Lock()
	b.lastSnapshot = b.timeline.Clone()
	left, right, err = b.timeline.SplitNode(id, atMs)
	if err != nil {
		b.mu.Unlock()
		return uuid.Nil, uuid.Nil, err
	}
	b.mu.Unlock()

	b.publish(timelineChanged())
	b.triggerSave()

	if ensureErr := b.crdtMgr.EnsureNode(ctx, left.String()); ensureErr != nil {
		b.logger.Warn("failed to ensure crdt entry for split left half", map[string]interface{}{"node_id": left.String(), "error": ensureErr.Error()})
	}
	if ensureErr := b.crdtMgr.EnsureNode(ctx, right.String()); ensureErr != nil {
		b.logger.Warn("failed to ensure crdt entry for split right half", map[string]interface{}{"node_id": right.String(), "error": ensureErr.Error()})
	}
	return left, right, nil
}

// TagNode/UntagNode/AddRelationship/AddArc/UpdateArc/RemoveArc mirror the
// corresponding timeline operations, wrapped with snapshot + publish +
// save.

func (b *Bus) TagNode(nodeID, arcID uuid.UUID) error {
	return b.withTimeline(storyChanged(), func(t *timeline.Timeline) error {
		return t.TagNode(nodeID, arcID)
	})
}

func (b *Bus) UntagNode(nodeID, arcID uuid.UUID) error {
	return b.withTimeline(storyChanged(), func(t *timeline.Timeline) error {
		return t.UntagNode(nodeID, arcID)
	})
}

func (b *Bus) AddRelationship(rel *timeline.Relationship) error {
	return b.withTimeline(storyChanged(), func(t *timeline.Timeline) error {
		return t.AddRelationship(rel)
	})
}

// RemoveRelationship deletes a relationship edge.
func (b *Bus) RemoveRelationship(id uuid.UUID) error {
	return b.withTimeline(storyChanged(), func(t *timeline.Timeline) error {
		return t.RemoveRelationship(id)
	})
}

func (b *Bus) AddArc(arc *timeline.StoryArc) error {
	return b.withTimeline(storyChanged(), func(t *timeline.Timeline) error {
		return t.AddArc(arc)
	})
}

func (b *Bus) UpdateArc(arc *timeline.StoryArc) error {
	return b.withTimeline(storyChanged(), func(t *timeline.Timeline) error {
		return t.UpdateArc(arc)
	})
}

func (b *Bus) RemoveArc(id uuid.UUID) error {
	return b.withTimeline(storyChanged(), func(t *timeline.Timeline) error {
		return t.RemoveArc(id)
	})
}

// LockNode / UnlockNode toggle StoryNode.Locked under the timeline mutex.
func (b *Bus) LockNode(id uuid.UUID) error {
	return b.setLocked(id, true)
}

func (b *Bus) UnlockNode(id uuid.UUID) error {
	return b.setLocked(id, false)
}

func (b *Bus) setLocked(id uuid.UUID, locked bool) error {
	return b.withTimeline(nodeUpdated(id.String()), func(t *timeline.Timeline) error {
		n, ok := t.Nodes[id]
		if !ok {
			return apierr.Newf(apierr.NodeNotFound, "node %s not found", id)
		}
		n.Locked = locked
		return nil
	})
}

// GetNodeContent returns a node's current CRDT text.
func (b *Bus) GetNodeContent(ctx context.Context, nodeID uuid.UUID) (crdt.NodeSnapshot, error) {
	return b.crdtMgr.ReadNodeContent(ctx, nodeID.String())
}

// UpdateNotes replaces a node's notes text, attributed to author.
func (b *Bus) UpdateNotes(ctx context.Context, nodeID uuid.UUID, text, author string) error {
	if err := b.crdtMgr.WriteNodeContent(ctx, nodeID.String(), crdt.FieldNotes, text, author); err != nil {
		return err
	}
	b.publish(nodeUpdated(nodeID.String()))
	b.triggerSave()
	return nil
}

// UpdateScript replaces a node's content text, attributed to author.
func (b *Bus) UpdateScript(ctx context.Context, nodeID uuid.UUID, text, author string) error {
	if err := b.crdtMgr.WriteNodeContent(ctx, nodeID.String(), crdt.FieldContent, text, author); err != nil {
		return err
	}
	b.publish(nodeUpdated(nodeID.String()))
	b.triggerSave()
	return nil
}
