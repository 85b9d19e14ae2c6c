package bus

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/crdt"
	"github.com/scriptroom/storyengine/internal/diffusion"
)

// AnchorRange is one user-anchored boundary pair for a diffusion request.
type AnchorRange struct {
	Start int
	End   int
}

// DiffuseRequest is the handler-level input to CoordinatedRewrite.
type DiffuseRequest struct {
	NodeID           uuid.UUID
	AnchorRanges     []AnchorRange
	MaskBudget       int
	StepsPerBlock    int
	BlockLength      int
	Temperature      float32
	DynamicThreshold float32
}

func (r DiffuseRequest) validate() error {
	if len(r.AnchorRanges) == 0 {
		return apierr.New(apierr.InvalidOperation, "anchor_ranges must not be empty")
	}
	if r.MaskBudget <= 0 {
		return apierr.New(apierr.InvalidOperation, "mask_budget must be > 0")
	}
	return nil
}

// CoordinatedRewrite performs the handler-side orchestration of spec
// §4.3's "Coordinated rewrite": snapshot the node's content, validate the
// request, take the per-node exclusion lock, compute the prefix/suffix
// either side of the anchored region, subscribe to the coordinator's
// progress broadcast and re-publish each step as a DiffusionProgress
// event, run Infill, rewrite the CRDT region on success, and emit the
// terminal event either way. It blocks until the infill completes or
// fails — callers needing a timeout must apply their own via ctx.
func (b *Bus) CoordinatedRewrite(ctx context.Context, req DiffuseRequest) error {
	ctx, span := b.tracer.StartSpan(ctx, "bus.coordinated_rewrite", attribute.String("node_id", req.NodeID.String()))
	defer span.End()

	if err := req.validate(); err != nil {
		span.RecordError(err)
		return err
	}

	nodeKey := req.NodeID.String()

	snap, err := b.crdtMgr.ReadNodeContent(ctx, nodeKey)
	if err != nil {
		span.RecordError(err)
		return err
	}
	content := []rune(snap.Content)

	minStart, maxEnd, err := anchorBounds(req.AnchorRanges, len(content))
	if err != nil {
		span.RecordError(err)
		return err
	}

	if !b.locks.tryLock(nodeKey) {
		err := apierr.Newf(apierr.GenerationInProgress, "a diffusion request is already running for node %s", nodeKey)
		span.RecordError(err)
		return err
	}
	defer b.locks.unlock(nodeKey)

	prefix := string(content[:minStart])
	suffix := string(content[maxEnd:])

	subID, progress := b.diffusion.Subscribe(64)
	defer b.diffusion.Unsubscribe(subID)

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for p := range progress {
			b.publish(diffusionProgress(nodeKey, p.Step, p.TotalSteps))
		}
	}()

	finalText, err := b.diffusion.Infill(ctx, diffusion.InfillRequest{
		Prefix:           prefix,
		Suffix:           suffix,
		MaskCount:        req.MaskBudget,
		StepsPerBlock:    req.StepsPerBlock,
		BlockLength:      req.BlockLength,
		Temperature:      req.Temperature,
		DynamicThreshold: req.DynamicThreshold,
	})
	b.diffusion.Unsubscribe(subID)
	<-progressDone

	if err != nil {
		b.publish(diffusionError(nodeKey, err.Error()))
		span.RecordError(err)
		return err
	}

	author := "ai:diffuse-" + nodeKey
	if rwErr := b.crdtMgr.RewriteRegion(ctx, nodeKey, crdt.FieldContent, minStart, maxEnd, finalText, author); rwErr != nil {
		b.publish(diffusionError(nodeKey, rwErr.Error()))
		span.RecordError(rwErr)
		return rwErr
	}

	b.publish(diffusionComplete(nodeKey))
	b.publish(nodeUpdated(nodeKey))
	b.triggerSave()
	return nil
}

// anchorBounds validates every anchor range lies within [0, length) and
// returns the overall [min(start), max(end)) span to rewrite.
func anchorBounds(ranges []AnchorRange, length int) (minStart, maxEnd int, err error) {
	minStart = length
	maxEnd = 0
	for _, r := range ranges {
		if r.Start < 0 || r.End > length || r.Start >= r.End {
			return 0, 0, apierr.Newf(apierr.InvalidTimeRange, "anchor range [%d,%d) out of bounds for length %d", r.Start, r.End, length)
		}
		if r.Start < minStart {
			minStart = r.Start
		}
		if r.End > maxEnd {
			maxEnd = r.End
		}
	}
	return minStart, maxEnd, nil
}
