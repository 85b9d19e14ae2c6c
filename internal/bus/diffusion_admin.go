package bus

import (
	"context"

	"github.com/scriptroom/storyengine/internal/diffusion"
)

// LoadDiffusionModel, UnloadDiffusionModel, and DiffusionStatus pass
// through to the diffusion coordinator directly: these are engine
// lifecycle commands, not timeline mutations, so none of them touch the
// timeline mutex or emit a structural event (spec §4.3's Status/LoadModel/
// UnloadModel commands carry no document-side effect of their own).

func (b *Bus) LoadDiffusionModel(ctx context.Context, path, device string) error {
	return b.diffusion.LoadModel(ctx, path, device)
}

func (b *Bus) UnloadDiffusionModel(ctx context.Context) error {
	return b.diffusion.UnloadModel(ctx)
}

func (b *Bus) DiffusionStatus(ctx context.Context) (diffusion.Status, error) {
	return b.diffusion.Status(ctx)
}
