package promptctx

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/timeline"
)

const untaggedArcName = "Untagged"

// Recap is one continuity excerpt carried forward into later prompts
// (spec §4.4 "Recap gathering").
type Recap struct {
	ArcName   string
	NodeName  string
	EndTimeMs int64
	Text      string
}

// maxRecaps is the "keep only the last six" cap from spec §4.4.
const maxRecaps = 6

// GatherRecaps collects scene_recap text from every Scene or Beat node
// whose range ends at or before target's start, sorts by end time
// ascending, and keeps only the most recent six. Preserves the spec's
// stated quirk of resolving arc name from only the first tagged arc (or
// "Untagged" if none) even when a node carries more than one tag.
func GatherRecaps(t *timeline.Timeline, target *timeline.StoryNode) []Recap {
	var recaps []Recap
	for _, n := range t.Nodes {
		if n.Level != timeline.Scene && n.Level != timeline.Beat {
			continue
		}
		if n.SceneRecap == "" {
			continue
		}
		if n.Range.End > target.Range.Start {
			continue
		}
		recaps = append(recaps, Recap{
			ArcName:   firstArcName(t, n.ID),
			NodeName:  n.Name,
			EndTimeMs: n.Range.End,
			Text:      n.SceneRecap,
		})
	}

	sort.Slice(recaps, func(i, j int) bool {
		return recaps[i].EndTimeMs < recaps[j].EndTimeMs
	})

	if len(recaps) > maxRecaps {
		recaps = recaps[len(recaps)-maxRecaps:]
	}
	return recaps
}

func firstArcName(t *timeline.Timeline, nodeID uuid.UUID) string {
	for _, na := range t.NodeArcs {
		if na.NodeID == nodeID {
			if arc, ok := t.Arcs[na.ArcID]; ok {
				return arc.Name
			}
			return untaggedArcName
		}
	}
	return untaggedArcName
}

// AsItem renders a recap as a continuity-priority context Item.
func (r Recap) AsItem() Item {
	return Item{
		Kind:     "recap",
		Priority: PriorityContinuity,
		Text:     fmt.Sprintf("[%s] %s (ends %dms): %s", r.ArcName, r.NodeName, r.EndTimeMs, r.Text),
	}
}
