package timeline_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptroom/storyengine/internal/timeline"
)

func newPremiseOnly(t *testing.T, total int64) *timeline.Timeline {
	tl := timeline.New(total, timeline.StandardStructure())
	premise := &timeline.StoryNode{ID: uuid.New(), Level: timeline.Premise, Range: timeline.TimeRange{Start: 0, End: total}}
	require.NoError(t, tl.AddNode(premise))
	return tl
}

// Scenario A: MultiCam template yields 12 non-overlapping scenes, each
// with an Act-level ancestor, under a single Premise spanning the episode.
func TestBuildTemplate_MultiCam_ScenarioA(t *testing.T) {
	tl, err := timeline.BuildTemplate(timeline.MultiCam)
	require.NoError(t, err)
	require.NoError(t, tl.Validate())

	premise, ok := tl.Premise()
	require.True(t, ok)
	assert.Equal(t, int64(0), premise.Range.Start)
	assert.Equal(t, int64(1_320_000), premise.Range.End)

	scenes := tl.NodesAtLevel(timeline.Scene)
	require.Len(t, scenes, 12)

	for i, s := range scenes {
		if i > 0 {
			assert.GreaterOrEqual(t, s.Range.Start, scenes[i-1].Range.End)
		}
		var hasActAncestor bool
		for _, a := range tl.AncestorsOf(s.ID) {
			if a.Level == timeline.Act {
				hasActAncestor = true
			}
		}
		assert.True(t, hasActAncestor, "scene %s should have an Act-level ancestor", s.ID)
	}
}

// Scenario B: splitting the Cold Open act at 90s produces two halves with
// the expected ranges, shared beat_type/locked, and correct descendant
// reparenting by midpoint.
func TestSplitNode_ScenarioB(t *testing.T) {
	tl, err := timeline.BuildTemplate(timeline.MultiCam)
	require.NoError(t, err)

	var coldOpen *timeline.StoryNode
	for _, a := range tl.NodesAtLevel(timeline.Act) {
		if a.Name == "Cold Open" {
			coldOpen = a
		}
	}
	require.NotNil(t, coldOpen)
	coldOpenID := coldOpen.ID

	leftID, rightID, err := tl.SplitNode(coldOpenID, 90_000)
	require.NoError(t, err)
	require.NoError(t, tl.Validate())

	_, stillExists := tl.Nodes[coldOpenID]
	assert.False(t, stillExists)

	left := tl.Nodes[leftID]
	right := tl.Nodes[rightID]
	require.NotNil(t, left)
	require.NotNil(t, right)
	assert.Equal(t, timeline.TimeRange{Start: 0, End: 90_000}, left.Range)
	assert.Equal(t, timeline.TimeRange{Start: 90_000, End: 120_000}, right.Range)
	assert.Equal(t, coldOpen.Locked, left.Locked)
	assert.Equal(t, coldOpen.Locked, right.Locked)
	assert.Equal(t, coldOpen.BeatType, left.BeatType)
	assert.Equal(t, coldOpen.BeatType, right.BeatType)
	assert.Equal(t, right.SortOrder, left.SortOrder+1)

	// SplitNode reparents the original's direct children; deeper descendants
	// (the Cold Open scene under its Sequence) move with their parent. Every
	// descendant must therefore sit under the half its midpoint falls in.
	for _, d := range append(tl.DescendantsOf(leftID), tl.DescendantsOf(rightID)...) {
		want := rightID
		if d.Range.Midpoint() < 90_000 {
			want = leftID
		}
		var underWant bool
		for _, a := range tl.AncestorsOf(d.ID) {
			if a.ID == want {
				underWant = true
			}
		}
		assert.True(t, underWant, "descendant %q (%s) is not under the expected half", d.Name, d.Level)
	}
}

func TestAddNode_RejectsSecondPremise(t *testing.T) {
	tl := newPremiseOnly(t, 1000)
	second := &timeline.StoryNode{ID: uuid.New(), Level: timeline.Premise, Range: timeline.TimeRange{Start: 0, End: 1000}}
	err := tl.AddNode(second)
	assert.Error(t, err)
}

func TestAddNode_RejectsWrongHierarchy(t *testing.T) {
	tl := newPremiseOnly(t, 1000)
	premise, _ := tl.Premise()
	badChild := &timeline.StoryNode{ID: uuid.New(), ParentID: &premise.ID, Level: timeline.Sequence, Range: timeline.TimeRange{Start: 0, End: 500}}
	err := tl.AddNode(badChild)
	assert.Error(t, err)
}

func TestAddNode_RejectsRangeOutsideTotal(t *testing.T) {
	tl := newPremiseOnly(t, 1000)
	premise, _ := tl.Premise()
	child := &timeline.StoryNode{ID: uuid.New(), ParentID: &premise.ID, Level: timeline.Act, Range: timeline.TimeRange{Start: 900, End: 1500}}
	err := tl.AddNode(child)
	assert.Error(t, err)
}

// Invariant 6: RemoveNode cascades atomically, purging relationships and
// arc tags referencing the removed subtree.
func TestRemoveNode_CascadesAndPurgesReferences(t *testing.T) {
	tl := newPremiseOnly(t, 1_000_000)
	premise, _ := tl.Premise()

	act := &timeline.StoryNode{ID: uuid.New(), ParentID: &premise.ID, Level: timeline.Act, Range: timeline.TimeRange{0, 500_000}}
	require.NoError(t, tl.AddNode(act))
	seq := &timeline.StoryNode{ID: uuid.New(), ParentID: &act.ID, Level: timeline.Sequence, Range: timeline.TimeRange{0, 500_000}}
	require.NoError(t, tl.AddNode(seq))
	scene := &timeline.StoryNode{ID: uuid.New(), ParentID: &seq.ID, Level: timeline.Scene, Range: timeline.TimeRange{0, 250_000}}
	require.NoError(t, tl.AddNode(scene))

	otherScene := &timeline.StoryNode{ID: uuid.New(), ParentID: &seq.ID, Level: timeline.Scene, Range: timeline.TimeRange{250_000, 500_000}}
	require.NoError(t, tl.AddNode(otherScene))

	arc := &timeline.StoryArc{ID: uuid.New(), Name: "A"}
	tl.Arcs[arc.ID] = arc
	require.NoError(t, tl.TagNode(scene.ID, arc.ID))

	require.NoError(t, tl.AddRelationship(&timeline.Relationship{FromID: scene.ID, ToID: otherScene.ID, Kind: timeline.RelCausal}))

	require.NoError(t, tl.RemoveNode(act.ID))
	require.NoError(t, tl.Validate())

	assert.False(t, tl.ReferencesRemoved(act.ID))
	assert.False(t, tl.ReferencesRemoved(seq.ID))
	assert.False(t, tl.ReferencesRemoved(scene.ID))
	assert.False(t, tl.ReferencesRemoved(otherScene.ID))
	_, exists := tl.Nodes[scene.ID]
	assert.False(t, exists)
}

func TestResizeNode_RescalesDescendantsProportionally(t *testing.T) {
	tl := newPremiseOnly(t, 1_000_000)
	premise, _ := tl.Premise()
	act := &timeline.StoryNode{ID: uuid.New(), ParentID: &premise.ID, Level: timeline.Act, Range: timeline.TimeRange{0, 100_000}}
	require.NoError(t, tl.AddNode(act))
	seq := &timeline.StoryNode{ID: uuid.New(), ParentID: &act.ID, Level: timeline.Sequence, Range: timeline.TimeRange{0, 100_000}}
	require.NoError(t, tl.AddNode(seq))
	scene := &timeline.StoryNode{ID: uuid.New(), ParentID: &seq.ID, Level: timeline.Scene, Range: timeline.TimeRange{25_000, 75_000}}
	require.NoError(t, tl.AddNode(scene))

	require.NoError(t, tl.ResizeNode(act.ID, timeline.TimeRange{Start: 200_000, End: 400_000}))
	require.NoError(t, tl.Validate())

	rescaledScene := tl.Nodes[scene.ID]
	assert.Equal(t, int64(250_000), rescaledScene.Range.Start)
	assert.Equal(t, int64(350_000), rescaledScene.Range.End)
}

func TestFindGaps_DiscardsShortGapsAndReportsFinalGap(t *testing.T) {
	tl := newPremiseOnly(t, 1000)
	premise, _ := tl.Premise()
	a := &timeline.StoryNode{ID: uuid.New(), ParentID: &premise.ID, Level: timeline.Act, Range: timeline.TimeRange{0, 100}}
	require.NoError(t, tl.AddNode(a))
	b := &timeline.StoryNode{ID: uuid.New(), ParentID: &premise.ID, Level: timeline.Act, Range: timeline.TimeRange{110, 200}}
	require.NoError(t, tl.AddNode(b))

	gaps := tl.FindGaps(timeline.Act, 50)
	require.Len(t, gaps, 1)
	assert.Equal(t, timeline.TimeRange{Start: 200, End: 1000}, gaps[0].Range)
	assert.Nil(t, gaps[0].FollowingNodeID)
}

// Testable property 9: scene inference ranges union to the contributing
// clips' union, and each emitted scene has a constant active-arc set.
func TestInferScenes_UnionAndConstantArcs(t *testing.T) {
	arcA := uuid.New()
	arcB := uuid.New()
	clip1 := timeline.Clip{ID: uuid.New(), Range: timeline.TimeRange{0, 100}, Arcs: []uuid.UUID{arcA}}
	clip2 := timeline.Clip{ID: uuid.New(), Range: timeline.TimeRange{50, 150}, Arcs: []uuid.UUID{arcB}}

	scenes := timeline.InferScenes([]timeline.Clip{clip1, clip2})
	require.NotEmpty(t, scenes)

	assert.Equal(t, int64(0), scenes[0].Range.Start)
	assert.Equal(t, int64(150), scenes[len(scenes)-1].Range.End)

	for _, sc := range scenes {
		assert.NotEmpty(t, sc.ActiveArcs)
	}
}

// Scenario F: progression on a one-arc, zero-tagged-nodes project emits
// exactly one ArcProgression with node_count=0 and a warning.
func TestAnalyzeProgression_ScenarioF(t *testing.T) {
	tl := newPremiseOnly(t, 1000)
	arc := &timeline.StoryArc{ID: uuid.New(), Name: "Lonely Arc"}
	tl.Arcs[arc.ID] = arc

	progressions := tl.AnalyzeProgression()
	require.Len(t, progressions, 1)
	assert.Equal(t, 0, progressions[0].NodeCount)
	require.Len(t, progressions[0].Warnings, 1)
	assert.Equal(t, "No nodes tagged with this arc", progressions[0].Warnings[0].Message)
}
