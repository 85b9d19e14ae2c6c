package timeline

import (
	"github.com/google/uuid"
)

// TemplateKind selects one of the three fixed project templates.
type TemplateKind int

const (
	MultiCam TemplateKind = iota
	SingleCam
	Animated
)

// episodeTotalMs is the fixed 22-minute episode length every template
// builds against.
const episodeTotalMs int64 = 1_320_000

// StandardStructure is the fixed episode partition named in spec §6:
// cold open, main titles, three acts, and a tag. Main Titles is a bumper,
// not a story Act, so it gets no Act-level node in BuildTemplate.
func StandardStructure() EpisodeStructure {
	return EpisodeStructure{Segments: []Segment{
		{Label: "Cold Open", Range: TimeRange{0, 120_000}},
		{Label: "Main Titles", Range: TimeRange{120_000, 150_000}},
		{Label: "Act One", Range: TimeRange{150_000, 570_000}},
		{Label: "Act Two", Range: TimeRange{570_000, 990_000}},
		{Label: "Act Three", Range: TimeRange{990_000, 1_290_000}},
		{Label: "Tag", Range: TimeRange{1_290_000, 1_320_000}},
	}}
}

func storyActs() []struct {
	label string
	r     TimeRange
} {
	return []struct {
		label string
		r     TimeRange
	}{
		{"Cold Open", TimeRange{0, 120_000}},
		{"Act One", TimeRange{150_000, 570_000}},
		{"Act Two", TimeRange{570_000, 990_000}},
		{"Act Three", TimeRange{990_000, 1_290_000}},
		{"Tag", TimeRange{1_290_000, 1_320_000}},
	}
}

// sceneArcCycle returns, for a given template and act index, the ordered
// sequence of arc slots (by index into arcNames) the act's scenes cycle
// through — MultiCam cuts rapidly between A and B plot, SingleCam favors
// long single-plot scenes, Animated leans on the C-runner.
func sceneArcCycle(kind TemplateKind, actIndex int) []int {
	switch kind {
	case MultiCam:
		return []int{0, 1, 0, 1, 2}
	case SingleCam:
		return []int{0, 0, 1, 2}
	case Animated:
		return []int{2, 0, 2, 1, 2}
	default:
		return []int{0}
	}
}

// scenesPerAct distributes exactly 12 scenes across the five story acts
// for MultiCam (required by the 12-scene scenario); SingleCam and Animated
// use a different, still non-overlapping, distribution reflecting their
// longer or C-runner-heavy rhythm.
func scenesPerAct(kind TemplateKind) [5]int {
	switch kind {
	case MultiCam:
		return [5]int{1, 4, 4, 2, 1}
	case SingleCam:
		return [5]int{1, 2, 2, 2, 1}
	case Animated:
		return [5]int{1, 3, 3, 3, 1}
	default:
		return [5]int{1, 1, 1, 1, 1}
	}
}

// BuildTemplate constructs a fresh 22-minute project timeline for kind:
// one Premise spanning the episode, five Act children (Cold Open, Act One,
// Act Two, Act Three, Tag — Main Titles is a bumper with no story Act),
// each holding one Sequence child, itself holding the template's share of
// non-overlapping Scene nodes tagged to A-plot / B-plot / C-runner arcs
// (spec §6 template construction).
func BuildTemplate(kind TemplateKind) (*Timeline, error) {
	t := New(episodeTotalMs, StandardStructure())

	arcA := &StoryArc{ID: uuid.New(), Name: "A-Plot", Type: ArcAPlot}
	arcB := &StoryArc{ID: uuid.New(), Name: "B-Plot", Type: ArcBPlot}
	arcC := &StoryArc{ID: uuid.New(), Name: "C-Runner", Type: ArcCRunner}
	t.Arcs[arcA.ID] = arcA
	t.Arcs[arcB.ID] = arcB
	t.Arcs[arcC.ID] = arcC
	arcByIndex := [3]uuid.UUID{arcA.ID, arcB.ID, arcC.ID}

	premise := &StoryNode{
		ID:    uuid.New(),
		Level: Premise,
		Range: TimeRange{0, episodeTotalMs},
		Name:  "Premise",
	}
	if err := t.AddNode(premise); err != nil {
		return nil, err
	}

	acts := storyActs()
	counts := scenesPerAct(kind)

	for actIdx, act := range acts {
		actNode := &StoryNode{
			ID:        uuid.New(),
			ParentID:  &premise.ID,
			Level:     Act,
			SortOrder: actIdx,
			Range:     act.r,
			Name:      act.label,
		}
		if err := t.AddNode(actNode); err != nil {
			return nil, err
		}

		seqNode := &StoryNode{
			ID:       uuid.New(),
			ParentID: &actNode.ID,
			Level:    Sequence,
			Range:    act.r,
			Name:     act.label + " Sequence",
		}
		if err := t.AddNode(seqNode); err != nil {
			return nil, err
		}

		count := counts[actIdx]
		cycle := sceneArcCycle(kind, actIdx)
		duration := act.r.End - act.r.Start
		chunk := duration / int64(count)

		for i := 0; i < count; i++ {
			start := act.r.Start + int64(i)*chunk
			end := start + chunk
			if i == count-1 {
				end = act.r.End
			}
			sceneNode := &StoryNode{
				ID:        uuid.New(),
				ParentID:  &seqNode.ID,
				Level:     Scene,
				SortOrder: i,
				Range:     TimeRange{start, end},
				Name:      act.label + " Scene",
			}
			if err := t.AddNode(sceneNode); err != nil {
				return nil, err
			}
			arcIdx := cycle[i%len(cycle)]
			if err := t.TagNode(sceneNode.ID, arcByIndex[arcIdx]); err != nil {
				return nil, err
			}
		}
	}

	return t, nil
}
