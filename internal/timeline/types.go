// Package timeline implements the hierarchical episode data model: nodes
// arranged Premise -> Act -> Sequence -> Scene -> Beat, story arcs tagged
// onto nodes, relationships between nodes, and the structural invariants
// and cascading mutations that keep the tree consistent. It is a pure
// value type with no I/O, owned exclusively by a higher-level mutex
// (internal/bus), in the spirit of the teacher's plain model structs under
// pkg/models.
package timeline

import (
	"sort"

	"github.com/google/uuid"
)

// Level discriminates the five fixed positions in the node hierarchy.
// Rather than one Go type per level, a single StoryNode record carries a
// Level discriminator; label text, child level, and other per-level
// behavior are pure functions of Level.
type Level int

const (
	Premise Level = iota
	Act
	Sequence
	Scene
	Beat
)

func (l Level) String() string {
	switch l {
	case Premise:
		return "Premise"
	case Act:
		return "Act"
	case Sequence:
		return "Sequence"
	case Scene:
		return "Scene"
	case Beat:
		return "Beat"
	default:
		return "Unknown"
	}
}

// ChildLevel returns the level immediately below l, or false if l is a
// leaf (Beat has no children).
func (l Level) ChildLevel() (Level, bool) {
	switch l {
	case Premise:
		return Act, true
	case Act:
		return Sequence, true
	case Sequence:
		return Scene, true
	case Scene:
		return Beat, true
	default:
		return 0, false
	}
}

// NodeStatus tracks whether a node's content field has been written, after
// migrating the legacy schema's generated/user-refined split (see
// the store package's migrateLegacyNode) onto a single flag.
type NodeStatus int

const (
	StatusEmpty NodeStatus = iota
	StatusHasContent
)

// BeatKind is the fixed enumeration of well-known beat types. A Beat node
// may instead carry a user-named variant via BeatType.Custom.
type BeatKind int

const (
	BeatSetup BeatKind = iota
	BeatComplication
	BeatEscalation
	BeatClimax
	BeatResolution
	BeatPayoff
	BeatCallback
	BeatCustom
)

func (k BeatKind) String() string {
	switch k {
	case BeatSetup:
		return "Setup"
	case BeatComplication:
		return "Complication"
	case BeatEscalation:
		return "Escalation"
	case BeatClimax:
		return "Climax"
	case BeatResolution:
		return "Resolution"
	case BeatPayoff:
		return "Payoff"
	case BeatCallback:
		return "Callback"
	case BeatCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// BeatType is only meaningful on nodes at Beat level.
type BeatType struct {
	Kind   BeatKind
	Custom string // set only when Kind == BeatCustom
}

// TimeRange is a half-open millisecond interval [Start, End).
type TimeRange struct {
	Start int64
	End   int64
}

func (r TimeRange) Duration() int64 { return r.End - r.Start }

// Overlaps reports whether r and o share any instant.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Midpoint returns the range's midpoint in milliseconds, rounded down.
func (r TimeRange) Midpoint() int64 { return r.Start + r.Duration()/2 }

// StoryNode is the single heterogeneous record for every level of the
// hierarchy; BeatType is only populated when Level == Beat.
type StoryNode struct {
	ID         uuid.UUID
	ParentID   *uuid.UUID
	Level      Level
	SortOrder  int
	Range      TimeRange
	Name       string
	Notes      string
	Content    string
	Status     NodeStatus
	SceneRecap string
	BeatType   *BeatType
	Locked     bool
}

// ArcType tags a story arc's narrative weight.
type ArcType int

const (
	ArcAPlot ArcType = iota
	ArcBPlot
	ArcCRunner
	ArcCustom
)

// RGB is a plain colour value; no alpha channel, matching the spec's
// "RGB colour" field.
type RGB struct {
	R, G, B uint8
}

// StoryArc is a named storyline that can be tagged onto nodes.
type StoryArc struct {
	ID          uuid.UUID
	Name        string
	Description string
	Type        ArcType
	Color       RGB
}

// NodeArc is a many-to-many tag edge between a node and an arc.
type NodeArc struct {
	NodeID uuid.UUID
	ArcID  uuid.UUID
}

// RelationshipKind discriminates the four directed-edge kinds. Go has no
// tagged union, so the optional payloads (ArcIDs, CharacterID) simply sit
// unused on the kinds that don't need them.
type RelationshipKind int

const (
	RelCausal RelationshipKind = iota
	RelConvergence
	RelCharacterDrives
	RelThematic
)

// Relationship is a directed edge between two nodes.
type Relationship struct {
	ID     uuid.UUID
	FromID uuid.UUID
	ToID   uuid.UUID
	Kind   RelationshipKind

	// ArcIDs is populated only when Kind == RelConvergence.
	ArcIDs []uuid.UUID
	// CharacterID is populated only when Kind == RelCharacterDrives.
	CharacterID uuid.UUID
}

// Segment is one labelled slice of the fixed episode structure.
type Segment struct {
	Label string
	Range TimeRange
}

// EpisodeStructure is the fixed ordered partition of the episode's total
// duration (cold open, acts, breaks, tag).
type EpisodeStructure struct {
	Segments []Segment
}

// Timeline is the full value-typed episode state: nodes, arcs, tags,
// relationships, and the fixed structure, plus the total duration that
// bounds every node's range.
type Timeline struct {
	TotalDurationMs int64
	Structure       EpisodeStructure

	Nodes         map[uuid.UUID]*StoryNode
	Arcs          map[uuid.UUID]*StoryArc
	NodeArcs      []NodeArc
	Relationships map[uuid.UUID]*Relationship
}

// New creates an empty timeline of the given total duration.
func New(totalDurationMs int64, structure EpisodeStructure) *Timeline {
	return &Timeline{
		TotalDurationMs: totalDurationMs,
		Structure:       structure,
		Nodes:           make(map[uuid.UUID]*StoryNode),
		Arcs:            make(map[uuid.UUID]*StoryArc),
		Relationships:   make(map[uuid.UUID]*Relationship),
	}
}

// ArcsForNode returns the arc ids tagged onto node, in the order they were
// tagged (stable, since NodeArcs is append-only until untagged).
func (t *Timeline) ArcsForNode(nodeID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, na := range t.NodeArcs {
		if na.NodeID == nodeID {
			ids = append(ids, na.ArcID)
		}
	}
	return ids
}

// sortSiblings orders nodes by (SortOrder, Range.Start), the deterministic
// tuple spec §4.2 requires for children_of / siblings_of.
func sortSiblings(nodes []*StoryNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return nodes[i].Range.Start < nodes[j].Range.Start
	})
}

// sortByLevelThenStart orders nodes by (Level, Range.Start), used for
// descendants_of.
func sortByLevelThenStart(nodes []*StoryNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Level != nodes[j].Level {
			return nodes[i].Level < nodes[j].Level
		}
		return nodes[i].Range.Start < nodes[j].Range.Start
	})
}
