package promptctx

import "github.com/google/uuid"

// BibleEntity is the minimal reference-document surface this package
// consumes. The full bible/reference-document subsystem (extraction,
// storage, embedding search) is an excluded collaborator per spec §1; this
// type is just enough surface for the packer's priority ladder (spec §4.4
// "bible entities directly referenced by the target" / "other bible
// entities") to have something concrete to rank.
type BibleEntity struct {
	ID   uuid.UUID
	Name string
	Text string
}

// referencedItem renders a directly-referenced bible entity at full text.
func referencedItem(e BibleEntity) Item {
	return Item{Kind: "bible:referenced", Priority: PriorityReferencedBible, Text: e.Name + ": " + e.Text, NodeID: e.ID}
}

// compactItem renders a non-referenced bible entity, compacted to its name
// only, per spec §4.4's "other bible entities (compact text)" rung.
func compactItem(e BibleEntity) Item {
	return Item{Kind: "bible:other", Priority: PriorityOtherBible, Text: e.Name, NodeID: e.ID}
}
