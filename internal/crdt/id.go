// Package crdt implements the collaborative document: a replicated
// growable array (RGA) per text field, wrapped by a single-owner manager
// that serializes every read and write through a bounded command queue and
// attributes every character to its author. Sequence design is grounded on
// the RGA (linked list + registry, Lamport-style ID ordering, tombstones,
// causal orphan buffering) from the example gocrdt package, generalized
// here to carry a per-character author attribute and to host many
// independent sequences (one per node/field) inside one Doc.
package crdt

// ID totally orders elements across replicas: a replica-local counter
// (the "Lamport timestamp") broken by the replica id string. Replica is
// the origin identifier that produced the op — for human edits this is
// the WebSocket client's author string ("human:{client_id}"); for
// server-originated writes (WriteNodeContent, FlushTokens, RewriteRegion)
// it is the same author string passed to those commands. Reusing the
// author string as the CRDT replica id means every writer's ops already
// carry a collision-free per-writer sequence without a separate site
// registry.
type ID struct {
	Counter uint64
	Replica string
}

// Zero is the nil ID, used as the ParentID of the first character in a
// sequence (i.e. "inserted after the sentinel root").
var Zero = ID{}

// Greater gives the deterministic total order RGA integration relies on:
// higher counter wins; ties are broken by replica id so any two replicas
// that received the same set of ops converge on the same linearization.
func (a ID) Greater(b ID) bool {
	if a.Counter != b.Counter {
		return a.Counter > b.Counter
	}
	return a.Replica > b.Replica
}
