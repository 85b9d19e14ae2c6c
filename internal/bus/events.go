// Package bus wires the timeline value, the CRDT manager, and the
// diffusion coordinator together behind one set of commands, and fans
// out the structural events those commands produce. It is the
// "command/event bus" of spec §2/§4.3/§5: the one place outside the
// CRDT manager and the diffusion coordinator that is allowed to hold a
// handle to their inner state.
package bus

// EventType discriminates the JSON-tagged structural events sent to
// WebSocket clients as text frames (spec §6). Clients treat every event
// as advisory and re-fetch the affected resource via REST.
type EventType string

const (
	EventTimelineChanged  EventType = "timeline_changed"
	EventScenesChanged    EventType = "scenes_changed"
	EventStoryChanged     EventType = "story_changed"
	EventNodeUpdated      EventType = "node_updated"
	EventDiffusionProgress EventType = "diffusion_progress"
	EventDiffusionComplete EventType = "diffusion_complete"
	EventDiffusionError    EventType = "diffusion_error"
)

// Event is one structural event, JSON-tagged with its Type and a payload
// shaped per-type. Only the fields relevant to Type are populated.
type Event struct {
	Type EventType `json:"type"`

	NodeID string `json:"node_id,omitempty"`

	// DiffusionProgress payload.
	Step       int `json:"step,omitempty"`
	TotalSteps int `json:"total_steps,omitempty"`

	// DiffusionError payload.
	Reason string `json:"reason,omitempty"`
}

func timelineChanged() Event  { return Event{Type: EventTimelineChanged} }
func scenesChanged() Event    { return Event{Type: EventScenesChanged} }
func storyChanged() Event     { return Event{Type: EventStoryChanged} }
func nodeUpdated(nodeID string) Event {
	return Event{Type: EventNodeUpdated, NodeID: nodeID}
}
func diffusionProgress(nodeID string, step, total int) Event {
	return Event{Type: EventDiffusionProgress, NodeID: nodeID, Step: step, TotalSteps: total}
}
func diffusionComplete(nodeID string) Event {
	return Event{Type: EventDiffusionComplete, NodeID: nodeID}
}
func diffusionError(nodeID, reason string) Event {
	return Event{Type: EventDiffusionError, NodeID: nodeID, Reason: reason}
}
