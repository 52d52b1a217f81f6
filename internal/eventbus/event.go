// Package eventbus is the pub/sub fabric spec.md §4.10/§6.4 describes:
// fire-and-forget delivery of per-node and per-execution progress events
// to local observers (dashboards, WebSocket clients) and, across
// processes, to a Redis channel. Grounded on the teacher's
// internal/application/observer (Observer/EventFilter/ObserverManager),
// generalized from an in-process observer list addressed by event type
// to channel-addressed pub/sub addressed by workflow/execution/epic id.
package eventbus

import (
	"time"
)

// EventType is one of the snake_case event names spec.md §4.10/§6.4 lists.
type EventType string

const (
	EventWorkflowUpdated   EventType = "workflow_updated"
	EventNodeUpdated       EventType = "node_updated"
	EventNodeStatus        EventType = "node_status"
	EventExecutionStarted  EventType = "execution_started"
	EventExecutionState    EventType = "execution_state"
	EventExecutionComplete EventType = "execution_completed"
	EventExecutionFailed   EventType = "execution_failed"
	EventEpicCreated       EventType = "epic_created"
	EventEpicUpdated       EventType = "epic_updated"
	EventEpicDeleted       EventType = "epic_deleted"
	EventTaskCreated       EventType = "task_created"
	EventTaskUpdated       EventType = "task_updated"
	EventTaskDeleted       EventType = "task_deleted"
	EventTasksDeleted      EventType = "tasks_deleted"
)

// Event is the wire shape spec.md §4.10 specifies: {type, channel, data,
// timestamp}.
type Event struct {
	Type      EventType `json:"type"`
	Channel   string    `json:"channel"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowChannel returns the channel name for a workflow's slug.
func WorkflowChannel(slug string) string { return "workflow:" + slug }

// ExecutionChannel returns the channel name for an execution id.
func ExecutionChannel(executionID string) string { return "execution:" + executionID }

// EpicChannel returns the channel name for an epic id.
func EpicChannel(epicID string) string { return "epic:" + epicID }

// Filter decides whether a subscriber should receive an event. A nil
// Filter (returned by a Subscriber's Filter method) means "receive
// everything on this channel".
type Filter interface {
	ShouldNotify(event Event) bool
}

// EventTypeFilter passes events whose Type is in the allowed set.
type EventTypeFilter struct {
	allowed map[EventType]bool
}

// NewEventTypeFilter builds a filter for the given types. An empty list
// means "allow all" (returns nil).
func NewEventTypeFilter(types ...EventType) Filter {
	if len(types) == 0 {
		return nil
	}
	m := make(map[EventType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return &EventTypeFilter{allowed: m}
}

// ShouldNotify implements Filter.
func (f *EventTypeFilter) ShouldNotify(event Event) bool {
	if f == nil || len(f.allowed) == 0 {
		return true
	}
	return f.allowed[event.Type]
}

// ChannelFilter passes events on exactly one channel.
type ChannelFilter struct {
	channel string
}

// NewChannelFilter builds a filter scoped to one channel name.
func NewChannelFilter(channel string) Filter {
	return &ChannelFilter{channel: channel}
}

// ShouldNotify implements Filter.
func (f *ChannelFilter) ShouldNotify(event Event) bool {
	return event.Channel == f.channel
}

// CompoundFilter requires every sub-filter to pass (AND semantics).
type CompoundFilter struct {
	filters []Filter
}

// NewCompoundFilter combines filters with AND logic, dropping nils, and
// collapsing to nil itself when nothing remains.
func NewCompoundFilter(filters ...Filter) Filter {
	nonNil := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			nonNil = append(nonNil, f)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &CompoundFilter{filters: nonNil}
	}
}

// ShouldNotify implements Filter.
func (f *CompoundFilter) ShouldNotify(event Event) bool {
	for _, sub := range f.filters {
		if !sub.ShouldNotify(event) {
			return false
		}
	}
	return true
}
