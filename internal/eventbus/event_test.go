package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelHelpers(t *testing.T) {
	assert.Equal(t, "workflow:billing", WorkflowChannel("billing"))
	assert.Equal(t, "execution:exec-1", ExecutionChannel("exec-1"))
	assert.Equal(t, "epic:epic-1", EpicChannel("epic-1"))
}

func TestEventTypeFilter(t *testing.T) {
	f := NewEventTypeFilter(EventNodeStatus, EventExecutionFailed)
	assert.True(t, f.ShouldNotify(Event{Type: EventNodeStatus}))
	assert.False(t, f.ShouldNotify(Event{Type: EventExecutionStarted}))

	assert.Nil(t, NewEventTypeFilter())
}

func TestChannelFilter(t *testing.T) {
	f := NewChannelFilter("execution:e1")
	assert.True(t, f.ShouldNotify(Event{Channel: "execution:e1"}))
	assert.False(t, f.ShouldNotify(Event{Channel: "execution:e2"}))
}

func TestCompoundFilter_ANDSemantics(t *testing.T) {
	f := NewCompoundFilter(
		NewChannelFilter("execution:e1"),
		NewEventTypeFilter(EventNodeStatus),
	)
	assert.True(t, f.ShouldNotify(Event{Channel: "execution:e1", Type: EventNodeStatus}))
	assert.False(t, f.ShouldNotify(Event{Channel: "execution:e1", Type: EventExecutionFailed}))
	assert.False(t, f.ShouldNotify(Event{Channel: "execution:e2", Type: EventNodeStatus}))
}

func TestCompoundFilter_DropsNilsAndCollapses(t *testing.T) {
	assert.Nil(t, NewCompoundFilter(nil, nil))

	single := NewCompoundFilter(nil, NewChannelFilter("c"))
	_, ok := single.(*ChannelFilter)
	assert.True(t, ok)
}
