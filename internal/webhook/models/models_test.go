package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutable(t *testing.T) {
	assert.True(t, (&InboundEvent{Event: EventTaskCreated}).Routable())
	assert.True(t, (&InboundEvent{Event: EventTaskUpdated}).Routable())
	assert.False(t, (&InboundEvent{Event: "taskDeleted"}).Routable())
	assert.False(t, (&InboundEvent{}).Routable())
}

func TestReplayKey(t *testing.T) {
	t.Run("event id wins", func(t *testing.T) {
		e := InboundEvent{EventID: "evt-1", TaskID: "t1", EventTime: 1717243200000}
		assert.Equal(t, "event:evt-1", e.ReplayKey())
	})

	t.Run("task id plus event time", func(t *testing.T) {
		e := InboundEvent{TaskID: "t1", EventTime: 1717243200000}
		assert.Equal(t, "task:t1:1717243200000", e.ReplayKey())
	})

	t.Run("history date as time fallback", func(t *testing.T) {
		e := InboundEvent{TaskID: "t1", HistoryItems: []HistoryItem{{ID: "h1", Date: 1717243260000}}}
		assert.Equal(t, "task:t1:1717243260000", e.ReplayKey())
	})

	t.Run("distinct event ids never collide", func(t *testing.T) {
		a := InboundEvent{EventID: "evt-1", TaskID: "t1", EventTime: 5}
		b := InboundEvent{EventID: "evt-2", TaskID: "t1", EventTime: 5}
		assert.NotEqual(t, a.ReplayKey(), b.ReplayKey())
	})
}
