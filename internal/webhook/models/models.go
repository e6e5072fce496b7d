package models

import (
	"fmt"

	"ticketrouter/internal/routing"
)

// Event types the orchestrator acts on. Anything else is acknowledged and
// ignored; unrecognized event types are not errors.
const (
	EventTaskCreated = "taskCreated"
	EventTaskUpdated = "taskUpdated"
)

// InboundEvent is the parsed webhook payload. It lives for the duration of
// one request. Signature verification never touches this struct; it runs
// over the raw bytes the provider actually sent.
type InboundEvent struct {
	Event        string        `json:"event"`
	TaskID       string        `json:"task_id"`
	EventID      string        `json:"event_id,omitempty"`
	EventTime    int64         `json:"event_time,omitempty"`
	HistoryItems []HistoryItem `json:"history_items,omitempty"`
}

// HistoryItem is the tracker's change-history entry attached to update
// events. Only the date is used, as a replay-key fallback.
type HistoryItem struct {
	ID   string `json:"id,omitempty"`
	Date int64  `json:"date,omitempty"`
}

// Routable reports whether the orchestrator processes this event type.
func (e *InboundEvent) Routable() bool {
	return e.Event == EventTaskCreated || e.Event == EventTaskUpdated
}

// ReplayKey derives the deduplication key: the provider's event id when
// present, else task id plus event time. Two events with distinct event ids
// are never conflated even for the same task.
func (e *InboundEvent) ReplayKey() string {
	if e.EventID != "" {
		return "event:" + e.EventID
	}
	ts := e.EventTime
	if ts == 0 && len(e.HistoryItems) > 0 {
		ts = e.HistoryItems[0].Date
	}
	return fmt.Sprintf("task:%s:%d", e.TaskID, ts)
}

// ApplyResult reports the write-back outcome per operation. Partial success
// is still useful to the caller, so failures accumulate instead of aborting.
type ApplyResult struct {
	Updates []string `json:"updates"`
	Errors  []string `json:"errors"`
}

// RoutingSummary is the subset of the decision echoed in the response.
type RoutingSummary struct {
	CXOwner  int64          `json:"cx_owner,omitempty"`
	OpsOwner int64          `json:"ops_owner,omitempty"`
	Source   routing.Source `json:"routing_source"`
	Market   string         `json:"market,omitempty"`
}

// WebhookResponse is the 200 body for processed events.
type WebhookResponse struct {
	Message   string          `json:"message"`
	TaskID    string          `json:"task_id,omitempty"`
	Event     string          `json:"event,omitempty"`
	Assignees []int64         `json:"assignees,omitempty"`
	Routing   *RoutingSummary `json:"routing,omitempty"`
	Result    *ApplyResult    `json:"result,omitempty"`
}
