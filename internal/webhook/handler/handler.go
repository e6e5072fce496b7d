package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketrouter/internal/routing"
	"ticketrouter/internal/tracker"
	"ticketrouter/internal/webhook/metrics"
	"ticketrouter/internal/webhook/middleware"
	"ticketrouter/internal/webhook/models"
	dErrors "ticketrouter/pkg/domain-errors"
	"ticketrouter/pkg/platform/httputil"
)

// TrackerClient is the tracker surface the orchestrator needs: one read,
// two write-backs.
type TrackerClient interface {
	GetTask(ctx context.Context, taskID string) (*tracker.Task, error)
	AddAssignees(ctx context.Context, taskID string, userIDs []int64) error
	AddTag(ctx context.Context, taskID, tag string) error
}

// Router computes a routing decision for a ticket.
type Router interface {
	Route(ctx context.Context, task *tracker.Task) routing.Decision
}

// ReplayGuard is the deduplication cache consulted after signature
// verification.
type ReplayGuard interface {
	Seen(key string) bool
	MarkSeen(key string)
}

// Handler sequences webhook processing: validate, deduplicate, check
// idempotency, fetch, route, apply, respond.
type Handler struct {
	logger  *slog.Logger
	tracker TrackerClient
	engine  Router
	replays ReplayGuard
	metrics *metrics.Metrics
}

// New constructs the webhook handler with its dependencies.
func New(trackerClient TrackerClient, engine Router, replays ReplayGuard, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		tracker: trackerClient,
		engine:  engine,
		replays: replays,
		metrics: m,
	}
}

// Register mounts the webhook endpoint on the router. The provider segment
// identifies the event source; only the tracker posts here today.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhook/{provider}", h.HandleEvent)
}

// HandleEvent handles POST /webhook/{provider}.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var event models.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed event payload"))
		return
	}
	if event.Event == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event type is missing"))
		return
	}
	if event.TaskID == "" && len(event.HistoryItems) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "task id or history items missing"))
		return
	}

	// Unrecognized event types are acknowledged, not errored: the provider
	// should not retry them.
	if !event.Routable() {
		h.logger.InfoContext(ctx, "event ignored",
			"request_id", requestID,
			"event", event.Event,
		)
		httputil.WriteJSON(w, http.StatusOK, models.WebhookResponse{
			Message: "event ignored",
			Event:   event.Event,
		})
		return
	}

	if event.TaskID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing task_id"))
		return
	}

	replayKey := event.ReplayKey()
	if h.replays.Seen(replayKey) {
		h.logger.WarnContext(ctx, "replayed event rejected",
			"security_event", "replay_detected",
			"request_id", requestID,
			"replay_key", replayKey,
		)
		h.metrics.ReplayDetected()
		httputil.WriteError(w, dErrors.New(dErrors.CodeReplayDetected, "event already processed"))
		return
	}

	task, err := h.tracker.GetTask(ctx, event.TaskID)
	if err != nil {
		h.logger.ErrorContext(ctx, "fetch task failed",
			"request_id", requestID,
			"task_id", event.TaskID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	// The key is burned only once the fetch succeeds; a transient tracker
	// failure leaves the provider's retry free to route the ticket.
	h.replays.MarkSeen(replayKey)

	// Idempotency: an already-assigned ticket is never re-routed. A human's
	// manual reassignment must survive provider retries and edits.
	if event.Event == models.EventTaskUpdated && len(task.Assignees) > 0 {
		existing := make([]int64, 0, len(task.Assignees))
		for _, a := range task.Assignees {
			existing = append(existing, a.ID)
		}
		h.logger.InfoContext(ctx, "task already routed, skipping",
			"request_id", requestID,
			"task_id", task.ID,
			"assignees", existing,
		)
		httputil.WriteJSON(w, http.StatusOK, models.WebhookResponse{
			Message:   "task already routed",
			TaskID:    task.ID,
			Assignees: existing,
		})
		return
	}

	decision := h.engine.Route(ctx, task)
	h.metrics.RoutingDecision(decision.Source.CX)

	result := h.apply(ctx, &decision)

	httputil.WriteJSON(w, http.StatusOK, models.WebhookResponse{
		Message: "routing applied",
		TaskID:  task.ID,
		Routing: &models.RoutingSummary{
			CXOwner:  decision.CXOwner,
			OpsOwner: decision.OpsOwner,
			Source:   decision.Source,
			Market:   decision.Market,
		},
		Result: result,
	})
}

// apply writes the decision back: one assignee patch for all resolved
// owners, one tag call per tag. Failures are captured per operation so
// partial success still reaches the caller.
func (h *Handler) apply(ctx context.Context, d *routing.Decision) *models.ApplyResult {
	result := &models.ApplyResult{Updates: []string{}, Errors: []string{}}
	for _, se := range d.Errors {
		result.Errors = append(result.Errors, se.Stage+": "+se.Message)
	}

	if owners := d.Owners(); len(owners) > 0 {
		if err := h.tracker.AddAssignees(ctx, d.TaskID, owners); err != nil {
			h.metrics.ApplyError()
			h.logger.ErrorContext(ctx, "assign owners failed",
				"task_id", d.TaskID,
				"owners", owners,
				"error", err,
			)
			result.Errors = append(result.Errors, "assign owners: "+dErrors.MessageOf(err))
		} else {
			result.Updates = append(result.Updates, fmt.Sprintf("assigned %v", owners))
		}
	}

	for _, tag := range d.Tags {
		if err := h.tracker.AddTag(ctx, d.TaskID, tag); err != nil {
			h.metrics.ApplyError()
			h.logger.ErrorContext(ctx, "add tag failed",
				"task_id", d.TaskID,
				"tag", tag,
				"error", err,
			)
			result.Errors = append(result.Errors, fmt.Sprintf("add tag %q: %s", tag, dErrors.MessageOf(err)))
		} else {
			result.Updates = append(result.Updates, "tagged "+tag)
		}
	}

	return result
}
