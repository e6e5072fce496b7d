package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"ticketrouter/internal/alerting"
	"ticketrouter/internal/routing"
	"ticketrouter/internal/tracker"
	"ticketrouter/internal/webhook/metrics"
	"ticketrouter/internal/webhook/middleware"
	"ticketrouter/internal/webhook/models"
	"ticketrouter/internal/webhook/store/replay"
	dErrors "ticketrouter/pkg/domain-errors"
	"ticketrouter/pkg/platform/middleware/metadata"
	"ticketrouter/pkg/testutil"
)

const webhookSecret = "handler-test-secret"

// Metrics register against the process-global prometheus registry, so the
// test binary constructs them once.
var testMetrics = metrics.New()

type assigneeCall struct {
	taskID  string
	userIDs []int64
}

type tagCall struct {
	taskID string
	tag    string
}

// fakeTracker serves tasks and reference data from memory and records every
// write-back.
type fakeTracker struct {
	tasks      map[string]*tracker.Task
	customers  map[string]*tracker.Task
	units      map[string]*tracker.Task
	ownerships map[string]*tracker.Task

	getErr    error
	assignErr error
	tagErr    error

	assignees []assigneeCall
	tags      []tagCall
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		tasks:      map[string]*tracker.Task{},
		customers:  map[string]*tracker.Task{},
		units:      map[string]*tracker.Task{},
		ownerships: map[string]*tracker.Task{},
	}
}

func (f *fakeTracker) GetTask(_ context.Context, taskID string) (*tracker.Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUpstream, "tracker returned status 404")
	}
	return task, nil
}

func (f *fakeTracker) FindCustomer(_ context.Context, key string) (*tracker.Task, error) {
	return f.customers[key], nil
}

func (f *fakeTracker) FindUnit(_ context.Context, key string) (*tracker.Task, error) {
	return f.units[key], nil
}

func (f *fakeTracker) FindMarketOwnership(_ context.Context, market string) (*tracker.Task, error) {
	return f.ownerships[market], nil
}

func (f *fakeTracker) AddAssignees(_ context.Context, taskID string, userIDs []int64) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assignees = append(f.assignees, assigneeCall{taskID: taskID, userIDs: userIDs})
	return nil
}

func (f *fakeTracker) AddTag(_ context.Context, taskID, tag string) error {
	if f.tagErr != nil {
		return f.tagErr
	}
	f.tags = append(f.tags, tagCall{taskID: taskID, tag: tag})
	return nil
}

type HandlerSuite struct {
	suite.Suite
	trackerFake *fakeTracker
	replays     *replay.InMemoryStore
	router      chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.trackerFake = newFakeTracker()
	s.replays = replay.NewInMemoryStore(replay.DefaultTTL)
	engine := routing.NewEngine(s.trackerFake, log, 900)
	alerts := alerting.New("", log)

	h := New(s.trackerFake, engine, s.replays, log, testMetrics)

	s.router = chi.NewRouter()
	s.router.Use(metadata.ClientMetadata)
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.VerifyHMAC(webhookSecret, log, alerts, testMetrics))
		h.Register(r)
	})
}

func (s *HandlerSuite) signed(body string) *httptest.ResponseRecorder {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/webhook/tracker", body)
	req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) seedRoutableTask() {
	s.trackerFake.tasks["t1"] = &tracker.Task{
		ID: "t1",
		CustomFields: []tracker.CustomField{
			{Name: string(tracker.FieldCustomerKey), Value: "ACME"},
			{Name: string(tracker.FieldUnitKey), Value: "U-7"},
		},
	}
	s.trackerFake.customers["ACME"] = &tracker.Task{
		ID:        "cust-1",
		Assignees: []tracker.UserRef{{ID: 501}},
	}
	s.trackerFake.units["U-7"] = &tracker.Task{
		ID:           "unit-7",
		CustomFields: []tracker.CustomField{{Name: string(tracker.FieldMarket), Value: "BER"}},
	}
	s.trackerFake.ownerships["BER"] = &tracker.Task{
		ID: "own-ber",
		CustomFields: []tracker.CustomField{{
			Name:  string(tracker.FieldPrimaryOpsOwner),
			Value: []any{map[string]any{"id": float64(701)}},
		}},
	}
}

func event(eventType, taskID, eventID string) string {
	return fmt.Sprintf(`{"event":%q,"task_id":%q,"event_id":%q}`, eventType, taskID, eventID)
}

func (s *HandlerSuite) TestTaskCreatedRoutesAndApplies() {
	s.seedRoutableTask()

	rec := s.signed(event(models.EventTaskCreated, "t1", "evt-1"))

	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[models.WebhookResponse](s.T(), rec)
	s.Equal("routing applied", resp.Message)
	s.Require().NotNil(resp.Routing)
	s.Equal(int64(501), resp.Routing.CXOwner)
	s.Equal(int64(701), resp.Routing.OpsOwner)
	s.Equal(routing.SourceAutoRouting, resp.Routing.Source.CX)
	s.Equal(routing.SourceMarketPrimary, resp.Routing.Source.Ops)

	s.Require().Len(s.trackerFake.assignees, 1)
	s.Equal("t1", s.trackerFake.assignees[0].taskID)
	s.Equal([]int64{501, 701}, s.trackerFake.assignees[0].userIDs)
	s.Empty(s.trackerFake.tags)
}

func (s *HandlerSuite) TestReplayedEventRejected() {
	s.seedRoutableTask()
	payload := event(models.EventTaskCreated, "t1", "evt-1")

	first := s.signed(payload)
	s.Equal(http.StatusOK, first.Code)

	second := s.signed(payload)
	s.Equal(http.StatusConflict, second.Code)
	testutil.AssertErrorCode(s.T(), second, "replay_detected")

	s.Len(s.trackerFake.assignees, 1, "replay must not touch the tracker again")
}

func (s *HandlerSuite) TestDistinctEventIDsNotConflated() {
	s.seedRoutableTask()

	s.Equal(http.StatusOK, s.signed(event(models.EventTaskCreated, "t1", "evt-1")).Code)
	s.Equal(http.StatusOK, s.signed(event(models.EventTaskCreated, "t1", "evt-2")).Code)
}

func (s *HandlerSuite) TestAlreadyAssignedTaskNotRerouted() {
	s.trackerFake.tasks["t1"] = &tracker.Task{
		ID:        "t1",
		Assignees: []tracker.UserRef{{ID: 333}},
	}

	rec := s.signed(event(models.EventTaskUpdated, "t1", "evt-1"))

	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[models.WebhookResponse](s.T(), rec)
	s.Equal("task already routed", resp.Message)
	s.Equal([]int64{333}, resp.Assignees)
	s.Empty(s.trackerFake.assignees)
	s.Empty(s.trackerFake.tags)
}

func (s *HandlerSuite) TestUnrecognizedEventAcknowledged() {
	rec := s.signed(`{"event":"taskDeleted","task_id":"t1"}`)

	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[models.WebhookResponse](s.T(), rec)
	s.Equal("event ignored", resp.Message)
	s.Empty(s.trackerFake.assignees)
}

func (s *HandlerSuite) TestMalformedPayloadRejected() {
	rec := s.signed(`{"event":`)

	s.Equal(http.StatusBadRequest, rec.Code)
	testutil.AssertErrorCode(s.T(), rec, "bad_request")
}

func (s *HandlerSuite) TestMissingEventTypeRejected() {
	rec := s.signed(`{"task_id":"t1"}`)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestMissingTaskReferenceRejected() {
	rec := s.signed(`{"event":"taskCreated"}`)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestUnsignedRequestRejected() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/webhook/tracker",
		event(models.EventTaskCreated, "t1", "evt-1"))
	rec := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Empty(s.trackerFake.assignees)
}

func (s *HandlerSuite) TestTrackerFetchFailure() {
	s.trackerFake.getErr = dErrors.New(dErrors.CodeUpstream, "tracker returned status 503")

	rec := s.signed(event(models.EventTaskCreated, "t1", "evt-1"))

	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *HandlerSuite) TestFetchFailureLeavesRetryRoutable() {
	// A transient tracker failure must not burn the replay key: the
	// provider's retry of the same event still gets routed.
	s.seedRoutableTask()
	s.trackerFake.getErr = dErrors.New(dErrors.CodeUpstream, "tracker returned status 503")
	payload := event(models.EventTaskCreated, "t1", "evt-1")

	s.Equal(http.StatusInternalServerError, s.signed(payload).Code)

	s.trackerFake.getErr = nil
	retry := s.signed(payload)
	s.Equal(http.StatusOK, retry.Code)
	s.Require().Len(s.trackerFake.assignees, 1, "retry must reach the tracker")

	s.Equal(http.StatusConflict, s.signed(payload).Code, "processed event is still deduplicated")
}

func (s *HandlerSuite) TestUnresolvedTicketTaggedNotDropped() {
	// A task with no customer key and no market still gets a response, the
	// fallback owner, and both escalation tags.
	s.trackerFake.tasks["t1"] = &tracker.Task{ID: "t1"}

	rec := s.signed(event(models.EventTaskCreated, "t1", "evt-1"))

	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[models.WebhookResponse](s.T(), rec)
	s.Equal(routing.SourceUnresolvedCustomer, resp.Routing.Source.CX)
	s.Equal(int64(900), resp.Routing.CXOwner)

	tags := make([]string, 0, len(s.trackerFake.tags))
	for _, c := range s.trackerFake.tags {
		tags = append(tags, c.tag)
	}
	s.Contains(tags, routing.TagNeedsCXRouting)
	s.Contains(tags, routing.TagNeedsOpsRouting)
}

func (s *HandlerSuite) TestPartialApplyFailureStillResponds() {
	s.seedRoutableTask()
	s.trackerFake.tasks["t1"].CustomFields = s.trackerFake.tasks["t1"].CustomFields[:1] // drop unit key, forces ops tag
	s.trackerFake.tagErr = dErrors.New(dErrors.CodeUpstream, "tracker returned status 500")

	rec := s.signed(event(models.EventTaskCreated, "t1", "evt-1"))

	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[models.WebhookResponse](s.T(), rec)
	s.Require().NotNil(resp.Result)
	s.NotEmpty(resp.Result.Updates, "assignment succeeded")
	s.NotEmpty(resp.Result.Errors, "tag failure is reported, not fatal")
}
