package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	dErrors "ticketrouter/pkg/domain-errors"
	"ticketrouter/pkg/platform/privacy"
)

// Config carries everything the client needs to reach the tracker API.
type Config struct {
	BaseURL  string
	APIToken string
	TeamID   string

	CustomersListID       string
	UnitsListID           string
	MarketOwnershipListID string
}

// Client is the reference-data client for the external task tracker. All
// calls are request-scoped: the caller's context is the timeout boundary.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client; tests point it at an
// httptest server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient builds a tracker client.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTask fetches a full task record with custom fields and assignees.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/task/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// FindCustomer looks up a customer record by customer key. Returns
// (nil, nil) when no record matches.
func (c *Client) FindCustomer(ctx context.Context, customerKey string) (*Task, error) {
	return c.findByField(ctx, c.cfg.CustomersListID, FieldCustomerKey, customerKey)
}

// FindUnit looks up a unit record by unit key. Returns (nil, nil) when no
// record matches.
func (c *Client) FindUnit(ctx context.Context, unitKey string) (*Task, error) {
	return c.findByField(ctx, c.cfg.UnitsListID, FieldUnitKey, unitKey)
}

// FindMarketOwnership looks up the ownership record for a market code. The
// ownership collection is small, so it is fetched whole and scanned by the
// Market field. Returns (nil, nil) when no record matches.
func (c *Client) FindMarketOwnership(ctx context.Context, market string) (*Task, error) {
	path := fmt.Sprintf("/list/%s/task", url.PathEscape(c.cfg.MarketOwnershipListID))

	var list taskListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	for i := range list.Tasks {
		if v, ok := list.Tasks[i].StringValue(FieldMarket); ok && v == market {
			return &list.Tasks[i], nil
		}
	}
	return nil, nil
}

// AddAssignees adds user ids to a task's assignees in a single patch.
// Existing assignees are never removed.
func (c *Client) AddAssignees(ctx context.Context, taskID string, userIDs []int64) error {
	body := map[string]any{
		"assignees": map[string]any{
			"add": userIDs,
			"rem": []int64{},
		},
	}
	return c.do(ctx, http.MethodPut, "/task/"+url.PathEscape(taskID), body, nil)
}

// AddTag attaches a single named tag to a task.
func (c *Client) AddTag(ctx context.Context, taskID, tag string) error {
	path := fmt.Sprintf("/task/%s/tag/%s", url.PathEscape(taskID), url.PathEscape(tag))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// findByField queries a list filtered on a custom field value and returns
// the first match.
func (c *Client) findByField(ctx context.Context, listID string, field Field, value string) (*Task, error) {
	filter, err := json.Marshal([]map[string]any{{
		"field_id": knownFieldIDs[field],
		"operator": "=",
		"value":    value,
	}})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode field filter")
	}

	query := url.Values{}
	query.Set("custom_fields", string(filter))
	path := fmt.Sprintf("/list/%s/task?%s", url.PathEscape(listID), query.Encode())

	var list taskListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Tasks) == 0 {
		return nil, nil
	}
	return &list.Tasks[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode tracker request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build tracker request")
	}
	req.Header.Set("Authorization", c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "tracker request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "read tracker response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "tracker request rejected",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", privacy.SanitizeMessage(string(payload)),
		)
		return dErrors.New(dErrors.CodeUpstream,
			fmt.Sprintf("tracker returned status %d", resp.StatusCode))
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUpstream, "decode tracker response")
		}
	}
	return nil
}
