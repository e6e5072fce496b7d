// Package alerting watches authentication failures for attack or
// misconfiguration patterns and notifies operators over the chat platform.
// Notification is best-effort and fully decoupled from the request path.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Aggregation defaults: twenty failures inside a trailing five-minute
// window trips an alert, throttled to one per fifteen minutes.
const (
	DefaultWindow    = 5 * time.Minute
	DefaultThreshold = 20
	DefaultCooldown  = 15 * time.Minute

	sendTimeout = 5 * time.Second
)

// FailureRecord is one observed 401, retained only within the window.
type FailureRecord struct {
	Timestamp time.Time
	SourceKey string
	Reason    string
}

// Stats is the aggregator state snapshot exposed by the readiness endpoint.
type Stats struct {
	Configured      bool `json:"configured"`
	RecentFailures  int  `json:"recent_failures"`
	Threshold       int  `json:"threshold"`
	WindowMinutes   int  `json:"window_minutes"`
	CooldownMinutes int  `json:"cooldown_minutes"`
}

// Service aggregates failures and emits throttled alerts.
type Service struct {
	mu        sync.Mutex
	failures  []FailureRecord
	lastAlert time.Time

	window    time.Duration
	threshold int
	cooldown  time.Duration

	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	onAlert    func()

	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithThreshold overrides window and threshold, for tests.
func WithThreshold(window time.Duration, threshold int, cooldown time.Duration) Option {
	return func(s *Service) {
		s.window = window
		s.threshold = threshold
		s.cooldown = cooldown
	}
}

// WithHTTPClient overrides the notification transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		s.httpClient = hc
	}
}

// WithAlertHook registers a callback invoked once per emitted alert, used
// to feed metrics without coupling this package to prometheus.
func WithAlertHook(fn func()) Option {
	return func(s *Service) {
		s.onAlert = fn
	}
}

// New creates the alerting service. An empty webhookURL leaves alert
// delivery unconfigured: anomalies are still detected and logged at
// warning level so operators can discover them.
func New(webhookURL string, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		window:     DefaultWindow,
		threshold:  DefaultThreshold,
		cooldown:   DefaultCooldown,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: sendTimeout},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether an external alert channel is set up.
func (s *Service) Configured() bool {
	return s.webhookURL != ""
}

// Record401 appends a failure, prunes the trailing window, and fires an
// alert when the threshold is crossed and the cooldown has elapsed. The
// cooldown is checked before composing the message so a storm of failures
// produces exactly one notification per cooldown period.
func (s *Service) Record401(sourceKey, reason string) {
	s.mu.Lock()

	now := s.now()
	s.failures = append(s.failures, FailureRecord{
		Timestamp: now,
		SourceKey: sourceKey,
		Reason:    reason,
	})
	s.prune(now)

	if len(s.failures) < s.threshold || now.Sub(s.lastAlert) < s.cooldown {
		s.mu.Unlock()
		return
	}
	s.lastAlert = now

	total := len(s.failures)
	sources := make(map[string]struct{}, total)
	reasons := make(map[string]int, total)
	for _, f := range s.failures {
		sources[f.SourceKey] = struct{}{}
		reasons[f.Reason]++
	}
	s.mu.Unlock()

	summary := alertSummary{
		Total:           total,
		DistinctSources: len(sources),
		TopReasons:      topReasons(reasons, 3),
		WindowMinutes:   int(s.window / time.Minute),
		Threshold:       s.threshold,
	}

	s.logger.Warn("security anomaly detected",
		"security_event", "anomaly_detected",
		"failure_count", summary.Total,
		"distinct_sources", summary.DistinctSources,
		"top_reasons", summary.TopReasons,
		"threshold", s.threshold,
	)
	if s.onAlert != nil {
		s.onAlert()
	}

	if !s.Configured() {
		s.logger.Warn("alert channel not configured, anomaly logged only",
			"failure_count", summary.Total,
			"distinct_sources", summary.DistinctSources,
		)
		return
	}

	// Fire and forget: a slow or failing notification channel must never
	// delay a webhook response.
	go s.send(summary)
}

// Stats snapshots the current aggregator state.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.now())
	return Stats{
		Configured:      s.Configured(),
		RecentFailures:  len(s.failures),
		Threshold:       s.threshold,
		WindowMinutes:   int(s.window / time.Minute),
		CooldownMinutes: int(s.cooldown / time.Minute),
	}
}

// prune drops records older than the window. Caller holds the lock.
func (s *Service) prune(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for ; i < len(s.failures); i++ {
		if s.failures[i].Timestamp.After(cutoff) {
			break
		}
	}
	s.failures = s.failures[i:]
}

type reasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

type alertSummary struct {
	Total           int
	DistinctSources int
	TopReasons      []reasonCount
	WindowMinutes   int
	Threshold       int
}

func topReasons(counts map[string]int, limit int) []reasonCount {
	out := make([]reasonCount, 0, len(counts))
	for reason, count := range counts {
		out = append(out, reasonCount{Reason: reason, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Service) send(summary alertSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	payload, err := json.Marshal(buildMessage(summary))
	if err != nil {
		s.logger.Error("encode alert payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("build alert request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("send security alert", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Error("security alert rejected", "status", resp.StatusCode)
		return
	}
	s.logger.Info("security alert sent",
		"failure_count", summary.Total,
		"distinct_sources", summary.DistinctSources,
	)
}

// buildMessage renders the chat-platform block structure for an alert.
func buildMessage(summary alertSummary) map[string]any {
	reasonLines := ""
	for _, rc := range summary.TopReasons {
		reasonLines += fmt.Sprintf("• %s: %d\n", rc.Reason, rc.Count)
	}

	return map[string]any{
		"text": "Ticket-routing security alert",
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": "Security Anomaly Detected",
				},
			},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": "*Service:*\nticket-routing-webhook"},
					{"type": "mrkdwn", "text": "*Event:*\nHigh 401 rate"},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Failures:*\n%d in %d minutes", summary.Total, summary.WindowMinutes)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Unique sources:*\n%d", summary.DistinctSources)},
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": "*Top failure reasons:*\n" + reasonLines,
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": "*Possible causes:*\n• HMAC secret mismatch\n• Replay attacks\n• Webhook misconfiguration\n• Malicious requests",
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("Threshold: %d failures in %d minutes", summary.Threshold, summary.WindowMinutes)},
				},
			},
		},
	}
}
