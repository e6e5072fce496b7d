package config

import (
	"os"
	"time"
)

// Service captures all runtime configuration for the routing webhook.
// Everything comes from the environment so deployments stay twelve-factor.
type Service struct {
	Addr string

	// Tracker API access.
	TrackerBaseURL  string
	TrackerAPIToken string
	TrackerTeamID   string

	// Reference-data collections inside the tracker.
	CustomersListID       string
	UnitsListID           string
	MarketOwnershipListID string

	// Webhook authentication.
	HMACSecret string

	// Fallback CX owner for tickets no rule can resolve. Empty disables
	// fallback assignment; the escalation tag is applied either way.
	DefaultCXUserID string

	// Security features.
	RateLimitingEnabled bool
	AlertWebhookURL     string
}

// ReplayTTL bounds how long a processed event key is remembered.
var ReplayTTL = 10 * time.Minute

// FromEnv builds a Service config from environment variables so main stays
// lean.
func FromEnv() Service {
	addr := os.Getenv("ROUTER_ADDR")
	if addr == "" {
		addr = ":3000"
	}

	baseURL := os.Getenv("TRACKER_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.clickup.com/api/v2"
	}

	return Service{
		Addr:                  addr,
		TrackerBaseURL:        baseURL,
		TrackerAPIToken:       os.Getenv("TRACKER_API_TOKEN"),
		TrackerTeamID:         os.Getenv("TRACKER_TEAM_ID"),
		CustomersListID:       os.Getenv("CUSTOMERS_LIST_ID"),
		UnitsListID:           os.Getenv("UNITS_LIST_ID"),
		MarketOwnershipListID: os.Getenv("MARKET_OWNERSHIP_LIST_ID"),
		HMACSecret:            os.Getenv("WEBHOOK_HMAC_SECRET"),
		DefaultCXUserID:       os.Getenv("DEFAULT_CX_USER_ID"),
		RateLimitingEnabled:   os.Getenv("ENABLE_RATE_LIMITING") == "true",
		AlertWebhookURL:       os.Getenv("ALERT_WEBHOOK_URL"),
	}
}

// MissingRequired lists the configuration the service cannot run without.
// Used by the readiness endpoint.
func (s Service) MissingRequired() []string {
	var missing []string
	if s.TrackerAPIToken == "" {
		missing = append(missing, "TRACKER_API_TOKEN")
	}
	if s.TrackerTeamID == "" {
		missing = append(missing, "TRACKER_TEAM_ID")
	}
	if s.HMACSecret == "" {
		missing = append(missing, "WEBHOOK_HMAC_SECRET")
	}
	return missing
}
