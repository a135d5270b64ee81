// ABOUTME: Data models for platform users, tenant sites, and HubSpot contacts
// ABOUTME: Defines TenantConfig, UserRecord, ContactPayload, CrmContactState, and sync bookkeeping
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Site configuration keys read by the sync.
const (
	SiteValueHubSpotAPIKey = "HUBSPOT_API_KEY"
	SiteValueHubSpotAppID  = "HUBSPOT_APP_ID"
)

// AttributeCreatedOnSite is the user attribute naming the site a user registered on.
const AttributeCreatedOnSite = "created_on_site"

// TenantConfig is a site and its configuration values.
type TenantConfig struct {
	SiteID  int64          `json:"site_id"`
	Domain  string         `json:"domain"`
	Name    string         `json:"name,omitempty"`
	Enabled bool           `json:"enabled"`
	Values  map[string]any `json:"values,omitempty"`
}

// Value returns a configuration value, or nil when the key is not set.
func (t TenantConfig) Value(key string) any {
	if t.Values == nil {
		return nil
	}
	return t.Values[key]
}

// StringValue returns a configuration value as a trimmed string.
// Non-string values are treated as unset.
func (t TenantConfig) StringValue(key string) string {
	s, ok := t.Value(key).(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// HubSpotAPIKey returns the private app token used as the bearer token.
func (t TenantConfig) HubSpotAPIKey() string {
	return t.StringValue(SiteValueHubSpotAPIKey)
}

// HubSpotAppID returns the source ID HubSpot records for writes made by this tenant's app.
func (t TenantConfig) HubSpotAppID() string {
	switch v := t.Value(SiteValueHubSpotAppID).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		// JSON numbers decode as float64; app IDs are integers.
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// DecodeSiteValues parses a stored site_values JSON object. Empty input yields an empty map.
func DecodeSiteValues(raw string) (map[string]any, error) {
	values := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("invalid site values: %w", err)
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

type UserRecord struct {
	ID            int64        `json:"id"`
	Username      string       `json:"username"`
	Email         string       `json:"email"`
	DateJoined    time.Time    `json:"date_joined"`
	CreatedOnSite string       `json:"created_on_site,omitempty"`
	Profile       *UserProfile `json:"profile,omitempty"`
}

type UserProfile struct {
	UserID           int64  `json:"user_id"`
	Name             string `json:"name"`
	Meta             string `json:"meta"`
	State            string `json:"state,omitempty"`
	Country          string `json:"country,omitempty"`
	Gender           string `json:"gender,omitempty"`
	LevelOfEducation string `json:"level_of_education,omitempty"`
	Goals            string `json:"goals,omitempty"`
	Bio              string `json:"bio,omitempty"`
}

// ContactProperty is a single HubSpot property name/value pair.
type ContactProperty struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// ContactPayload is the contact representation sent to HubSpot's batch upsert endpoint.
type ContactPayload struct {
	Email      string            `json:"email"`
	Properties []ContactProperty `json:"properties"`
}

// Get returns the value of the named property.
func (c *ContactPayload) Get(name string) (string, bool) {
	for _, p := range c.Properties {
		if p.Property == name {
			return p.Value, true
		}
	}
	return "", false
}

// Set replaces the value of the named property, appending it if missing.
func (c *ContactPayload) Set(name, value string) {
	for i := range c.Properties {
		if c.Properties[i].Property == name {
			c.Properties[i].Value = value
			return
		}
	}
	c.Properties = append(c.Properties, ContactProperty{Property: name, Value: value})
}

// PropertyHistoryEntry is one recorded value of a HubSpot property.
type PropertyHistoryEntry struct {
	Value      string `json:"value"`
	Timestamp  string `json:"timestamp"`
	SourceType string `json:"sourceType,omitempty"`
	SourceID   string `json:"sourceId,omitempty"`
}

// CrmContactState is HubSpot's current view of a contact.
type CrmContactState struct {
	ID                string
	Email             string
	Properties        map[string]*string
	PreferenceHistory []PropertyHistoryEntry
}

// Property returns a current property value and whether it is non-null.
func (c CrmContactState) Property(name string) (string, bool) {
	v, ok := c.Properties[name]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// SyncWindow is the [Offset, Offset+Size) slice of a tenant's ordered user set.
type SyncWindow struct {
	Offset int `json:"offset"`
	Size   int `json:"size"`
}

// End returns the exclusive upper bound of the window.
func (w SyncWindow) End() int {
	return w.Offset + w.Size
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

type SyncState struct {
	Service         string     `json:"service"`
	LastSyncTime    *time.Time `json:"last_sync_time,omitempty"`
	LastRunID       string     `json:"last_run_id,omitempty"`
	LastSyncedCount int        `json:"last_synced_count"`
	Status          string     `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SyncBatch records the outcome of one flushed contact batch.
type SyncBatch struct {
	ID         uuid.UUID `json:"id"`
	RunID      string    `json:"run_id"`
	SiteDomain string    `json:"site_domain"`
	BatchIndex int       `json:"batch_index"`
	Contacts   int       `json:"contacts"`
	Synced     int       `json:"synced"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
