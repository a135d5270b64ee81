// ABOUTME: In-memory platform and fake HubSpot server shared by sync tests
// ABOUTME: Records CRM requests and local preference writes for assertions
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/hubsync/hubspot"
	"github.com/harperreed/hubsync/models"
	"golang.org/x/time/rate"
)

var testNow = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

func testUser(id int64, site, meta string) models.UserRecord {
	return models.UserRecord{
		ID:            id,
		Username:      fmt.Sprintf("user%d", id),
		Email:         fmt.Sprintf("user%d@example.org", id),
		DateJoined:    testNow.Add(-6 * time.Hour),
		CreatedOnSite: site,
		Profile: &models.UserProfile{
			UserID: id,
			Name:   "Test User",
			Meta:   meta,
		},
	}
}

type fakePlatform struct {
	sites []models.TenantConfig
	users []models.UserRecord
	saved map[int64][]string

	saveErr error
}

func newFakePlatform(sites []models.TenantConfig, users []models.UserRecord) *fakePlatform {
	return &fakePlatform{sites: sites, users: users, saved: map[int64][]string{}}
}

func (f *fakePlatform) ListSiteConfigs(ctx context.Context) ([]models.TenantConfig, error) {
	return f.sites, nil
}

func (f *fakePlatform) inRange(start, end time.Time) []models.UserRecord {
	var out []models.UserRecord
	for _, u := range f.users {
		if !u.DateJoined.Before(start) && u.DateJoined.Before(end) {
			out = append(out, u)
		}
	}
	return out
}

func (f *fakePlatform) CountUsersJoinedBetween(ctx context.Context, start, end time.Time) (int, error) {
	return len(f.inRange(start, end)), nil
}

func (f *fakePlatform) ListUsersJoinedBetween(ctx context.Context, start, end time.Time, offset, limit int) ([]models.UserRecord, error) {
	users := f.inRange(start, end)
	if offset >= len(users) {
		return nil, nil
	}
	return users[offset:min(offset+limit, len(users))], nil
}

func (f *fakePlatform) SetMarketingPreferences(ctx context.Context, userID int64, prefs []string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[userID] = prefs
	return nil
}

// fakeContact is HubSpot's stored state for one email.
type fakeContact struct {
	Preference *string
	LastSynced string
	History    []models.PropertyHistoryEntry
}

type fakeHubSpot struct {
	t      *testing.T
	server *httptest.Server

	contacts map[string]fakeContact

	propertyStatus int
	// failReads and failUpserts hold 1-based call numbers that return HTTP 500.
	failReads   map[int]bool
	failUpserts map[int]bool

	reads         int
	readInputs    [][]string
	upserts       [][]models.ContactPayload
	upsertCalls   int
	propertyCalls int
}

func newFakeHubSpot(t *testing.T) *fakeHubSpot {
	f := &fakeHubSpot{
		t:           t,
		contacts:    map[string]fakeContact{},
		failReads:   map[int]bool{},
		failUpserts: map[int]bool{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeHubSpot) factory() CRMFactory {
	return func(tenant models.TenantConfig) (CRM, error) {
		client, err := hubspot.NewClient(f.server.URL, tenant.HubSpotAPIKey(), time.Second)
		if err != nil {
			return nil, err
		}
		client.SetRateLimit(rate.Inf, 1)
		return client, nil
	}
}

func (f *fakeHubSpot) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/crm/v3/properties/contact"):
		f.propertyCalls++
		if f.propertyStatus != 0 {
			w.WriteHeader(f.propertyStatus)
			return
		}
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case r.URL.Path == "/crm/v3/objects/contacts/batch/read":
		f.reads++
		if f.failReads[f.reads] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req struct {
			Inputs []struct {
				ID string `json:"id"`
			} `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode batch read: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var emails []string
		results := []map[string]any{}
		for _, input := range req.Inputs {
			emails = append(emails, input.ID)
			c, ok := f.contacts[input.ID]
			if !ok {
				continue
			}
			history := c.History
			if history == nil {
				history = []models.PropertyHistoryEntry{}
			}
			var lastSynced *string
			if c.LastSynced != "" {
				lastSynced = &c.LastSynced
			}
			results = append(results, map[string]any{
				"id": "1",
				"properties": map[string]any{
					hubspot.PropertyEmail:                   input.ID,
					hubspot.PropertyCommunicationPreference: c.Preference,
					hubspot.PropertyLastSynced:              lastSynced,
				},
				"propertiesWithHistory": map[string]any{
					hubspot.PropertyCommunicationPreference: history,
				},
			})
		}
		f.readInputs = append(f.readInputs, emails)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "COMPLETE", "results": results})

	case r.URL.Path == "/contacts/v1/contact/batch/":
		f.upsertCalls++
		if f.failUpserts[f.upsertCalls] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var contacts []models.ContactPayload
		if err := json.NewDecoder(r.Body).Decode(&contacts); err != nil {
			f.t.Errorf("decode upsert: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.upserts = append(f.upserts, contacts)
		w.WriteHeader(http.StatusAccepted)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

// upsertedEmails flattens the emails of every successful upsert.
func (f *fakeHubSpot) upsertedEmails() []string {
	var emails []string
	for _, batch := range f.upserts {
		for _, c := range batch {
			emails = append(emails, c.Email)
		}
	}
	return emails
}

// fakeState records bookkeeping calls in memory.
type fakeState struct {
	statuses []string
	runIDs   []string
	idle     map[string]int
	errors   map[string]string
	batches  []models.SyncBatch
}

func newFakeState() *fakeState {
	return &fakeState{idle: map[string]int{}, errors: map[string]string{}}
}

func (f *fakeState) MarkSyncing(ctx context.Context, service, runID string) error {
	f.statuses = append(f.statuses, service+"="+models.SyncStatusSyncing)
	f.runIDs = append(f.runIDs, runID)
	return nil
}

func (f *fakeState) MarkIdle(ctx context.Context, service string, synced int) error {
	f.statuses = append(f.statuses, service+"="+models.SyncStatusIdle)
	f.idle[service] = synced
	return nil
}

func (f *fakeState) MarkError(ctx context.Context, service, message string) error {
	f.statuses = append(f.statuses, service+"="+models.SyncStatusError)
	f.errors[service] = message
	return nil
}

func (f *fakeState) RecordBatch(ctx context.Context, batch *models.SyncBatch) error {
	f.batches = append(f.batches, *batch)
	return nil
}

func strPtr(s string) *string {
	return &s
}
