// ABOUTME: Tests for communication preference reconciliation
// ABOUTME: Covers merge, override, watermark, source-identity, and failure rules
package sync

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/harperreed/hubsync/hubspot"
	"github.com/harperreed/hubsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppID = "424242"

var testTenant = models.TenantConfig{
	SiteID:  1,
	Domain:  "a.example.org",
	Enabled: true,
	Values: map[string]any{
		models.SiteValueHubSpotAPIKey: "pat-test",
		models.SiteValueHubSpotAppID:  float64(424242),
	},
}

type fakeReader struct {
	states []models.CrmContactState
	err    error
	emails []string
}

func (f *fakeReader) BatchReadContacts(ctx context.Context, emails []string) ([]models.CrmContactState, error) {
	f.emails = append(f.emails, emails...)
	return f.states, f.err
}

func crmState(email string, preference *string, lastSynced string, history ...models.PropertyHistoryEntry) models.CrmContactState {
	props := map[string]*string{
		hubspot.PropertyEmail:                   strPtr(email),
		hubspot.PropertyCommunicationPreference: preference,
	}
	if lastSynced != "" {
		props[hubspot.PropertyLastSynced] = strPtr(lastSynced)
	}
	return models.CrmContactState{Email: email, Properties: props, PreferenceHistory: history}
}

func contactWithPreference(email, preference string) models.ContactPayload {
	return models.ContactPayload{
		Email: email,
		Properties: []models.ContactProperty{
			{Property: hubspot.PropertyFirstName, Value: "Test"},
			{Property: hubspot.PropertyCommunicationPreference, Value: preference},
		},
	}
}

func userWithEmail(id int64, email string) models.UserRecord {
	u := testUser(id, testTenant.Domain, "{}")
	u.Email = email
	return u
}

func newTestReconciler(reader ContactReader, store PreferenceStore) (*Reconciler, *bytes.Buffer) {
	var logs bytes.Buffer
	return &Reconciler{
		CRM:   reader,
		Store: store,
		Owned: NewPreferenceSet("Futures eLearning", "Training Bulletin"),
		Log:   log.New(&logs, "", 0),
	}, &logs
}

func preferenceOf(t *testing.T, c models.ContactPayload) string {
	t.Helper()
	v, ok := c.Get(hubspot.PropertyCommunicationPreference)
	require.True(t, ok)
	return v
}

// User A keeps platform preferences and gains CRM-only categories.
func TestReconcileNoHistoryMergesForeignTokens(t *testing.T) {
	reader := &fakeReader{states: []models.CrmContactState{
		crmState("a@example.org", strPtr("Futures eLearning;Newsletter"), "2024-01-01T00:00:00.000Z"),
	}}
	store := newFakePlatform(nil, nil)
	r, _ := newTestReconciler(reader, store)

	contacts := []models.ContactPayload{contactWithPreference("a@example.org", "Futures eLearning")}
	result, err := r.Reconcile(context.Background(), testTenant, contacts, []models.UserRecord{userWithEmail(1, "a@example.org")})
	require.NoError(t, err)

	assert.Equal(t, "Futures eLearning;Newsletter", preferenceOf(t, contacts[0]))
	assert.Equal(t, 1, result.Merged)
	assert.Equal(t, 0, result.Overridden)
	assert.Empty(t, store.saved)
	assert.Equal(t, []string{"a@example.org"}, reader.emails)
}

// User B changed preferences in HubSpot after the last sync, through another source.
func TestReconcileExternalChangeOverridesPlatform(t *testing.T) {
	reader := &fakeReader{states: []models.CrmContactState{
		crmState("b@example.org", strPtr("Newsletter"), "2024-01-01T00:00:00.000Z",
			models.PropertyHistoryEntry{Value: "Newsletter", Timestamp: "2024-01-05T10:00:00.000Z", SourceType: "CRM_UI", SourceID: "userId:99"},
		),
	}}
	store := newFakePlatform(nil, nil)
	r, _ := newTestReconciler(reader, store)

	contacts := []models.ContactPayload{contactWithPreference("b@example.org", "Training Bulletin")}
	result, err := r.Reconcile(context.Background(), testTenant, contacts, []models.UserRecord{userWithEmail(2, "b@example.org")})
	require.NoError(t, err)

	assert.Equal(t, "Newsletter", preferenceOf(t, contacts[0]))
	assert.Equal(t, 1, result.Overridden)
	require.Contains(t, store.saved, int64(2))
	assert.Equal(t, []string{}, store.saved[2])
}

func TestReconcileOverrideSavesOnlyOwnedCategories(t *testing.T) {
	reader := &fakeReader{states: []models.CrmContactState{
		crmState("c@example.org", strPtr("Training Bulletin;Newsletter;;Futures eLearning"), "",
			models.PropertyHistoryEntry{Value: "x", Timestamp: "2024-01-05T10:00:00.000Z", SourceID: "other"},
		),
	}}
	store := newFakePlatform(nil, nil)
	r, _ := newTestReconciler(reader, store)

	contacts := []models.ContactPayload{contactWithPreference("c@example.org", "")}
	_, err := r.Reconcile(context.Background(), testTenant, contacts, []models.UserRecord{userWithEmail(3, "C@Example.org")})
	require.NoError(t, err)

	assert.Equal(t, "Futures eLearning;Newsletter;Training Bulletin", preferenceOf(t, contacts[0]))
	assert.Equal(t, []string{"Futures eLearning", "Training Bulletin"}, store.saved[3])
}

func TestReconcileOverrideConditions(t *testing.T) {
	const watermark = "2024-01-05T00:00:00.000Z"

	tests := []struct {
		name         string
		lastSynced   string
		history      []models.PropertyHistoryEntry
		wantOverride bool
	}{
		{
			name:         "newer external change",
			lastSynced:   watermark,
			history:      []models.PropertyHistoryEntry{{Timestamp: "2024-01-06T00:00:00.000Z", SourceID: "userId:1"}},
			wantOverride: true,
		},
		{
			name:       "change made by our app",
			lastSynced: watermark,
			history:    []models.PropertyHistoryEntry{{Timestamp: "2024-01-06T00:00:00.000Z", SourceID: testAppID}},
		},
		{
			name:       "change equal to watermark",
			lastSynced: watermark,
			history:    []models.PropertyHistoryEntry{{Timestamp: watermark, SourceID: "userId:1"}},
		},
		{
			name:       "change before watermark",
			lastSynced: watermark,
			history:    []models.PropertyHistoryEntry{{Timestamp: "2024-01-04T23:59:59.999Z", SourceID: "userId:1"}},
		},
		{
			name:         "no watermark counts as never synced",
			history:      []models.PropertyHistoryEntry{{Timestamp: "2020-01-01T00:00:00.000Z", SourceID: "userId:1"}},
			wantOverride: true,
		},
		{
			name:       "latest entry decides regardless of order",
			lastSynced: watermark,
			history: []models.PropertyHistoryEntry{
				{Timestamp: "2024-01-02T00:00:00.000Z", SourceID: "userId:1"},
				{Timestamp: "2024-01-07T00:00:00.000Z", SourceID: testAppID},
				{Timestamp: "2024-01-06T00:00:00.000Z", SourceID: "userId:2"},
			},
		},
		{
			name:         "millisecond watermark",
			lastSynced:   "1704412800000",
			history:      []models.PropertyHistoryEntry{{Timestamp: "2024-01-06T00:00:00Z", SourceID: "userId:1"}},
			wantOverride: true,
		},
		{
			name:       "unparseable watermark keeps platform",
			lastSynced: "05/01/2024",
			history:    []models.PropertyHistoryEntry{{Timestamp: "2024-01-06T00:00:00.000Z", SourceID: "userId:1"}},
		},
		{
			name:       "unparseable history keeps platform",
			lastSynced: watermark,
			history:    []models.PropertyHistoryEntry{{Timestamp: "yesterday", SourceID: "userId:1"}},
		},
		{
			name:       "any unparseable history entry keeps platform",
			lastSynced: watermark,
			history: []models.PropertyHistoryEntry{
				{Timestamp: "2024-01-09 10:00", SourceID: testAppID},
				{Timestamp: "2024-01-06T00:00:00.000Z", SourceID: "userId:1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{states: []models.CrmContactState{
				crmState("d@example.org", strPtr("Newsletter"), tt.lastSynced, tt.history...),
			}}
			store := newFakePlatform(nil, nil)
			r, _ := newTestReconciler(reader, store)

			contacts := []models.ContactPayload{contactWithPreference("d@example.org", "Training Bulletin")}
			result, err := r.Reconcile(context.Background(), testTenant, contacts, []models.UserRecord{userWithEmail(4, "d@example.org")})
			require.NoError(t, err)

			if tt.wantOverride {
				assert.Equal(t, 1, result.Overridden)
				assert.Equal(t, "Newsletter", preferenceOf(t, contacts[0]))
				assert.Contains(t, store.saved, int64(4))
			} else {
				assert.Equal(t, 0, result.Overridden)
				assert.Equal(t, "Newsletter;Training Bulletin", preferenceOf(t, contacts[0]))
				assert.Empty(t, store.saved)
			}
		})
	}
}

func TestReconcileUnparseableTimestampLogsWarning(t *testing.T) {
	reader := &fakeReader{states: []models.CrmContactState{
		crmState("e@example.org", strPtr("Newsletter"), "not-a-date",
			models.PropertyHistoryEntry{Timestamp: "2024-01-06T00:00:00.000Z", SourceID: "userId:1"},
		),
	}}
	r, logs := newTestReconciler(reader, newFakePlatform(nil, nil))

	contacts := []models.ContactPayload{contactWithPreference("e@example.org", "")}
	_, err := r.Reconcile(context.Background(), testTenant, contacts, nil)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "unparseable last_synced_with_futures")
}

func TestReconcileUnparseableHistoryLogsWarning(t *testing.T) {
	reader := &fakeReader{states: []models.CrmContactState{
		crmState("g@example.org", strPtr("Newsletter"), "2024-01-05T00:00:00.000Z",
			models.PropertyHistoryEntry{Timestamp: "2024-01-06T00:00:00.000Z", SourceID: "userId:1"},
			models.PropertyHistoryEntry{Timestamp: "last tuesday", SourceID: testAppID},
		),
	}}
	store := newFakePlatform(nil, nil)
	r, logs := newTestReconciler(reader, store)

	contacts := []models.ContactPayload{contactWithPreference("g@example.org", "Training Bulletin")}
	result, err := r.Reconcile(context.Background(), testTenant, contacts, []models.UserRecord{userWithEmail(7, "g@example.org")})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Overridden)
	assert.Empty(t, store.saved)
	assert.Contains(t, logs.String(), "unparseable preference history timestamps for g@example.org")
}

func TestReconcileLeavesContactsWithoutCRMPreference(t *testing.T) {
	reader := &fakeReader{states: []models.CrmContactState{
		crmState("f@example.org", nil, ""),
	}}
	r, _ := newTestReconciler(reader, newFakePlatform(nil, nil))

	contacts := []models.ContactPayload{
		contactWithPreference("f@example.org", "Training Bulletin;Futures eLearning"),
		contactWithPreference("unknown@example.org", "Futures eLearning"),
	}
	result, err := r.Reconcile(context.Background(), testTenant, contacts, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Merged)
	assert.Equal(t, "Training Bulletin;Futures eLearning", preferenceOf(t, contacts[0]))
	assert.Equal(t, "Futures eLearning", preferenceOf(t, contacts[1]))
}

func TestReconcileMatchesEmailsCaseInsensitively(t *testing.T) {
	reader := &fakeReader{states: []models.CrmContactState{
		crmState("mixed@example.org", strPtr("Events"), ""),
	}}
	r, _ := newTestReconciler(reader, newFakePlatform(nil, nil))

	contacts := []models.ContactPayload{contactWithPreference("Mixed@Example.org", "Futures eLearning")}
	_, err := r.Reconcile(context.Background(), testTenant, contacts, nil)
	require.NoError(t, err)

	assert.Equal(t, "Events;Futures eLearning", preferenceOf(t, contacts[0]))
}

func TestReconcileMergedValuesHaveNoEmptyOrDuplicateTokens(t *testing.T) {
	values := []string{"", ";", "A;;A", ";Futures eLearning;;Newsletter;Newsletter;", "Training Bulletin"}

	for _, crmValue := range values {
		for _, platformValue := range values {
			reader := &fakeReader{states: []models.CrmContactState{crmState("g@example.org", strPtr(crmValue), "")}}
			r, _ := newTestReconciler(reader, newFakePlatform(nil, nil))

			contacts := []models.ContactPayload{contactWithPreference("g@example.org", platformValue)}
			_, err := r.Reconcile(context.Background(), testTenant, contacts, nil)
			require.NoError(t, err)

			merged := preferenceOf(t, contacts[0])
			if merged == "" {
				continue
			}
			seen := map[string]bool{}
			for _, token := range strings.Split(merged, ";") {
				assert.NotEmpty(t, token, "merged %q", merged)
				assert.False(t, seen[token], "duplicate %q in %q", token, merged)
				seen[token] = true
			}
		}
	}
}

func TestReconcileReadFailureAbortsBatch(t *testing.T) {
	reader := &fakeReader{err: &hubspot.HTTPError{StatusCode: 500}}
	r, _ := newTestReconciler(reader, newFakePlatform(nil, nil))

	contacts := []models.ContactPayload{contactWithPreference("h@example.org", "Futures eLearning")}
	_, err := r.Reconcile(context.Background(), testTenant, contacts, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchAborted))
	var httpErr *hubspot.HTTPError
	assert.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "Futures eLearning", preferenceOf(t, contacts[0]))
}

func TestReconcileStoreFailureIsFatal(t *testing.T) {
	reader := &fakeReader{states: []models.CrmContactState{
		crmState("i@example.org", strPtr("Newsletter"), "",
			models.PropertyHistoryEntry{Timestamp: "2024-01-06T00:00:00.000Z", SourceID: "userId:1"},
		),
	}}
	store := newFakePlatform(nil, nil)
	store.saveErr = errors.New("disk full")
	r, _ := newTestReconciler(reader, store)

	contacts := []models.ContactPayload{contactWithPreference("i@example.org", "")}
	_, err := r.Reconcile(context.Background(), testTenant, contacts, []models.UserRecord{userWithEmail(9, "i@example.org")})

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBatchAborted))
	assert.Contains(t, err.Error(), "disk full")
}

func TestReconcileEmptyBatchMakesNoRequest(t *testing.T) {
	reader := &fakeReader{}
	r, _ := newTestReconciler(reader, newFakePlatform(nil, nil))

	_, err := r.Reconcile(context.Background(), testTenant, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, reader.emails)
}

func TestParseHubSpotTime(t *testing.T) {
	got, err := ParseHubSpotTime("2024-01-02T03:04:05.678Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1704164645678), got.UnixMilli())

	got, err = ParseHubSpotTime("1704164645678")
	require.NoError(t, err)
	assert.Equal(t, int64(1704164645678), got.UnixMilli())

	_, err = ParseHubSpotTime("2024-01-02 03:04")
	assert.Error(t, err)
}
