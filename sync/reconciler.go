// ABOUTME: Two-way reconciliation of the communication_preference property
// ABOUTME: Decides per contact whether HubSpot or the platform wins and writes CRM-owned changes back locally
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/hubsync/hubspot"
	"github.com/harperreed/hubsync/models"
)

// ErrBatchAborted marks a batch that could not be reconciled. The batch is
// credited zero and the run continues.
var ErrBatchAborted = errors.New("batch aborted")

// ContactReader reads HubSpot's current state for a set of emails.
type ContactReader interface {
	BatchReadContacts(ctx context.Context, emails []string) ([]models.CrmContactState, error)
}

// PreferenceStore persists a user's platform-owned marketing preferences.
type PreferenceStore interface {
	SetMarketingPreferences(ctx context.Context, userID int64, prefs []string) error
}

type Reconciler struct {
	CRM   ContactReader
	Store PreferenceStore
	// Owned is the set of categories the platform manages.
	Owned PreferenceSet
	Log   *log.Logger
}

// ReconcileResult counts what happened to a batch.
type ReconcileResult struct {
	Merged     int
	Overridden int
}

// Reconcile rewrites the communication_preference property of contacts in
// place so that it reflects both sides. For each contact HubSpot already holds
// a preference for, a newer change made outside this tenant's app replaces the
// platform value (and the owned part is saved locally). Otherwise the platform
// value is kept and unowned HubSpot tokens are carried over.
func (r *Reconciler) Reconcile(ctx context.Context, tenant models.TenantConfig, contacts []models.ContactPayload, users []models.UserRecord) (ReconcileResult, error) {
	var result ReconcileResult
	if len(contacts) == 0 {
		return result, nil
	}

	emails := make([]string, 0, len(contacts))
	byEmail := make(map[string]*models.ContactPayload, len(contacts))
	for i := range contacts {
		emails = append(emails, contacts[i].Email)
		byEmail[normalizeEmail(contacts[i].Email)] = &contacts[i]
	}

	states, err := r.CRM.BatchReadContacts(ctx, emails)
	if err != nil {
		return result, fmt.Errorf("%w: site %s: %w", ErrBatchAborted, tenant.Domain, err)
	}

	matcher := NewUserMatcher(users)

	for _, state := range states {
		crmValue, ok := state.Property(hubspot.PropertyCommunicationPreference)
		if !ok {
			continue
		}
		contact, ok := byEmail[normalizeEmail(state.Email)]
		if !ok {
			continue
		}

		crmSet := ParsePreferences(crmValue)
		platformValue, _ := contact.Get(hubspot.PropertyCommunicationPreference)
		platformSet := ParsePreferences(platformValue)

		var merged PreferenceSet
		if r.shouldOverride(tenant, state) {
			merged = crmSet
			if err := r.savePlatformPreferences(ctx, matcher, contact.Email, crmSet.Intersect(r.Owned)); err != nil {
				return result, err
			}
			result.Overridden++
		} else {
			merged = platformSet.Union(crmSet.Difference(r.Owned))
		}

		contact.Set(hubspot.PropertyCommunicationPreference, merged.String())
		result.Merged++
	}

	return result, nil
}

func (r *Reconciler) savePlatformPreferences(ctx context.Context, matcher *UserMatcher, email string, owned PreferenceSet) error {
	user, ok := matcher.FindMatch(email)
	if !ok {
		r.logf("no platform user found for %s, preferences not saved", email)
		return nil
	}
	if err := r.Store.SetMarketingPreferences(ctx, user.ID, owned.Sorted()); err != nil {
		return fmt.Errorf("failed to save marketing preferences for user %d: %w", user.ID, err)
	}
	return nil
}

// shouldOverride reports whether the latest preference change in HubSpot is
// newer than the last sync and was made by someone other than this tenant's app.
func (r *Reconciler) shouldOverride(tenant models.TenantConfig, state models.CrmContactState) bool {
	if len(state.PreferenceHistory) == 0 {
		return false
	}

	latest, changedAt, ok := latestChange(state.PreferenceHistory)
	if !ok {
		r.logf("unparseable preference history timestamps for %s, keeping platform preferences", state.Email)
		return false
	}

	var watermark time.Time
	if raw, ok := state.Property(hubspot.PropertyLastSynced); ok && strings.TrimSpace(raw) != "" {
		parsed, err := ParseHubSpotTime(raw)
		if err != nil {
			r.logf("unparseable %s %q for %s, keeping platform preferences", hubspot.PropertyLastSynced, raw, state.Email)
			return false
		}
		watermark = parsed
	}

	return changedAt.After(watermark) && latest.SourceID != tenant.HubSpotAppID()
}

// latestChange returns the history entry with the greatest timestamp.
// It reports false when history is empty or any timestamp does not parse.
func latestChange(history []models.PropertyHistoryEntry) (models.PropertyHistoryEntry, time.Time, bool) {
	var latest models.PropertyHistoryEntry
	var latestAt time.Time

	for i, entry := range history {
		at, err := ParseHubSpotTime(entry.Timestamp)
		if err != nil {
			return models.PropertyHistoryEntry{}, time.Time{}, false
		}
		if i == 0 || at.After(latestAt) {
			latest, latestAt = entry, at
		}
	}

	return latest, latestAt, len(history) > 0
}

// ParseHubSpotTime parses an ISO-8601 timestamp such as 2024-01-02T03:04:05.678Z
// or a millisecond epoch value.
func ParseHubSpotTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func (r *Reconciler) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
