// ABOUTME: Orchestrates a HubSpot sync run across all enabled sites
// ABOUTME: Pages users, flushes fixed-size contact batches, paces CRM writes, and records progress
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/harperreed/hubsync/hubspot"
	"github.com/harperreed/hubsync/models"
	"github.com/oklog/ulid/v2"
)

const (
	// DefaultBatchSize is how many contacts are sent to HubSpot per upsert.
	DefaultBatchSize = 100

	// DefaultInitialSyncDays is how many days before today users are picked up from.
	DefaultInitialSyncDays = 1

	// DefaultBatchInterval is the sleep after each flushed batch.
	DefaultBatchInterval = 100 * time.Millisecond
)

const servicePrefix = "hubspot:"

// CRM is the HubSpot surface a site sync needs.
type CRM interface {
	ContactReader
	EnsureContactProperties(ctx context.Context) ([]hubspot.PropertyChange, error)
	UpsertContacts(ctx context.Context, contacts []models.ContactPayload) error
}

// CRMFactory builds a CRM client authenticated for a tenant.
type CRMFactory func(tenant models.TenantConfig) (CRM, error)

// HubSpotFactory returns a CRMFactory creating real HubSpot clients.
func HubSpotFactory(baseURL string, timeout time.Duration) CRMFactory {
	return func(tenant models.TenantConfig) (CRM, error) {
		client, err := hubspot.NewClient(baseURL, tenant.HubSpotAPIKey(), timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Platform is the source of sites and users and the home of platform-owned preferences.
type Platform interface {
	ListSiteConfigs(ctx context.Context) ([]models.TenantConfig, error)
	UserDirectory
	PreferenceStore
}

// StateRecorder persists run bookkeeping.
type StateRecorder interface {
	MarkSyncing(ctx context.Context, service, runID string) error
	MarkIdle(ctx context.Context, service string, synced int) error
	MarkError(ctx context.Context, service, message string) error
	RecordBatch(ctx context.Context, batch *models.SyncBatch) error
}

// Options controls a single run.
type Options struct {
	InitialSyncDays int
	BatchSize       int
	// Domain restricts the run to one site when set.
	Domain string
}

// SiteResult summarizes one site's sync.
type SiteResult struct {
	Domain        string `json:"domain"`
	Synced        int    `json:"synced"`
	Batches       int    `json:"batches"`
	FailedBatches int    `json:"failed_batches"`
	SkippedUsers  int    `json:"skipped_users"`
	SchemaError   string `json:"schema_error,omitempty"`
}

// RunResult summarizes a whole run.
type RunResult struct {
	RunID      string       `json:"run_id"`
	UsersCount int          `json:"users_count"`
	Sites      []SiteResult `json:"sites"`
}

// Synced returns the total number of contacts synced across sites.
func (r *RunResult) Synced() int {
	total := 0
	for _, site := range r.Sites {
		total += site.Synced
	}
	return total
}

type Syncer struct {
	Platform Platform
	NewCRM   CRMFactory
	// State is optional; when nil no bookkeeping is written.
	State StateRecorder
	Owned PreferenceSet

	UsersPageSize int
	BatchInterval time.Duration

	Now func() time.Time
	Out io.Writer
	Log *log.Logger
}

// ServiceName is the sync_state key for a site.
func ServiceName(domain string) string {
	return servicePrefix + domain
}

// DomainFromService reverses ServiceName.
func DomainFromService(service string) (string, bool) {
	domain, ok := strings.CutPrefix(service, servicePrefix)
	if !ok || domain == "" {
		return "", false
	}
	return domain, true
}

// NewRunID returns a sortable identifier for a run started at t.
func NewRunID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Run syncs every HubSpot-enabled site (or only opts.Domain) with the users
// who joined in the lookback range.
func (s *Syncer) Run(ctx context.Context, opts Options) (*RunResult, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.InitialSyncDays < 0 {
		return nil, fmt.Errorf("initial sync days must not be negative, got %d", opts.InitialSyncDays)
	}

	now := s.now()
	result := &RunResult{RunID: NewRunID(now)}

	s.printf("Starting HubSpot sync (run %s, initial sync days=%d, batch size=%d)\n", result.RunID, opts.InitialSyncDays, opts.BatchSize)

	configs, err := s.Platform.ListSiteConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load site configurations: %w", err)
	}
	sites := SelectEnabledSites(configs)
	if opts.Domain != "" {
		site, ok := FindSite(sites, opts.Domain)
		if !ok {
			return nil, fmt.Errorf("site %s is not HubSpot enabled", opts.Domain)
		}
		sites = []models.TenantConfig{site}
	}
	s.printf("%d hubspot enabled sites found.\n", len(sites))

	src := NewUserBatchSource(s.Platform, opts.InitialSyncDays, s.UsersPageSize, now)
	s.printf("Getting users from %s to %s\n", src.FirstDay().Format(time.DateOnly), src.LastDay().Format(time.DateOnly))

	total, err := src.Count(ctx)
	if err != nil {
		return nil, err
	}
	result.UsersCount = total
	s.printf("Users count=%d\n", total)

	for _, site := range sites {
		siteResult, err := s.syncTenant(ctx, result.RunID, site, src, total, opts.BatchSize)
		if err != nil {
			return result, err
		}
		result.Sites = append(result.Sites, siteResult)
	}

	return result, nil
}

func (s *Syncer) syncTenant(ctx context.Context, runID string, site models.TenantConfig, src *UserBatchSource, total, batchSize int) (SiteResult, error) {
	service := ServiceName(site.Domain)

	crm, err := s.NewCRM(site)
	if err != nil {
		return SiteResult{Domain: site.Domain}, fmt.Errorf("failed to create HubSpot client for site %s: %w", site.Domain, err)
	}

	if s.State != nil {
		if err := s.State.MarkSyncing(ctx, service, runID); err != nil {
			return SiteResult{Domain: site.Domain}, err
		}
	}

	var schemaErr error
	changes, err := crm.EnsureContactProperties(ctx)
	for _, change := range changes {
		if change.Created {
			s.printf("  → Creating %s property.\n", change.Label)
		} else {
			s.printf("  → Updating %s property as it already exists.\n", change.Label)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return SiteResult{Domain: site.Domain}, s.fail(service, ctx.Err())
		}
		schemaErr = err
		s.logger().Printf("✗ Failed to set up HubSpot properties for site %s: %v", site.Domain, err)
	}

	result, err := s.SyncSite(ctx, runID, site, crm, src, total, batchSize)
	if schemaErr != nil {
		result.SchemaError = schemaErr.Error()
	}
	if err != nil {
		return result, s.fail(service, err)
	}

	if s.State != nil {
		if err := s.State.MarkIdle(ctx, service, result.Synced); err != nil {
			return result, err
		}
	}

	return result, nil
}

// fail records a fatal site error and returns it.
func (s *Syncer) fail(service string, err error) error {
	if s.State != nil {
		// The run context may already be cancelled.
		if markErr := s.State.MarkError(context.Background(), service, err.Error()); markErr != nil {
			s.logger().Printf("failed to record sync error for %s: %v", service, markErr)
		}
	}
	return err
}

// SyncSite moves a site's users through a queue: each page of the user set is
// appended to the queue, then full batches are flushed to HubSpot. On the last
// page the remainder is flushed as a short batch. Batches that fail on the
// HubSpot side are credited zero; any other error aborts the site.
func (s *Syncer) SyncSite(ctx context.Context, runID string, tenant models.TenantConfig, crm CRM, src *UserBatchSource, total, batchSize int) (SiteResult, error) {
	result := SiteResult{Domain: tenant.Domain}
	if batchSize <= 0 {
		return result, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	s.printf("Syncing process started for site %s\n", tenant.Domain)

	reconciler := &Reconciler{CRM: crm, Store: s.Platform, Owned: s.Owned, Log: s.logger()}

	var queue []models.UserRecord
	for _, window := range src.Windows(total) {
		isLast := window.End() >= total

		s.printf("Syncing users batch from %d to %d for site %s\n", window.Offset, window.End(), tenant.Domain)
		users, err := src.Page(ctx, tenant.Domain, window)
		if err != nil {
			return result, err
		}
		s.printf("\tSite Users=%d\n", len(users))
		queue = append(queue, users...)

		for len(queue) >= batchSize || (isLast && len(queue) > 0) {
			n := min(batchSize, len(queue))
			batch := queue[:n]
			queue = queue[n:]

			synced, skipped, err := s.syncBatch(ctx, runID, result.Batches, tenant, crm, reconciler, batch)
			if err != nil {
				return result, err
			}
			if err := s.pause(ctx); err != nil {
				return result, fmt.Errorf("sync of site %s interrupted: %w", tenant.Domain, err)
			}
			result.Batches++
			result.SkippedUsers += skipped
			result.Synced += synced
			if synced == 0 && skipped < len(batch) {
				result.FailedBatches++
			}
		}

		s.printf("Successfully synced users batch from %d to %d for site %s\n", window.Offset, window.End(), tenant.Domain)
	}

	s.printf("✓ %d contacts found and synced for site %s\n", result.Synced, tenant.Domain)
	return result, nil
}

// syncBatch maps, reconciles and upserts one batch of users. It returns the
// number of contacts synced and users skipped; a non-nil error is fatal.
func (s *Syncer) syncBatch(ctx context.Context, runID string, index int, tenant models.TenantConfig, crm CRM, reconciler *Reconciler, users []models.UserRecord) (int, int, error) {
	contacts := MapBatch(users, s.now(), s.logger())
	skipped := len(users) - len(contacts)

	record := &models.SyncBatch{
		RunID:      runID,
		SiteDomain: tenant.Domain,
		BatchIndex: index,
		Contacts:   len(contacts),
	}

	if len(contacts) == 0 {
		return 0, skipped, s.recordBatch(ctx, record)
	}

	if _, err := reconciler.Reconcile(ctx, tenant, contacts, users); err != nil {
		if ctx.Err() != nil || !errors.Is(err, ErrBatchAborted) {
			return 0, skipped, err
		}
		s.logger().Printf("An error occurred while retrieving contacts for site %s, %v", tenant.Domain, err)
		record.Error = err.Error()
		return 0, skipped, s.recordBatch(ctx, record)
	}

	if err := crm.UpsertContacts(ctx, contacts); err != nil {
		if ctx.Err() != nil {
			return 0, skipped, err
		}
		s.logger().Printf("An error occurred while syncing batch of contacts for site %s, %v", tenant.Domain, err)
		record.Error = err.Error()
		return 0, skipped, s.recordBatch(ctx, record)
	}

	record.Synced = len(contacts)
	return len(contacts), skipped, s.recordBatch(ctx, record)
}

func (s *Syncer) recordBatch(ctx context.Context, batch *models.SyncBatch) error {
	if s.State == nil {
		return nil
	}
	return s.State.RecordBatch(ctx, batch)
}

// pause sleeps BatchInterval after a flushed batch, returning early on cancellation.
func (s *Syncer) pause(ctx context.Context) error {
	if s.BatchInterval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.BatchInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Syncer) printf(format string, args ...any) {
	out := s.Out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, args...)
}

func (s *Syncer) logger() *log.Logger {
	if s.Log != nil {
		return s.Log
	}
	return log.Default()
}
