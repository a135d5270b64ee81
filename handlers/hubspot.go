// ABOUTME: HubSpot sync MCP tool handlers
// ABOUTME: Implements list_hubspot_sites, get_sync_status, and sync_site tools
package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/harperreed/hubsync/models"
	"github.com/harperreed/hubsync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SiteLister loads site configurations.
type SiteLister interface {
	ListSiteConfigs(ctx context.Context) ([]models.TenantConfig, error)
}

// StatusReader loads sync bookkeeping.
type StatusReader interface {
	GetSyncState(ctx context.Context, service string) (*models.SyncState, error)
	GetAllSyncStates(ctx context.Context) ([]models.SyncState, error)
}

// SyncRunner runs a sync.
type SyncRunner interface {
	Run(ctx context.Context, opts sync.Options) (*sync.RunResult, error)
}

// ErrSyncRunning is returned by SyncSite while another sync is in progress.
var ErrSyncRunning = errors.New("a sync is already running")

type HubSpotHandlers struct {
	sites  SiteLister
	status StatusReader
	runner SyncRunner

	// Set while a sync_site run is in progress.
	running atomic.Bool
}

func NewHubSpotHandlers(sites SiteLister, status StatusReader, runner SyncRunner) *HubSpotHandlers {
	return &HubSpotHandlers{sites: sites, status: status, runner: runner}
}

type ListSitesInput struct {
	IncludeDisabled bool `json:"include_disabled,omitempty" jsonschema:"Also list sites that are not HubSpot enabled"`
}

type SiteOutput struct {
	Domain         string `json:"domain"`
	Name           string `json:"name,omitempty"`
	Enabled        bool   `json:"enabled"`
	HubSpotEnabled bool   `json:"hubspot_enabled"`
	AppID          string `json:"app_id,omitempty"`
}

type ListSitesOutput struct {
	Sites []SiteOutput `json:"sites"`
}

func (h *HubSpotHandlers) ListHubSpotSites(ctx context.Context, request *mcp.CallToolRequest, input ListSitesInput) (*mcp.CallToolResult, ListSitesOutput, error) {
	configs, err := h.sites.ListSiteConfigs(ctx)
	if err != nil {
		return nil, ListSitesOutput{}, fmt.Errorf("failed to list sites: %w", err)
	}

	enabled := map[string]bool{}
	for _, site := range sync.SelectEnabledSites(configs) {
		enabled[site.Domain] = true
	}

	result := ListSitesOutput{Sites: []SiteOutput{}}
	for _, site := range configs {
		if !enabled[site.Domain] && !input.IncludeDisabled {
			continue
		}
		result.Sites = append(result.Sites, SiteOutput{
			Domain:         site.Domain,
			Name:           site.Name,
			Enabled:        site.Enabled,
			HubSpotEnabled: enabled[site.Domain],
			AppID:          site.HubSpotAppID(),
		})
	}

	return nil, result, nil
}

type SyncStatusInput struct {
	Domain string `json:"domain,omitempty" jsonschema:"Site domain; all sites when empty"`
}

type SyncStateOutput struct {
	Domain          string `json:"domain"`
	Status          string `json:"status"`
	LastSyncTime    string `json:"last_sync_time,omitempty"`
	LastRunID       string `json:"last_run_id,omitempty"`
	LastSyncedCount int    `json:"last_synced_count"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

type SyncStatusOutput struct {
	States []SyncStateOutput `json:"states"`
}

func (h *HubSpotHandlers) GetSyncStatus(ctx context.Context, request *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	result := SyncStatusOutput{States: []SyncStateOutput{}}

	if input.Domain != "" {
		state, err := h.status.GetSyncState(ctx, sync.ServiceName(input.Domain))
		if err != nil {
			return nil, SyncStatusOutput{}, fmt.Errorf("failed to get sync status: %w", err)
		}
		if state == nil {
			result.States = append(result.States, SyncStateOutput{Domain: input.Domain, Status: "never synced"})
		} else {
			result.States = append(result.States, syncStateToOutput(input.Domain, state))
		}
		return nil, result, nil
	}

	states, err := h.status.GetAllSyncStates(ctx)
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to get sync status: %w", err)
	}
	for i := range states {
		domain, ok := sync.DomainFromService(states[i].Service)
		if !ok {
			continue
		}
		result.States = append(result.States, syncStateToOutput(domain, &states[i]))
	}

	return nil, result, nil
}

func syncStateToOutput(domain string, state *models.SyncState) SyncStateOutput {
	out := SyncStateOutput{
		Domain:          domain,
		Status:          state.Status,
		LastRunID:       state.LastRunID,
		LastSyncedCount: state.LastSyncedCount,
		ErrorMessage:    state.ErrorMessage,
	}
	if state.LastSyncTime != nil {
		out.LastSyncTime = state.LastSyncTime.Format(time.RFC3339)
	}
	return out
}

type SyncSiteInput struct {
	Domain          string `json:"domain" jsonschema:"Site domain to sync (required)"`
	InitialSyncDays *int   `json:"initial_sync_days,omitempty" jsonschema:"Days before today to pick users from (default 1)"`
	BatchSize       int    `json:"batch_size,omitempty" jsonschema:"Contacts per HubSpot batch (default 100)"`
}

type SyncSiteOutput struct {
	RunID      string            `json:"run_id"`
	UsersCount int               `json:"users_count"`
	Synced     int               `json:"synced"`
	Sites      []sync.SiteResult `json:"sites"`
}

func (h *HubSpotHandlers) SyncSite(ctx context.Context, request *mcp.CallToolRequest, input SyncSiteInput) (*mcp.CallToolResult, SyncSiteOutput, error) {
	if input.Domain == "" {
		return nil, SyncSiteOutput{}, fmt.Errorf("domain is required")
	}

	opts := sync.Options{
		InitialSyncDays: sync.DefaultInitialSyncDays,
		BatchSize:       input.BatchSize,
		Domain:          input.Domain,
	}
	if input.InitialSyncDays != nil {
		opts.InitialSyncDays = *input.InitialSyncDays
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = sync.DefaultBatchSize
	}

	if !h.running.CompareAndSwap(false, true) {
		return nil, SyncSiteOutput{}, ErrSyncRunning
	}
	defer h.running.Store(false)

	result, err := h.runner.Run(ctx, opts)
	if err != nil {
		return nil, SyncSiteOutput{}, fmt.Errorf("sync failed: %w", err)
	}

	return nil, SyncSiteOutput{
		RunID:      result.RunID,
		UsersCount: result.UsersCount,
		Synced:     result.Synced(),
		Sites:      result.Sites,
	}, nil
}
