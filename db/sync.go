// ABOUTME: Database operations for sync_state and sync_batches tables
// ABOUTME: Tracks per-site sync status and records the outcome of every flushed contact batch
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/hubsync/models"
)

// SyncStateRepository persists sync bookkeeping.
type SyncStateRepository struct {
	db *sql.DB
}

// NewSyncStateRepository creates a new sync state repository.
func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// GetSyncState retrieves the sync state for a service, or nil if it never ran.
func (r *SyncStateRepository) GetSyncState(ctx context.Context, service string) (*models.SyncState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT service, last_sync_time, last_run_id, last_synced_count, status, error_message, created_at, updated_at
		FROM sync_state
		WHERE service = ?
	`, service)

	state, err := scanSyncState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return state, nil
}

// MarkSyncing records that a run started for a service.
func (r *SyncStateRepository) MarkSyncing(ctx context.Context, service, runID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (service, last_run_id, status, created_at, updated_at)
		VALUES (?, ?, 'syncing', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			last_run_id = excluded.last_run_id,
			status = 'syncing',
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, service, runID)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

// MarkIdle records a completed run and its synced contact count.
func (r *SyncStateRepository) MarkIdle(ctx context.Context, service string, synced int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (service, last_sync_time, last_synced_count, status, created_at, updated_at)
		VALUES (?, CURRENT_TIMESTAMP, ?, 'idle', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			last_sync_time = CURRENT_TIMESTAMP,
			last_synced_count = excluded.last_synced_count,
			status = 'idle',
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, service, synced)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

// MarkError records a run that aborted.
func (r *SyncStateRepository) MarkError(ctx context.Context, service, message string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (service, status, error_message, created_at, updated_at)
		VALUES (?, 'error', ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			status = 'error',
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, service, message)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

// RecordBatch stores the outcome of one flushed contact batch.
func (r *SyncStateRepository) RecordBatch(ctx context.Context, batch *models.SyncBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}

	var errMsg sql.NullString
	if batch.Error != "" {
		errMsg = sql.NullString{String: batch.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_batches (id, run_id, site_domain, batch_index, contacts, synced, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, batch.ID.String(), batch.RunID, batch.SiteDomain, batch.BatchIndex, batch.Contacts, batch.Synced, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record sync batch: %w", err)
	}
	return nil
}

// ListBatches returns the batches recorded for a run and site, in flush order.
func (r *SyncStateRepository) ListBatches(ctx context.Context, runID, siteDomain string) ([]models.SyncBatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, site_domain, batch_index, contacts, synced, error, created_at
		FROM sync_batches
		WHERE run_id = ? AND site_domain = ?
		ORDER BY batch_index
	`, runID, siteDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []models.SyncBatch
	for rows.Next() {
		var b models.SyncBatch
		var id string
		var errMsg sql.NullString
		if err := rows.Scan(&id, &b.RunID, &b.SiteDomain, &b.BatchIndex, &b.Contacts, &b.Synced, &errMsg, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync batch: %w", err)
		}
		b.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid sync batch id %q: %w", id, err)
		}
		b.Error = errMsg.String
		batches = append(batches, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync batches: %w", err)
	}

	return batches, nil
}

// GetAllSyncStates retrieves the sync state for all services.
func (r *SyncStateRepository) GetAllSyncStates(ctx context.Context) ([]models.SyncState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT service, last_sync_time, last_run_id, last_synced_count, status, error_message, created_at, updated_at
		FROM sync_state
		ORDER BY service
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []models.SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		states = append(states, *state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}

	return states, nil
}

func scanSyncState(row rowScanner) (*models.SyncState, error) {
	var state models.SyncState
	var lastSyncTime sql.NullTime
	var lastRunID sql.NullString
	var status sql.NullString
	var errorMessage sql.NullString

	err := row.Scan(
		&state.Service,
		&lastSyncTime,
		&lastRunID,
		&state.LastSyncedCount,
		&status,
		&errorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	state.LastRunID = lastRunID.String
	state.Status = status.String
	state.ErrorMessage = errorMessage.String

	return &state, nil
}
