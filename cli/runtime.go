// ABOUTME: Shared wiring for commands that talk to the platform and HubSpot
// ABOUTME: Opens the platform store (Postgres or local sqlite) and builds a configured Syncer
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"

	"github.com/harperreed/hubsync/config"
	"github.com/harperreed/hubsync/db"
	"github.com/harperreed/hubsync/platformdb"
	"github.com/harperreed/hubsync/sync"
)

// openPlatform returns the Postgres platform when a DSN is configured and the
// local sqlite tables otherwise. The returned func releases the connection.
func openPlatform(ctx context.Context, database *sql.DB, cfg config.Config) (sync.Platform, func(), error) {
	if cfg.Platform.DSN == "" {
		return db.NewPlatformRepository(database), func() {}, nil
	}

	repo, err := platformdb.Open(ctx, cfg.Platform.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to platform database: %w", err)
	}
	return repo, repo.Close, nil
}

// newSyncer builds a Syncer wired to HubSpot, the platform store and local bookkeeping.
func newSyncer(platform sync.Platform, database *sql.DB, cfg config.Config, out io.Writer) *sync.Syncer {
	return &sync.Syncer{
		Platform:      platform,
		NewCRM:        sync.HubSpotFactory(cfg.HubSpot.BaseURL, cfg.HubSpot.RequestTimeout.Duration),
		State:         db.NewSyncStateRepository(database),
		Owned:         sync.NewPreferenceSet(cfg.Sync.OwnedPreferences...),
		UsersPageSize: cfg.Sync.UsersPageSize,
		BatchInterval: cfg.HubSpot.BatchInterval.Duration,
		Out:           out,
		Log:           log.Default(),
	}
}
