// ABOUTME: HubSpot sync CLI command
// ABOUTME: Runs a one-shot sync of recently joined users into every HubSpot-enabled site
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/hubsync/config"
	"github.com/harperreed/hubsync/sync"
)

// SyncCommand runs a single HubSpot sync
func SyncCommand(database *sql.DB, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	initialSyncDays := fs.Int("initial-sync-days", sync.DefaultInitialSyncDays, "Sync users who joined this many days before today")
	batchSize := fs.Int("batch-size", sync.DefaultBatchSize, "Contacts per HubSpot batch")
	site := fs.String("site", "", "Only sync this site domain")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	platform, closePlatform, err := openPlatform(ctx, database, cfg)
	if err != nil {
		return err
	}
	defer closePlatform()

	syncer := newSyncer(platform, database, cfg, os.Stdout)
	result, err := syncer.Run(ctx, sync.Options{
		InitialSyncDays: *initialSyncDays,
		BatchSize:       *batchSize,
		Domain:          *site,
	})
	if result != nil {
		fmt.Println()
		fmt.Print(RenderSyncSummary(result, isTerminal(os.Stdout)))
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	return nil
}
