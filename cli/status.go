// ABOUTME: Sync status CLI command
// ABOUTME: Shows per-site sync state and the batches recorded for the last run
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/harperreed/hubsync/db"
	"github.com/harperreed/hubsync/sync"
)

// StatusCommand shows the last sync state of every site
func StatusCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	site := fs.String("site", "", "Show the batches of this site's last run")
	_ = fs.Parse(args)

	ctx := context.Background()
	repo := db.NewSyncStateRepository(database)

	if *site == "" {
		states, err := repo.GetAllSyncStates(ctx)
		if err != nil {
			return err
		}
		fmt.Print(RenderSyncStates(states, isTerminal(os.Stdout)))
		return nil
	}

	state, err := repo.GetSyncState(ctx, sync.ServiceName(*site))
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Printf("Site %s has never been synced.\n", *site)
		return nil
	}

	fmt.Printf("Site:    %s\n", *site)
	fmt.Printf("Status:  %s\n", state.Status)
	if state.LastSyncTime != nil {
		fmt.Printf("Synced:  %d contacts at %s\n", state.LastSyncedCount, state.LastSyncTime.Local().Format("2006-01-02 15:04:05"))
	}
	if state.ErrorMessage != "" {
		fmt.Printf("Error:   %s\n", state.ErrorMessage)
	}
	if state.LastRunID == "" {
		return nil
	}

	batches, err := repo.ListBatches(ctx, state.LastRunID, *site)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun %s: %d batches\n", state.LastRunID, len(batches))
	for _, b := range batches {
		if b.Error != "" {
			fmt.Printf("  ✗ #%d %d contacts: %s\n", b.BatchIndex, b.Contacts, b.Error)
			continue
		}
		fmt.Printf("  ✓ #%d %d/%d contacts synced\n", b.BatchIndex, b.Synced, b.Contacts)
	}

	return nil
}
