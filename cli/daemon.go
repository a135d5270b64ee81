// ABOUTME: Scheduled sync daemon
// ABOUTME: Runs the HubSpot sync on a cron schedule until interrupted, skipping overlapping runs
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/hubsync/config"
	"github.com/harperreed/hubsync/sync"
	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// parseSchedule validates a cron expression or descriptor such as "@daily".
func parseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// newScheduler returns a cron runner that drops a tick while the previous run is still going.
func newScheduler(logger *log.Logger) *cron.Cron {
	cronLogger := cron.PrintfLogger(logger)
	return cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
}

// DaemonCommand runs the sync on a schedule
func DaemonCommand(database *sql.DB, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	schedule := fs.String("schedule", cfg.Sync.Schedule, "Cron expression or descriptor (e.g. @daily, \"0 3 * * *\")")
	initialSyncDays := fs.Int("initial-sync-days", sync.DefaultInitialSyncDays, "Sync users who joined this many days before today")
	batchSize := fs.Int("batch-size", sync.DefaultBatchSize, "Contacts per HubSpot batch")
	runNow := fs.Bool("run-now", false, "Run a sync immediately before waiting for the schedule")
	_ = fs.Parse(args)

	if _, err := parseSchedule(*schedule); err != nil {
		return err
	}
	opts := sync.Options{InitialSyncDays: *initialSyncDays, BatchSize: *batchSize}
	if opts.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	platform, closePlatform, err := openPlatform(ctx, database, cfg)
	if err != nil {
		return err
	}
	defer closePlatform()

	syncer := newSyncer(platform, database, cfg, os.Stdout)
	logger := log.Default()

	job := func() {
		result, err := syncer.Run(ctx, opts)
		if err != nil {
			logger.Printf("✗ Scheduled sync failed: %v", err)
			return
		}
		logger.Printf("✓ Scheduled sync %s finished: %d contacts synced across %d sites", result.RunID, result.Synced(), len(result.Sites))
	}

	scheduler := newScheduler(logger)
	if _, err := scheduler.AddFunc(*schedule, job); err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}

	fmt.Printf("Starting sync daemon (schedule %s)\n", *schedule)
	fmt.Println("Press Ctrl+C to stop")

	if *runNow {
		job()
	}

	scheduler.Start()
	<-ctx.Done()

	fmt.Println("\nShutting down, waiting for the running sync to stop...")
	<-scheduler.Stop().Done()
	fmt.Println("✓ Daemon stopped")

	return nil
}
