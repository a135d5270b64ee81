// ABOUTME: Unit tests for the scheduled sync daemon
// ABOUTME: Tests schedule parsing and overlap handling of the cron runner
package cli

import (
	"bytes"
	"log"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		shouldParse bool
	}{
		{name: "daily descriptor", schedule: "@daily", shouldParse: true},
		{name: "hourly descriptor", schedule: "@hourly", shouldParse: true},
		{name: "every interval", schedule: "@every 15m", shouldParse: true},
		{name: "five fields", schedule: "0 3 * * *", shouldParse: true},
		{name: "six fields with seconds", schedule: "30 0 3 * * *", shouldParse: true},
		{name: "invalid minute", schedule: "61 * * * *", shouldParse: false},
		{name: "unknown descriptor", schedule: "@fortnightly", shouldParse: false},
		{name: "invalid format", schedule: "invalid", shouldParse: false},
		{name: "empty string", schedule: "", shouldParse: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSchedule(tt.schedule)
			if tt.shouldParse && err != nil {
				t.Errorf("expected schedule to parse, got error: %v", err)
			}
			if !tt.shouldParse && err == nil {
				t.Errorf("expected schedule %q to fail parsing", tt.schedule)
			}
		})
	}
}

func TestParseScheduleNextRun(t *testing.T) {
	schedule, err := parseSchedule("0 3 * * *")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	from := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	next := schedule.Next(from)
	expected := time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("expected next run %s, got %s", expected, next)
	}
}

// TestSchedulerSkipsOverlappingRuns verifies a tick is dropped while the previous run is going.
func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	var buf bytes.Buffer
	scheduler := newScheduler(log.New(&buf, "", 0))

	var started atomic.Int32
	release := make(chan struct{})

	_, err := scheduler.AddFunc("@every 1s", func() {
		started.Add(1)
		<-release
	})
	if err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}

	scheduler.Start()
	time.Sleep(3500 * time.Millisecond)
	close(release)
	<-scheduler.Stop().Done()

	if got := started.Load(); got != 1 {
		t.Errorf("expected exactly 1 run while the first was blocked, got %d", got)
	}
}
