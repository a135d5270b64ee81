// ABOUTME: Terminal rendering for sync results and sync status tables
// ABOUTME: Uses lipgloss styles when stdout is a terminal and plain text otherwise
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/hubsync/models"
	"github.com/harperreed/hubsync/sync"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	siteStyle = lipgloss.NewStyle().
			Bold(true).
			Width(32)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// render applies style only when styled output is wanted.
func render(style lipgloss.Style, styled bool, s string) string {
	if !styled {
		return s
	}
	return style.Render(s)
}

// RenderSyncSummary formats a run result, one row per site.
func RenderSyncSummary(result *sync.RunResult, styled bool) string {
	var s strings.Builder

	s.WriteString(render(titleStyle, styled, fmt.Sprintf("HubSpot sync %s", result.RunID)))
	s.WriteString("\n")
	s.WriteString(render(mutedStyle, styled, fmt.Sprintf("%d users in range, %d contacts synced", result.UsersCount, result.Synced())))
	s.WriteString("\n\n")

	if len(result.Sites) == 0 {
		s.WriteString(render(mutedStyle, styled, "No sites synced."))
		s.WriteString("\n")
		return s.String()
	}

	for _, site := range result.Sites {
		s.WriteString(render(siteStyle, styled, site.Domain))
		s.WriteString(" ")

		switch {
		case site.FailedBatches > 0:
			s.WriteString(render(warnStyle, styled, fmt.Sprintf("✗ %d synced, %d of %d batches failed", site.Synced, site.FailedBatches, site.Batches)))
		default:
			s.WriteString(render(okStyle, styled, fmt.Sprintf("✓ %d synced in %d batches", site.Synced, site.Batches)))
		}
		if site.SkippedUsers > 0 {
			s.WriteString(render(mutedStyle, styled, fmt.Sprintf(" • %d skipped", site.SkippedUsers)))
		}
		s.WriteString("\n")

		if site.SchemaError != "" {
			s.WriteString(render(errorStyle, styled, "  schema: "+site.SchemaError))
			s.WriteString("\n")
		}
	}

	return s.String()
}

// RenderSyncStates formats per-site sync bookkeeping.
func RenderSyncStates(states []models.SyncState, styled bool) string {
	var s strings.Builder

	s.WriteString(render(titleStyle, styled, "HubSpot Sync Status"))
	s.WriteString("\n\n")

	rows := 0
	for _, state := range states {
		domain, ok := sync.DomainFromService(state.Service)
		if !ok {
			continue
		}
		rows++

		s.WriteString(render(siteStyle, styled, domain))
		s.WriteString(" ")

		switch state.Status {
		case models.SyncStatusSyncing:
			s.WriteString(render(warnStyle, styled, "⟳ Syncing..."))
		case models.SyncStatusError:
			s.WriteString(render(errorStyle, styled, "✗ Error"))
			if state.ErrorMessage != "" {
				s.WriteString(render(errorStyle, styled, ": "+state.ErrorMessage))
			}
		default:
			s.WriteString(render(okStyle, styled, "✓ Idle"))
		}

		if state.LastSyncTime != nil {
			s.WriteString(render(mutedStyle, styled, fmt.Sprintf(" • Last synced %s (%d contacts)",
				formatTimeSince(*state.LastSyncTime), state.LastSyncedCount)))
		}
		s.WriteString("\n")
	}

	if rows == 0 {
		s.WriteString(render(mutedStyle, styled, "No sync data found. Run 'hubsync sync' first."))
		s.WriteString("\n")
	}

	return s.String()
}

func formatTimeSince(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
