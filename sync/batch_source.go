// ABOUTME: Paged retrieval of recently joined users scoped to a site
// ABOUTME: Computes the UTC join-date range and slices the id-ordered user set into windows
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/hubsync/models"
)

// DefaultUsersPageSize is how many users are pulled from the directory per window.
const DefaultUsersPageSize = 5000

// UserDirectory is the platform's user store.
type UserDirectory interface {
	CountUsersJoinedBetween(ctx context.Context, start, end time.Time) (int, error)
	ListUsersJoinedBetween(ctx context.Context, start, end time.Time, offset, limit int) ([]models.UserRecord, error)
}

// UserBatchSource pages through users who joined within a lookback range.
// The same range and ordering are used for every site in a run.
type UserBatchSource struct {
	dir      UserDirectory
	start    time.Time
	end      time.Time
	pageSize int
}

// NewUserBatchSource covers the UTC calendar days from now-lookbackDays through now.
func NewUserBatchSource(dir UserDirectory, lookbackDays, pageSize int, now time.Time) *UserBatchSource {
	if lookbackDays < 0 {
		lookbackDays = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultUsersPageSize
	}

	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	return &UserBatchSource{
		dir:      dir,
		start:    today.AddDate(0, 0, -lookbackDays),
		end:      today.AddDate(0, 0, 1),
		pageSize: pageSize,
	}
}

// Range returns the join-time range as [start, end).
func (s *UserBatchSource) Range() (time.Time, time.Time) {
	return s.start, s.end
}

// FirstDay and LastDay are the inclusive calendar dates of the range.
func (s *UserBatchSource) FirstDay() time.Time {
	return s.start
}

func (s *UserBatchSource) LastDay() time.Time {
	return s.end.AddDate(0, 0, -1)
}

func (s *UserBatchSource) PageSize() int {
	return s.pageSize
}

// Count returns how many users joined in range across all sites.
func (s *UserBatchSource) Count(ctx context.Context) (int, error) {
	count, err := s.dir.CountUsersJoinedBetween(ctx, s.start, s.end)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Page returns the users in window that registered on domain, in id order.
func (s *UserBatchSource) Page(ctx context.Context, domain string, window models.SyncWindow) ([]models.UserRecord, error) {
	users, err := s.dir.ListUsersJoinedBetween(ctx, s.start, s.end, window.Offset, window.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users %d-%d: %w", window.Offset, window.End(), err)
	}

	var siteUsers []models.UserRecord
	for _, user := range users {
		if user.CreatedOnSite == domain {
			siteUsers = append(siteUsers, user)
		}
	}
	return siteUsers, nil
}

// Windows splits [0, total) into consecutive page-sized windows.
func (s *UserBatchSource) Windows(total int) []models.SyncWindow {
	var windows []models.SyncWindow
	for offset := 0; offset < total; offset += s.pageSize {
		windows = append(windows, models.SyncWindow{Offset: offset, Size: s.pageSize})
	}
	return windows
}
