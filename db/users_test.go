// ABOUTME: Tests for user paging and marketing preference persistence
// ABOUTME: Covers date range bounds, ordering, profile loading, and meta rewrites
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/harperreed/hubsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestUser(t *testing.T, repo *PlatformRepository, username string, joined time.Time, site string, profile *models.UserProfile) *models.UserRecord {
	t.Helper()
	user := &models.UserRecord{
		Username:      username,
		Email:         username + "@example.org",
		DateJoined:    joined,
		CreatedOnSite: site,
		Profile:       profile,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func TestListUsersJoinedBetween(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	createTestUser(t, repo, "before", day.Add(-time.Second), "a.example.org", nil)
	first := createTestUser(t, repo, "first", day, "a.example.org", &models.UserProfile{Name: "First User", Meta: `{"company":"Acme"}`, Country: "GB"})
	second := createTestUser(t, repo, "second", day.Add(23*time.Hour), "b.example.org", nil)
	createTestUser(t, repo, "after", day.Add(24*time.Hour), "a.example.org", nil)

	start, end := day, day.Add(24*time.Hour)

	count, err := repo.CountUsersJoinedBetween(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	users, err := repo.ListUsersJoinedBetween(ctx, start, end, 0, 10)
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, first.ID, users[0].ID)
	assert.Equal(t, "first@example.org", users[0].Email)
	assert.Equal(t, "a.example.org", users[0].CreatedOnSite)
	require.NotNil(t, users[0].Profile)
	assert.Equal(t, "First User", users[0].Profile.Name)
	assert.Equal(t, `{"company":"Acme"}`, users[0].Profile.Meta)
	assert.Equal(t, "GB", users[0].Profile.Country)

	assert.Equal(t, second.ID, users[1].ID)
	assert.Equal(t, "b.example.org", users[1].CreatedOnSite)
	assert.Nil(t, users[1].Profile)
}

func TestListUsersJoinedBetweenPaging(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 5; i++ {
		u := createTestUser(t, repo, fmt.Sprintf("user%d", i), day, "a.example.org", nil)
		ids = append(ids, u.ID)
	}

	start, end := day.Add(-time.Hour), day.Add(time.Hour)

	page1, err := repo.ListUsersJoinedBetween(ctx, start, end, 0, 2)
	require.NoError(t, err)
	page2, err := repo.ListUsersJoinedBetween(ctx, start, end, 2, 2)
	require.NoError(t, err)
	page3, err := repo.ListUsersJoinedBetween(ctx, start, end, 4, 2)
	require.NoError(t, err)

	var got []int64
	for _, page := range [][]models.UserRecord{page1, page2, page3} {
		for _, u := range page {
			got = append(got, u.ID)
		}
	}
	assert.Equal(t, ids, got)
	assert.Len(t, page3, 1)
}

func TestGetUser(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	created := createTestUser(t, repo, "alice", time.Now(), "", &models.UserProfile{Name: "Alice"})

	got, err := repo.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.CreatedOnSite)

	missing, err := repo.GetUser(ctx, created.ID+100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSetMarketingPreferences(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	user := createTestUser(t, repo, "bob", time.Now(), "a.example.org", &models.UserProfile{
		Name: "Bob",
		Meta: `{"company":"Acme","marketing_preferences":["Futures eLearning"]}`,
	})

	require.NoError(t, repo.SetMarketingPreferences(ctx, user.ID, []string{"Training Bulletin"}))

	got, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Profile.Meta), &meta))
	assert.Equal(t, "Acme", meta["company"])
	assert.Equal(t, []any{"Training Bulletin"}, meta["marketing_preferences"])
}

func TestSetMarketingPreferencesWithoutProfile(t *testing.T) {
	repo := setupTestDB(t)

	user := createTestUser(t, repo, "carol", time.Now(), "", nil)

	err := repo.SetMarketingPreferences(context.Background(), user.ID, []string{"Training Bulletin"})
	assert.ErrorIs(t, err, ErrProfileNotFound)
}
