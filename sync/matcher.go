// ABOUTME: Email matching between HubSpot contacts and platform users
// ABOUTME: Joins records on trimmed, lower-cased email addresses
package sync

import (
	"strings"

	"github.com/harperreed/hubsync/models"
)

type UserMatcher struct {
	byEmail map[string]*models.UserRecord
}

// NewUserMatcher creates a matcher over a batch of users.
// When two users share an email the later one wins.
func NewUserMatcher(users []models.UserRecord) *UserMatcher {
	m := &UserMatcher{
		byEmail: make(map[string]*models.UserRecord, len(users)),
	}

	for i := range users {
		email := normalizeEmail(users[i].Email)
		if email != "" {
			m.byEmail[email] = &users[i]
		}
	}

	return m
}

// FindMatch looks for a user by email.
func (m *UserMatcher) FindMatch(email string) (*models.UserRecord, bool) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, false
	}

	user, found := m.byEmail[normalized]
	return user, found
}

// normalizeEmail converts email to lowercase for comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
