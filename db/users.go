// ABOUTME: User, profile, and attribute database operations
// ABOUTME: Pages users joined within a date range and writes marketing preferences back to profile meta
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/hubsync/models"
)

var ErrProfileNotFound = errors.New("profile not found")

const userColumns = `
	u.id, u.username, u.email, u.date_joined, COALESCE(a.value, ''),
	p.user_id, p.name, p.meta, p.state, p.country, p.gender, p.level_of_education, p.goals, p.bio
`

const userJoins = `
	FROM auth_user u
	LEFT JOIN auth_userprofile p ON p.user_id = u.id
	LEFT JOIN student_userattribute a ON a.user_id = u.id AND a.name = 'created_on_site'
`

// CountUsersJoinedBetween counts users whose join time falls in [start, end).
func (r *PlatformRepository) CountUsersJoinedBetween(ctx context.Context, start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM auth_user
		WHERE date_joined >= ? AND date_joined < ?
	`, start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ListUsersJoinedBetween returns a slice of the users joined in [start, end),
// ordered by ID, with profiles and site attribution loaded.
func (r *PlatformRepository) ListUsersJoinedBetween(ctx context.Context, start, end time.Time, offset, limit int) ([]models.UserRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+userJoins+`
		WHERE u.date_joined >= ? AND u.date_joined < ?
		ORDER BY u.id
		LIMIT ? OFFSET ?
	`, start.UTC(), end.UTC(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []models.UserRecord
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// GetUser returns a user with profile and attribution, or nil when not found.
func (r *PlatformRepository) GetUser(ctx context.Context, id int64) (*models.UserRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+userJoins+` WHERE u.id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.UserRecord, error) {
	var user models.UserRecord
	var profileUserID sql.NullInt64
	var name, meta, state, country, gender, education, goals, bio sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DateJoined,
		&user.CreatedOnSite,
		&profileUserID,
		&name,
		&meta,
		&state,
		&country,
		&gender,
		&education,
		&goals,
		&bio,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if profileUserID.Valid {
		user.Profile = &models.UserProfile{
			UserID:           profileUserID.Int64,
			Name:             name.String,
			Meta:             meta.String,
			State:            state.String,
			Country:          country.String,
			Gender:           gender.String,
			LevelOfEducation: education.String,
			Goals:            goals.String,
			Bio:              bio.String,
		}
	}

	return &user, nil
}

// CreateUser inserts a user, its profile (when set) and its site attribution (when set).
func (r *PlatformRepository) CreateUser(ctx context.Context, user *models.UserRecord) error {
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO auth_user (username, email, date_joined) VALUES (?, ?, ?)
	`, user.Username, user.Email, user.DateJoined.UTC())
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}

	if p := user.Profile; p != nil {
		p.UserID = user.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO auth_userprofile (user_id, name, meta, state, country, gender, level_of_education, goals, bio)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.UserID, p.Name, p.Meta, p.State, p.Country, p.Gender, p.LevelOfEducation, p.Goals, p.Bio)
		if err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
	}

	if user.CreatedOnSite != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO student_userattribute (user_id, name, value) VALUES (?, ?, ?)
		`, user.ID, models.AttributeCreatedOnSite, user.CreatedOnSite)
		if err != nil {
			return fmt.Errorf("failed to create user attribute: %w", err)
		}
	}

	return tx.Commit()
}

// SetMarketingPreferences overwrites the marketing_preferences list in a user's profile meta.
func (r *PlatformRepository) SetMarketingPreferences(ctx context.Context, userID int64, prefs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	var meta string
	err = tx.QueryRowContext(ctx, `SELECT meta FROM auth_userprofile WHERE user_id = ?`, userID).Scan(&meta)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user %d: %w", userID, ErrProfileNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load profile meta: %w", err)
	}

	updated, err := models.SetMetaMarketingPreferences(meta, prefs)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE auth_userprofile SET meta = ? WHERE user_id = ?`, updated, userID); err != nil {
		return fmt.Errorf("failed to save profile meta: %w", err)
	}

	return tx.Commit()
}
