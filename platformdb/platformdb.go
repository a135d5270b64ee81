// ABOUTME: Postgres-backed access to the platform's sites, users, and profiles
// ABOUTME: Implements the same read/write contract as the local sqlite store using a pgx pool
package platformdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/hubsync/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxConns keeps the pool small; the sync issues one query at a time.
const DefaultMaxConns = 4

var ErrProfileNotFound = errors.New("profile not found")

// Repository reads platform data from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an existing pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ParseConfig parses a DSN into a pool configuration tagged with the application name.
func ParseConfig(dsn string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}
	if poolConfig.MaxConns > DefaultMaxConns {
		poolConfig.MaxConns = DefaultMaxConns
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = "hubsync"
	}
	return poolConfig, nil
}

// Open connects to the platform database and verifies the connection.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	poolConfig, err := ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to platform database: %w", err)
	}

	return NewRepository(pool), nil
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// ListSiteConfigs returns every site with its configuration, ordered by site ID.
func (r *Repository) ListSiteConfigs(ctx context.Context) ([]models.TenantConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.domain, s.name, COALESCE(c.enabled, false), COALESCE(c.site_values::text, '{}')
		FROM django_site s
		LEFT JOIN site_configuration_siteconfiguration c ON c.site_id = s.id
		ORDER BY s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query site configurations: %w", err)
	}
	defer rows.Close()

	var sites []models.TenantConfig
	for rows.Next() {
		var site models.TenantConfig
		var values string
		if err := rows.Scan(&site.SiteID, &site.Domain, &site.Name, &site.Enabled, &values); err != nil {
			return nil, fmt.Errorf("failed to scan site configuration: %w", err)
		}
		site.Values, err = models.DecodeSiteValues(values)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Domain, err)
		}
		sites = append(sites, site)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site configurations: %w", err)
	}

	return sites, nil
}

const userQuery = `
	SELECT u.id, u.username, u.email, u.date_joined, COALESCE(a.value, ''),
		p.user_id, p.name, p.meta, p.state, p.country, p.gender, p.level_of_education, p.goals, p.bio
	FROM auth_user u
	LEFT JOIN auth_userprofile p ON p.user_id = u.id
	LEFT JOIN student_userattribute a ON a.user_id = u.id AND a.name = 'created_on_site'
`

// CountUsersJoinedBetween counts users whose join time falls in [start, end).
func (r *Repository) CountUsersJoinedBetween(ctx context.Context, start, end time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM auth_user WHERE date_joined >= $1 AND date_joined < $2
	`, start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ListUsersJoinedBetween returns a slice of the users joined in [start, end), ordered by ID.
func (r *Repository) ListUsersJoinedBetween(ctx context.Context, start, end time.Time, offset, limit int) ([]models.UserRecord, error) {
	rows, err := r.pool.Query(ctx, userQuery+`
		WHERE u.date_joined >= $1 AND u.date_joined < $2
		ORDER BY u.id
		LIMIT $3 OFFSET $4
	`, start.UTC(), end.UTC(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

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
func (r *Repository) GetUser(ctx context.Context, id int64) (*models.UserRecord, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, userQuery+` WHERE u.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// SetMarketingPreferences overwrites the marketing_preferences list in a user's profile meta.
func (r *Repository) SetMarketingPreferences(ctx context.Context, userID int64, prefs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Safe even after commit
	}()

	var meta string
	err = tx.QueryRow(ctx, `SELECT meta FROM auth_userprofile WHERE user_id = $1 FOR UPDATE`, userID).Scan(&meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("user %d: %w", userID, ErrProfileNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load profile meta: %w", err)
	}

	updated, err := models.SetMetaMarketingPreferences(meta, prefs)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE auth_userprofile SET meta = $1 WHERE user_id = $2`, updated, userID); err != nil {
		return fmt.Errorf("failed to save profile meta: %w", err)
	}

	return tx.Commit(ctx)
}

func scanUser(row pgx.Row) (*models.UserRecord, error) {
	var user models.UserRecord
	var profileUserID *int64
	var name, meta, state, country, gender, education, goals, bio *string

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
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if profileUserID != nil {
		user.Profile = &models.UserProfile{
			UserID:           *profileUserID,
			Name:             deref(name),
			Meta:             deref(meta),
			State:            deref(state),
			Country:          deref(country),
			Gender:           deref(gender),
			LevelOfEducation: deref(education),
			Goals:            deref(goals),
			Bio:              deref(bio),
		}
	}
	user.DateJoined = user.DateJoined.UTC()

	return &user, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
