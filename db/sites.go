// ABOUTME: Site and site configuration database operations
// ABOUTME: Loads tenant configurations and stores site values as JSON
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harperreed/hubsync/models"
)

var ErrSiteNotFound = errors.New("site not found")

// PlatformRepository reads and writes the platform tables held in the local database.
type PlatformRepository struct {
	db *sql.DB
}

// NewPlatformRepository creates a new platform repository.
func NewPlatformRepository(db *sql.DB) *PlatformRepository {
	return &PlatformRepository{db: db}
}

// ListSiteConfigs returns every site with its configuration, ordered by site ID.
// Sites without a configuration row are returned disabled with no values.
func (r *PlatformRepository) ListSiteConfigs(ctx context.Context) ([]models.TenantConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.domain, s.name, COALESCE(c.enabled, 0), COALESCE(c.site_values, '{}')
		FROM django_site s
		LEFT JOIN site_configuration_siteconfiguration c ON c.site_id = s.id
		ORDER BY s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query site configurations: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// GetSiteConfig returns the configuration for a site domain.
func (r *PlatformRepository) GetSiteConfig(ctx context.Context, domain string) (*models.TenantConfig, error) {
	var site models.TenantConfig
	var values string
	err := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.domain, s.name, COALESCE(c.enabled, 0), COALESCE(c.site_values, '{}')
		FROM django_site s
		LEFT JOIN site_configuration_siteconfiguration c ON c.site_id = s.id
		WHERE s.domain = ?
	`, domain).Scan(&site.SiteID, &site.Domain, &site.Name, &site.Enabled, &values)

	if err == sql.ErrNoRows {
		return nil, ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site configuration: %w", err)
	}

	site.Values, err = models.DecodeSiteValues(values)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site.Domain, err)
	}
	return &site, nil
}

// SaveSiteConfig creates the site if needed and replaces its configuration.
func (r *PlatformRepository) SaveSiteConfig(ctx context.Context, site *models.TenantConfig) error {
	values := site.Values
	if values == nil {
		values = map[string]any{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode site values: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO django_site (domain, name) VALUES (?, ?)
		ON CONFLICT(domain) DO UPDATE SET name = excluded.name
	`, site.Domain, site.Name)
	if err != nil {
		return fmt.Errorf("failed to save site: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT id FROM django_site WHERE domain = ?`, site.Domain).Scan(&site.SiteID); err != nil {
		return fmt.Errorf("failed to load site id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO site_configuration_siteconfiguration (site_id, enabled, site_values)
		VALUES (?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET
			enabled = excluded.enabled,
			site_values = excluded.site_values
	`, site.SiteID, site.Enabled, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to save site configuration: %w", err)
	}

	return tx.Commit()
}
