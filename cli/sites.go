// ABOUTME: Site configuration CLI commands
// ABOUTME: Lists sites with their HubSpot settings and merges HubSpot keys into a local site
package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/harperreed/hubsync/config"
	"github.com/harperreed/hubsync/db"
	"github.com/harperreed/hubsync/models"
	"github.com/harperreed/hubsync/sync"
)

// SitesCommand lists sites and whether each one is HubSpot enabled
func SitesCommand(database *sql.DB, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("sites", flag.ExitOnError)
	all := fs.Bool("all", false, "Include sites that are not HubSpot enabled")
	_ = fs.Parse(args)

	ctx := context.Background()

	platform, closePlatform, err := openPlatform(ctx, database, cfg)
	if err != nil {
		return err
	}
	defer closePlatform()

	configs, err := platform.ListSiteConfigs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	enabled := map[string]bool{}
	for _, site := range sync.SelectEnabledSites(configs) {
		enabled[site.Domain] = true
	}

	fmt.Printf("%d hubspot enabled sites found.\n\n", len(enabled))

	shown := 0
	for _, site := range configs {
		if !enabled[site.Domain] && !*all {
			continue
		}
		shown++

		marker := "✓"
		if !enabled[site.Domain] {
			marker = "✗"
		}
		fmt.Printf("%s %s", marker, site.Domain)
		if site.Name != "" && site.Name != site.Domain {
			fmt.Printf(" (%s)", site.Name)
		}
		fmt.Println()
		fmt.Printf("    API key: %s\n", maskSecret(site.HubSpotAPIKey()))
		if appID := site.HubSpotAppID(); appID != "" {
			fmt.Printf("    App ID:  %s\n", appID)
		}
		if !site.Enabled {
			fmt.Println("    Site configuration disabled")
		}
	}

	if shown == 0 && *all {
		fmt.Println("No sites found.")
	}

	return nil
}

// SiteAddCommand creates a site in the local database or updates the HubSpot
// keys given on the command line. Other site values are kept.
func SiteAddCommand(database *sql.DB, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("site-add", flag.ExitOnError)
	domain := fs.String("domain", "", "Site domain (required)")
	name := fs.String("name", "", "Site display name")
	apiKey := fs.String("api-key", "", "HubSpot private app token")
	appID := fs.String("app-id", "", "HubSpot app ID that writes from this site are attributed to")
	disabled := fs.Bool("disabled", false, "Save the configuration as disabled")
	_ = fs.Parse(args)

	if *domain == "" {
		return fmt.Errorf("--domain is required")
	}
	if cfg.Platform.DSN != "" {
		return fmt.Errorf("site configuration in the platform database is read-only; manage it on the platform")
	}

	ctx := context.Background()
	repo := db.NewPlatformRepository(database)

	site, err := repo.GetSiteConfig(ctx, *domain)
	switch {
	case errors.Is(err, db.ErrSiteNotFound):
		site = &models.TenantConfig{Domain: *domain, Name: *domain, Enabled: true}
	case err != nil:
		return fmt.Errorf("failed to load site: %w", err)
	}
	if site.Values == nil {
		site.Values = map[string]any{}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			if *name != "" {
				site.Name = *name
			}
		case "api-key":
			setSiteValue(site.Values, models.SiteValueHubSpotAPIKey, *apiKey)
		case "app-id":
			setSiteValue(site.Values, models.SiteValueHubSpotAppID, *appID)
		case "disabled":
			site.Enabled = !*disabled
		}
	})

	if err := repo.SaveSiteConfig(ctx, site); err != nil {
		return fmt.Errorf("failed to save site: %w", err)
	}

	fmt.Printf("✓ Saved site %s (ID: %d)\n", site.Domain, site.SiteID)
	if site.Enabled && site.HubSpotAPIKey() != "" {
		fmt.Println("  → HubSpot sync enabled")
	} else {
		fmt.Println("  → HubSpot sync disabled (needs an enabled configuration and an API key)")
	}

	return nil
}

// setSiteValue sets key, or removes it when value is empty.
func setSiteValue(values map[string]any, key, value string) {
	if value == "" {
		delete(values, key)
		return
	}
	values[key] = value
}

// maskSecret keeps only the last four characters of a secret.
func maskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
