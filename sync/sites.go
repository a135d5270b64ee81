// ABOUTME: Selection of tenant sites that have HubSpot integration configured
// ABOUTME: Filters site configurations down to the ones carrying an API key
package sync

import "github.com/harperreed/hubsync/models"

// SelectEnabledSites returns the enabled sites whose HUBSPOT_API_KEY is a
// non-empty string, preserving input order.
func SelectEnabledSites(sites []models.TenantConfig) []models.TenantConfig {
	var selected []models.TenantConfig
	for _, site := range sites {
		if site.Enabled && site.HubSpotAPIKey() != "" {
			selected = append(selected, site)
		}
	}
	return selected
}

// FindSite returns the site with the given domain.
func FindSite(sites []models.TenantConfig, domain string) (models.TenantConfig, bool) {
	for _, site := range sites {
		if site.Domain == domain {
			return site, true
		}
	}
	return models.TenantConfig{}, false
}
