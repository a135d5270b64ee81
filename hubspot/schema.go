// ABOUTME: Custom contact property definitions owned by the sync
// ABOUTME: Creates missing properties and refreshes existing ones before a tenant is synced
package hubspot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// PropertyGroup is the HubSpot property group the custom properties live in.
const PropertyGroup = "hdruk_properties"

// PropertyDefinition is a HubSpot contact property definition.
type PropertyDefinition struct {
	Hidden          bool   `json:"hidden"`
	DisplayOrder    int    `json:"displayOrder"`
	Description     string `json:"description"`
	Label           string `json:"label"`
	Type            string `json:"type"`
	GroupName       string `json:"groupName"`
	Name            string `json:"name"`
	FieldType       string `json:"fieldType"`
	FormField       bool   `json:"formField"`
	HasUniqueValue  bool   `json:"hasUniqueValue"`
	ExternalOptions bool   `json:"externalOptions"`
}

func textareaProperty(name, label, description string) PropertyDefinition {
	return PropertyDefinition{
		DisplayOrder: -1,
		Description:  description,
		Label:        label,
		Type:         "string",
		GroupName:    PropertyGroup,
		Name:         name,
		FieldType:    "textarea",
		FormField:    true,
	}
}

// ContactProperties lists the custom properties the sync writes, in setup order.
var ContactProperties = []PropertyDefinition{
	textareaProperty(PropertyJobTitle, "Futures Job Title", "Contact's Job Title on Futures"),
	textareaProperty(PropertyIndustry, "Futures Industry", "Contact's profession on Futures"),
	textareaProperty(PropertyGoals, "Futures Goals", "Goals that learner would like to achieve with Futures"),
	textareaProperty(PropertyBio, "Futures Biography", "Contact's biography on Futures"),
	{
		DisplayOrder: -1,
		Description:  "Date and time that contact was last synced with Futures data.",
		Label:        "Last Synced with Futures",
		Type:         "datetime",
		GroupName:    PropertyGroup,
		Name:         PropertyLastSynced,
		FieldType:    "date",
		FormField:    false,
	},
}

// PropertyChange reports what EnsureContactProperties did to one property.
type PropertyChange struct {
	Name    string
	Label   string
	Created bool
}

// EnsureContactProperties creates each custom property that does not exist and
// updates the ones that do. It stops at the first failure and returns the
// changes applied so far.
func (c *Client) EnsureContactProperties(ctx context.Context) ([]PropertyChange, error) {
	var changes []PropertyChange

	for _, prop := range ContactProperties {
		path := "crm/v3/properties/contact/" + url.PathEscape(prop.Name)

		err := c.do(ctx, http.MethodGet, path, nil, nil)
		var httpErr *HTTPError
		switch {
		case err == nil:
			if err := c.do(ctx, http.MethodPatch, path, prop, nil); err != nil {
				return changes, fmt.Errorf("failed to update property %s: %w", prop.Name, err)
			}
			changes = append(changes, PropertyChange{Name: prop.Name, Label: prop.Label})
		case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
			if err := c.do(ctx, http.MethodPost, "crm/v3/properties/contact", prop, nil); err != nil {
				return changes, fmt.Errorf("failed to create property %s: %w", prop.Name, err)
			}
			changes = append(changes, PropertyChange{Name: prop.Name, Label: prop.Label, Created: true})
		default:
			return changes, fmt.Errorf("failed to look up property %s: %w", prop.Name, err)
		}
	}

	return changes, nil
}
