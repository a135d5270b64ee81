// ABOUTME: Contact batch read and batch upsert operations
// ABOUTME: Reads current preference state with history by email and upserts mapped contacts
package hubspot

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harperreed/hubsync/models"
)

// Contact property names written by the sync.
const (
	PropertyEmail                   = "email"
	PropertyFirstName               = "firstname"
	PropertyLastName                = "lastname"
	PropertyCompany                 = "company"
	PropertyJobTitle                = "futuresjobtitle"
	PropertyIndustry                = "futuresindustry"
	PropertyState                   = "state"
	PropertyCountry                 = "country"
	PropertyGender                  = "gender"
	PropertyDegree                  = "degree"
	PropertyGoals                   = "futuresgoals"
	PropertyBio                     = "futuresbio"
	PropertyCommunicationPreference = "communication_preference"
	PropertyLastSynced              = "last_synced_with_futures"
)

// BatchReadLimit is the maximum number of inputs HubSpot accepts per batch read.
const BatchReadLimit = 100

type batchReadInput struct {
	ID string `json:"id"`
}

type batchReadRequest struct {
	PropertiesWithHistory []string         `json:"propertiesWithHistory"`
	Properties            []string         `json:"properties"`
	IDProperty            string           `json:"idProperty"`
	Inputs                []batchReadInput `json:"inputs"`
}

type batchReadResult struct {
	ID                    string                                   `json:"id"`
	Properties            map[string]*string                       `json:"properties"`
	PropertiesWithHistory map[string][]models.PropertyHistoryEntry `json:"propertiesWithHistory"`
}

type batchReadResponse struct {
	Status  string            `json:"status"`
	Results []batchReadResult `json:"results"`
}

// BatchReadContacts reads the email, preference, and last-synced properties plus
// the preference history of the contacts with the given emails. Emails HubSpot
// does not know are absent from the result.
func (c *Client) BatchReadContacts(ctx context.Context, emails []string) ([]models.CrmContactState, error) {
	var contacts []models.CrmContactState

	for start := 0; start < len(emails); start += BatchReadLimit {
		end := min(start+BatchReadLimit, len(emails))

		req := batchReadRequest{
			PropertiesWithHistory: []string{PropertyCommunicationPreference},
			Properties:            []string{PropertyEmail, PropertyCommunicationPreference, PropertyLastSynced},
			IDProperty:            PropertyEmail,
			Inputs:                make([]batchReadInput, 0, end-start),
		}
		for _, email := range emails[start:end] {
			req.Inputs = append(req.Inputs, batchReadInput{ID: email})
		}

		var resp batchReadResponse
		if err := c.do(ctx, http.MethodPost, "crm/v3/objects/contacts/batch/read", req, &resp); err != nil {
			return nil, fmt.Errorf("failed to read contacts: %w", err)
		}

		for _, result := range resp.Results {
			state := models.CrmContactState{
				ID:                result.ID,
				Properties:        result.Properties,
				PreferenceHistory: result.PropertiesWithHistory[PropertyCommunicationPreference],
			}
			if state.Properties == nil {
				state.Properties = map[string]*string{}
			}
			state.Email, _ = state.Property(PropertyEmail)
			contacts = append(contacts, state)
		}
	}

	return contacts, nil
}

// UpsertContacts creates or updates contacts keyed by email in a single request.
func (c *Client) UpsertContacts(ctx context.Context, contacts []models.ContactPayload) error {
	if len(contacts) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "contacts/v1/contact/batch/", contacts, nil); err != nil {
		return fmt.Errorf("failed to upsert %d contacts: %w", len(contacts), err)
	}
	return nil
}
