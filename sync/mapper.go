// ABOUTME: Conversion of platform users into HubSpot contact payloads
// ABOUTME: Reads profile meta and display values and skips users with unusable profiles
package sync

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/hubsync/hubspot"
	"github.com/harperreed/hubsync/models"
)

var ErrSkipUser = errors.New("skipping user")

// MapContact builds the contact payload for a user. Users without a profile,
// with an empty meta blob, or with meta that does not parse are rejected with
// an error wrapping ErrSkipUser.
func MapContact(user models.UserRecord, now time.Time) (models.ContactPayload, error) {
	profile := user.Profile
	if profile == nil {
		return models.ContactPayload{}, fmt.Errorf("%w %s due to no profile found", ErrSkipUser, user.Username)
	}
	if strings.TrimSpace(profile.Meta) == "" {
		return models.ContactPayload{}, fmt.Errorf("%w %s due to no profile meta found", ErrSkipUser, user.Username)
	}
	meta, err := models.ParseProfileMeta(profile.Meta)
	if err != nil {
		return models.ContactPayload{}, fmt.Errorf("%w %s due to invalid profile meta found: %w", ErrSkipUser, user.Username, err)
	}

	firstName, lastName := models.SplitFullName(profile.Name)

	contact := models.ContactPayload{
		Email: user.Email,
		Properties: []models.ContactProperty{
			{Property: hubspot.PropertyFirstName, Value: metaOr(meta.FirstName, firstName)},
			{Property: hubspot.PropertyLastName, Value: metaOr(meta.LastName, lastName)},
			{Property: hubspot.PropertyCompany, Value: metaOr(meta.Company, "")},
			{Property: hubspot.PropertyJobTitle, Value: metaOr(meta.JobTitle, "")},
			{Property: hubspot.PropertyIndustry, Value: metaOr(meta.Profession, "")},
			{Property: hubspot.PropertyState, Value: profile.StateDisplay()},
			{Property: hubspot.PropertyCountry, Value: profile.CountryDisplay()},
			{Property: hubspot.PropertyGender, Value: profile.GenderDisplay()},
			{Property: hubspot.PropertyDegree, Value: profile.EducationDisplay()},
			{Property: hubspot.PropertyGoals, Value: profile.Goals},
			{Property: hubspot.PropertyBio, Value: profile.Bio},
			{Property: hubspot.PropertyCommunicationPreference, Value: strings.Join(meta.MarketingPreferences, PreferenceSeparator)},
			{Property: hubspot.PropertyLastSynced, Value: strconv.FormatInt(now.UTC().UnixMilli(), 10)},
		},
	}

	return contact, nil
}

func metaOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}

// MapBatch maps users in order, logging and dropping the ones that are skipped.
func MapBatch(users []models.UserRecord, now time.Time, logger *log.Logger) []models.ContactPayload {
	contacts := make([]models.ContactPayload, 0, len(users))
	for _, user := range users {
		contact, err := MapContact(user, now)
		if err != nil {
			if logger != nil {
				logger.Printf("%v", err)
			}
			continue
		}
		contacts = append(contacts, contact)
	}
	return contacts
}
