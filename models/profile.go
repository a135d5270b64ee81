// ABOUTME: Typed view over the user profile meta blob and categorical display values
// ABOUTME: Parses documented meta keys and maps profile choice codes to display labels
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Profile meta keys read by the sync.
const (
	MetaFirstName            = "first_name"
	MetaLastName             = "last_name"
	MetaCompany              = "company"
	MetaJobTitle             = "job_title"
	MetaProfession           = "profession"
	MetaMarketingPreferences = "marketing_preferences"
)

var ErrInvalidMeta = errors.New("invalid profile meta")

// ProfileMeta holds the documented keys of a profile meta blob.
// A nil string pointer means the key was absent; a JSON null counts as present and empty.
type ProfileMeta struct {
	FirstName            *string
	LastName             *string
	Company              *string
	JobTitle             *string
	Profession           *string
	MarketingPreferences []string
}

// ParseProfileMeta parses a serialized meta blob.
// The blob must be a JSON object and documented keys must hold strings
// (or, for marketing_preferences, a list of strings).
func ParseProfileMeta(blob string) (*ProfileMeta, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMeta, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidMeta)
	}

	meta := &ProfileMeta{}
	fields := []struct {
		key string
		dst **string
	}{
		{MetaFirstName, &meta.FirstName},
		{MetaLastName, &meta.LastName},
		{MetaCompany, &meta.Company},
		{MetaJobTitle, &meta.JobTitle},
		{MetaProfession, &meta.Profession},
	}
	for _, f := range fields {
		value, ok := raw[f.key]
		if !ok {
			continue
		}
		var s *string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMeta, f.key, err)
		}
		if s == nil {
			s = new(string)
		}
		*f.dst = s
	}

	if value, ok := raw[MetaMarketingPreferences]; ok {
		if err := json.Unmarshal(value, &meta.MarketingPreferences); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMeta, MetaMarketingPreferences, err)
		}
	}

	return meta, nil
}

// SetMetaMarketingPreferences rewrites the marketing_preferences key of a meta blob,
// keeping every other key untouched.
func SetMetaMarketingPreferences(blob string, prefs []string) (string, error) {
	raw := map[string]json.RawMessage{}
	if strings.TrimSpace(blob) != "" {
		if err := json.Unmarshal([]byte(blob), &raw); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidMeta, err)
		}
		if raw == nil {
			raw = map[string]json.RawMessage{}
		}
	}
	if prefs == nil {
		prefs = []string{}
	}
	encoded, err := json.Marshal(prefs)
	if err != nil {
		return "", err
	}
	raw[MetaMarketingPreferences] = encoded

	out, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SplitFullName splits a display name on the first space.
// A name without a space yields two empty parts.
func SplitFullName(fullName string) (string, string) {
	first, last, found := strings.Cut(fullName, " ")
	if !found {
		return "", ""
	}
	return first, last
}

var genderLabels = map[string]string{
	"m": "Male",
	"f": "Female",
	"o": "Other/Prefer Not to Say",
}

var educationLabels = map[string]string{
	"p":     "Doctorate",
	"m":     "Master's or professional degree",
	"b":     "Bachelor's degree",
	"a":     "Associate degree",
	"hs":    "Secondary/high school",
	"jhs":   "Junior secondary/junior high/middle school",
	"el":    "Elementary/primary school",
	"none":  "No formal education",
	"other": "Other education",
}

func choiceLabel(labels map[string]string, code string) string {
	if label, ok := labels[code]; ok {
		return label
	}
	return code
}

func (p *UserProfile) GenderDisplay() string {
	return choiceLabel(genderLabels, p.Gender)
}

func (p *UserProfile) EducationDisplay() string {
	return choiceLabel(educationLabels, p.LevelOfEducation)
}

// StateDisplay returns the state as stored; states carry no label table.
func (p *UserProfile) StateDisplay() string {
	return p.State
}

// CountryDisplay returns the English country name for an ISO 3166 code.
func (p *UserProfile) CountryDisplay() string {
	code := strings.TrimSpace(p.Country)
	if code == "" {
		return ""
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return code
}
