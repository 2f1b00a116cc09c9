package models

import "strings"

// Location is a named coordinate. Locations are compared by value and are
// replaced, never mutated, inside the settings list.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Name      string  `json:"name"`
}

type OpenWeather struct {
	AppID string `json:"appId"`
}

type GeoApify struct {
	APIKey string `json:"apiKey"`
}

// Record is the whole remotely persisted settings document. Updates replace
// it wholesale.
type Record struct {
	OpenWeather *OpenWeather `json:"openWeather,omitempty"`
	GeoApify    *GeoApify    `json:"geoapify,omitempty"`
	Locations   []Location   `json:"locations"`
	Themes      []Theme      `json:"themes"`
	Sample      *string      `json:"sample,omitempty"`
}

// SettingsEnvelope wraps the Record as returned by the document store for
// both reads and replacements.
type SettingsEnvelope struct {
	Record Record `json:"record"`
}

// UpdateError is the error body returned by the document store on a
// rejected request.
type UpdateError struct {
	Message string `json:"message"`
}

// Theme is a named set of colors. Each one is either a palette name
// ("white", "clear", ...) or a "#RRGGBB" string.
type Theme struct {
	Name               string  `json:"name"`
	Text               string  `json:"text"`
	Background         string  `json:"background"`
	Day                string  `json:"day"`
	DayBackground      string  `json:"dayBackground"`
	DayText            string  `json:"dayText"`
	DayBackgroundAlpha float64 `json:"dayBackgroundAlpha"`
}

// DefaultTheme is used until the settings document provides themes.
var DefaultTheme = Theme{
	Name:               "Default",
	Text:               "white",
	Background:         "clear",
	Day:                "#DA6C46",
	DayBackground:      "#cdcdcd",
	DayText:            "black",
	DayBackgroundAlpha: 0.2,
}

// LocationResponse is the geocoding search result.
type LocationResponse struct {
	Features []Feature `json:"features"`
}

// Filtered returns the valid features in server order.
func (r LocationResponse) Filtered() []Feature {
	out := make([]Feature, 0, len(r.Features))
	for _, f := range r.Features {
		if f.Properties.IsValid() {
			out = append(out, f)
		}
	}
	return out
}

type Feature struct {
	Properties Properties `json:"properties"`
}

type Properties struct {
	Name      *string `json:"name,omitempty"`
	City      *string `json:"city,omitempty"`
	Country   string  `json:"country"`
	State     *string `json:"state,omitempty"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// IsValid reports whether the feature carries a usable display name.
func (p Properties) IsValid() bool {
	return p.Name != nil || p.City != nil
}

// DisplayName prefers the feature name over the city.
func (p Properties) DisplayName() string {
	if p.Name != nil {
		return *p.Name
	}
	if p.City != nil {
		return *p.City
	}
	return ""
}

// Info joins city, name, state and country, skipping absent parts.
func (p Properties) Info() string {
	var parts []string
	for _, s := range []*string{p.City, p.Name, p.State} {
		if s != nil {
			parts = append(parts, *s)
		}
	}
	parts = append(parts, p.Country)
	return strings.Join(parts, ", ")
}
