package settings

import (
	"slices"

	"github.com/lox/rizz/internal/models"
)

// Location list editing. The helpers never modify their input slice.

// AddFeature appends the location of a geocode feature unless a location
// with the same display name is already listed.
func AddFeature(list []models.Location, f models.Feature) ([]models.Location, bool) {
	name := f.Properties.DisplayName()
	if name == "" || IndexOf(list, name) >= 0 {
		return list, false
	}
	out := slices.Clone(list)
	out = append(out, models.Location{
		Name:      name,
		Latitude:  f.Properties.Latitude,
		Longitude: f.Properties.Longitude,
	})
	return out, true
}

// IndexOf returns the position of the location named name, or -1.
func IndexOf(list []models.Location, name string) int {
	return slices.IndexFunc(list, func(l models.Location) bool { return l.Name == name })
}

// Remove drops the location at i. Out of range indexes leave the list
// unchanged.
func Remove(list []models.Location, i int) []models.Location {
	if i < 0 || i >= len(list) {
		return list
	}
	return slices.Delete(slices.Clone(list), i, i+1)
}

// Move places the location at from at index to of the resulting list.
func Move(list []models.Location, from, to int) []models.Location {
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) || from == to {
		return list
	}
	out := slices.Clone(list)
	loc := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, loc)
}

// Equal compares two lists by value and order.
func Equal(a, b []models.Location) bool {
	return slices.Equal(a, b)
}
