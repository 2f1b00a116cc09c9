package forecast

import (
	"time"

	"github.com/lox/rizz/internal/models"
)

// EarlyMorningCutoff is the local hour before which a sample stays in the
// previous day's bucket.
const EarlyMorningCutoff = 8

// Day is one display bucket built from a forecast response.
type Day struct {
	// IsToday marks the first bucket of the response.
	IsToday bool
	Name    string
	Date    time.Time
	Samples []models.Sample
	Min     float64
	Max     float64
	// Info is the formatted min/max pair.
	Info []string
	// Sunrise holds the formatted sunrise and sunset, only on today's bucket.
	Sunrise []string
}

// GroupOptions controls labeling and calendar math.
type GroupOptions struct {
	Locale   Locale
	Location *time.Location
	Now      time.Time
}

type bucket struct {
	anchor   time.Time
	min, max float64
	samples  []models.Sample
}

func newBucket(local time.Time, s models.Sample) *bucket {
	return &bucket{
		anchor:  local,
		min:     s.Temps.Min,
		max:     s.Temps.Max,
		samples: []models.Sample{s},
	}
}

func (b *bucket) add(s models.Sample) {
	if s.Temps.Min < b.min {
		b.min = s.Temps.Min
	}
	if s.Temps.Max > b.max {
		b.max = s.Temps.Max
	}
	b.samples = append(b.samples, s)
}

// joins reports whether a sample at local time t belongs to a bucket
// anchored at anchor.
func joins(t, anchor time.Time) bool {
	return sameDay(t, anchor) || t.Hour() < EarlyMorningCutoff
}

// BuildDays groups the chronologically sorted samples of resp into day
// buckets. Samples without a date are skipped. The last bucket is always
// emitted.
func BuildDays(resp *models.ForecastResponse, opts GroupOptions) []Day {
	if resp == nil {
		return nil
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now.In(loc)

	var days []Day
	var cur *bucket
	for _, s := range resp.List {
		if s.Date.IsZero() {
			continue
		}
		local := s.Date.In(loc)
		switch {
		case cur == nil:
			cur = newBucket(local, s)
		case joins(local, cur.anchor):
			cur.add(s)
		default:
			days = append(days, closeBucket(cur, len(days) == 0, resp.City, opts.Locale, now, loc))
			cur = newBucket(local, s)
		}
	}
	if cur != nil {
		days = append(days, closeBucket(cur, len(days) == 0, resp.City, opts.Locale, now, loc))
	}
	return days
}

func closeBucket(b *bucket, first bool, city models.City, l Locale, now time.Time, loc *time.Location) Day {
	d := Day{
		IsToday: first,
		Date:    b.anchor,
		Samples: b.samples,
		Min:     b.min,
		Max:     b.max,
		Info:    l.MinMax(b.min, b.max),
	}
	switch {
	case sameDay(b.anchor, now):
		d.Name = l.Today
		d.Sunrise = []string{
			l.Minute(city.SunriseTime().In(loc)),
			l.Minute(city.SunsetTime().In(loc)),
		}
	case sameDay(b.anchor, now.AddDate(0, 0, 1)):
		d.Name = l.Tomorrow
	default:
		d.Name = l.Weekday(b.anchor)
	}
	return d
}

// sameDay compares calendar dates of a and b in a's location.
func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
