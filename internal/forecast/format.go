package forecast

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/lox/rizz/internal/models"
)

// Locale holds the display strings and formats for one language.
type Locale struct {
	Tag      language.Tag
	Today    string
	Tomorrow string
	Weekdays [7]string // indexed by time.Weekday
	// HourLayout and MinuteLayout are time layouts; Suffix is appended to
	// both.
	HourLayout   string
	MinuteLayout string
	Suffix       string
}

var German = Locale{
	Tag:          language.German,
	Today:        "Heute",
	Tomorrow:     "Morgen",
	Weekdays:     [7]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"},
	HourLayout:   "15",
	MinuteLayout: "15:04",
	Suffix:       " Uhr",
}

var English = Locale{
	Tag:          language.English,
	Today:        "Today",
	Tomorrow:     "Tomorrow",
	Weekdays:     [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
	HourLayout:   "15:00",
	MinuteLayout: "15:04",
}

// LocaleFor returns the locale for a language code, German by default.
func LocaleFor(lang string) Locale {
	switch strings.ToLower(lang) {
	case "en", "en-us", "en-gb":
		return English
	default:
		return German
	}
}

// Temperature formats v with at most one fractional digit and the locale's
// decimal separator, e.g. "12,5 °C".
func (l Locale) Temperature(v float64) string {
	p := message.NewPrinter(l.Tag)
	return p.Sprint(number.Decimal(v, number.MaxFractionDigits(1))) + " °C"
}

// Hour and Minute format a clock time without a leading zero on the hour.
func (l Locale) Hour(t time.Time) string {
	return strings.TrimPrefix(t.Format(l.HourLayout), "0") + l.Suffix
}

func (l Locale) Minute(t time.Time) string {
	return strings.TrimPrefix(t.Format(l.MinuteLayout), "0") + l.Suffix
}

func (l Locale) Weekday(t time.Time) string {
	return l.Weekdays[t.Weekday()]
}

// MinMax returns the "Min: ..", "Max: .." info lines.
func (l Locale) MinMax(min, max float64) []string {
	return []string{
		fmt.Sprintf("Min: %s", l.Temperature(min)),
		fmt.Sprintf("Max: %s", l.Temperature(max)),
	}
}

// SampleText is the per-hour detail: description, then min and max.
func (l Locale) SampleText(s models.Sample) string {
	mm := l.MinMax(s.Temps.Min, s.Temps.Max)
	return s.Description() + "\n" + mm[0] + "\n" + mm[1]
}

// SampleTime is the hour label of a sample in loc.
func (l Locale) SampleTime(s models.Sample, loc *time.Location) string {
	if s.Date.IsZero() {
		return ""
	}
	return l.Hour(s.Date.In(loc))
}
