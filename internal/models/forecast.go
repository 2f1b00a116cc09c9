package models

import (
	"fmt"
	"time"
)

// APIDateLayout is the fixed dt_txt layout of the forecast endpoint. It is
// always UTC.
const APIDateLayout = "2006-01-02 15:04:05"

// ParseAPIDate decodes a dt_txt value.
func ParseAPIDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(APIDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse dt_txt %q: %w", s, err)
	}
	return t, nil
}

// FormatAPIDate encodes t in the dt_txt layout.
func FormatAPIDate(t time.Time) string {
	return t.UTC().Format(APIDateLayout)
}

type ForecastResponse struct {
	Count int      `json:"cnt"`
	List  []Sample `json:"list"`
	City  City     `json:"city"`
}

// ResolveDates fills Sample.Date for every sample from dt_txt. Samples whose
// dt_txt is missing or malformed fall back to the epoch timestamp. It
// returns the number of fallbacks.
func (r *ForecastResponse) ResolveDates() int {
	fallbacks := 0
	for i := range r.List {
		s := &r.List[i]
		if t, err := ParseAPIDate(s.DateText); err == nil {
			s.Date = t
			continue
		}
		fallbacks++
		if s.Timestamp != 0 {
			s.Date = time.Unix(s.Timestamp, 0).UTC()
		}
	}
	return fallbacks
}

type City struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Coord      Coord  `json:"coord"`
	Country    string `json:"country"`
	Population int    `json:"population"`
	Timezone   int    `json:"timezone"`
	Sunrise    int64  `json:"sunrise"`
	Sunset     int64  `json:"sunset"`
}

func (c City) SunriseTime() time.Time { return time.Unix(c.Sunrise, 0) }
func (c City) SunsetTime() time.Time  { return time.Unix(c.Sunset, 0) }

type Coord struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Sample is one 3-hour forecast slot. Date is not part of the wire format;
// it is filled by ForecastResponse.ResolveDates.
type Sample struct {
	Timestamp int64     `json:"dt"`
	DateText  string    `json:"dt_txt"`
	Temps     Temps     `json:"main"`
	Weather   []Weather `json:"weather"`
	Clouds    Clouds    `json:"clouds"`
	Wind      Wind      `json:"wind"`
	Rain      *Rain     `json:"rain,omitempty"`

	Date time.Time `json:"-"`
}

type Temps struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Min       float64 `json:"temp_min"`
	Max       float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	SeaLevel  int     `json:"sea_level"`
	GrndLevel int     `json:"grnd_level"`
	Humidity  int     `json:"humidity"`
}

type Weather struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Clouds struct {
	All int `json:"all"`
}

type Wind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
	Gust  float64 `json:"gust"`
}

type Rain struct {
	ThreeHours float64 `json:"3h"`
}

// IconURL returns the OpenWeather icon for the first weather entry.
func (s Sample) IconURL() string {
	if len(s.Weather) == 0 || s.Weather[0].Icon == "" {
		return ""
	}
	return fmt.Sprintf("https://openweathermap.org/img/wn/%s@2x.png", s.Weather[0].Icon)
}

func (s Sample) Description() string {
	if len(s.Weather) == 0 {
		return ""
	}
	return s.Weather[0].Description
}
