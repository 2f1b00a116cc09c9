package api

import (
	"time"

	"github.com/lox/rizz/internal/app"
	"github.com/lox/rizz/internal/forecast"
	"github.com/lox/rizz/internal/theme"
)

type HealthStatus struct {
	Status    string           `json:"status"`
	Settings  string           `json:"settings"`
	Locations []LocationHealth `json:"locations"`
	Errors    []string         `json:"errors,omitempty"`
}

type LocationHealth struct {
	Name     string     `json:"name"`
	State    string     `json:"state"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

type ThemeView struct {
	Name          string `json:"name"`
	Text          string `json:"text"`
	Background    string `json:"background"`
	Day           string `json:"day"`
	DayBackground string `json:"day_background"`
	DayAlpha      uint8  `json:"day_background_alpha"`
	DayText       string `json:"day_text"`
}

func newThemeView(t theme.ColorTheme) ThemeView {
	return ThemeView{
		Name:          t.Name,
		Text:          theme.Hex(t.Text),
		Background:    theme.Hex(t.Background),
		Day:           theme.Hex(t.Day),
		DayBackground: theme.Hex(t.DayBackground),
		DayAlpha:      t.DayBackground.A,
		DayText:       theme.Hex(t.DayText),
	}
}

type ForecastView struct {
	Location string    `json:"location"`
	State    string    `json:"state"`
	Error    string    `json:"error,omitempty"`
	Days     []DayView `json:"days"`
}

type DayView struct {
	Name    string       `json:"name"`
	IsToday bool         `json:"is_today"`
	Date    string       `json:"date"`
	Min     float64      `json:"min"`
	Max     float64      `json:"max"`
	Info    []string     `json:"info"`
	Sunrise []string     `json:"sunrise,omitempty"`
	Samples []SampleView `json:"samples"`
}

type SampleView struct {
	Time        string  `json:"time"`
	Temperature string  `json:"temperature"`
	Temp        float64 `json:"temp"`
	Text        string  `json:"text"`
	Icon        string  `json:"icon,omitempty"`
}

func newForecastView(lf app.LocationForecast, opts forecast.Options) ForecastView {
	v := ForecastView{
		Location: lf.Location.Name,
		State:    lf.State.String(),
		Days:     make([]DayView, 0, len(lf.Days)),
	}
	if lf.Err != nil {
		v.Error = lf.Err.Error()
	}
	for _, d := range lf.Days {
		dv := DayView{
			Name:    d.Name,
			IsToday: d.IsToday,
			Date:    d.Date.Format(time.DateOnly),
			Min:     d.Min,
			Max:     d.Max,
			Info:    d.Info,
			Sunrise: d.Sunrise,
			Samples: make([]SampleView, 0, len(d.Samples)),
		}
		for _, s := range d.Samples {
			dv.Samples = append(dv.Samples, SampleView{
				Time:        opts.Locale.SampleTime(s, opts.Location),
				Temperature: opts.Locale.Temperature(s.Temps.Temp),
				Temp:        s.Temps.Temp,
				Text:        opts.Locale.SampleText(s),
				Icon:        s.IconURL(),
			})
		}
		v.Days = append(v.Days, dv)
	}
	return v
}
