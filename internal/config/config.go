// Package config holds the runtime configuration shared by the CLI
// commands. Every field maps to a flag, an environment variable and a key in
// the optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lox/rizz/internal/forecast"
	"github.com/lox/rizz/internal/httputil"
	"github.com/lox/rizz/internal/remote"
	"github.com/lox/rizz/internal/settings"
)

type Config struct {
	SettingsURL   string `help:"Settings document store base URL." default:"https://api.jsonbin.io/v3/b" env:"RIZZ_SETTINGS_URL"`
	BinID         string `help:"Settings document id." env:"RIZZ_BIN_ID"`
	AccessKeyFile string `help:"File holding the document store access key." default:"accessKey" env:"RIZZ_ACCESS_KEY_FILE"`
	ForecastURL   string `help:"Forecast endpoint." default:"https://api.openweathermap.org/data/2.5/forecast" env:"RIZZ_FORECAST_URL"`
	GeocodeURL    string `help:"Geocoding search endpoint." default:"https://api.geoapify.com/v1/geocode/search" env:"RIZZ_GEOCODE_URL"`

	Language string `help:"Display and API language." default:"de" enum:"de,en" env:"RIZZ_LANGUAGE"`
	Units    string `help:"Forecast units." default:"metric" enum:"metric,imperial,standard" env:"RIZZ_UNITS"`
	TimeZone string `help:"Time zone used to group forecast days." default:"Local" env:"RIZZ_TZ"`

	Timeout         time.Duration `help:"HTTP timeout." default:"30s" env:"RIZZ_TIMEOUT"`
	ForecastRate    float64       `help:"Forecast requests per second, 0 for unlimited." default:"2" env:"RIZZ_FORECAST_RATE"`
	ForecastBurst   int           `help:"Forecast request burst." default:"4" env:"RIZZ_FORECAST_BURST"`
	RetryMaxElapsed time.Duration `help:"Give up retrying a transient failure after this long." default:"30s" env:"RIZZ_RETRY_MAX_ELAPSED"`
	RetryAfter      time.Duration `help:"Wait before a failed component is retried on refresh." default:"1m" env:"RIZZ_RETRY_AFTER"`
	LoadDelay       time.Duration `help:"Pause after loading a non-primary location." default:"300ms" env:"RIZZ_LOAD_DELAY"`

	Journal string `help:"Fetch journal database, empty to disable." default:"rizz.db" env:"RIZZ_JOURNAL"`
}

// ReadAccessKey returns the access key file contents without trailing
// newlines. A missing file yields an empty key.
func (c Config) ReadAccessKey() (string, error) {
	if c.AccessKeyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.AccessKeyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read access key: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Location resolves TimeZone; "Local" and empty mean the system zone.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Limiter returns the forecast rate limiter, or nil when unlimited.
func (c Config) Limiter() *rate.Limiter {
	if c.ForecastRate <= 0 {
		return nil
	}
	burst := c.ForecastBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.ForecastRate), burst)
}

// RemoteConfig builds the remote client configuration. recorder may be nil.
func (c Config) RemoteConfig(recorder remote.Recorder) (remote.Config, error) {
	key, err := c.ReadAccessKey()
	if err != nil {
		return remote.Config{}, err
	}
	return remote.Config{
		SettingsURL:     c.SettingsURL,
		BinID:           c.BinID,
		AccessKey:       key,
		ForecastURL:     c.ForecastURL,
		GeocodeURL:      c.GeocodeURL,
		Language:        c.Language,
		Units:           c.Units,
		HTTPClient:      httputil.NewClient(c.Timeout),
		ForecastLimiter: c.Limiter(),
		Recorder:        recorder,
	}, nil
}

func (c Config) SettingsOptions() settings.Options {
	return settings.Options{
		RetryAfter: c.RetryAfter,
		NewBackOff: c.newBackOff,
	}
}

func (c Config) ForecastOptions() (forecast.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return forecast.Options{}, err
	}
	delay := c.LoadDelay
	if delay == 0 {
		delay = -1
	}
	return forecast.Options{
		Locale:     forecast.LocaleFor(c.Language),
		Location:   loc,
		Delay:      delay,
		RetryAfter: c.RetryAfter,
		NewBackOff: c.newBackOff,
	}, nil
}
