// Package settings owns the remote settings document: the configured
// locations, the themes and the API credentials.
package settings

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/rizz/internal/lifecycle"
	"github.com/lox/rizz/internal/metrics"
	"github.com/lox/rizz/internal/models"
	"github.com/lox/rizz/internal/remote"
	"github.com/lox/rizz/internal/theme"
)

const (
	DefaultRetryAfter = time.Minute
	DefaultMaxElapsed = 30 * time.Second
	// MinQueryLength is exclusive: a search needs more characters.
	MinQueryLength = 2
)

var ErrQueryTooShort = errors.New("search query needs more than 2 characters")

type State int

const (
	Idle State = iota
	Loading
	Ready
	Updating
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Updating:
		return "updating"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var stateNames = []string{Idle.String(), Loading.String(), Ready.String(), Updating.String(), Failed.String()}

// Remote is the subset of the remote client the store uses.
type Remote interface {
	ListLocations(ctx context.Context) (*models.SettingsEnvelope, error)
	UpdateLocations(ctx context.Context, rec models.Record) (*models.SettingsEnvelope, error)
	SearchLocation(ctx context.Context, creds remote.Credentials, name string) (*models.LocationResponse, error)
}

type Options struct {
	// RetryAfter is how long a failed store waits before a refresh event
	// resets it.
	RetryAfter time.Duration
	NewBackOff func() backoff.BackOff
	Now        func() time.Time
}

func (o *Options) setDefaults() {
	if o.RetryAfter == 0 {
		o.RetryAfter = DefaultRetryAfter
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = DefaultMaxElapsed
			return b
		}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Store holds the last loaded settings snapshot. Load and Update calls
// made while another operation is in flight are dropped.
type Store struct {
	remote Remote
	opts   Options

	mu    sync.RWMutex
	state State
	// loaded is set once a snapshot exists. A failed update keeps it.
	loaded      bool
	openWeather *models.OpenWeather
	geoApify    *models.GeoApify
	locations   []models.Location
	themes      []models.Theme
	sample      *string
	err         error
	failedAt    time.Time
}

func NewStore(r Remote, opts Options) *Store {
	opts.setDefaults()
	s := &Store{remote: r, opts: opts}
	metrics.SetState("settings", Idle.String(), stateNames)
	return s
}

// Load fetches the settings document. It is dropped unless the store is
// idle.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return nil
	}
	s.setState(Loading)
	s.mu.Unlock()

	var env *models.SettingsEnvelope
	err := s.retry(ctx, "load", func() error {
		e, err := s.remote.ListLocations(ctx)
		env = e
		return err
	})
	if err != nil {
		return s.fail("load", err)
	}

	rec := env.Record
	s.mu.Lock()
	s.loaded = true
	s.openWeather = rec.OpenWeather
	s.geoApify = rec.GeoApify
	s.locations = rec.Locations
	s.themes = rec.Themes
	s.sample = rec.Sample
	s.err = nil
	s.setState(Ready)
	s.mu.Unlock()

	log.Printf("settings: loaded %d locations, %d themes", len(rec.Locations), len(rec.Themes))
	return nil
}

// Update replaces the remote document with the cached credentials and
// themes plus locations. It is dropped unless the store is ready, and is a
// no-op while credentials or themes are missing.
func (s *Store) Update(ctx context.Context, locations []models.Location) error {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return nil
	}
	if s.openWeather == nil || s.geoApify == nil || s.themes == nil {
		s.mu.Unlock()
		log.Printf("settings: update skipped, credentials or themes missing")
		return nil
	}
	rec := models.Record{
		OpenWeather: s.openWeather,
		GeoApify:    s.geoApify,
		Locations:   locations,
		Themes:      s.themes,
		Sample:      s.sample,
	}
	s.setState(Updating)
	s.mu.Unlock()

	var env *models.SettingsEnvelope
	err := s.retry(ctx, "update", func() error {
		e, err := s.remote.UpdateLocations(ctx, rec)
		env = e
		return err
	})
	if err != nil {
		return s.fail("update", err)
	}

	s.mu.Lock()
	s.locations = env.Record.Locations
	s.setState(Ready)
	s.mu.Unlock()

	log.Printf("settings: updated, %d locations", len(env.Record.Locations))
	return nil
}

// UpdateIfChanged sends an update only when locations differ from the
// cached list. It reports whether an update was attempted.
func (s *Store) UpdateIfChanged(ctx context.Context, locations []models.Location) (bool, error) {
	if Equal(s.Locations(), locations) {
		return false, nil
	}
	return true, s.Update(ctx, locations)
}

func (s *Store) retry(ctx context.Context, what string, op func() error) error {
	wrapped := func() error {
		err := op()
		if err != nil && !remote.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("settings: %s: retrying in %s: %v", what, wait.Round(time.Millisecond), err)
	}
	return backoff.RetryNotify(wrapped, backoff.WithContext(s.opts.NewBackOff(), ctx), notify)
}

func (s *Store) fail(what string, err error) error {
	s.mu.Lock()
	s.err = err
	s.failedAt = s.opts.Now()
	s.setState(Failed)
	s.mu.Unlock()
	log.Printf("settings: %s failed: %v", what, err)
	return err
}

// setState must be called with mu held.
func (s *Store) setState(st State) {
	s.state = st
	metrics.SetState("settings", st.String(), stateNames)
}

// recover must be called with mu held. A store with a snapshot goes back
// to ready, otherwise to idle.
func (s *Store) recover() {
	s.err = nil
	if s.loaded {
		s.setState(Ready)
		return
	}
	s.setState(Idle)
}

// Reset clears a failure. It reports whether the store was failed.
func (s *Store) Reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Failed {
		return false
	}
	s.recover()
	return true
}

// RefreshIfNeeded resets a failed store once RetryAfter has elapsed since
// the failure.
func (s *Store) RefreshIfNeeded(ev lifecycle.Event) bool {
	if !ev.Refreshes() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Failed || ev.At.Sub(s.failedAt) < s.opts.RetryAfter {
		return false
	}
	s.recover()
	return true
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Loaded reports whether a snapshot exists.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Credentials returns the API keys of the loaded document.
func (s *Store) Credentials() (remote.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return remote.Credentials{}, false
	}
	return remote.CredentialsFromRecord(models.Record{OpenWeather: s.openWeather, GeoApify: s.geoApify}), true
}

func (s *Store) Locations() []models.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Location, len(s.locations))
	copy(out, s.locations)
	return out
}

func (s *Store) Themes() []models.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Theme, len(s.themes))
	copy(out, s.themes)
	return out
}

// ColorThemes resolves the loaded themes, or the default theme when none
// are configured.
func (s *Store) ColorThemes() []theme.ColorTheme {
	themes := s.Themes()
	if len(themes) == 0 {
		return []theme.ColorTheme{theme.Default()}
	}
	out := make([]theme.ColorTheme, len(themes))
	for i, t := range themes {
		out[i] = theme.New(t)
	}
	return out
}

// Search geocodes query and returns the valid features in server order. An
// empty result is not an error.
func (s *Store) Search(ctx context.Context, query string) ([]models.Feature, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) <= MinQueryLength {
		return nil, ErrQueryTooShort
	}
	creds, ok := s.Credentials()
	if !ok {
		return nil, &remote.PreconditionError{Operation: remote.OpSearchLocation, Field: "settings"}
	}
	resp, err := s.remote.SearchLocation(ctx, creds, query)
	if err != nil {
		log.Printf("settings: search %q: %v", query, err)
		return nil, err
	}
	features := resp.Filtered()
	if features == nil {
		features = []models.Feature{}
	}
	return features, nil
}
