package forecast

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/rizz/internal/lifecycle"
	"github.com/lox/rizz/internal/metrics"
	"github.com/lox/rizz/internal/models"
	"github.com/lox/rizz/internal/remote"
)

const (
	DefaultDelay      = 300 * time.Millisecond
	DefaultRetryAfter = time.Minute
	DefaultMaxElapsed = 30 * time.Second
)

type State int

const (
	Idle State = iota
	Loading
	Ready
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
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var stateNames = []string{Idle.String(), Loading.String(), Ready.String(), Failed.String()}

// Fetcher fetches a date-resolved forecast.
type Fetcher interface {
	FetchForecast(ctx context.Context, creds remote.Credentials, loc models.Location) (*models.ForecastResponse, error)
}

// CredentialSource hands out credentials once they have been loaded.
type CredentialSource interface {
	Credentials() (remote.Credentials, bool)
}

type Options struct {
	Locale   Locale
	Location *time.Location
	// Delay is waited after a successful delayed load before the
	// aggregator turns ready. Zero means DefaultDelay, negative disables.
	Delay time.Duration
	// RetryAfter is how long a failed aggregator waits before a refresh
	// event resets it.
	RetryAfter time.Duration
	// NewBackOff builds the retry policy for one load.
	NewBackOff func() backoff.BackOff
	Now        func() time.Time
}

func (o *Options) setDefaults() {
	if o.Locale.Today == "" {
		o.Locale = German
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	switch {
	case o.Delay == 0:
		o.Delay = DefaultDelay
	case o.Delay < 0:
		o.Delay = 0
	}
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

// Aggregator loads and groups the forecast of one location.
type Aggregator struct {
	fetcher Fetcher
	creds   CredentialSource
	opts    Options

	mu       sync.RWMutex
	state    State
	location models.Location
	response *models.ForecastResponse
	days     []Day
	loadedAt time.Time
	err      error
	failedAt time.Time
}

func NewAggregator(fetcher Fetcher, creds CredentialSource, opts Options) *Aggregator {
	opts.setDefaults()
	return &Aggregator{fetcher: fetcher, creds: creds, opts: opts}
}

// Load fetches the forecast for loc. It is dropped unless the aggregator
// is idle. With delayed set, the aggregator waits Options.Delay after the
// fetch before it turns ready.
func (a *Aggregator) Load(ctx context.Context, loc models.Location, delayed bool) error {
	a.mu.Lock()
	if a.state != Idle {
		a.mu.Unlock()
		return nil
	}
	a.location = loc
	a.setState(Loading)
	a.mu.Unlock()

	creds, ok := a.creds.Credentials()
	if !ok || creds.OpenWeatherAppID == "" {
		return a.fail(loc, &remote.PreconditionError{Operation: remote.OpFetchForecast, Field: "openweather app id"})
	}

	var resp *models.ForecastResponse
	op := func() error {
		r, err := a.fetcher.FetchForecast(ctx, creds, loc)
		if err != nil {
			if remote.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("forecast: %s: retrying in %s: %v", loc.Name, wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(a.opts.NewBackOff(), ctx), notify); err != nil {
		return a.fail(loc, err)
	}

	if n := flagSamples(resp); n > 0 {
		log.Printf("forecast: %s: %d samples flagged", loc.Name, n)
	}

	now := a.opts.Now()
	days := BuildDays(resp, GroupOptions{Locale: a.opts.Locale, Location: a.opts.Location, Now: now})
	metrics.ForecastDaysBuilt.WithLabelValues(loc.Name).Add(float64(len(days)))

	a.mu.Lock()
	a.response = resp
	a.days = days
	a.loadedAt = now
	a.mu.Unlock()

	if delayed && a.opts.Delay > 0 {
		t := time.NewTimer(a.opts.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	a.mu.Lock()
	a.setState(Ready)
	a.mu.Unlock()
	log.Printf("forecast: %s: loaded %d samples into %d days", loc.Name, len(resp.List), len(days))
	return nil
}

func (a *Aggregator) fail(loc models.Location, err error) error {
	a.mu.Lock()
	a.err = err
	a.failedAt = a.opts.Now()
	a.setState(Failed)
	a.mu.Unlock()
	log.Printf("forecast: %s: load failed: %v", loc.Name, err)
	return err
}

// setState must be called with mu held.
func (a *Aggregator) setState(s State) {
	a.state = s
	metrics.SetState("forecast/"+a.location.Name, s.String(), stateNames)
}

// NeedsRefresh reports whether the aggregator is ready with data loaded on
// an earlier calendar day than now.
func (a *Aggregator) NeedsRefresh(now time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.needsRefresh(now)
}

func (a *Aggregator) needsRefresh(now time.Time) bool {
	if a.state != Ready {
		return false
	}
	loc := a.opts.Location
	return !sameDay(a.loadedAt.In(loc), now.In(loc))
}

// RefreshIfNeeded resets the aggregator to idle when ev warrants it: a
// ready aggregator with stale data, or a failed one whose retry interval
// has elapsed. It reports whether a reset happened.
func (a *Aggregator) RefreshIfNeeded(ev lifecycle.Event) bool {
	if !ev.Refreshes() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.needsRefresh(ev.At):
		a.response = nil
		a.days = nil
		a.loadedAt = time.Time{}
		a.setState(Idle)
		return true
	case a.state == Failed && ev.At.Sub(a.failedAt) >= a.opts.RetryAfter:
		a.err = nil
		a.setState(Idle)
		return true
	}
	return false
}

// Reset returns a failed aggregator to idle so the next Load runs.
func (a *Aggregator) Reset() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Failed {
		return false
	}
	a.err = nil
	a.setState(Idle)
	return true
}

func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Err is the error of the last failed load.
func (a *Aggregator) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Days returns the day buckets of the last successful load.
func (a *Aggregator) Days() []Day {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Day, len(a.days))
	copy(out, a.days)
	return out
}

func (a *Aggregator) Response() *models.ForecastResponse {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.response
}

func (a *Aggregator) Location() models.Location {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.location
}

func (a *Aggregator) LoadedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadedAt
}

func (a *Aggregator) Locale() Locale { return a.opts.Locale }

func (a *Aggregator) TimeZone() *time.Location { return a.opts.Location }
