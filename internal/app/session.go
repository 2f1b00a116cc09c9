// Package app ties the settings store to one forecast aggregator per
// configured location.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lox/rizz/internal/forecast"
	"github.com/lox/rizz/internal/lifecycle"
	"github.com/lox/rizz/internal/models"
	"github.com/lox/rizz/internal/settings"
)

// ErrSettingsNotReady is returned by Preload when another settings load is
// still in flight.
var ErrSettingsNotReady = errors.New("settings not loaded")

type Session struct {
	settings *settings.Store
	fetcher  forecast.Fetcher
	opts     forecast.Options

	mu          sync.Mutex
	aggregators map[models.Location]*forecast.Aggregator
}

func NewSession(st *settings.Store, fetcher forecast.Fetcher, opts forecast.Options) *Session {
	return &Session{
		settings:    st,
		fetcher:     fetcher,
		opts:        opts,
		aggregators: make(map[models.Location]*forecast.Aggregator),
	}
}

func (s *Session) Settings() *settings.Store {
	return s.settings
}

// Aggregator returns the aggregator for loc, creating it on first use.
func (s *Session) Aggregator(loc models.Location) *forecast.Aggregator {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.aggregators[loc]
	if !ok {
		agg = forecast.NewAggregator(s.fetcher, s.settings, s.opts)
		s.aggregators[loc] = agg
	}
	return agg
}

// prune drops aggregators of locations no longer listed.
func (s *Session) prune(locations []models.Location) {
	keep := make(map[models.Location]bool, len(locations))
	for _, l := range locations {
		keep[l] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.aggregators {
		if !keep[l] {
			delete(s.aggregators, l)
			log.Printf("app: dropped aggregator for %s", l.Name)
		}
	}
}

// Preload loads the settings and then every listed location concurrently.
// Only the first location is loaded without the pacing delay.
func (s *Session) Preload(ctx context.Context) error {
	if err := s.settings.Load(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !s.settings.Loaded() {
		if err := s.settings.Err(); err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		return ErrSettingsNotReady
	}

	locations := s.settings.Locations()
	s.prune(locations)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i, loc := range locations {
		agg := s.Aggregator(loc)
		wg.Add(1)
		go func(i int, loc models.Location) {
			defer wg.Done()
			if err := agg.Load(ctx, loc, i > 0); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", loc.Name, err))
				mu.Unlock()
			}
		}(i, loc)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Dispatch delivers ev to the settings store and every aggregator. It
// returns the number of components that were reset.
func (s *Session) Dispatch(ev lifecycle.Event) int {
	n := 0
	if s.settings.RefreshIfNeeded(ev) {
		n++
	}
	s.mu.Lock()
	aggs := make([]*forecast.Aggregator, 0, len(s.aggregators))
	for _, agg := range s.aggregators {
		aggs = append(aggs, agg)
	}
	s.mu.Unlock()
	for _, agg := range aggs {
		if agg.RefreshIfNeeded(ev) {
			n++
		}
	}
	if n > 0 {
		log.Printf("app: %s event reset %d components", ev.Kind, n)
	}
	return n
}

// LocationForecast is the view of one location's aggregator.
type LocationForecast struct {
	Location models.Location
	State    forecast.State
	Days     []forecast.Day
	Err      error
}

// Forecasts returns the aggregator state of every listed location in list
// order.
func (s *Session) Forecasts() []LocationForecast {
	locations := s.settings.Locations()
	out := make([]LocationForecast, 0, len(locations))
	for _, loc := range locations {
		agg := s.Aggregator(loc)
		out = append(out, LocationForecast{
			Location: loc,
			State:    agg.State(),
			Days:     agg.Days(),
			Err:      agg.Err(),
		})
	}
	return out
}
