package settings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/rizz/internal/lifecycle"
	"github.com/lox/rizz/internal/models"
	"github.com/lox/rizz/internal/remote"
)

const settingsBody = `{"record":{
	"openWeather":{"appId":"app-id"},
	"geoapify":{"apiKey":"geo-key"},
	"locations":[{"lat":47.07,"lon":15.44,"name":"Graz"},{"lat":48.21,"lon":16.37,"name":"Wien"}],
	"themes":[{"name":"Night","text":"white","background":"black","day":"#DA6C46","dayBackground":"#cdcdcd","dayText":"black","dayBackgroundAlpha":0.2}]
}}`

type binServer struct {
	*httptest.Server
	gets    atomic.Int32
	puts    atomic.Int32
	geocode atomic.Int32

	mu       sync.Mutex
	lastPut  models.Record
	getCode  int
	putCode  int
	getBody  string
	geoBody  string
	blockGet chan struct{}
}

func newBinServer(t *testing.T, configure ...func(*binServer)) *binServer {
	t.Helper()
	b := &binServer{getCode: http.StatusOK, putCode: http.StatusOK, getBody: settingsBody}
	for _, fn := range configure {
		fn(b)
	}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/b/bin/latest":
			b.gets.Add(1)
			if b.blockGet != nil {
				<-b.blockGet
			}
			b.mu.Lock()
			code, body := b.getCode, b.getBody
			b.mu.Unlock()
			w.WriteHeader(code)
			io.WriteString(w, body)
		case r.Method == http.MethodPut && r.URL.Path == "/b/bin":
			b.puts.Add(1)
			var rec models.Record
			if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b.mu.Lock()
			b.lastPut = rec
			code := b.putCode
			b.mu.Unlock()
			w.WriteHeader(code)
			if code == http.StatusOK {
				json.NewEncoder(w).Encode(models.SettingsEnvelope{Record: rec})
			}
		case r.URL.Path == "/geocode":
			b.geocode.Add(1)
			b.mu.Lock()
			body := b.geoBody
			b.mu.Unlock()
			io.WriteString(w, body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func newTestStore(b *binServer) *Store {
	client := remote.NewClient(remote.Config{
		SettingsURL: b.URL + "/b",
		BinID:       "bin",
		GeocodeURL:  b.URL + "/geocode",
	})
	return NewStore(client, Options{
		RetryAfter: time.Minute,
		NewBackOff: func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1) },
		Now:        func() time.Time { return time.Date(2024, 10, 10, 9, 0, 0, 0, time.UTC) },
	})
}

func TestStore_LoadReady(t *testing.T) {
	b := newBinServer(t)
	s := newTestStore(b)

	if _, ok := s.Credentials(); ok {
		t.Fatal("credentials should be unavailable before load")
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.State() != Ready || !s.Loaded() {
		t.Fatalf("state = %v", s.State())
	}
	locs := s.Locations()
	if len(locs) != 2 || locs[0].Name != "Graz" || locs[1].Name != "Wien" {
		t.Errorf("locations = %+v", locs)
	}
	creds, ok := s.Credentials()
	if !ok || creds.OpenWeatherAppID != "app-id" || creds.GeoapifyAPIKey != "geo-key" {
		t.Errorf("credentials = %+v, %v", creds, ok)
	}
	if themes := s.ColorThemes(); len(themes) != 1 || themes[0].Name != "Night" {
		t.Errorf("color themes = %+v", themes)
	}

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if n := b.gets.Load(); n != 1 {
		t.Errorf("GET count = %d, want 1", n)
	}
}

func TestStore_ConcurrentLoadFetchesOnce(t *testing.T) {
	block := make(chan struct{})
	b := newBinServer(t, func(b *binServer) { b.blockGet = block })
	s := newTestStore(b)

	done := make(chan error)
	go func() { done <- s.Load(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for b.gets.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first load never reached the server")
		}
		time.Sleep(time.Millisecond)
	}
	if s.State() != Loading {
		t.Fatalf("state = %v, want loading", s.State())
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("dropped Load: %v", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := b.gets.Load(); n != 1 {
		t.Errorf("GET count = %d, want 1", n)
	}
}

func TestStore_UpdateBeforeLoadIsNoop(t *testing.T) {
	b := newBinServer(t)
	s := newTestStore(b)

	if err := s.Update(context.Background(), []models.Location{{Name: "Linz"}}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n := b.puts.Load(); n != 0 {
		t.Errorf("PUT count = %d, want 0", n)
	}
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

func TestStore_UpdateSendsFullRecord(t *testing.T) {
	b := newBinServer(t)
	s := newTestStore(b)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	next := Remove(s.Locations(), 1)
	if err := s.Update(context.Background(), next); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.State() != Ready {
		t.Fatalf("state = %v", s.State())
	}
	if got := s.Locations(); len(got) != 1 || got[0].Name != "Graz" {
		t.Errorf("locations = %+v", got)
	}

	b.mu.Lock()
	put := b.lastPut
	b.mu.Unlock()
	if put.OpenWeather == nil || put.OpenWeather.AppID != "app-id" {
		t.Errorf("put openWeather = %+v", put.OpenWeather)
	}
	if put.GeoApify == nil || put.GeoApify.APIKey != "geo-key" {
		t.Errorf("put geoapify = %+v", put.GeoApify)
	}
	if len(put.Themes) != 1 || len(put.Locations) != 1 {
		t.Errorf("put record = %+v", put)
	}
}

func TestStore_UpdateWithoutCredentialsIsNoop(t *testing.T) {
	b := newBinServer(t, func(b *binServer) {
		b.getBody = `{"record":{"locations":[{"lat":1,"lon":2,"name":"X"}],"themes":[]}}`
	})
	s := newTestStore(b)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Update(context.Background(), nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n := b.puts.Load(); n != 0 {
		t.Errorf("PUT count = %d, want 0", n)
	}
	if s.State() != Ready {
		t.Errorf("state = %v, want ready", s.State())
	}
}

func TestStore_UpdateIfChanged(t *testing.T) {
	b := newBinServer(t)
	s := newTestStore(b)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sent, err := s.UpdateIfChanged(context.Background(), s.Locations())
	if err != nil || sent {
		t.Fatalf("unchanged list: sent = %v, err = %v", sent, err)
	}
	moved := Move(s.Locations(), 1, 0)
	sent, err = s.UpdateIfChanged(context.Background(), moved)
	if err != nil || !sent {
		t.Fatalf("changed list: sent = %v, err = %v", sent, err)
	}
	if n := b.puts.Load(); n != 1 {
		t.Errorf("PUT count = %d, want 1", n)
	}
	if got := s.Locations(); got[0].Name != "Wien" {
		t.Errorf("locations = %+v", got)
	}
}

func TestStore_LoadFailureAndReset(t *testing.T) {
	b := newBinServer(t, func(b *binServer) {
		b.getCode = http.StatusUnauthorized
		b.getBody = `{"message":"Invalid X-Access-Key"}`
	})
	s := newTestStore(b)

	err := s.Load(context.Background())
	if !errors.Is(err, remote.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if s.State() != Failed || s.Err() == nil {
		t.Fatalf("state = %v, err = %v", s.State(), s.Err())
	}
	if n := b.gets.Load(); n != 1 {
		t.Errorf("client errors should not be retried, GET count = %d", n)
	}
	if err := s.Load(context.Background()); err != nil || b.gets.Load() != 1 {
		t.Fatalf("Load on failed store should be dropped, err = %v", err)
	}

	if !s.Reset() {
		t.Fatal("Reset should succeed")
	}
	if s.State() != Idle {
		t.Fatalf("state = %v, want idle", s.State())
	}

	b.mu.Lock()
	b.getCode, b.getBody = http.StatusOK, settingsBody
	b.mu.Unlock()
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load after reset: %v", err)
	}
	if s.State() != Ready {
		t.Errorf("state = %v, want ready", s.State())
	}
}

func TestStore_RetriesServerErrors(t *testing.T) {
	b := newBinServer(t, func(b *binServer) { b.getCode = http.StatusBadGateway })
	s := newTestStore(b)

	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := b.gets.Load(); n != 2 {
		t.Errorf("GET count = %d, want 2 (one retry)", n)
	}
}

func TestStore_FailedUpdateKeepsSnapshot(t *testing.T) {
	b := newBinServer(t, func(b *binServer) { b.putCode = http.StatusRequestEntityTooLarge })
	s := newTestStore(b)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	err := s.Update(context.Background(), nil)
	if !errors.Is(err, remote.ErrRequestEntityTooLarge) {
		t.Fatalf("err = %v", err)
	}
	if s.State() != Failed {
		t.Fatalf("state = %v, want failed", s.State())
	}
	if len(s.Locations()) != 2 {
		t.Error("failed update should keep the loaded locations")
	}

	at := time.Date(2024, 10, 10, 9, 0, 30, 0, time.UTC)
	if s.RefreshIfNeeded(lifecycle.NewEvent(lifecycle.Foreground, at)) {
		t.Error("should not recover before RetryAfter")
	}
	if !s.RefreshIfNeeded(lifecycle.NewEvent(lifecycle.Foreground, at.Add(time.Minute))) {
		t.Fatal("should recover after RetryAfter")
	}
	if s.State() != Ready {
		t.Errorf("state = %v, want ready", s.State())
	}
}

func TestStore_Search(t *testing.T) {
	b := newBinServer(t, func(b *binServer) {
		b.geoBody = `{"features":[
		{"properties":{"name":"Graz","country":"Österreich","state":"Steiermark","lat":47.07,"lon":15.44}},
		{"properties":{"country":"Nowhere","lat":0,"lon":0}},
		{"properties":{"city":"Graz-Umgebung","country":"Österreich","lat":47.1,"lon":15.4}}
	]}`
	})
	s := newTestStore(b)

	if _, err := s.Search(context.Background(), "Graz"); err == nil {
		t.Error("search before load should fail")
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := s.Search(context.Background(), " Gr "); !errors.Is(err, ErrQueryTooShort) {
		t.Errorf("short query err = %v", err)
	}
	if n := b.geocode.Load(); n != 0 {
		t.Errorf("short query reached the server")
	}

	features, err := s.Search(context.Background(), "Graz")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("len(features) = %d, want 2", len(features))
	}
	if features[0].Properties.DisplayName() != "Graz" || features[1].Properties.DisplayName() != "Graz-Umgebung" {
		t.Errorf("features out of server order: %+v", features)
	}

	b.mu.Lock()
	b.geoBody = `{"features":[]}`
	b.mu.Unlock()
	features, err = s.Search(context.Background(), "Atlantis")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if features == nil || len(features) != 0 {
		t.Errorf("no results should be an empty slice, got %#v", features)
	}
}

func TestStore_ColorThemesDefault(t *testing.T) {
	b := newBinServer(t)
	s := newTestStore(b)
	themes := s.ColorThemes()
	if len(themes) != 1 || themes[0].Name != models.DefaultTheme.Name {
		t.Errorf("themes = %+v", themes)
	}
}
