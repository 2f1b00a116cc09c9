package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/lox/rizz/internal/models"
)

type fakeRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (f *fakeRecorder) RecordCall(ctx context.Context, call Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func newTestClient(t *testing.T, handler http.Handler, rec Recorder) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		SettingsURL: srv.URL + "/v3/b",
		BinID:       "bin123",
		AccessKey:   "secret-key\n",
		ForecastURL: srv.URL + "/forecast",
		GeocodeURL:  srv.URL + "/geocode",
		Language:    "de",
		HTTPClient:  srv.Client(),
		Recorder:    rec,
	})
}

var testCreds = Credentials{OpenWeatherAppID: "ow-id", GeoapifyAPIKey: "geo-key"}

func TestListLocationsRequest(t *testing.T) {
	c := NewClient(Config{BinID: "670534e1", AccessKey: "key\n"})
	req, err := c.ListLocationsRequest()
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != http.MethodGet {
		t.Errorf("Method = %s, want GET", req.Method)
	}
	if req.URL != "https://api.jsonbin.io/v3/b/670534e1/latest" {
		t.Errorf("URL = %s", req.URL)
	}
	if got := req.Header.Get("X-Access-Key"); got != "key" {
		t.Errorf("X-Access-Key = %q, want trimmed key", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestListLocationsRequest_NoAccessKey(t *testing.T) {
	c := NewClient(Config{BinID: "bin"})
	req, err := c.ListLocationsRequest()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := req.Header["X-Access-Key"]; ok {
		t.Error("expected no X-Access-Key header without a key")
	}
}

func TestListLocationsRequest_MissingBin(t *testing.T) {
	c := NewClient(Config{})
	req, err := c.ListLocationsRequest()
	if req != nil {
		t.Error("expected no request")
	}
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("err = %v, want PreconditionError", err)
	}
}

func TestUpdateLocationsRequest(t *testing.T) {
	c := NewClient(Config{BinID: "bin"})
	rec := models.Record{
		OpenWeather: &models.OpenWeather{AppID: "a"},
		Locations:   []models.Location{{Latitude: 47.5, Longitude: 19.04, Name: "Budapest"}},
	}
	req, err := c.UpdateLocationsRequest(rec)
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != http.MethodPut {
		t.Errorf("Method = %s, want PUT", req.Method)
	}
	if req.URL != "https://api.jsonbin.io/v3/b/bin" {
		t.Errorf("URL = %s", req.URL)
	}
	var decoded models.Record
	if err := json.Unmarshal(req.Body, &decoded); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if len(decoded.Locations) != 1 || decoded.Locations[0].Name != "Budapest" {
		t.Errorf("decoded body = %+v", decoded)
	}
}

func TestUpdateLocationsRequest_EmptyLists(t *testing.T) {
	c := NewClient(Config{BinID: "bin"})
	req, err := c.UpdateLocationsRequest(models.Record{
		OpenWeather: &models.OpenWeather{AppID: "a"},
		GeoApify:    &models.GeoApify{APIKey: "k"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"openWeather":{"appId":"a"},"geoapify":{"apiKey":"k"},"locations":[],"themes":[]}`
	if string(req.Body) != want {
		t.Errorf("body = %s, want %s", req.Body, want)
	}
}

func TestForecastRequest(t *testing.T) {
	c := NewClient(Config{Language: "de"})

	if req, err := c.ForecastRequest(Credentials{}, models.Location{}); req != nil || err == nil {
		t.Fatalf("expected precondition error without app id, got %v, %v", req, err)
	}

	req, err := c.ForecastRequest(testCreds, models.Location{Latitude: 47.4979, Longitude: 19.0402, Name: "Budapest"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(req.URL, DefaultForecastURL+"?") {
		t.Errorf("URL = %s", req.URL)
	}
	q := mustQuery(t, req.URL)
	want := map[string]string{"lat": "47.4979", "lon": "19.0402", "appid": "ow-id", "lang": "de", "units": "metric"}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestSearchLocationRequest(t *testing.T) {
	c := NewClient(Config{})

	if _, err := c.SearchLocationRequest(Credentials{OpenWeatherAppID: "x"}, "Wien"); err == nil {
		t.Fatal("expected precondition error without geoapify key")
	}

	req, err := c.SearchLocationRequest(testCreds, "Sankt Pölten")
	if err != nil {
		t.Fatal(err)
	}
	q := mustQuery(t, req.URL)
	if q.Get("text") != "Sankt Pölten" {
		t.Errorf("text = %q", q.Get("text"))
	}
	if q.Get("apiKey") != "geo-key" {
		t.Errorf("apiKey = %q", q.Get("apiKey"))
	}
	if req.Header.Get("X-Access-Key") != "" {
		t.Error("geocode requests must not carry the settings access key")
	}
}

func TestDo_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{400, ErrBadRequest},
		{401, ErrUnauthorized},
		{402, ErrPaymentRequired},
		{403, ErrForbidden},
		{404, ErrNotFound},
		{413, ErrRequestEntityTooLarge},
		{422, ErrUnprocessableEntity},
	}

	for _, tt := range tests {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}), nil)
		_, err := c.ListLocations(context.Background())
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestDo_GenericHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "maintenance")
	}), nil)

	_, err := c.ListLocations(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want HTTPError", err)
	}
	if httpErr.StatusCode != 503 || string(httpErr.Body) != "maintenance" {
		t.Errorf("HTTPError = %d %q", httpErr.StatusCode, httpErr.Body)
	}
	if !Retryable(err) {
		t.Error("503 should be retryable")
	}
}

func TestDo_DecodeError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{not json")
	}), nil)

	env, err := c.ListLocations(context.Background())
	if env != nil {
		t.Error("expected nil envelope on decode failure")
	}
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if Retryable(err) {
		t.Error("decode errors are permanent")
	}
}

func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(Config{BinID: "bin", SettingsURL: addr})
	_, err := c.ListLocations(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	if !Retryable(err) {
		t.Error("network errors should be retryable")
	}
}

func TestDo_NilRequest(t *testing.T) {
	c := NewClient(Config{})
	var pre *PreconditionError
	if err := c.Do(context.Background(), nil, nil); !errors.As(err, &pre) {
		t.Fatalf("err = %v, want PreconditionError", err)
	}
}

func TestFetchForecast_RecordsCall(t *testing.T) {
	rec := &fakeRecorder{}
	var gotRequestID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-ID")
		io.WriteString(w, `{"cnt":1,"list":[{"dt":1728540000,"dt_txt":"2024-10-10 06:00:00","main":{"temp":8.5,"temp_min":8,"temp_max":9}}],"city":{"name":"Budapest","sunrise":1728535707,"sunset":1728576268}}`)
	}), rec)

	resp, err := c.FetchForecast(context.Background(), testCreds, models.Location{Latitude: 47.5, Longitude: 19.04, Name: "Budapest"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.List) != 1 || resp.List[0].Date.Hour() != 6 {
		t.Errorf("unexpected samples: %+v", resp.List)
	}

	if len(rec.calls) != 1 {
		t.Fatalf("recorded %d calls, want 1", len(rec.calls))
	}
	call := rec.calls[0]
	if call.Operation != OpFetchForecast || call.StatusCode != 200 || call.Err != nil {
		t.Errorf("call = %+v", call)
	}
	if call.RequestID == "" || call.RequestID != gotRequestID {
		t.Errorf("RequestID = %q, server saw %q", call.RequestID, gotRequestID)
	}
	if strings.Contains(call.URL, "ow-id") {
		t.Errorf("recorded URL leaks app id: %s", call.URL)
	}
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("https://api.geoapify.com/v1/geocode/search?apiKey=abc&text=Wien")
	if strings.Contains(got, "abc") || !strings.Contains(got, "text=Wien") {
		t.Errorf("RedactURL = %s", got)
	}
	if got := RedactURL("https://example.com/plain"); got != "https://example.com/plain" {
		t.Errorf("RedactURL changed a URL without secrets: %s", got)
	}
}

func TestMapStatus(t *testing.T) {
	if err := MapStatus(204, nil); err != nil {
		t.Errorf("204: %v", err)
	}
	if err := MapStatus(299, nil); err != nil {
		t.Errorf("299: %v", err)
	}
	if err := MapStatus(404, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("404: %v", err)
	}
	var httpErr *HTTPError
	if err := MapStatus(418, []byte("teapot")); !errors.As(err, &httpErr) {
		t.Errorf("418: %v", err)
	}
	if Retryable(MapStatus(404, nil)) {
		t.Error("404 should be permanent")
	}
	if !Retryable(MapStatus(429, nil)) {
		t.Error("429 should be retryable")
	}
}

func TestStatusError_Message(t *testing.T) {
	err := MapStatus(http.StatusBadRequest, []byte(`{"message":"Bin id is invalid"}`))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %T, want *StatusError", err)
	}
	if se.Message() != "Bin id is invalid" {
		t.Errorf("Message = %q", se.Message())
	}
	if want := "bad request (status 400): Bin id is invalid"; err.Error() != want {
		t.Errorf("Error = %q, want %q", err.Error(), want)
	}
	if got := MapStatus(http.StatusNotFound, []byte("<html>")).Error(); got != "not found (status 404)" {
		t.Errorf("non-JSON body: %q", got)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{MapStatus(404, nil), "404"},
		{MapStatus(500, nil), "500"},
		{&NetworkError{Err: errors.New("x")}, "network_error"},
		{&DecodeError{Err: errors.New("x")}, "decode_error"},
		{&PreconditionError{Field: "x"}, "precondition"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		if got := StatusLabel(tt.err); got != tt.want {
			t.Errorf("StatusLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCredentialsFromRecord(t *testing.T) {
	if c := CredentialsFromRecord(models.Record{}); c.Complete() {
		t.Error("empty record should not produce complete credentials")
	}
	c := CredentialsFromRecord(models.Record{
		OpenWeather: &models.OpenWeather{AppID: "a"},
		GeoApify:    &models.GeoApify{APIKey: "b"},
	})
	if !c.Complete() || c.OpenWeatherAppID != "a" || c.GeoapifyAPIKey != "b" {
		t.Errorf("credentials = %+v", c)
	}
}

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u.Query()
}
