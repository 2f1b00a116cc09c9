package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lox/rizz/internal/httputil"
	"github.com/lox/rizz/internal/metrics"
	"github.com/lox/rizz/internal/models"
)

const (
	DefaultSettingsURL = "https://api.jsonbin.io/v3/b"
	DefaultForecastURL = "https://api.openweathermap.org/data/2.5/forecast"
	DefaultGeocodeURL  = "https://api.geoapify.com/v1/geocode/search"
)

type Operation string

const (
	OpListLocations   Operation = "list_locations"
	OpUpdateLocations Operation = "update_locations"
	OpSearchLocation  Operation = "search_location"
	OpFetchForecast   Operation = "fetch_forecast"
)

// Credentials are the API keys carried by the settings document. They are
// passed explicitly to the operations that need them.
type Credentials struct {
	OpenWeatherAppID string
	GeoapifyAPIKey   string
}

// CredentialsFromRecord extracts the API keys from a settings record.
func CredentialsFromRecord(r models.Record) Credentials {
	var c Credentials
	if r.OpenWeather != nil {
		c.OpenWeatherAppID = r.OpenWeather.AppID
	}
	if r.GeoApify != nil {
		c.GeoapifyAPIKey = r.GeoApify.APIKey
	}
	return c
}

// Complete reports whether both keys are present.
func (c Credentials) Complete() bool {
	return c.OpenWeatherAppID != "" && c.GeoapifyAPIKey != ""
}

// Request describes one remote call before it is sent.
type Request struct {
	Operation Operation
	Method    string
	URL       string
	Header    http.Header
	Body      []byte
}

// Call is the outcome of one sent request, handed to a Recorder.
type Call struct {
	RequestID  string
	Operation  Operation
	Method     string
	URL        string
	StartedAt  time.Time
	FinishedAt time.Time
	StatusCode int
	Body       []byte
	Err        error
}

// Recorder receives every completed call.
type Recorder interface {
	RecordCall(ctx context.Context, call Call) error
}

type Config struct {
	SettingsURL string
	BinID       string
	// AccessKey is sent as X-Access-Key on settings operations when set.
	AccessKey   string
	ForecastURL string
	GeocodeURL  string
	Language    string
	Units       string

	HTTPClient      *http.Client
	ForecastLimiter *rate.Limiter
	Recorder        Recorder
}

type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.SettingsURL == "" {
		cfg.SettingsURL = DefaultSettingsURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = DefaultGeocodeURL
	}
	if cfg.Language == "" {
		cfg.Language = "de"
	}
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httputil.NewClient(0)
	}
	cfg.AccessKey = strings.TrimRight(cfg.AccessKey, "\r\n")
	return &Client{cfg: cfg, client: client}
}

func (c *Client) baseHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}

func (c *Client) settingsHeader() http.Header {
	h := c.baseHeader()
	if c.cfg.AccessKey != "" {
		h.Set("X-Access-Key", c.cfg.AccessKey)
	}
	return h
}

func (c *Client) binURL(op Operation) (string, error) {
	if c.cfg.BinID == "" {
		return "", &PreconditionError{Operation: op, Field: "bin id"}
	}
	return strings.TrimRight(c.cfg.SettingsURL, "/") + "/" + url.PathEscape(c.cfg.BinID), nil
}

// ListLocationsRequest fetches the latest settings document.
func (c *Client) ListLocationsRequest() (*Request, error) {
	u, err := c.binURL(OpListLocations)
	if err != nil {
		return nil, err
	}
	return &Request{
		Operation: OpListLocations,
		Method:    http.MethodGet,
		URL:       u + "/latest",
		Header:    c.settingsHeader(),
	}, nil
}

// UpdateLocationsRequest replaces the settings document with rec.
func (c *Client) UpdateLocationsRequest(rec models.Record) (*Request, error) {
	u, err := c.binURL(OpUpdateLocations)
	if err != nil {
		return nil, err
	}
	// The document is replaced wholesale, so empty lists are sent as [].
	if rec.Locations == nil {
		rec.Locations = []models.Location{}
	}
	if rec.Themes == nil {
		rec.Themes = []models.Theme{}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return &Request{
		Operation: OpUpdateLocations,
		Method:    http.MethodPut,
		URL:       u,
		Header:    c.settingsHeader(),
		Body:      body,
	}, nil
}

// SearchLocationRequest builds a geocoding search for name.
func (c *Client) SearchLocationRequest(creds Credentials, name string) (*Request, error) {
	if creds.GeoapifyAPIKey == "" {
		return nil, &PreconditionError{Operation: OpSearchLocation, Field: "geoapify api key"}
	}
	q := url.Values{}
	q.Set("text", name)
	q.Set("apiKey", creds.GeoapifyAPIKey)
	q.Set("lang", c.cfg.Language)
	return &Request{
		Operation: OpSearchLocation,
		Method:    http.MethodGet,
		URL:       c.cfg.GeocodeURL + "?" + q.Encode(),
		Header:    c.baseHeader(),
	}, nil
}

// ForecastRequest builds a 5 day / 3 hour forecast request for loc.
func (c *Client) ForecastRequest(creds Credentials, loc models.Location) (*Request, error) {
	if creds.OpenWeatherAppID == "" {
		return nil, &PreconditionError{Operation: OpFetchForecast, Field: "openweather app id"}
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("appid", creds.OpenWeatherAppID)
	q.Set("lang", c.cfg.Language)
	q.Set("units", c.cfg.Units)
	return &Request{
		Operation: OpFetchForecast,
		Method:    http.MethodGet,
		URL:       c.cfg.ForecastURL + "?" + q.Encode(),
		Header:    c.baseHeader(),
	}, nil
}

// Do sends req and decodes a 2xx body into out. A nil req is a
// precondition failure, never a silent success.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	if req == nil {
		return &PreconditionError{Operation: "unknown", Field: "request"}
	}

	if req.Operation == OpFetchForecast && c.cfg.ForecastLimiter != nil {
		if err := c.cfg.ForecastLimiter.Wait(ctx); err != nil {
			return &NetworkError{Operation: req.Operation, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", req.Operation, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	call := Call{
		RequestID: uuid.New().String(),
		Operation: req.Operation,
		Method:    req.Method,
		URL:       RedactURL(req.URL),
		StartedAt: time.Now().UTC(),
	}
	httpReq.Header.Set("X-Request-ID", call.RequestID)

	err = c.send(httpReq, &call, out)
	call.FinishedAt = time.Now().UTC()
	call.Err = err

	metrics.RemoteCallsTotal.WithLabelValues(string(req.Operation), StatusLabel(err)).Inc()
	metrics.RemoteLatency.WithLabelValues(string(req.Operation)).Observe(call.FinishedAt.Sub(call.StartedAt).Seconds())

	if c.cfg.Recorder != nil {
		if rerr := c.cfg.Recorder.RecordCall(ctx, call); rerr != nil {
			log.Printf("remote: record %s call: %v", req.Operation, rerr)
		}
	}
	return err
}

func (c *Client) send(httpReq *http.Request, call *Call, out any) error {
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &NetworkError{Operation: call.Operation, Err: err}
	}
	defer resp.Body.Close()

	call.StatusCode = resp.StatusCode
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Operation: call.Operation, Err: fmt.Errorf("read body: %w", err)}
	}
	call.Body = data

	if err := MapStatus(resp.StatusCode, data); err != nil {
		return fmt.Errorf("%s: %w", call.Operation, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Operation: call.Operation, Err: err, Body: data}
	}
	return nil
}

func (c *Client) ListLocations(ctx context.Context) (*models.SettingsEnvelope, error) {
	req, err := c.ListLocationsRequest()
	if err != nil {
		return nil, err
	}
	var env models.SettingsEnvelope
	if err := c.Do(ctx, req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *Client) UpdateLocations(ctx context.Context, rec models.Record) (*models.SettingsEnvelope, error) {
	req, err := c.UpdateLocationsRequest(rec)
	if err != nil {
		return nil, err
	}
	var env models.SettingsEnvelope
	if err := c.Do(ctx, req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *Client) SearchLocation(ctx context.Context, creds Credentials, name string) (*models.LocationResponse, error) {
	req, err := c.SearchLocationRequest(creds, name)
	if err != nil {
		return nil, err
	}
	var resp models.LocationResponse
	if err := c.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchForecast fetches and date-resolves the forecast for loc.
func (c *Client) FetchForecast(ctx context.Context, creds Credentials, loc models.Location) (*models.ForecastResponse, error) {
	req, err := c.ForecastRequest(creds, loc)
	if err != nil {
		return nil, err
	}
	var resp models.ForecastResponse
	if err := c.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	if n := resp.ResolveDates(); n > 0 {
		log.Printf("remote: forecast for %s: %d samples without parseable dt_txt", loc.Name, n)
	}
	return &resp, nil
}

var secretParams = []string{"appid", "apiKey"}

// RedactURL masks API keys in the query string.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
