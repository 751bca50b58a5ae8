// Package weather fetches current conditions from wttr.in's JSON format and
// normalises them into the strings a bar label shows.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

// Default configuration values.
const (
	DefaultBaseURL  = "https://wttr.in"
	DefaultInterval = 30 * time.Minute
	NotAvailable    = "N/A"
)

// Units selects which wttr.in temperature fields are used.
type Units string

const (
	Metric   Units = "metric"
	Imperial Units = "imperial"
)

// Snapshot is what a weather widget renders. Temperature reads like
// "Clear feels 28°C" for compatibility with existing bar labels.
type Snapshot struct {
	Temperature string `json:"temperature"`
	FeelsLike   string `json:"feels_like"`
	Description string `json:"description"`
	IconKey     string `json:"icon_key"`
	Humidity    string `json:"humidity,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Placeholder is the value shown before the first successful fetch.
func Placeholder() Snapshot {
	return Snapshot{
		Temperature: NotAvailable,
		FeelsLike:   NotAvailable,
		Description: NotAvailable,
		IconKey:     "unknown",
	}
}

// Config controls the weather source.
type Config struct {
	// City is the wttr.in location, e.g. "Cairo". Empty lets wttr.in
	// geolocate by IP.
	City string

	// Units picks Celsius (metric, default) or Fahrenheit (imperial).
	Units Units

	// BaseURL overrides the endpoint, for tests.
	BaseURL string

	// Client is the HTTP client. Nil uses a client with a 15s timeout.
	Client *http.Client
}

// Source fetches weather for one configured city.
type Source struct {
	cfg Config
}

// NewSource creates a Source. Zero-value fields get defaults.
func NewSource(cfg Config) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Units == "" {
		cfg.Units = Metric
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Source{cfg: cfg}
}

// URL returns the request URL for the configured city.
func (s *Source) URL() string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	return base + "/" + url.PathEscape(s.cfg.City) + "?format=j1"
}

// Fetch performs one request and parses the response.
func (s *Source) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("weather: build request: %w", err)
	}
	// wttr.in serves ANSI art to anything that looks like curl.
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bar-pulse")

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("weather: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("weather: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Snapshot{}, fmt.Errorf("weather: read body: %w", err)
	}
	return Parse(body, s.cfg.Units)
}

// j1Response is the subset of wttr.in's ?format=j1 payload we read.
type j1Response struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		TempF       string `json:"temp_F"`
		FeelsLikeC  string `json:"FeelsLikeC"`
		FeelsLikeF  string `json:"FeelsLikeF"`
		Humidity    string `json:"humidity"`
		WeatherCode string `json:"weatherCode"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []struct {
			Value string `json:"value"`
		} `json:"areaName"`
	} `json:"nearest_area"`
}

// Parse converts a j1 payload into a Snapshot.
func Parse(data []byte, units Units) (Snapshot, error) {
	var r j1Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Snapshot{}, shell.Unparseable("wttr.in", "decode: %v", err)
	}
	if len(r.CurrentCondition) == 0 {
		return Snapshot{}, shell.Unparseable("wttr.in", "no current_condition")
	}
	cc := r.CurrentCondition[0]

	temp, feels, unit := cc.TempC, cc.FeelsLikeC, "°C"
	if units == Imperial {
		temp, feels, unit = cc.TempF, cc.FeelsLikeF, "°F"
	}
	if temp == "" || feels == "" {
		return Snapshot{}, shell.Unparseable("wttr.in", "missing temperature fields")
	}

	desc := ""
	if len(cc.WeatherDesc) > 0 {
		desc = strings.TrimSpace(cc.WeatherDesc[0].Value)
	}
	if desc == "" {
		desc = NotAvailable
	}

	snap := Snapshot{
		Temperature: fmt.Sprintf("%s feels %s%s", desc, temp, unit),
		FeelsLike:   feels + unit,
		Description: desc,
		IconKey:     IconKey(cc.WeatherCode),
		Humidity:    cc.Humidity,
	}
	if len(r.NearestArea) > 0 && len(r.NearestArea[0].AreaName) > 0 {
		snap.Location = r.NearestArea[0].AreaName[0].Value
	}
	return snap, nil
}
