// Package prayer fetches daily prayer times from the Al Adhan API and keeps
// the "next prayer" fields current between fetches.
package prayer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

const (
	DefaultBaseURL  = "https://api.aladhan.com"
	DefaultInterval = 6 * time.Hour
	NotAvailable    = "N/A"

	// DefaultMethod is the Egyptian General Authority of Survey.
	DefaultMethod = 5
)

// Prayer names in daily order.
const (
	Fajr    = "Fajr"
	Dhuhr   = "Dhuhr"
	Asr     = "Asr"
	Maghrib = "Maghrib"
	Isha    = "Isha"
)

// Times is one day's timings plus the derived next prayer.
type Times struct {
	Fajr           TimeOfDay `json:"fajr"`
	Dhuhr          TimeOfDay `json:"dhuhr"`
	Asr            TimeOfDay `json:"asr"`
	Maghrib        TimeOfDay `json:"maghrib"`
	Isha           TimeOfDay `json:"isha"`
	HijriDate      string    `json:"hijri_date"`
	NextPrayerName string    `json:"next_prayer_name"`
	NextPrayerTime TimeOfDay `json:"next_prayer_time"`
	Timezone       string    `json:"timezone,omitempty"`
}

// Placeholder is the value shown before the first successful fetch.
func Placeholder() Times {
	return Times{HijriDate: NotAvailable, NextPrayerName: NotAvailable}
}

type namedTime struct {
	name string
	at   TimeOfDay
}

func (t Times) ordered() []namedTime {
	return []namedTime{
		{Fajr, t.Fajr},
		{Dhuhr, t.Dhuhr},
		{Asr, t.Asr},
		{Maghrib, t.Maghrib},
		{Isha, t.Isha},
	}
}

// Loaded reports whether t holds real timings rather than the placeholder.
func (t Times) Loaded() bool {
	return t.Fajr != 0 || t.Dhuhr != 0 || t.Isha != 0
}

// Next returns the first prayer strictly after now. After isha it is the
// following day's fajr.
func (t Times) Next(now TimeOfDay) (string, TimeOfDay) {
	for _, p := range t.ordered() {
		if p.at > now {
			return p.name, p.at
		}
	}
	return Fajr, t.Fajr
}

// WithNext returns t with the next prayer fields recomputed for now.
// Placeholder values are returned unchanged.
func (t Times) WithNext(now time.Time) Times {
	if !t.Loaded() {
		return t
	}
	if loc := t.location(); loc != nil {
		now = now.In(loc)
	}
	t.NextPrayerName, t.NextPrayerTime = t.Next(Of(now))
	return t
}

// Until returns how long until the next prayer, measured from now.
func (t Times) Until(now time.Time) time.Duration {
	if !t.Loaded() {
		return 0
	}
	if loc := t.location(); loc != nil {
		now = now.In(loc)
	}
	at := t.NextPrayerTime.On(now)
	if !at.After(now) {
		at = t.NextPrayerTime.On(now.AddDate(0, 0, 1))
	}
	return at.Sub(now)
}

func (t Times) location() *time.Location {
	if t.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// Config selects the city and calculation method.
type Config struct {
	City    string
	Country string
	Method  int

	// BaseURL overrides the endpoint, for tests.
	BaseURL string
	Client  *http.Client
	Now     func() time.Time
}

// Source fetches timings for one city.
type Source struct {
	cfg Config
}

// NewSource creates a Source. Zero-value fields get defaults.
func NewSource(cfg Config) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Method == 0 {
		cfg.Method = DefaultMethod
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Source{cfg: cfg}
}

// URL returns the timingsByCity request URL.
func (s *Source) URL() string {
	q := url.Values{}
	q.Set("city", s.cfg.City)
	q.Set("country", s.cfg.Country)
	q.Set("method", strconv.Itoa(s.cfg.Method))
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/timingsByCity?" + q.Encode()
}

// Fetch requests today's timings and computes the next prayer.
func (s *Source) Fetch(ctx context.Context) (Times, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(), nil)
	if err != nil {
		return Times{}, fmt.Errorf("prayer: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return Times{}, fmt.Errorf("prayer: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Times{}, fmt.Errorf("prayer: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Times{}, fmt.Errorf("prayer: read body: %w", err)
	}

	t, err := Parse(body)
	if err != nil {
		return Times{}, err
	}
	return t.WithNext(s.cfg.Now()), nil
}

// apiResponse is the subset of the timingsByCity response we read.
type apiResponse struct {
	Code int `json:"code"`
	Data struct {
		Timings map[string]string `json:"timings"`
		Date    struct {
			Hijri hijriDate `json:"hijri"`
		} `json:"date"`
		Meta struct {
			Timezone string `json:"timezone"`
		} `json:"meta"`
	} `json:"data"`
}

type hijriDate struct {
	Day   string `json:"day"`
	Month struct {
		En string `json:"en"`
	} `json:"month"`
	Year        string `json:"year"`
	Designation struct {
		Abbreviated string `json:"abbreviated"`
	} `json:"designation"`
}

// format renders "DD Month YYYY AH".
func (h hijriDate) format() string {
	if h.Day == "" || h.Month.En == "" || h.Year == "" {
		return NotAvailable
	}
	abbr := h.Designation.Abbreviated
	if abbr == "" {
		abbr = "AH"
	}
	return h.Day + " " + h.Month.En + " " + h.Year + " " + abbr
}

// Parse decodes a timingsByCity payload. Next prayer fields are left zero.
func Parse(data []byte) (Times, error) {
	var r apiResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return Times{}, shell.Unparseable("aladhan", "decode: %v", err)
	}
	if r.Code != 0 && r.Code != http.StatusOK {
		return Times{}, shell.Unparseable("aladhan", "api code %d", r.Code)
	}

	var t Times
	fields := []struct {
		name string
		dst  *TimeOfDay
	}{
		{Fajr, &t.Fajr},
		{Dhuhr, &t.Dhuhr},
		{Asr, &t.Asr},
		{Maghrib, &t.Maghrib},
		{Isha, &t.Isha},
	}
	for _, f := range fields {
		raw, ok := r.Data.Timings[f.name]
		if !ok {
			return Times{}, shell.Unparseable("aladhan", "missing %s", f.name)
		}
		v, err := ParseTimeOfDay(raw)
		if err != nil {
			return Times{}, err
		}
		*f.dst = v
	}

	t.HijriDate = r.Data.Date.Hijri.format()
	t.Timezone = r.Data.Meta.Timezone
	return t, nil
}
