package prayer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

const cairoTimings = `{
  "code": 200,
  "status": "OK",
  "data": {
    "timings": {
      "Fajr": "04:12 (EET)", "Sunrise": "05:45 (EET)", "Dhuhr": "11:58 (EET)",
      "Asr": "15:20 (EET)", "Sunset": "18:10 (EET)", "Maghrib": "18:10 (EET)",
      "Isha": "19:28 (EET)"
    },
    "date": {
      "hijri": {
        "day": "14", "month": {"number": 9, "en": "Ramaḍān"}, "year": "1447",
        "designation": {"abbreviated": "AH", "expanded": "Anno Hegirae"}
      }
    },
    "meta": {"timezone": "Africa/Cairo"}
  }
}`

func mustParse(t *testing.T) Times {
	t.Helper()
	times, err := Parse([]byte(cairoTimings))
	require.NoError(t, err)
	return times
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"04:12", 4*60 + 12, false},
		{"19:28 (EET)", 19*60 + 28, false},
		{" 00:00 ", 0, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, shell.ErrUnparseable, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	b, err := json.Marshal(TimeOfDay(5*60 + 7))
	require.NoError(t, err)
	assert.Equal(t, `"05:07"`, string(b))

	var got TimeOfDay
	require.NoError(t, json.Unmarshal([]byte(`"18:10"`), &got))
	assert.Equal(t, TimeOfDay(18*60+10), got)
}

func TestParse(t *testing.T) {
	times := mustParse(t)
	assert.Equal(t, "04:12", times.Fajr.String())
	assert.Equal(t, "11:58", times.Dhuhr.String())
	assert.Equal(t, "15:20", times.Asr.String())
	assert.Equal(t, "18:10", times.Maghrib.String())
	assert.Equal(t, "19:28", times.Isha.String())
	assert.Equal(t, "14 Ramaḍān 1447 AH", times.HijriDate)
	assert.Equal(t, "Africa/Cairo", times.Timezone)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"not json":       `rate limited`,
		"missing isha":   `{"code":200,"data":{"timings":{"Fajr":"04:12","Dhuhr":"11:58","Asr":"15:20","Maghrib":"18:10"}}}`,
		"bad time":       `{"code":200,"data":{"timings":{"Fajr":"4am","Dhuhr":"11:58","Asr":"15:20","Maghrib":"18:10","Isha":"19:28"}}}`,
		"api error code": `{"code":400,"data":{}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.True(t, errors.Is(err, shell.ErrUnparseable), "err = %v", err)
		})
	}
}

func TestParseMissingHijri(t *testing.T) {
	times, err := Parse([]byte(`{"code":200,"data":{"timings":{"Fajr":"04:12","Dhuhr":"11:58","Asr":"15:20","Maghrib":"18:10","Isha":"19:28"}}}`))
	require.NoError(t, err)
	assert.Equal(t, NotAvailable, times.HijriDate)
}

func TestNext(t *testing.T) {
	times := mustParse(t)
	tests := []struct {
		now      string
		wantName string
		wantAt   string
	}{
		{"00:30", Fajr, "04:12"},
		{"04:12", Dhuhr, "11:58"}, // strictly after
		{"12:00", Asr, "15:20"},
		{"18:09", Maghrib, "18:10"},
		{"19:00", Isha, "19:28"},
		{"19:28", Fajr, "04:12"},
		{"23:59", Fajr, "04:12"},
	}
	for _, tt := range tests {
		now, err := ParseTimeOfDay(tt.now)
		require.NoError(t, err)
		name, at := times.Next(now)
		assert.Equal(t, tt.wantName, name, "now %s", tt.now)
		assert.Equal(t, tt.wantAt, at.String(), "now %s", tt.now)
	}
}

func TestWithNextUsesTimezone(t *testing.T) {
	times := mustParse(t)
	times.Timezone = "UTC"
	now := time.Date(2026, 3, 3, 12, 30, 0, 0, time.UTC)

	got := times.WithNext(now)
	assert.Equal(t, Asr, got.NextPrayerName)
	assert.Equal(t, "15:20", got.NextPrayerTime.String())
	assert.Equal(t, 2*time.Hour+50*time.Minute, got.Until(now))
}

func TestUntilWrapsToTomorrow(t *testing.T) {
	times := mustParse(t)
	times.Timezone = "UTC"
	now := time.Date(2026, 3, 3, 20, 0, 0, 0, time.UTC)

	got := times.WithNext(now)
	assert.Equal(t, Fajr, got.NextPrayerName)
	assert.Equal(t, 8*time.Hour+12*time.Minute, got.Until(now))
}

func TestWithNextLeavesPlaceholder(t *testing.T) {
	p := Placeholder().WithNext(time.Now())
	assert.Equal(t, NotAvailable, p.NextPrayerName)
	assert.False(t, p.Loaded())
}

func TestSourceFetch(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/timingsByCity", r.URL.Path)
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(cairoTimings))
	}))
	defer srv.Close()

	src := NewSource(Config{
		City:    "Cairo",
		Country: "Egypt",
		BaseURL: srv.URL,
		Now:     func() time.Time { return time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC) },
	})
	times, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "city=Cairo&country=Egypt&method=5", query)
	// 14:00 UTC is 16:00 in Cairo.
	assert.Equal(t, Maghrib, times.NextPrayerName)
}

func TestClockTickRecomputes(t *testing.T) {
	times := mustParse(t)
	times.Timezone = "UTC"

	now := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)
	svc := services.New(services.Config[Times]{
		Name:    "prayer",
		Default: Placeholder(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Source: services.SourceFunc[Times](func(ctx context.Context) (Times, error) {
			return times.WithNext(now), nil
		}),
	})
	svc.Refresh(context.Background())
	require.Equal(t, Dhuhr, svc.Current().Data.NextPrayerName)

	notified := 0
	sub := svc.OnChange(func(services.CachedValue[Times]) { notified++ })
	defer sub.Release()

	clock := NewClock(svc, 0, func() time.Time { return now })
	now = now.Add(2 * time.Hour)
	clock.Tick()

	assert.Equal(t, Asr, svc.Current().Data.NextPrayerName)
	assert.Equal(t, services.Fresh, svc.Current().State)
	assert.Equal(t, 1, notified)
}

func TestClockStartStops(t *testing.T) {
	svc := services.New(services.Config[Times]{
		Name:    "prayer",
		Default: Placeholder(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Source: services.SourceFunc[Times](func(ctx context.Context) (Times, error) {
			return Times{}, errors.New("offline")
		}),
	})

	ticks := make(chan struct{}, 16)
	sub := svc.OnChange(func(services.CachedValue[Times]) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	defer sub.Release()

	h := NewClock(svc, 5*time.Millisecond, nil).Start(context.Background())
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("clock never ticked")
	}
	h.Release()
	assert.Equal(t, NotAvailable, svc.Current().Data.NextPrayerName)
}
