package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/dataplex/internal/collector"
	"github.com/danmuck/dataplex/internal/observability"
	"github.com/danmuck/dataplex/internal/sinks"
	"github.com/danmuck/dataplex/internal/testutil/testlog"
)

type fakeSource struct {
	status collector.Status
	latest sinks.Reading
	ok     bool
}

func (f *fakeSource) Status() collector.Status { return f.status }
func (f *fakeSource) Latest() (sinks.Reading, bool) { return f.latest, f.ok }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndStatus(t *testing.T) {
	testlog.Start(t)
	src := &fakeSource{status: collector.Status{Station: "weather-a", Connected: true, Polls: 4}}
	h := New("weather-a", "", src, nil).Handler()

	rec := get(t, h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health code=%d", rec.Code)
	}
	var health map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("health decode: %v", err)
	}
	if health["status"] != "ok" || health["service"] != "weather-a" || health["version"] != Version {
		t.Fatalf("unexpected health: %v", health)
	}

	rec = get(t, h, "/status")
	var st collector.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("status decode: %v", err)
	}
	if !st.Connected || st.Polls != 4 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestLatestReading(t *testing.T) {
	testlog.Start(t)
	src := &fakeSource{}
	h := New("weather-a", "", src, nil).Handler()
	if rec := get(t, h, "/readings/latest"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first reading, got %d", rec.Code)
	}

	src.latest = sinks.Reading{
		Time:    time.Unix(1700000000, 0).UTC(),
		Station: "weather-a",
		Values:  map[string]float64{"temperature": 21.5},
	}
	src.ok = true
	rec := get(t, h, "/readings/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("latest code=%d", rec.Code)
	}
	var got sinks.Reading
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("latest decode: %v", err)
	}
	if got.Values["temperature"] != 21.5 || !got.Time.Equal(src.latest.Time) {
		t.Fatalf("unexpected reading: %+v", got)
	}
}

func TestMetricsExposeHTTPRequests(t *testing.T) {
	testlog.Start(t)
	observability.NewSessionObserver("weather-m").HelloAnswered()
	h := New("weather-m", "", &fakeSource{}, nil).Handler()
	get(t, h, "/health")
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics code=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"dataplex_http_requests_total", "dataplex_pakbus_hellos_answered_total"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	testlog.Start(t)
	h := New("weather-a", "", &fakeSource{}, []string{"http://dash.local"}).Handler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dash.local")
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://dash.local" {
		t.Fatalf("allow origin got=%q", got)
	}
}
