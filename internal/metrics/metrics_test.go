package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"watsoniot-bridge/go-backend/internal/status"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveRequest("devicediagnostics", "get_log", "success", time.Millisecond)
	c.SessionConnected("devicediagnostics", "apikey")
	c.SessionConnectFailed("devicediagnostics")
	c.Publish("n1", status.Status{State: status.Success})
	c.AdminRequest("orgid", http.StatusOK)
	c.RateLimited()
	if c.Registry() != nil {
		t.Fatal("nil collector must not expose a registry")
	}
}

func TestCountersTrackEvents(t *testing.T) {
	c := New(false)
	c.ObserveRequest("devicediagnostics", "get_log", "success", 5*time.Millisecond)
	c.ObserveRequest("devicediagnostics", "get_log", "success", 5*time.Millisecond)
	c.ObserveRequest("devicemanagment", "get_dmr", "remote_error", time.Millisecond)
	c.SessionConnected("devicemanagment", "environment")
	c.Publish("n1", status.Status{State: status.Error})
	c.AdminRequest("gettypes", http.StatusUnauthorized)
	c.RateLimited()

	if got := testutil.ToFloat64(c.requests.WithLabelValues("devicediagnostics", "get_log", "success")); got != 2 {
		t.Fatalf("requests success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("devicemanagment", "get_dmr", "remote_error")); got != 1 {
		t.Fatalf("requests remote_error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.connects.WithLabelValues("devicemanagment", "environment")); got != 1 {
		t.Fatalf("connects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.statusChanges.WithLabelValues("error")); got != 1 {
		t.Fatalf("status changes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.adminRequests.WithLabelValues("gettypes", "Unauthorized")); got != 1 {
		t.Fatalf("admin requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.rateLimited); got != 1 {
		t.Fatalf("rate limited = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.requestDuration); n != 2 {
		t.Fatalf("duration series = %d, want 2", n)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New(false)
	c.SessionConnected("devicediagnostics", "apikey")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wiotp_bridge_session_connects_total") {
		t.Fatalf("missing connect counter in exposition:\n%s", rec.Body.String())
	}
}
