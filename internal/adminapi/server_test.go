package adminapi

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"watsoniot-bridge/go-backend/internal/apikeys"
	"watsoniot-bridge/go-backend/internal/config"
	"watsoniot-bridge/go-backend/internal/dispatch"
	"watsoniot-bridge/go-backend/internal/metrics"
	"watsoniot-bridge/go-backend/internal/nodes"
	"watsoniot-bridge/go-backend/internal/operations"
	"watsoniot-bridge/go-backend/internal/platform/ratelimiter"
	"watsoniot-bridge/go-backend/internal/status"
	"watsoniot-bridge/go-backend/internal/wiotp"
	"watsoniot-bridge/go-backend/internal/wiotp/wiotptest"
)

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func neverFire(time.Duration, func()) status.Timer { return idleTimer{} }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHost(t *testing.T, factory wiotp.Factory, env map[string]string) *nodes.Host {
	t.Helper()
	h := nodes.New(nodes.Options{
		Factory: factory,
		Credentials: apikeys.Static{
			"prod": {User: "a-myorg-key", Password: "tok"},
		},
		Getenv:      func(k string) string { return env[k] },
		OutboxLimit: 32,
		Logger:      quietLogger(),
		AfterFunc:   neverFire,
	})
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h
}

func newServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOrgIDAndNewAPIKey(t *testing.T) {
	sim := wiotp.NewSimulator()
	s := newServer(t, Options{Host: newHost(t, sim.Factory(), nil)})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/watsoniot/devicediagnostics/orgid", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "undefined" {
		t.Fatalf("orgid before connect = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/watsoniot/devicediagnostics/newapikey",
		`{"credentials":{"user":"a-myorg-key","password":"tok"}}`)
	if rec.Code != http.StatusCreated || rec.Body.String() != "success" {
		t.Fatalf("newapikey = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/watsoniot/devicediagnostics/orgid", "")
	if got := strings.TrimSpace(rec.Body.String()); got != `"myorg"` {
		t.Fatalf("orgid after connect = %q", got)
	}
	rec = do(t, h, http.MethodGet, "/watsoniot/devicemanagment/orgid", "")
	if rec.Body.String() != "undefined" {
		t.Fatalf("management session must stay separate, got %q", rec.Body.String())
	}
}

func TestNewAPIKeyRejections(t *testing.T) {
	s := newServer(t, Options{Host: newHost(t, wiotp.NewSimulator().Factory(), nil)})
	h := s.Handler()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"neither credentials nor id", `{}`, http.StatusBadRequest},
		{"unknown credential id", `{"id":"nope"}`, http.StatusNotFound},
		{"username without org", `{"credentials":{"user":"nodash","password":"x"}}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/watsoniot/devicemanagment/newapikey", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	rec := do(t, h, http.MethodPost, "/watsoniot/devicemanagment/newapikey", `{"id":"prod"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("stored credential connect = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/watsoniot/telemetry/orgid", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown family = %d", rec.Code)
	}
}

func TestGetTypes(t *testing.T) {
	sim := wiotp.NewSimulator()
	sim.AddDeviceType("myorg", "pump")
	s := newServer(t, Options{Host: newHost(t, sim.Factory(), nil)})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/watsoniot/devicediagnostics/gettypes", "")
	if rec.Code != http.StatusUnauthorized || rec.Body.String() != "Uninitialized Error" {
		t.Fatalf("gettypes without session = %d %q", rec.Code, rec.Body.String())
	}

	do(t, h, http.MethodPost, "/watsoniot/devicediagnostics/newapikey", `{"id":"prod"}`)
	rec = do(t, h, http.MethodGet, "/watsoniot/devicediagnostics/gettypes", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"pump"`) {
		t.Fatalf("gettypes = %d %q", rec.Code, rec.Body.String())
	}
}

func TestGetTypesRemoteFailure(t *testing.T) {
	client := &wiotptest.Recorder{Err: &wiotp.RemoteError{Op: "getAllDeviceTypes", Status: 500}}
	s := newServer(t, Options{Host: newHost(t, client.Factory(), nil)})
	h := s.Handler()

	do(t, h, http.MethodPost, "/watsoniot/devicediagnostics/newapikey", `{"id":"prod"}`)
	rec := do(t, h, http.MethodGet, "/watsoniot/devicediagnostics/gettypes", "")
	if rec.Code != http.StatusForbidden || rec.Body.String() != "No device types" {
		t.Fatalf("gettypes failure = %d %q", rec.Code, rec.Body.String())
	}
}

func TestGetBluemixTypes(t *testing.T) {
	env := map[string]string{
		"VCAP_SERVICES": `{"iotf-service":[{"credentials":{"org":"envorg","apiKey":"a-envorg-1","apiToken":"tok"}}]}`,
	}
	s := newServer(t, Options{Host: newHost(t, wiotp.NewSimulator().Factory(), env)})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/watsoniot/devicemanagment/getbluemixtypes", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "success" {
		t.Fatalf("getbluemixtypes = %d %q", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/watsoniot/devicemanagment/orgid", "")
	if got := strings.TrimSpace(rec.Body.String()); got != `"envorg"` {
		t.Fatalf("orgid = %q", got)
	}

	bare := newServer(t, Options{Host: newHost(t, wiotp.NewSimulator().Factory(), nil)})
	rec = do(t, bare.Handler(), http.MethodGet, "/watsoniot/devicemanagment/getbluemixtypes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("missing binding must still answer success, got %d", rec.Code)
	}
}

func TestAdminTokenRequired(t *testing.T) {
	s := newServer(t, Options{Host: newHost(t, wiotp.NewSimulator().Factory(), nil), Token: "secret"})
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/watsoniot/nodes", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/watsoniot/nodes", "", TokenHeader, "secret"); rec.Code != http.StatusOK {
		t.Fatalf("header token = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/watsoniot/nodes", "", "Authorization", "Bearer secret"); rec.Code != http.StatusOK {
		t.Fatalf("bearer token = %d", rec.Code)
	}
}

func TestExtractTokenPrefersCustomHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/watsoniot/nodes", nil)
	req.Header.Set(TokenHeader, "header-token")
	req.Header.Set("Authorization", "Bearer bearer-token")
	s := &Server{}
	if got := s.extractToken(req); got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}
}

func TestCORSAllowsOnlyLocalOrigins(t *testing.T) {
	s := newServer(t, Options{Host: newHost(t, wiotp.NewSimulator().Factory(), nil)})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "", "Origin", "https://evil.example")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign origin = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/healthz", "", "Origin", "http://localhost:1880")
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:1880" {
		t.Fatalf("missing allow-origin header: %v", rec.Header())
	}
	rec = do(t, h, http.MethodOptions, "/watsoniot/nodes", "", "Origin", "http://127.0.0.1:1880")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", rec.Code)
	}
}

func TestRateLimitCountsRejections(t *testing.T) {
	m := metrics.New(false)
	now := time.Unix(1_700_000_000, 0)
	s := newServer(t, Options{
		Host:    newHost(t, wiotp.NewSimulator().Factory(), nil),
		Metrics: m,
		Limiter: ratelimiter.New(ratelimiter.Config{RPS: 1, Burst: 1}),
		Now:     func() time.Time { return now },
	})
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d", rec.Code)
	}

	now = now.Add(2 * time.Second)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "wiotp_bridge_admin_rate_limited_total 1") {
		t.Fatalf("rate limit counter missing:\n%s", body)
	}
	if !strings.Contains(body, `route="GET /healthz"`) {
		t.Fatalf("admin request counter missing:\n%s", body)
	}
}

func TestNodeInputLifecycle(t *testing.T) {
	sim := wiotp.NewSimulator()
	sim.AddDeviceType("myorg", "t1")
	host := newHost(t, sim.Factory(), nil)
	if err := host.AddNode(dispatch.NodeConfig{
		ID: "diag-1", Family: operations.Diagnostics, Method: "new_log", Auth: config.AuthAPI, APIKey: "prod",
	}); err != nil {
		t.Fatalf("add node: %v", err)
	}
	if err := host.AddNode(dispatch.NodeConfig{ID: "dm-1", Family: operations.Management}); err != nil {
		t.Fatalf("add node: %v", err)
	}
	s := newServer(t, Options{Host: host})
	h := s.Handler()

	if rec := do(t, h, http.MethodPost, "/watsoniot/nodes/nope/input", `{}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown node = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/watsoniot/nodes/diag-1/input", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body = %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/watsoniot/nodes/diag-1/input", `{"payload":{"deviceId":"d1"}}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "DeviceType") {
		t.Fatalf("validation = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/watsoniot/nodes/dm-1/input",
		`{"operation":"get_all_dmr","payload":{}}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("uninitialized = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/watsoniot/nodes/diag-1/input",
		`{"_msgid":"abc","payload":"{\"deviceType\":\"t1\",\"deviceId\":\"d1\",\"log\":{\"message\":\"hi\"}}"}`)
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"abc"`) {
		t.Fatalf("accepted = %d %q", rec.Code, rec.Body.String())
	}
	if err := host.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	rec = do(t, h, http.MethodGet, "/watsoniot/nodes/diag-1/status", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"green"`) {
		t.Fatalf("status = %d %q", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/watsoniot/nodes/diag-1/output", "")
	body := rec.Body.String()
	if !strings.Contains(body, `"_msgid":"abc"`) || !strings.Contains(body, `"kind":"message"`) {
		t.Fatalf("output = %q", body)
	}
	if rec := do(t, h, http.MethodGet, "/watsoniot/nodes/diag-1/output?since=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad since = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/watsoniot/nodes/nope/status", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/watsoniot/nodes", "")
	if !strings.Contains(rec.Body.String(), `"diag-1"`) || !strings.Contains(rec.Body.String(), `"dm-1"`) {
		t.Fatalf("list = %q", rec.Body.String())
	}
}

func TestEventsStreamReplaysAndFollows(t *testing.T) {
	host := newHost(t, wiotp.NewSimulator().Factory(), nil)
	host.Outbox().Send("n1", dispatch.Message{ID: "first"})
	host.Outbox().Error("n2", dispatch.Message{ID: "other"}, errors.New("skip me"))

	s := newServer(t, Options{Host: host, Heartbeat: time.Hour})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/watsoniot/events?node=n1", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	nextData := func() string {
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "data: ") {
				return line
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return ""
	}

	if got := nextData(); !strings.Contains(got, `"_msgid":"first"`) {
		t.Fatalf("replay = %q", got)
	}
	host.Outbox().Send("n2", dispatch.Message{ID: "filtered"})
	host.Outbox().Send("n1", dispatch.Message{ID: "second"})
	if got := nextData(); !strings.Contains(got, `"_msgid":"second"`) {
		t.Fatalf("live event = %q", got)
	}
}

func TestStreamSlotsAreLimited(t *testing.T) {
	slots := ratelimiter.NewSlots(1, 1)
	release, ok := slots.Acquire("ip:192.0.2.1")
	if !ok {
		t.Fatal("first slot must be granted")
	}
	defer release()

	s := newServer(t, Options{Host: newHost(t, wiotp.NewSimulator().Factory(), nil), Streams: slots})
	rec := do(t, s.Handler(), http.MethodGet, "/watsoniot/events", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("stream over limit = %d", rec.Code)
	}
}

func TestNewRequiresHost(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without host")
	}
}
