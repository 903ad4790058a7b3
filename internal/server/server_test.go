package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"meetcast/internal/capability/mock"
	"meetcast/internal/config"
	"meetcast/internal/db"
	"meetcast/internal/domain"
	"meetcast/internal/engine"
	"meetcast/internal/events"
	"meetcast/internal/metrics"
	"meetcast/internal/migrate"
	"meetcast/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, withJournal bool) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Timezone = "UTC"
	cfg.Pipeline.RetryDelay = config.Duration(time.Millisecond)

	m := metrics.New()
	e := engine.New(mock.DefaultWeather(), mock.DefaultCalendar(), cfg)
	e.Metrics = m
	e.Now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }

	srvCfg := Config{Engine: e, Metrics: m, Log: zerolog.Nop(), BasePath: "/v0"}
	closeDB := func() {}
	if withJournal {
		conn, err := db.Open(db.Config{Workspace: t.TempDir()})
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		if _, err := migrate.Migrate(context.Background(), conn); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		srvCfg.Engine.Journal = events.Writer{DB: conn}
		srvCfg.Repo = &repo.Repo{DB: conn}
		closeDB = func() { conn.Close() }
	}

	handler, err := New(srvCfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			closeDB()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func schedule(t *testing.T, srv *testServer, body map[string]any) domain.EventSummary {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/schedule", body)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("schedule status %d: %s", res.StatusCode, string(data))
	}
	var sum domain.EventSummary
	if err := json.Unmarshal(data, &sum); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	return sum
}

func TestScheduleConflictThenListRuns(t *testing.T) {
	srv, cleanup := newTestServer(t, true)
	defer cleanup()

	sum := schedule(t, srv, map[string]any{"text": "Friday 15:00 Taipei team sync 30min"})
	if sum.Status != domain.StatusConflict || len(sum.Candidates) != 3 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.RunID == "" {
		t.Fatalf("run id missing")
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/runs", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list runs status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedRuns
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal runs: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != sum.RunID {
		t.Fatalf("runs = %+v", page.Items)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/runs/"+sum.RunID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get run status %d: %s", res.StatusCode, string(data))
	}
	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if run.Summary.Status != domain.StatusConflict || len(run.Transitions) == 0 {
		t.Fatalf("run = %+v", run)
	}
}

func TestScheduleClarificationRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()

	first := schedule(t, srv, map[string]any{"text": "meet Alice tomorrow"})
	if first.Status != domain.StatusClarificationNeeded {
		t.Fatalf("first status %s", first.Status)
	}
	second := schedule(t, srv, map[string]any{"text": "meet Alice tomorrow", "answer": "10:00 in Taipei"})
	if second.Status != domain.StatusConfirmed || second.EventID == "" {
		t.Fatalf("second = %+v", second)
	}
}

func TestScheduleRejectsEmptyText(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/schedule", map[string]any{"text": "   "})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if env.Error.Code != "bad_request" {
		t.Fatalf("code = %s", env.Error.Code)
	}
}

func TestRunsUnavailableWithoutJournal(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/runs", nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", res.StatusCode, string(data))
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t, true)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/runs/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), `"not_found"`) {
		t.Fatalf("body = %s", string(data))
	}
}

func TestMetricsAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()

	schedule(t, srv, map[string]any{"text": "Friday 10:00 Taipei meet Alice 60min"})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "meetcast_runs_total") {
		t.Fatalf("metrics missing runs counter:\n%s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "/v0/schedule") {
		t.Fatalf("openapi missing schedule path")
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}
