package web_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/machinewatch/machinewatch/internal/logstore"
	"github.com/machinewatch/machinewatch/internal/monitor"
	"github.com/machinewatch/machinewatch/internal/status"
	"github.com/machinewatch/machinewatch/internal/web"
)

// stubController is a scripted web.Controller.
type stubController struct {
	mu          sync.Mutex
	state       monitor.State
	connects    []monitor.Config
	connectErr  error
	disconnects int
}

func newStubController() *stubController {
	return &stubController{state: monitor.StateDisconnected}
}

func (s *stubController) Connect(cfg monitor.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(cfg.Identity) == "" {
		return monitor.ErrBlankIdentity
	}
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connects = append(s.connects, cfg)
	s.state = monitor.StateConnecting
	return nil
}

func (s *stubController) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.state = monitor.StateDisconnected
}

func (s *stubController) State() monitor.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func newTestServer(t *testing.T, ctrl web.Controller, st *logstore.Store) *httptest.Server {
	t.Helper()
	h := web.New(ctrl, st, web.DefaultsResponse{
		EndpointURL: "ws://default.hub/machines",
		Identity:    "default-user",
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

// --- tests ------------------------------------------------------------------

func TestRecords_Decorated(t *testing.T) {
	st := logstore.New(50)
	st.Ingest([]byte(`{"data":{"id":"m1","name":"Press 4","status":"Emergency"}}`))
	st.Ingest([]byte(`{"data":{"id":"m2","name":"Lathe 1","status":"InProduction"}}`))
	srv := newTestServer(t, newStubController(), st)

	var views []web.RecordView
	getJSON(t, srv.URL+"/api/v1/records", &views)

	if len(views) != 2 {
		t.Fatalf("records: got %d, want 2", len(views))
	}
	// Newest first.
	if views[0].ID != "m2" {
		t.Errorf("first record: got %q, want m2", views[0].ID)
	}
	if views[0].ColorClass != status.ClassProcessing {
		t.Errorf("InProduction colorClass: got %q, want %q", views[0].ColorClass, status.ClassProcessing)
	}
	if views[1].Icon != status.IconFailure {
		t.Errorf("Emergency icon: got %q, want %q", views[1].Icon, status.IconFailure)
	}
}

func TestConnect_BlankIdentityRejected(t *testing.T) {
	ctrl := newStubController()
	srv := newTestServer(t, ctrl, logstore.New(50))

	resp := postJSON(t, srv.URL+"/api/v1/connect", `{"endpointUrl":"ws://hub","identity":"  "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if len(ctrl.connects) != 0 {
		t.Error("controller must not have been asked to connect")
	}
}

func TestConnect_AlreadyActiveConflict(t *testing.T) {
	ctrl := newStubController()
	ctrl.connectErr = monitor.ErrAlreadyActive
	srv := newTestServer(t, ctrl, logstore.New(50))

	resp := postJSON(t, srv.URL+"/api/v1/connect", `{"endpointUrl":"ws://hub","identity":"u1"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status: got %d, want 409", resp.StatusCode)
	}
}

func TestConnect_Accepted(t *testing.T) {
	ctrl := newStubController()
	srv := newTestServer(t, ctrl, logstore.New(50))

	resp := postJSON(t, srv.URL+"/api/v1/connect", `{"endpointUrl":"ws://hub.example/machines","identity":"u1"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", resp.StatusCode)
	}
	if len(ctrl.connects) != 1 || ctrl.connects[0].Identity != "u1" {
		t.Fatalf("connects: got %+v", ctrl.connects)
	}
}

func TestConnect_BlankEndpointUsesDefault(t *testing.T) {
	ctrl := newStubController()
	srv := newTestServer(t, ctrl, logstore.New(50))

	postJSON(t, srv.URL+"/api/v1/connect", `{"identity":"u1"}`)

	if len(ctrl.connects) != 1 {
		t.Fatalf("connects: got %d, want 1", len(ctrl.connects))
	}
	if got := ctrl.connects[0].EndpointURL; got != "ws://default.hub/machines" {
		t.Errorf("endpoint: got %q, want the configured default", got)
	}
}

func TestDisconnect(t *testing.T) {
	ctrl := newStubController()
	ctrl.state = monitor.StateConnected
	srv := newTestServer(t, ctrl, logstore.New(50))

	resp := postJSON(t, srv.URL+"/api/v1/disconnect", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ctrl.disconnects != 1 {
		t.Errorf("disconnects: got %d, want 1", ctrl.disconnects)
	}
}

func TestClear(t *testing.T) {
	st := logstore.New(50)
	st.Ingest([]byte(`{"data":{"id":"m1","status":"Online"}}`))
	srv := newTestServer(t, newStubController(), st)

	resp := postJSON(t, srv.URL+"/api/v1/clear", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", resp.StatusCode)
	}
	if st.Len() != 0 {
		t.Errorf("store len after clear: got %d, want 0", st.Len())
	}
}

func TestDefaults_Reloadable(t *testing.T) {
	ctrl := newStubController()
	st := logstore.New(50)
	h := web.New(ctrl, st, web.DefaultsResponse{EndpointURL: "ws://a", Identity: "u1"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	var d web.DefaultsResponse
	getJSON(t, srv.URL+"/api/v1/defaults", &d)
	if d.EndpointURL != "ws://a" {
		t.Errorf("defaults: got %+v", d)
	}

	h.SetDefaults(web.DefaultsResponse{EndpointURL: "ws://b", Identity: "u2"})
	getJSON(t, srv.URL+"/api/v1/defaults", &d)
	if d.EndpointURL != "ws://b" || d.Identity != "u2" {
		t.Errorf("defaults after reload: got %+v", d)
	}
}

func TestHealth(t *testing.T) {
	st := logstore.New(50)
	st.Ingest([]byte(`{"data":{"id":"m1","status":"Online"}}`))
	srv := newTestServer(t, newStubController(), st)

	var health web.HealthResponse
	getJSON(t, srv.URL+"/api/v1/health", &health)
	if health.RecordCount != 1 || health.Capacity != 50 {
		t.Errorf("health: got %+v", health)
	}
	if health.State != monitor.StateDisconnected {
		t.Errorf("health state: got %v", health.State)
	}
}

func TestPage_ServedAtRootOnly(t *testing.T) {
	srv := newTestServer(t, newStubController(), logstore.New(50))

	resp := getJSON(t, srv.URL+"/", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type: got %q", ct)
	}

	resp = getJSON(t, srv.URL+"/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newStubController(), logstore.New(50))

	resp := getJSON(t, srv.URL+"/api/v1/connect", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET connect: got %d, want 405", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/api/v1/records", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST records: got %d, want 405", resp.StatusCode)
	}
}
