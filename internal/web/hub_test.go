package web_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/machinewatch/machinewatch/internal/logstore"
	"github.com/machinewatch/machinewatch/internal/monitor"
	"github.com/machinewatch/machinewatch/internal/web"
)

type pushFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// startHub runs a Hub behind an httptest server and returns it with the
// store backing it.
func startHub(t *testing.T, ctrl web.Controller) (*web.Hub, *logstore.Store, *httptest.Server) {
	t.Helper()
	st := logstore.New(50)
	hub := web.NewHub(ctrl, st)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, st, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads the next push frame with a deadline so a missing
// broadcast fails the test instead of hanging it.
func readFrame(t *testing.T, conn *websocket.Conn) pushFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f pushFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal frame %q: %v", raw, err)
	}
	return f
}

func TestHub_SnapshotOnJoin(t *testing.T) {
	ctrl := newStubController()
	ctrl.state = monitor.StateConnected
	_, st, srv := startHub(t, ctrl)
	st.Ingest([]byte(`{"data":{"id":"m1","name":"Press 4","status":"Online"}}`))

	conn := dialHub(t, srv)

	f := readFrame(t, conn)
	if f.Event != "snapshot" {
		t.Fatalf("first frame: got %q, want snapshot", f.Event)
	}
	var snap web.SnapshotPayload
	if err := json.Unmarshal(f.Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.State != monitor.StateConnected {
		t.Errorf("snapshot state: got %v, want connected", snap.State)
	}
	if len(snap.Records) != 1 || snap.Records[0].ID != "m1" {
		t.Errorf("snapshot records: got %+v", snap.Records)
	}
}

func TestHub_RecordPush(t *testing.T) {
	_, st, srv := startHub(t, newStubController())
	conn := dialHub(t, srv)
	readFrame(t, conn) // snapshot

	if !st.Ingest([]byte(`{"data":{"id":"m2","name":"Lathe 1","status":"Error"}}`)) {
		t.Fatal("ingest failed")
	}

	f := readFrame(t, conn)
	if f.Event != "record" {
		t.Fatalf("frame: got %q, want record", f.Event)
	}
	var view web.RecordView
	if err := json.Unmarshal(f.Data, &view); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if view.ID != "m2" {
		t.Errorf("record id: got %q, want m2", view.ID)
	}
	if view.ColorClass != "status-failure" {
		t.Errorf("record colorClass: got %q, want status-failure", view.ColorClass)
	}
}

func TestHub_ClearPush(t *testing.T) {
	_, st, srv := startHub(t, newStubController())
	st.Ingest([]byte(`{"data":{"id":"m1","status":"Online"}}`))

	conn := dialHub(t, srv)
	readFrame(t, conn) // snapshot

	st.Clear()

	// The pre-dial append may still be in flight; skip past it.
	waitForFrame(t, conn, "cleared")
}

// waitForFrame reads frames until one with the given event arrives.
func waitForFrame(t *testing.T, conn *websocket.Conn, event string) pushFrame {
	t.Helper()
	for i := 0; i < 10; i++ {
		f := readFrame(t, conn)
		if f.Event == event {
			return f
		}
	}
	t.Fatalf("no %q frame arrived", event)
	return pushFrame{}
}

func TestHub_StateAndErrorPush(t *testing.T) {
	hub, _, srv := startHub(t, newStubController())
	conn := dialHub(t, srv)
	readFrame(t, conn) // snapshot

	hub.BroadcastState(monitor.StateConnecting)
	f := readFrame(t, conn)
	if f.Event != "state" {
		t.Fatalf("frame: got %q, want state", f.Event)
	}
	var sr web.StateResponse
	if err := json.Unmarshal(f.Data, &sr); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if sr.State != monitor.StateConnecting {
		t.Errorf("state: got %v, want connecting", sr.State)
	}

	hub.BroadcastError("hub unreachable")
	f = readFrame(t, conn)
	if f.Event != "error" {
		t.Fatalf("frame: got %q, want error", f.Event)
	}
	var ep web.ErrorPayload
	if err := json.Unmarshal(f.Data, &ep); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if ep.Message != "hub unreachable" {
		t.Errorf("error message: got %q", ep.Message)
	}
}

func TestHub_Count(t *testing.T) {
	hub, _, srv := startHub(t, newStubController())
	if hub.Count() != 0 {
		t.Fatalf("count before join: got %d, want 0", hub.Count())
	}

	conn := dialHub(t, srv)
	readFrame(t, conn) // snapshot — proves registration completed

	if hub.Count() != 1 {
		t.Errorf("count after join: got %d, want 1", hub.Count())
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("page was not unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
