package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"lyfebridge.ai/internal/bridge"
	"lyfebridge.ai/internal/sim/tuning"
	"lyfebridge.ai/internal/sim/world"
	"lyfebridge.ai/internal/transport/ws"
)

type nullTransport struct {
	mu   sync.Mutex
	sent int
}

func (n *nullTransport) Send([]byte) error {
	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	return nil
}

func (n *nullTransport) Connected() bool { return true }

type fixedClient struct{}

func (fixedClient) Status() ws.ClientStatus {
	return ws.ClientStatus{URL: "ws://orch", Connected: true, Connects: 2}
}

func newTestDeps(t *testing.T) statusDeps {
	t.Helper()
	discard := log.New(io.Discard, "", 0)
	tn := tuning.Defaults()
	tn.InitWaitMs = 60_000
	tn.Normalize()
	w := world.New(world.Config{Tuning: tn, Logger: discard, Seed: 1})
	b := bridge.New(bridge.Config{Tuning: tn, Logger: discard}, w, &nullTransport{})
	w.SetSink(b.HandleEvent)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = w.Run(ctx) }()
	t.Cleanup(func() { cancel(); <-done })

	deadline := time.Now().Add(2 * time.Second)
	for w.State() != "STARTED" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return statusDeps{bridge: b, client: fixedClient{}, world: w}
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:5000"
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	return rw
}

func TestStatus_ReportsBridgeAndTransport(t *testing.T) {
	mux := newStatusMux(newTestDeps(t), false)

	if rw := do(t, mux, http.MethodGet, "/healthz", ""); rw.Code != http.StatusOK || rw.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rw.Code, rw.Body.String())
	}

	rw := do(t, mux, http.MethodGet, "/status", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("status code = %d", rw.Code)
	}
	var got struct {
		Bridge    bridge.Status   `json:"bridge"`
		Transport ws.ClientStatus `json:"transport"`
		Index     *struct{}       `json:"index"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Bridge.Connected || got.Bridge.Initialized || got.Bridge.State != "STARTED" {
		t.Fatalf("bridge status = %+v", got.Bridge)
	}
	if got.Transport.Connects != 2 || got.Index != nil {
		t.Fatalf("status body = %s", rw.Body.String())
	}

	if rw := do(t, mux, http.MethodPost, "/dev/players", `{}`); rw.Code != http.StatusNotFound {
		t.Fatalf("dev endpoints should be off, got %d", rw.Code)
	}
}

func TestDevPlayers_JoinSayInbox(t *testing.T) {
	d := newTestDeps(t)
	mux := newStatusMux(d, true)

	join := `{"id":"p1","username":"Pia","modelPath":"m.glb","transform":{"position":{"x":0,"y":0,"z":0},"rotation":{"x":0,"y":0,"z":0}}}`
	if rw := do(t, mux, http.MethodPost, "/dev/players", join); rw.Code != http.StatusOK {
		t.Fatalf("join = %d %s", rw.Code, rw.Body.String())
	}
	if rw := do(t, mux, http.MethodPost, "/dev/players", join); rw.Code != http.StatusBadRequest {
		t.Fatalf("duplicate join = %d", rw.Code)
	}
	join2 := strings.Replace(strings.Replace(join, "p1", "p2", 1), "Pia", "Quin", 1)
	if rw := do(t, mux, http.MethodPost, "/dev/players", join2); rw.Code != http.StatusOK {
		t.Fatalf("join p2 = %d", rw.Code)
	}

	if rw := do(t, mux, http.MethodPost, "/dev/players/say", `{"playerId":"p1","channelId":"p2","message":"psst"}`); rw.Code != http.StatusOK {
		t.Fatalf("say = %d %s", rw.Code, rw.Body.String())
	}
	rw := do(t, mux, http.MethodGet, "/dev/players/inbox?id=p2", "")
	var inbox struct {
		OK       bool `json:"ok"`
		Messages []struct {
			From    string `json:"from"`
			Message string `json:"message"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("decode inbox: %v", err)
	}
	if !inbox.OK || len(inbox.Messages) != 1 || inbox.Messages[0].From != "p1" || inbox.Messages[0].Message != "psst" {
		t.Fatalf("inbox = %s", rw.Body.String())
	}

	var near struct {
		OK    bool   `json:"ok"`
		Found bool   `json:"found"`
		ID    string `json:"id"`
	}
	rw = do(t, mux, http.MethodGet, "/dev/players/nearest?id=p1&category=player", "")
	if err := json.Unmarshal(rw.Body.Bytes(), &near); err != nil {
		t.Fatalf("decode nearest: %v", err)
	}
	if !near.OK || !near.Found || near.ID != "p2" {
		t.Fatalf("nearest player = %s", rw.Body.String())
	}
	near.Found, near.ID = false, ""
	rw = do(t, mux, http.MethodGet, "/dev/players/nearest?id=p1&category=agent", "")
	if err := json.Unmarshal(rw.Body.Bytes(), &near); err != nil {
		t.Fatalf("decode nearest: %v", err)
	}
	if !near.OK || near.Found || near.ID != "" {
		t.Fatalf("nearest agent = %s", rw.Body.String())
	}
	if rw := do(t, mux, http.MethodGet, "/dev/players/nearest?id=p1&category=item", ""); rw.Code != http.StatusBadRequest {
		t.Fatalf("bad category = %d", rw.Code)
	}

	if rw := do(t, mux, http.MethodPost, "/dev/players/move", `{"id":"ghost"}`); rw.Code != http.StatusBadRequest {
		t.Fatalf("move ghost = %d", rw.Code)
	}
	if rw := do(t, mux, http.MethodDelete, "/dev/players?id=p1", ""); rw.Code != http.StatusOK {
		t.Fatalf("leave = %d", rw.Code)
	}
	if rw := do(t, mux, http.MethodPost, "/dev/players/say", `not json`); rw.Code != http.StatusBadRequest {
		t.Fatalf("bad body = %d", rw.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/dev/players/inbox?id=p2", nil)
	req.RemoteAddr = "10.0.0.8:4000"
	other := httptest.NewRecorder()
	mux.ServeHTTP(other, req)
	if other.Code != http.StatusForbidden {
		t.Fatalf("remote caller = %d", other.Code)
	}
}
