package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lyfebridge.ai/internal/bridge"
	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/tuning"
	"lyfebridge.ai/internal/sim/world"
	"lyfebridge.ai/internal/transport/ws"
)

func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.HeartbeatMs = 50
	t.SceneLoadMs = 10
	t.InitWaitMs = 60_000
	t.Debug = tuning.Debug{}
	t.Levels = []tuning.LevelSpec{{Name: "Town", Areas: []tuning.AreaSpec{{Key: "cafe", X: 3, Radius: 2}}}}
	t.Fallback = tuning.GameData{Scene: "Town", Agents: []tuning.AgentSpec{{ID: "a1", Username: "Ava"}}}
	t.Normalize()
	return t
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("task-%d", n)
	}
}

func TestDirector_NextTask(t *testing.T) {
	d, err := newDirector(testTuning(), log.New(io.Discard, "", 0), 1, seqIDs())
	if err != nil {
		t.Fatalf("newDirector: %v", err)
	}
	id, raw, err := d.nextTask()
	if err != nil {
		t.Fatalf("nextTask: %v", err)
	}
	task, err := protocol.DecodeTask(raw)
	if err != nil {
		t.Fatalf("DecodeTask: %v", err)
	}
	want := protocol.Task{
		TaskID:          "task-1",
		WaitForResponse: true,
		Commands: []protocol.Command{
			protocol.AgentMoveToLocation{AgentID: "a1", TargetLocation: "cafe"},
			protocol.CharacterEmote{UserID: "a1", EmoteID: 1, EmoteActive: true, PlayTime: 2},
		},
	}
	if id != "task-1" {
		t.Fatalf("id = %q", id)
	}
	if diff := cmp.Diff(want, task); diff != "" {
		t.Fatalf("task mismatch (-want +got):\n%s", diff)
	}
	if st := d.stats(); st.Pending != 1 {
		t.Fatalf("stats = %+v", st)
	}

	d.observe([]byte(`{"messageType":"TASK_COMPLETED","taskId":"task-1","success":false,"commands":[{"cmdType":"AGENT_MOVE_DESTINATION_LOCATION","success":false,"skipped":false,"error":"no level"}]}`))
	d.observe([]byte(`{oops`))
	if st := d.stats(); st.Pending != 0 || st.Completed != 1 || st.Failed != 1 {
		t.Fatalf("stats after report = %+v", st)
	}
}

func TestNewDirector_RequiresAgentsAndAreas(t *testing.T) {
	discard := log.New(io.Discard, "", 0)
	tn := testTuning()
	tn.Fallback.Agents = nil
	if _, err := newDirector(tn, discard, 1, seqIDs()); err == nil {
		t.Fatalf("expected error without agents")
	}
	tn = testTuning()
	tn.Fallback.Scene = "Nowhere"
	if _, err := newDirector(tn, discard, 1, seqIDs()); err == nil || !strings.Contains(err.Error(), "Nowhere") {
		t.Fatalf("err = %v", err)
	}
}

// The full loop over a real websocket: GAME_DATA bootstraps the world, a
// TASK walks the agent to the cafe, and the arrival flows back.
func TestDirector_EndToEndOverWebsocket(t *testing.T) {
	discard := log.New(io.Discard, "", 0)
	tn := testTuning()

	d, err := newDirector(tn, discard, 1, seqIDs())
	if err != nil {
		t.Fatalf("newDirector: %v", err)
	}
	srv := ws.NewServer(discard)
	srv.OnConnect = func(p *ws.Peer) {
		b, _ := d.gameData()
		_ = p.Send(b)
	}
	srv.OnMessage = func(_ *ws.Peer, b []byte) { d.observe(b) }
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	w := world.New(world.Config{Tuning: tn, Logger: discard, Seed: 1})
	client := ws.NewClient(ws.ClientConfig{URL: "ws" + strings.TrimPrefix(hs.URL, "http"), Logger: discard})
	b := bridge.New(bridge.Config{Tuning: tn, Logger: discard}, w, client)
	w.SetSink(b.HandleEvent)
	client.OnMessage = b.HandleMessage
	client.OnConnect = b.OnConnected

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	go func() { _ = b.Run(ctx) }()
	go func() { _ = client.Run(ctx) }()
	defer client.Close()

	waitFor := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if cond() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %s", what)
	}

	waitFor("scene loaded", func() bool {
		st, err := w.Stats(ctx)
		return err == nil && st.Level == "Town" && st.Agents == 1
	})
	if !b.Initialized() {
		t.Fatalf("bridge not initialized after GAME_DATA")
	}

	_, raw, err := d.nextTask()
	if err != nil {
		t.Fatalf("nextTask: %v", err)
	}
	if n := srv.Broadcast(raw); n != 1 {
		t.Fatalf("broadcast reached %d peers", n)
	}

	waitFor("arrival", func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.arrivals["a1"] == "cafe"
	})
	waitFor("task report", func() bool { return d.stats().Completed == 1 })
	if st := d.stats(); st.Failed != 0 || st.Snapshots == 0 {
		t.Fatalf("stats = %+v", st)
	}
}
