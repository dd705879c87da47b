package world

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/navigation"
	"lyfebridge.ai/internal/sim/proximity"
)

func startWorld(t *testing.T) (*World, *recorder, context.Context) {
	t.Helper()
	w, rec := newTestWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Errorf("world did not stop")
		}
	})
	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(callCancel)
	return w, rec, callCtx
}

func eventsOf[T Event](rec *recorder) []T {
	var out []T
	for _, e := range rec.all() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestWorldRun_GameDataAndChatRouting(t *testing.T) {
	w, rec, ctx := startWorld(t)

	res, err := w.ApplyGameData(ctx, protocol.GameData{
		Scene:  protocol.SceneData{Name: "Town", Agents: []protocol.AgentData{agentAt("a2", 2, 0, 0)}},
		Agents: []protocol.AgentData{agentAt("a1", 0, 0, 0), agentAt("a1", 9, 9, 0)},
	})
	if err != nil {
		t.Fatalf("apply game data: %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "a2"}, res.Summoned); diff != "" {
		t.Fatalf("summoned mismatch (-want +got):\n%s", diff)
	}
	if _, ok := res.Failed["a1"]; !ok || res.Level != "Town" {
		t.Fatalf("init result = %+v", res)
	}

	if err := w.AddPlayer(ctx, protocol.User{ID: "p1", Username: "Pat"}, "models/pat.glb",
		protocol.Transform{Position: protocol.Vector3{X: 1, Z: 1}}); err != nil {
		t.Fatalf("add player: %v", err)
	}
	joined := eventsOf[PlayerJoined](rec)
	if len(joined) != 1 || joined[0].User.ID != "p1" {
		t.Fatalf("joined = %+v", joined)
	}
	if diff := cmp.Diff([]string{"town_square"}, joined[0].Locations); diff != "" {
		t.Fatalf("join locations mismatch (-want +got):\n%s", diff)
	}

	if err := w.AgentChat(ctx, protocol.AgentChat{AgentID: "a1", Message: "hello"}); err != nil {
		t.Fatalf("agent chat: %v", err)
	}
	chats := eventsOf[ChatSpoken](rec)
	wantChat := ChatSpoken{
		Speaker:         protocol.User{ID: "a1", Username: "user-a1"},
		SpeakerIsAgent:  true,
		ChannelID:       DefaultChannel,
		Message:         "hello",
		ReceiverPlayers: []string{"p1"},
		ReceiverAgents:  []string{"a2"},
		Locations:       []string{"town_square"},
	}
	if len(chats) != 1 {
		t.Fatalf("chats = %+v", chats)
	}
	if diff := cmp.Diff(wantChat, chats[0]); diff != "" {
		t.Fatalf("chat mismatch (-want +got):\n%s", diff)
	}
	if err := w.AgentChat(ctx, protocol.AgentChat{AgentID: "ghost"}); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("chat from ghost err = %v", err)
	}

	if err := w.AgentDirect(ctx, protocol.AgentDirect{AgentID: "a1", ReceiverID: "a2", Message: "psst"}); err != nil {
		t.Fatalf("agent direct: %v", err)
	}
	if err := w.AgentDirect(ctx, protocol.AgentDirect{AgentID: "a1", ReceiverID: "p1", Message: "hi pat"}); err != nil {
		t.Fatalf("agent direct to player: %v", err)
	}
	if err := w.AgentDirect(ctx, protocol.AgentDirect{AgentID: "a1", ReceiverID: "ghost"}); !errors.Is(err, ErrUnknownReceiver) {
		t.Fatalf("direct to ghost err = %v", err)
	}
	directs := eventsOf[DirectSpoken](rec)
	if len(directs) != 1 || directs[0].ReceiverID != "a2" || !directs[0].ReceiverIsAgent || !directs[0].SenderIsAgent {
		t.Fatalf("directs = %+v", directs)
	}
	inbox, err := w.TakeInbox(ctx, "p1")
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if diff := cmp.Diff([]DirectMessage{{From: "a1", Message: "hi pat"}}, inbox); diff != "" {
		t.Fatalf("inbox mismatch (-want +got):\n%s", diff)
	}

	if err := w.PlayerSay(ctx, "p1", "a2", "hey agent"); err != nil {
		t.Fatalf("player say: %v", err)
	}
	directs = eventsOf[DirectSpoken](rec)
	last := directs[len(directs)-1]
	if last.SenderIsAgent || last.Sender.ID != "p1" || last.ReceiverID != "a2" {
		t.Fatalf("player direct = %+v", last)
	}
	if err := w.PlayerSay(ctx, "p1", DefaultChannel, "hey all"); err != nil {
		t.Fatalf("player chat: %v", err)
	}
	chats = eventsOf[ChatSpoken](rec)
	if got := chats[len(chats)-1]; got.SpeakerIsAgent || got.Speaker.ID != "p1" {
		t.Fatalf("player chat = %+v", got)
	}

	for _, tc := range []struct {
		from string
		cat  proximity.Category
		want string
	}{
		{"a1", proximity.CategoryUndefined, "p1"},
		{"a1", proximity.CategoryAgent, "a2"},
		{"a2", proximity.CategoryPlayer, "p1"},
	} {
		got, ok, err := w.Nearest(ctx, tc.from, tc.cat)
		if err != nil || !ok || got != tc.want {
			t.Fatalf("nearest to %s in %s = %q %v %v, want %q", tc.from, tc.cat, got, ok, err, tc.want)
		}
	}
	if _, _, err := w.Nearest(ctx, "ghost", proximity.CategoryAgent); !errors.Is(err, ErrUnknownCharacter) {
		t.Fatalf("nearest to ghost err = %v", err)
	}

	if err := w.RemovePlayer(ctx, "p1"); err != nil {
		t.Fatalf("remove player: %v", err)
	}
	if left := eventsOf[PlayerLeft](rec); len(left) != 1 || left[0].User.ID != "p1" {
		t.Fatalf("left = %+v", left)
	}
	if err := w.RemovePlayer(ctx, "p1"); !errors.Is(err, ErrUnknownCharacter) {
		t.Fatalf("second remove err = %v", err)
	}

	stats, err := w.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Agents != 2 || stats.Players != 0 || stats.Level != "Town" || stats.State != protocol.ServerStarted {
		t.Fatalf("stats = %+v", stats)
	}
	states := eventsOf[ServerStateChanged](rec)
	if len(states) < 2 || states[1].State != protocol.ServerStarted {
		t.Fatalf("states = %+v", states)
	}
}

func TestWorldRun_MoveLocationByAreaOrUsername(t *testing.T) {
	w, _, ctx := startWorld(t)
	if err := w.AgentMoveLocation(ctx, protocol.AgentMoveLocation{AgentID: "a1", Location: "cafe"}); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("unknown agent err = %v", err)
	}
	if _, err := w.ApplyGameData(ctx, protocol.GameData{
		Scene:  protocol.SceneData{Name: "Town"},
		Agents: []protocol.AgentData{agentAt("a1", 0, 0, 0), agentAt("a2", 4, 0, 0)},
	}); err != nil {
		t.Fatalf("apply game data: %v", err)
	}

	kind := func() navigation.Kind {
		var k navigation.Kind
		if err := w.Call(ctx, func() { k = w.chars["a1"].nav.Target().Kind() }); err != nil {
			t.Fatalf("call: %v", err)
		}
		return k
	}

	if err := w.AgentMoveLocation(ctx, protocol.AgentMoveLocation{AgentID: "a1", Location: "cafe"}); err != nil {
		t.Fatalf("move to area: %v", err)
	}
	if kind() != navigation.KindWorld {
		t.Fatalf("area move did not assign a world point")
	}
	if err := w.AgentMoveLocation(ctx, protocol.AgentMoveLocation{AgentID: "a1", Location: "user-a2"}); err != nil {
		t.Fatalf("move to username: %v", err)
	}
	if kind() != navigation.KindCharacter {
		t.Fatalf("username move did not assign a character point")
	}
	if err := w.AgentMoveLocation(ctx, protocol.AgentMoveLocation{AgentID: "a1", Location: "moon"}); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("unknown location err = %v", err)
	}
}

func TestWorldRun_InstantiateObject(t *testing.T) {
	w, _, ctx := startWorld(t)
	if _, err := w.ApplyGameData(ctx, protocol.GameData{Agents: []protocol.AgentData{agentAt("a1", 2, 3, 0)}}); err != nil {
		t.Fatalf("apply game data: %v", err)
	}
	err := w.InstantiateObject(ctx, protocol.ObjectInstantiation{AgentID: "a1", ObjectType: "Cone"})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("cone err = %v", err)
	}
	err = w.InstantiateObject(ctx, protocol.ObjectInstantiation{
		AgentID:    "a1",
		ObjectType: protocol.ObjectSphere,
		Transform:  protocol.Transform{Position: protocol.Vector3{X: 1, Y: 1}},
	})
	if err != nil {
		t.Fatalf("sphere: %v", err)
	}
	var items []*Item
	if err := w.Call(ctx, func() {
		for _, it := range w.items {
			items = append(items, it)
		}
	}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(items) != 1 || items[0].name != "user-a1's Sphere" || items[0].pos.X != 3 || items[0].pos.Z != 3 {
		t.Fatalf("items = %+v", items)
	}
}

func TestWorldRun_HandlersFailAfterStop(t *testing.T) {
	w, _ := newTestWorld(t)
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()
	w.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
	var o outcome
	w.Handlers().AgentMoveStop(protocol.AgentMoveStop{AgentID: "a1"}, o.cb())
	o.wantFail(t, protocol.ErrInternal, "world is not running")
	if w.State() != protocol.ServerStopped {
		t.Fatalf("state = %s", w.State())
	}
}
