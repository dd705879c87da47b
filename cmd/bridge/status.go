package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"lyfebridge.ai/internal/bridge"
	"lyfebridge.ai/internal/persistence/indexdb"
	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/proximity"
	"lyfebridge.ai/internal/sim/world"
	"lyfebridge.ai/internal/transport/ws"
)

type bridgeStatus interface {
	Status(ctx context.Context) bridge.Status
}

type clientStatus interface {
	Status() ws.ClientStatus
}

type indexStats interface {
	Stats() indexdb.Stats
}

// playerWorld is the slice of the world the dev endpoints drive.
type playerWorld interface {
	AddPlayer(ctx context.Context, u protocol.User, modelPath string, tr protocol.Transform) error
	RemovePlayer(ctx context.Context, id string) error
	MovePlayer(ctx context.Context, id string, tr protocol.Transform) error
	PlayerSay(ctx context.Context, playerID, channelID, message string) error
	TakeInbox(ctx context.Context, playerID string) ([]world.DirectMessage, error)
	Nearest(ctx context.Context, id string, cat proximity.Category) (string, bool, error)
}

type statusDeps struct {
	bridge bridgeStatus
	client clientStatus
	index  indexStats
	world  playerWorld
}

func newStatusMux(d statusDeps, devPlayers bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp := struct {
			Bridge    bridge.Status    `json:"bridge"`
			Transport *ws.ClientStatus `json:"transport,omitempty"`
			Index     *indexdb.Stats   `json:"index,omitempty"`
		}{Bridge: d.bridge.Status(ctx)}
		if d.client != nil {
			st := d.client.Status()
			resp.Transport = &st
		}
		if d.index != nil {
			st := d.index.Stats()
			resp.Index = &st
		}
		writeJSON(rw, http.StatusOK, resp)
	})
	if devPlayers && d.world != nil {
		mux.HandleFunc("/dev/players", loopbackOnly(d.handlePlayers))
		mux.HandleFunc("/dev/players/move", loopbackOnly(d.handleMove))
		mux.HandleFunc("/dev/players/say", loopbackOnly(d.handleSay))
		mux.HandleFunc("/dev/players/inbox", loopbackOnly(d.handleInbox))
		mux.HandleFunc("/dev/players/nearest", loopbackOnly(d.handleNearest))
	}
	return mux
}

type playerReq struct {
	ID        string             `json:"id"`
	Username  string             `json:"username"`
	ModelPath string             `json:"modelPath"`
	Transform protocol.Transform `json:"transform"`
}

func (d statusDeps) handlePlayers(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req playerReq
		if !readJSON(rw, r, &req) {
			return
		}
		err := d.world.AddPlayer(r.Context(), protocol.User{ID: req.ID, Username: req.Username}, req.ModelPath, req.Transform)
		reply(rw, err)
	case http.MethodDelete:
		reply(rw, d.world.RemovePlayer(r.Context(), r.URL.Query().Get("id")))
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (d statusDeps) handleMove(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req playerReq
	if !readJSON(rw, r, &req) {
		return
	}
	reply(rw, d.world.MovePlayer(r.Context(), req.ID, req.Transform))
}

func (d statusDeps) handleSay(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		PlayerID  string `json:"playerId"`
		ChannelID string `json:"channelId"`
		Message   string `json:"message"`
	}
	if !readJSON(rw, r, &req) {
		return
	}
	reply(rw, d.world.PlayerSay(r.Context(), req.PlayerID, req.ChannelID, req.Message))
}

func (d statusDeps) handleInbox(rw http.ResponseWriter, r *http.Request) {
	msgs, err := d.world.TakeInbox(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		reply(rw, err)
		return
	}
	type entry struct {
		From    string `json:"from"`
		Message string `json:"message"`
	}
	out := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, entry{From: m.From, Message: m.Message})
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "messages": out})
}

// handleNearest answers GET ?id=&category=player|agent. An empty category
// searches both.
func (d statusDeps) handleNearest(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var cat proximity.Category
	switch q.Get("category") {
	case "":
	case "player":
		cat = proximity.CategoryPlayer
	case "agent":
		cat = proximity.CategoryAgent
	default:
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "unknown category"})
		return
	}
	id, found, err := d.world.Nearest(r.Context(), q.Get("id"), cat)
	if err != nil {
		reply(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "found": found, "id": id})
}

func readJSON(rw http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64*1024)).Decode(v); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return false
	}
	return true
}

func reply(rw http.ResponseWriter, err error) {
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
