// Package bridge connects the world to the external decision service. It
// decodes inbound envelopes, dispatches them to the world or the command
// executor, serializes world events outbound and pushes the periodic
// proximity heartbeat.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/tasks"
	"lyfebridge.ai/internal/sim/tuning"
	"lyfebridge.ai/internal/sim/world"
)

var ErrDisconnected = errors.New("bridge: transport not connected")

// Transport is the duplex connection to the decision service. Send must not
// block.
type Transport interface {
	Send(b []byte) error
	Connected() bool
}

// World is the part of the simulation the bridge drives.
type World interface {
	State() string
	Handlers() tasks.Handlers
	ProximitySnapshot(ctx context.Context) (protocol.CharacterProximity, error)
	ApplyGameData(ctx context.Context, gd protocol.GameData) (world.InitResult, error)
	AgentChat(ctx context.Context, m protocol.AgentChat) error
	AgentDirect(ctx context.Context, m protocol.AgentDirect) error
	AgentMoveLocation(ctx context.Context, m protocol.AgentMoveLocation) error
	InstantiateObject(ctx context.Context, m protocol.ObjectInstantiation) error
	Stats(ctx context.Context) (world.Stats, error)
}

// Recorder receives every envelope that crosses the bridge. Implementations
// must be safe for concurrent use.
type Recorder interface {
	Record(dir, msgType string, raw []byte)
}

const (
	DirIn  = "in"
	DirOut = "out"
)

type Config struct {
	Tuning   tuning.Tuning
	Logger   *log.Logger
	Recorder Recorder
	// CallTimeout bounds each world call made on behalf of an inbound message.
	CallTimeout time.Duration
}

type Bridge struct {
	cfg   tuning.Tuning
	log   *log.Logger
	rec   Recorder
	world World
	tr    Transport
	exec  *tasks.Executor

	callTimeout time.Duration
	inbound     map[string]func(ctx context.Context, raw []byte) error

	// seen holds recent task ids; nil when the replay guard is disabled.
	seen cache.Cache[string, struct{}]

	mu          sync.Mutex
	life        context.Context
	initialized bool

	inFlight atomic.Int64
	received atomic.Uint64
	sent     atomic.Uint64
	dropped  atomic.Uint64
	replayed atomic.Uint64
}

func New(cfg Config, w World, tr Transport) *Bridge {
	t := cfg.Tuning
	t.Normalize()
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[bridge] ", log.LstdFlags|log.Lmicroseconds)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Second
	}
	b := &Bridge{
		cfg:         t,
		log:         logger,
		rec:         cfg.Recorder,
		world:       w,
		tr:          tr,
		callTimeout: cfg.CallTimeout,
		life:        context.Background(),
	}
	b.exec = tasks.NewExecutor(w.Handlers(), tasks.ExecutorConfig{Logger: logger, LogCommands: t.Debug.LogInfo})
	if ttl := t.TaskReplayTTL(); ttl > 0 {
		b.seen = cache.NewCache[string, struct{}]().WithTTL(ttl)
	}
	b.inbound = map[string]func(context.Context, []byte) error{
		protocol.TypeTask:                b.onTask,
		protocol.TypeGameData:            b.onGameData,
		protocol.TypeAgentChatMessage:    b.onAgentChat,
		protocol.TypeAgentDirectMessage:  b.onAgentDirect,
		protocol.TypeAgentMoveLocation:   b.onAgentMoveLocation,
		protocol.TypeObjectInstantiation: b.onObjectInstantiation,
	}
	return b
}

// Run drives the heartbeat and the fallback bootstrap until ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	b.life = ctx
	b.mu.Unlock()

	var fallback <-chan time.Time
	if b.cfg.ForceFallback {
		b.applyFallback(ctx)
	} else {
		timer := time.NewTimer(b.cfg.InitWait())
		defer timer.Stop()
		fallback = timer.C
	}

	hb := time.NewTicker(b.cfg.Heartbeat())
	defer hb.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fallback:
			fallback = nil
			b.applyFallback(ctx)
		case <-hb.C:
			b.heartbeat(ctx)
		}
	}
}

func (b *Bridge) lifetime() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.life
}

// HandleMessage decodes and dispatches one inbound envelope. Bad input is
// logged and dropped.
func (b *Bridge) HandleMessage(raw []byte) {
	b.received.Add(1)
	base, err := protocol.DecodeBase(raw)
	if b.rec != nil {
		b.rec.Record(DirIn, base.Type, raw)
	}
	if err != nil {
		b.warnf("inbound: %v", err)
		return
	}
	h, ok := b.inbound[base.Type]
	if !ok {
		b.warnf("inbound: %v %q", protocol.ErrUnknownType, base.Type)
		return
	}
	b.infof("inbound %s (%d bytes)", base.Type, len(raw))
	ctx, cancel := context.WithTimeout(b.lifetime(), b.callTimeout)
	defer cancel()
	if err := h(ctx, raw); err != nil {
		b.warnf("inbound %s: %v", base.Type, err)
	}
}

func (b *Bridge) onTask(_ context.Context, raw []byte) error {
	task, err := protocol.DecodeTask(raw)
	if err != nil {
		return err
	}
	if b.isReplay(task.TaskID) {
		b.replayed.Add(1)
		return fmt.Errorf("task %s already seen, dropping", task.TaskID)
	}
	b.inFlight.Add(1)
	ctx := b.lifetime()
	go func() {
		defer b.inFlight.Add(-1)
		res, err := b.exec.Run(ctx, task, b.cfg.StopOnFailure)
		if err != nil {
			b.warnf("task %s abandoned: %v", task.TaskID, err)
			return
		}
		b.report(task, res)
	}()
	return nil
}

func (b *Bridge) isReplay(taskID string) bool {
	if b.seen == nil || taskID == "" {
		return false
	}
	if _, ok := b.seen.Get(taskID); ok {
		return true
	}
	b.seen.Set(taskID, struct{}{}, 0)
	return false
}

// report sends TASK_COMPLETED for every failed task, and for successful tasks
// only when the sender asked to wait for a response.
func (b *Bridge) report(task protocol.Task, res tasks.Results) {
	ok := res.Success()
	if ok && !task.WaitForResponse {
		return
	}
	msg := protocol.NewTaskCompleted(task.TaskID, ok, res.Reports())
	if err := b.send(protocol.TypeTaskCompleted, msg); err != nil {
		b.warnf("task %s report dropped: %v", task.TaskID, err)
	}
}

func (b *Bridge) onGameData(ctx context.Context, raw []byte) error {
	gd, err := protocol.DecodeGameData(raw)
	if err != nil {
		return err
	}
	if !b.markInitialized() {
		return fmt.Errorf("game data already applied, ignoring")
	}
	return b.apply(ctx, gd, "game data")
}

func (b *Bridge) markInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return false
	}
	b.initialized = true
	return true
}

func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

func (b *Bridge) applyFallback(ctx context.Context) {
	gd := world.FallbackGameData(b.cfg)
	if gd.Scene.Name == "" && len(gd.Agents) == 0 {
		b.warnf("no game data received and no fallback configured")
		return
	}
	if !b.markInitialized() {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	if err := b.apply(callCtx, gd, "fallback game data"); err != nil {
		b.warnf("%v", err)
	}
}

func (b *Bridge) apply(ctx context.Context, gd protocol.GameData, what string) error {
	res, err := b.world.ApplyGameData(ctx, gd)
	if err != nil {
		return fmt.Errorf("apply %s: %w", what, err)
	}
	b.log.Printf("applied %s: level=%q agents=%d failed=%d", what, res.Level, len(res.Summoned), len(res.Failed))
	return nil
}

func (b *Bridge) onAgentChat(ctx context.Context, raw []byte) error {
	m, err := protocol.DecodeAgentChat(raw)
	if err != nil {
		return err
	}
	return b.world.AgentChat(ctx, m)
}

func (b *Bridge) onAgentDirect(ctx context.Context, raw []byte) error {
	m, err := protocol.DecodeAgentDirect(raw)
	if err != nil {
		return err
	}
	return b.world.AgentDirect(ctx, m)
}

func (b *Bridge) onAgentMoveLocation(ctx context.Context, raw []byte) error {
	m, err := protocol.DecodeAgentMoveLocation(raw)
	if err != nil {
		return err
	}
	return b.world.AgentMoveLocation(ctx, m)
}

func (b *Bridge) onObjectInstantiation(ctx context.Context, raw []byte) error {
	m, err := protocol.DecodeObjectInstantiation(raw)
	if err != nil {
		return err
	}
	return b.world.InstantiateObject(ctx, m)
}

// heartbeat sends one proximity snapshot. It does nothing before game data is
// applied or while the transport is down.
func (b *Bridge) heartbeat(ctx context.Context) {
	if !b.tr.Connected() || !b.Initialized() {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	snap, err := b.world.ProximitySnapshot(callCtx)
	if err != nil {
		b.warnf("snapshot: %v", err)
		return
	}
	_ = b.send(protocol.TypeCharacterProximity, snap)
}

// OnConnected re-announces the server state on every (re)connect.
func (b *Bridge) OnConnected() {
	if err := b.send(protocol.TypeServerState, protocol.NewServerState(b.world.State())); err != nil {
		b.warnf("server state: %v", err)
	}
}

func (b *Bridge) send(msgType string, v any) error {
	raw, err := protocol.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	if !b.tr.Connected() {
		b.dropped.Add(1)
		return ErrDisconnected
	}
	if err := b.tr.Send(raw); err != nil {
		b.dropped.Add(1)
		return err
	}
	b.sent.Add(1)
	if b.rec != nil {
		b.rec.Record(DirOut, msgType, raw)
	}
	b.infof("outbound %s (%d bytes)", msgType, len(raw))
	return nil
}

func (b *Bridge) infof(format string, args ...any) {
	if b.cfg.Debug.LogInfo {
		b.log.Printf(format, args...)
	}
}

func (b *Bridge) warnf(format string, args ...any) {
	if b.cfg.Debug.LogWarning {
		b.log.Printf("WARN "+format, args...)
	}
}

type Status struct {
	Connected     bool   `json:"connected"`
	Initialized   bool   `json:"initialized"`
	State         string `json:"state"`
	Level         string `json:"level"`
	Agents        int    `json:"agents"`
	Players       int    `json:"players"`
	TasksInFlight int64  `json:"tasksInFlight"`
	Received      uint64 `json:"received"`
	Sent          uint64 `json:"sent"`
	Dropped       uint64 `json:"dropped"`
	Replayed      uint64 `json:"replayed"`
}

func (b *Bridge) Status(ctx context.Context) Status {
	st := Status{
		Connected:     b.tr.Connected(),
		Initialized:   b.Initialized(),
		State:         b.world.State(),
		TasksInFlight: b.inFlight.Load(),
		Received:      b.received.Load(),
		Sent:          b.sent.Load(),
		Dropped:       b.dropped.Load(),
		Replayed:      b.replayed.Load(),
	}
	if ws, err := b.world.Stats(ctx); err == nil {
		st.Level = ws.Level
		st.Agents = ws.Agents
		st.Players = ws.Players
	}
	return st
}
