package world

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/tuning"
	"lyfebridge.ai/internal/sim/visibility"
)

var ErrStopped = errors.New("world: not running")

type Config struct {
	Tuning tuning.Tuning
	Logger *log.Logger
	// Seed drives follow stopping distances. Zero picks a time-based seed.
	Seed int64
	// Sink receives domain events on the loop goroutine. May be nil.
	Sink func(Event)
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine; other
// goroutines go through Do or Call.
type World struct {
	cfg  tuning.Tuning
	log  *log.Logger
	rng  *rand.Rand
	sink func(Event)

	tick uint64
	now  time.Time

	chars  map[string]*Character
	items  map[string]*Item
	emotes map[int]tuning.EmoteSpec

	catalogItems map[string]tuning.ItemSpec
	levels       map[string]tuning.LevelSpec
	level        *Level
	loading      string

	overlaps map[overlapKey]bool
	timers   []*timer
	timerSeq uint64

	vis *visibility.Filter[*Character]

	state atomic.Value // string

	do       chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(cfg Config) *World {
	t := cfg.Tuning
	t.Normalize()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[world] ", log.LstdFlags|log.Lmicroseconds)
	}
	w := &World{
		cfg:          t,
		log:          logger,
		rng:          rand.New(rand.NewSource(seed)),
		sink:         cfg.Sink,
		now:          time.Unix(0, 0).UTC(),
		chars:        map[string]*Character{},
		items:        map[string]*Item{},
		emotes:       map[int]tuning.EmoteSpec{},
		catalogItems: map[string]tuning.ItemSpec{},
		levels:       map[string]tuning.LevelSpec{},
		overlaps:     map[overlapKey]bool{},
		do:           make(chan func(), 256),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, e := range t.Emotes {
		w.emotes[e.ID] = e
	}
	for _, it := range t.Items {
		w.catalogItems[it.ID] = it
	}
	for _, l := range t.Levels {
		w.levels[l.Name] = l
	}
	w.vis = visibility.New[*Character](visibility.Config{
		FOVDeg:    t.Visibility.FOVDeg,
		EyeHeight: t.Visibility.EyeHeight,
	}, w)
	w.state.Store(protocol.ServerStopped)
	return w
}

// SetSink replaces the event sink. Call before Run.
func (w *World) SetSink(fn func(Event)) { w.sink = fn }

func (w *World) State() string { return w.state.Load().(string) }

func (w *World) setState(s string) {
	w.state.Store(s)
	w.emit(ServerStateChanged{State: s})
}

func (w *World) emit(ev Event) {
	if w.sink != nil {
		w.sink(ev)
	}
}

func (w *World) Run(ctx context.Context) error {
	defer close(w.done)
	interval := w.cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.setState(protocol.ServerStarting)
	w.setState(protocol.ServerStarted)
	shutdown := func() {
		w.setState(protocol.ServerStopping)
		w.setState(protocol.ServerStopped)
	}

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return ctx.Err()
		case <-w.stop:
			shutdown()
			return nil
		case fn := <-w.do:
			fn()
		case <-ticker.C:
			w.Step(interval)
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Do queues fn onto the world loop. It reports false if the loop has exited.
func (w *World) Do(fn func()) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.do <- fn:
		return true
	case <-w.done:
		return false
	}
}

// Call runs fn on the world loop and waits for it to finish.
func (w *World) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !w.Do(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	}
}

// Step advances the world by dt: movement, trigger volumes, arrival edges,
// then due timers.
func (w *World) Step(dt time.Duration) {
	w.tick++
	w.now = w.now.Add(dt)
	secs := dt.Seconds()
	agents := w.sortedCharacters(true)
	for _, c := range agents {
		c.mover.advance(secs)
	}
	w.updateOverlaps()
	for _, c := range agents {
		if !c.destroyed {
			c.nav.Update()
		}
	}
	w.runTimers()
}

func (w *World) Tick() uint64 { return w.tick }

// sortedCharacters returns characters ordered by id. agentsOnly filters players out.
func (w *World) sortedCharacters(agentsOnly bool) []*Character {
	ids := make([]string, 0, len(w.chars))
	for id, c := range w.chars {
		if agentsOnly && !c.IsAgent() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Character, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.chars[id])
	}
	return out
}

func (w *World) Character(id string) (*Character, bool) {
	c, ok := w.chars[id]
	return c, ok
}

func (w *World) Agent(id string) (*Character, bool) {
	c, ok := w.chars[id]
	if !ok || !c.IsAgent() {
		return nil, false
	}
	return c, true
}

func (w *World) Level() *Level { return w.level }

func (w *World) infof(format string, args ...any) {
	if w.cfg.Debug.LogInfo {
		w.log.Printf(format, args...)
	}
}

func (w *World) warnf(format string, args ...any) {
	if w.cfg.Debug.LogWarning {
		w.log.Printf("WARN "+format, args...)
	}
}

// Stats is a point-in-time summary for status reporting.
type Stats struct {
	Tick    uint64 `json:"tick"`
	State   string `json:"state"`
	Level   string `json:"level"`
	Loading string `json:"loading,omitempty"`
	Agents  int    `json:"agents"`
	Players int    `json:"players"`
	Items   int    `json:"items"`
}

func (w *World) stats() Stats {
	s := Stats{Tick: w.tick, State: w.State(), Loading: w.loading, Items: len(w.items)}
	if w.level != nil {
		s.Level = w.level.name
	}
	for _, c := range w.chars {
		if c.IsAgent() {
			s.Agents++
		} else {
			s.Players++
		}
	}
	return s
}

func (w *World) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := w.Call(ctx, func() { s = w.stats() })
	return s, err
}
