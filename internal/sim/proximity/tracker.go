// Package proximity keeps per-owner sets of entities inside a trigger volume.
//
// A Tracker is fed raw overlap signals (a collider began or stopped touching the
// owner's volume). Each collider is resolved to the target it belongs to, so an
// entity with several nested colliders is a single member. Members are indexed
// by Category and are dropped as soon as they are torn down, even when no exit
// signal arrives.
//
// A Tracker is not safe for concurrent use; the world loop owns it.
package proximity

import (
	"lyfebridge.ai/internal/sim/vec"
)

type Category int

const (
	CategoryUndefined Category = iota
	CategoryPlayer
	CategoryAgent
)

func (c Category) String() string {
	switch c {
	case CategoryPlayer:
		return "player"
	case CategoryAgent:
		return "agent"
	default:
		return "undefined"
	}
}

// Member is an entity a Tracker can hold.
type Member interface {
	comparable
	Position() vec.Vec3
	Category() Category
	// OnTeardown registers fn to run when the entity is destroyed and returns
	// a function that removes the registration.
	OnTeardown(fn func()) (cancel func())
}

// Collider is the raw object reported by a trigger volume.
type Collider interface {
	// Source returns the object the collider is attached to, or nil.
	Source() any
}

// Resolver maps a collider source to a tracked target.
type Resolver[T Member] func(source any) (T, bool)

type Options[T Member] struct {
	Radius    float64
	Resolve   Resolver[T]
	Blacklist []Collider
	OnEnter   func(T)
	OnExit    func(T)
}

type entry struct {
	seq    uint64
	cancel func()
}

type Tracker[T Member] struct {
	radius    float64
	resolve   Resolver[T]
	blacklist map[Collider]struct{}
	onEnter   []func(T)
	onExit    []func(T)

	members map[T]*entry
	byCat   map[Category]map[T]struct{}
	seq     uint64
}

func New[T Member](opts Options[T]) *Tracker[T] {
	t := &Tracker[T]{
		radius:    opts.Radius,
		resolve:   opts.Resolve,
		blacklist: map[Collider]struct{}{},
		members:   map[T]*entry{},
		byCat:     map[Category]map[T]struct{}{},
	}
	if t.resolve == nil {
		t.resolve = func(source any) (T, bool) {
			v, ok := source.(T)
			return v, ok
		}
	}
	for _, c := range opts.Blacklist {
		t.blacklist[c] = struct{}{}
	}
	if opts.OnEnter != nil {
		t.onEnter = append(t.onEnter, opts.OnEnter)
	}
	if opts.OnExit != nil {
		t.onExit = append(t.onExit, opts.OnExit)
	}
	return t
}

func (t *Tracker[T]) Radius() float64 { return t.radius }

func (t *Tracker[T]) SetRadius(r float64) { t.radius = r }

func (t *Tracker[T]) Ignore(c Collider) { t.blacklist[c] = struct{}{} }

func (t *Tracker[T]) AddOnEnter(fn func(T)) {
	if fn != nil {
		t.onEnter = append(t.onEnter, fn)
	}
}

func (t *Tracker[T]) AddOnExit(fn func(T)) {
	if fn != nil {
		t.onExit = append(t.onExit, fn)
	}
}

// Enter handles an overlap begin signal.
func (t *Tracker[T]) Enter(c Collider) {
	target, ok := t.target(c)
	if !ok {
		return
	}
	if _, dup := t.members[target]; dup {
		return
	}
	t.seq++
	e := &entry{seq: t.seq}
	t.members[target] = e
	cat := target.Category()
	set := t.byCat[cat]
	if set == nil {
		set = map[T]struct{}{}
		t.byCat[cat] = set
	}
	set[target] = struct{}{}
	e.cancel = target.OnTeardown(func() { t.remove(target) })
	for _, fn := range t.onEnter {
		fn(target)
	}
}

// Exit handles an overlap end signal.
func (t *Tracker[T]) Exit(c Collider) {
	target, ok := t.target(c)
	if !ok {
		return
	}
	t.remove(target)
}

func (t *Tracker[T]) target(c Collider) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	if _, banned := t.blacklist[c]; banned {
		return zero, false
	}
	src := c.Source()
	if src == nil {
		return zero, false
	}
	return t.resolve(src)
}

func (t *Tracker[T]) remove(target T) {
	e, ok := t.members[target]
	if !ok {
		return
	}
	delete(t.members, target)
	cat := target.Category()
	if set := t.byCat[cat]; set != nil {
		delete(set, target)
	}
	if e.cancel != nil {
		e.cancel()
	}
	for _, fn := range t.onExit {
		fn(target)
	}
}

// Clear drops every member without firing exit callbacks.
func (t *Tracker[T]) Clear() {
	for _, e := range t.members {
		if e.cancel != nil {
			e.cancel()
		}
	}
	t.members = map[T]*entry{}
	t.byCat = map[Category]map[T]struct{}{}
}

func (t *Tracker[T]) Contains(target T) bool {
	_, ok := t.members[target]
	return ok
}

func (t *Tracker[T]) Len() int { return len(t.members) }

// All returns a snapshot of every member.
func (t *Tracker[T]) All() map[T]struct{} {
	out := make(map[T]struct{}, len(t.members))
	for m := range t.members {
		out[m] = struct{}{}
	}
	return out
}

// ByCategory returns a snapshot of the members in cat.
func (t *Tracker[T]) ByCategory(cat Category) map[T]struct{} {
	set := t.byCat[cat]
	out := make(map[T]struct{}, len(set))
	for m := range set {
		out[m] = struct{}{}
	}
	return out
}

// Closest returns the member nearest to from. Ties go to the member that
// entered first.
func (t *Tracker[T]) Closest(from vec.Vec3) (T, bool) {
	return t.closest(from, func(T) bool { return true })
}

// ClosestIn is Closest restricted to members in cat.
func (t *Tracker[T]) ClosestIn(from vec.Vec3, cat Category) (T, bool) {
	set := t.byCat[cat]
	return t.closest(from, func(m T) bool {
		_, ok := set[m]
		return ok
	})
}

func (t *Tracker[T]) closest(from vec.Vec3, keep func(T) bool) (T, bool) {
	var (
		best    T
		bestD   float64
		bestSeq uint64
		found   bool
	)
	for m, e := range t.members {
		if !keep(m) {
			continue
		}
		d := vec.DistSq(from, m.Position())
		if !found || d < bestD || (d == bestD && e.seq < bestSeq) {
			best, bestD, bestSeq, found = m, d, e.seq, true
		}
	}
	return best, found
}
