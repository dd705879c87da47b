package proximity

import (
	"testing"

	"lyfebridge.ai/internal/sim/vec"
)

type fakeEntity struct {
	name  string
	pos   vec.Vec3
	cat   Category
	subs  map[int]func()
	next  int
	colls []*fakeCollider
}

func newEntity(name string, cat Category, pos vec.Vec3) *fakeEntity {
	e := &fakeEntity{name: name, pos: pos, cat: cat, subs: map[int]func(){}}
	e.colls = []*fakeCollider{{owner: e}, {owner: e}}
	return e
}

func (e *fakeEntity) Position() vec.Vec3 { return e.pos }
func (e *fakeEntity) Category() Category { return e.cat }
func (e *fakeEntity) OnTeardown(fn func()) func() {
	id := e.next
	e.next++
	e.subs[id] = fn
	return func() { delete(e.subs, id) }
}

func (e *fakeEntity) destroy() {
	fns := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	for _, fn := range fns {
		fn()
	}
}

type fakeCollider struct{ owner any }

func (c *fakeCollider) Source() any { return c.owner }

type counter struct {
	enter map[*fakeEntity]int
	exit  map[*fakeEntity]int
}

func newTracker(opts Options[*fakeEntity]) (*Tracker[*fakeEntity], *counter) {
	c := &counter{enter: map[*fakeEntity]int{}, exit: map[*fakeEntity]int{}}
	opts.OnEnter = func(e *fakeEntity) { c.enter[e]++ }
	opts.OnExit = func(e *fakeEntity) { c.exit[e]++ }
	return New(opts), c
}

func TestTracker_EnterExitPairs(t *testing.T) {
	tr, c := newTracker(Options[*fakeEntity]{Radius: 5})
	a := newEntity("a", CategoryAgent, vec.Vec3{X: 1})

	for i := 0; i < 2; i++ {
		tr.Enter(a.colls[0])
		tr.Exit(a.colls[0])
	}
	if c.enter[a] != 2 || c.exit[a] != 2 {
		t.Fatalf("expected 2 enter/2 exit, got %d/%d", c.enter[a], c.exit[a])
	}
	if tr.Contains(a) {
		t.Fatalf("expected a to be absent after exit")
	}
}

func TestTracker_NestedCollidersAreOneMember(t *testing.T) {
	tr, c := newTracker(Options[*fakeEntity]{})
	a := newEntity("a", CategoryPlayer, vec.Vec3{})

	tr.Enter(a.colls[0])
	tr.Enter(a.colls[1])
	if tr.Len() != 1 || c.enter[a] != 1 {
		t.Fatalf("expected single membership, len=%d enters=%d", tr.Len(), c.enter[a])
	}
}

func TestTracker_Blacklist(t *testing.T) {
	owner := newEntity("owner", CategoryAgent, vec.Vec3{})
	tr, c := newTracker(Options[*fakeEntity]{Blacklist: []Collider{owner.colls[0]}})

	tr.Enter(owner.colls[0])
	if tr.Len() != 0 || c.enter[owner] != 0 {
		t.Fatalf("blacklisted collider should be ignored")
	}
	tr.Enter(&fakeCollider{owner: nil})
	if tr.Len() != 0 {
		t.Fatalf("collider without source should be ignored")
	}
}

func TestTracker_TeardownRemovesWithoutExitSignal(t *testing.T) {
	tr, c := newTracker(Options[*fakeEntity]{})
	a := newEntity("a", CategoryAgent, vec.Vec3{})
	b := newEntity("b", CategoryPlayer, vec.Vec3{})
	tr.Enter(a.colls[0])
	tr.Enter(b.colls[0])

	a.destroy()
	if tr.Contains(a) {
		t.Fatalf("destroyed member must be removed")
	}
	if c.exit[a] != 1 {
		t.Fatalf("expected exit notification on teardown, got %d", c.exit[a])
	}
	if len(tr.ByCategory(CategoryAgent)) != 0 {
		t.Fatalf("category index still holds destroyed member")
	}
	if len(a.subs) != 0 {
		t.Fatalf("teardown subscription not released")
	}
	// An exit arriving after teardown is a no-op.
	tr.Exit(a.colls[0])
	if c.exit[a] != 1 {
		t.Fatalf("late exit fired callback again")
	}
}

func TestTracker_CategoryIndex(t *testing.T) {
	tr, _ := newTracker(Options[*fakeEntity]{})
	p := newEntity("p", CategoryPlayer, vec.Vec3{})
	a1 := newEntity("a1", CategoryAgent, vec.Vec3{})
	a2 := newEntity("a2", CategoryAgent, vec.Vec3{})
	u := newEntity("u", CategoryUndefined, vec.Vec3{})
	for _, e := range []*fakeEntity{p, a1, a2, u} {
		tr.Enter(e.colls[0])
	}

	if got := len(tr.ByCategory(CategoryAgent)); got != 2 {
		t.Fatalf("agents=%d", got)
	}
	if _, ok := tr.ByCategory(CategoryPlayer)[p]; !ok {
		t.Fatalf("player missing from index")
	}
	if got := len(tr.All()); got != 4 {
		t.Fatalf("all=%d", got)
	}

	snap := tr.ByCategory(CategoryAgent)
	tr.Exit(a1.colls[0])
	if len(snap) != 2 {
		t.Fatalf("snapshot must not observe later mutations")
	}
}

func TestTracker_Closest(t *testing.T) {
	tr, _ := newTracker(Options[*fakeEntity]{})
	if _, ok := tr.Closest(vec.Vec3{}); ok {
		t.Fatalf("expected no closest member in empty set")
	}
	far := newEntity("far", CategoryAgent, vec.Vec3{X: 9})
	first := newEntity("first", CategoryAgent, vec.Vec3{X: 2})
	second := newEntity("second", CategoryAgent, vec.Vec3{X: -2})
	tr.Enter(far.colls[0])
	tr.Enter(first.colls[0])
	tr.Enter(second.colls[0])

	got, ok := tr.Closest(vec.Vec3{})
	if !ok || got != first {
		t.Fatalf("expected tie to go to earliest entry, got %v", got.name)
	}

	player := newEntity("player", CategoryPlayer, vec.Vec3{X: 1})
	tr.Enter(player.colls[0])
	if got, _ := tr.Closest(vec.Vec3{}); got != player {
		t.Fatalf("unfiltered closest = %v, want player", got.name)
	}
	if got, ok := tr.ClosestIn(vec.Vec3{}, CategoryAgent); !ok || got != first {
		t.Fatalf("closest agent = %v, want first", got.name)
	}
	if got, ok := tr.ClosestIn(vec.Vec3{}, CategoryPlayer); !ok || got != player {
		t.Fatalf("closest player = %v", got.name)
	}

	tr.Exit(first.colls[0])
	if got, _ := tr.ClosestIn(vec.Vec3{}, CategoryAgent); got != second {
		t.Fatalf("closest agent after exit = %v, want second", got.name)
	}
	if _, ok := tr.ClosestIn(vec.Vec3{}, CategoryUndefined); ok {
		t.Fatalf("expected no member in empty category")
	}
}
