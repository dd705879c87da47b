package world

import (
	"math"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/navigation"
	"lyfebridge.ai/internal/sim/proximity"
	"lyfebridge.ai/internal/sim/vec"
)

// itemRadius is the occlusion sphere of items and instantiated objects.
const itemRadius = 0.5

type overlapKey struct {
	owner *Character
	other any
}

func (w *World) spawnCharacter(u protocol.User, modelPath string, cat proximity.Category, tr protocol.Transform) *Character {
	c := &Character{
		user:      u,
		modelPath: modelPath,
		cat:       cat,
		pos:       toVec(tr.Position),
		yaw:       tr.Rotation.Y,
	}
	c.body = &collider{owner: c, name: "body"}
	c.head = &collider{owner: c, name: "head"}
	c.nearChars = proximity.New(proximity.Options[*Character]{
		Radius:    w.cfg.Proximity.CharacterRadius,
		Resolve:   resolveCharacter,
		Blacklist: []proximity.Collider{c.body, c.head},
	})
	c.nearAreas = proximity.New(proximity.Options[*Area]{
		Radius: w.cfg.Proximity.AreaProbeRadius,
	})
	if cat == proximity.CategoryAgent {
		c.mover = newLinearMover(c, w.cfg.Navigation.Speed)
		c.nav = navigation.NewController(c.mover, w, w.cfg.Reissue())
		c.nav.OnArrived(func(t navigation.Target) {
			w.infof("agent %s arrived at %s", c.ID(), t.Key())
			w.emit(AgentArrived{AgentID: c.ID(), Destination: t.Key()})
		})
	}
	w.chars[u.ID] = c
	w.updateOverlaps()
	return c
}

func resolveCharacter(src any) (*Character, bool) {
	c, ok := src.(*Character)
	if !ok || c.destroyed {
		return nil, false
	}
	return c, true
}

// destroyCharacter tears c down. Other trackers drop it through their
// teardown subscriptions, so no exit signal is needed.
func (w *World) destroyCharacter(c *Character) {
	if c == nil || c.destroyed {
		return
	}
	if c.nav != nil {
		c.nav.Stop()
	}
	w.clearEmote(c)
	for k := range w.overlaps {
		if k.owner == c || k.other == any(c) {
			delete(w.overlaps, k)
		}
	}
	c.fire()
	c.nearChars.Clear()
	c.nearAreas.Clear()
	delete(w.chars, c.user.ID)
}

func (w *World) destroyItem(it *Item) {
	if it == nil || it.destroyed {
		return
	}
	it.fire()
	delete(w.items, it.id)
	for _, c := range w.chars {
		if c.lookAt == it.id {
			c.lookAt = ""
		}
	}
}

// updateOverlaps is the trigger source: it turns distance changes into enter
// and exit signals on each character's trackers.
func (w *World) updateOverlaps() {
	chars := w.sortedCharacters(false)
	for _, a := range chars {
		for _, b := range chars {
			if a == b {
				continue
			}
			in := vec.Dist(a.pos, b.pos) <= a.nearChars.Radius()
			w.setOverlap(a, b, in,
				func() {
					a.nearChars.Enter(b.body)
					a.nearChars.Enter(b.head)
				},
				func() { a.nearChars.Exit(b.body) })
		}
		if w.level == nil {
			continue
		}
		for _, ar := range w.level.sortedAreas() {
			in := vec.Dist(a.pos.Flat(), ar.pos.Flat()) <= ar.radius+a.nearAreas.Radius()
			w.setOverlap(a, ar, in,
				func() { a.nearAreas.Enter(ar.volume) },
				func() { a.nearAreas.Exit(ar.volume) })
		}
	}
}

func (w *World) setOverlap(owner *Character, other any, in bool, enter, exit func()) {
	key := overlapKey{owner: owner, other: other}
	was := w.overlaps[key]
	switch {
	case in && !was:
		w.overlaps[key] = true
		enter()
	case !in && was:
		delete(w.overlaps, key)
		exit()
	}
}

// Raycast returns the nearest character or item hit along dir within maxDist.
// Characters are spheres centred at eye height.
func (w *World) Raycast(origin, dir vec.Vec3, maxDist float64, ignore any) (any, bool) {
	var (
		best  any
		bestT = math.Inf(1)
	)
	eye := vec.Vec3{Y: w.cfg.Visibility.EyeHeight}
	for _, c := range w.sortedCharacters(false) {
		if any(c) == ignore {
			continue
		}
		if t, ok := raySphere(origin, dir, c.pos.Add(eye), w.cfg.Proximity.BodyRadius); ok && t <= maxDist && t < bestT {
			best, bestT = c, t
		}
	}
	for _, it := range w.items {
		if any(it) == ignore {
			continue
		}
		if t, ok := raySphere(origin, dir, it.pos, itemRadius); ok && t <= maxDist && t < bestT {
			best, bestT = it, t
		}
	}
	return best, best != nil
}

// raySphere returns the distance along a unit dir to the first intersection.
func raySphere(origin, dir, center vec.Vec3, r float64) (float64, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.LenSq() - r*r
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t < 0 {
		t = -b + sq
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}
