package world

import (
	"fmt"
	"sort"

	"lyfebridge.ai/internal/protocol"
	"lyfebridge.ai/internal/sim/navigation"
	"lyfebridge.ai/internal/sim/proximity"
	"lyfebridge.ai/internal/sim/vec"
)

// teardown is the destroy-notification list shared by every entity kind.
type teardown struct {
	destroyed bool
	next      int
	subs      map[int]func()
	order     []int
}

func (t *teardown) OnTeardown(fn func()) func() {
	if t.subs == nil {
		t.subs = map[int]func(){}
	}
	id := t.next
	t.next++
	t.subs[id] = fn
	t.order = append(t.order, id)
	return func() { delete(t.subs, id) }
}

func (t *teardown) Destroyed() bool { return t.destroyed }

func (t *teardown) fire() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	ids := t.order
	t.order = nil
	for _, id := range ids {
		if fn, ok := t.subs[id]; ok {
			delete(t.subs, id)
			fn()
		}
	}
}

// collider is one trigger shape attached to an entity. Characters carry a body
// and a head collider that both resolve to the character.
type collider struct {
	owner any
	name  string
}

func (c *collider) Source() any { return c.owner }

// Character is a player or agent avatar.
type Character struct {
	teardown

	user      protocol.User
	modelPath string
	cat       proximity.Category
	pos       vec.Vec3
	yaw       float64

	body *collider
	head *collider

	nearChars *proximity.Tracker[*Character]
	nearAreas *proximity.Tracker[*Area]

	lookAt string
	emote  *emoteState

	// agents only
	mover *linearMover
	nav   *navigation.Controller

	// players only
	inbox []DirectMessage
}

type emoteState struct {
	id     int
	kind   string
	cancel func()
}

func (c *Character) ID() string                   { return c.user.ID }
func (c *Character) User() protocol.User          { return c.user }
func (c *Character) Category() proximity.Category { return c.cat }
func (c *Character) Position() vec.Vec3           { return c.pos }
func (c *Character) Forward() vec.Vec3            { return vec.Forward(c.yaw) }
func (c *Character) IsAgent() bool                { return c.cat == proximity.CategoryAgent }
func (c *Character) LookAt() string               { return c.lookAt }

// Emote returns the active emote id, or 0.
func (c *Character) Emote() int {
	if c.emote == nil {
		return 0
	}
	return c.emote.id
}

func (c *Character) Transform() protocol.Transform {
	return protocol.Transform{
		Position: protocol.Vector3{X: c.pos.X, Y: c.pos.Y, Z: c.pos.Z},
		Rotation: protocol.Vector3{Y: c.yaw},
	}
}

// NearbyIDs returns sorted ids of nearby characters in cat.
func (c *Character) NearbyIDs(cat proximity.Category) []string {
	return sortedIDs(c.nearChars.ByCategory(cat))
}

// Locations returns sorted keys of the areas the character is in.
func (c *Character) Locations() []string {
	out := make([]string, 0, c.nearAreas.Len())
	for a := range c.nearAreas.All() {
		out = append(out, a.key)
	}
	sort.Strings(out)
	return out
}

func (c *Character) setLookAt(targetID string) error {
	if targetID == c.user.ID {
		return fmt.Errorf("character '%s' cannot look at itself", c.user.ID)
	}
	c.lookAt = targetID
	return nil
}

func (c *Character) String() string {
	return fmt.Sprintf("%s(%s)", c.cat, c.user.ID)
}

func sortedIDs(set map[*Character]struct{}) []string {
	out := make([]string, 0, len(set))
	for ch := range set {
		out = append(out, ch.user.ID)
	}
	sort.Strings(out)
	return out
}

// Item is a summoned or instantiated object. Items are look-at targets.
type Item struct {
	teardown

	id     string
	itemID string
	name   string
	pos    vec.Vec3
	yaw    float64
	owner  string
}

func (it *Item) ID() string         { return it.id }
func (it *Item) ItemID() string     { return it.itemID }
func (it *Item) Position() vec.Vec3 { return it.pos }

// Area is a named location of the active level.
type Area struct {
	teardown

	key    string
	pos    vec.Vec3
	radius float64
	volume *collider
}

func (a *Area) Key() string                  { return a.key }
func (a *Area) Position() vec.Vec3           { return a.pos }
func (a *Area) Category() proximity.Category { return proximity.CategoryUndefined }

// Level is the loaded scene and its areas.
type Level struct {
	name  string
	title string
	areas map[string]*Area
}

func (l *Level) Name() string { return l.name }

func (l *Level) Area(key string) (*Area, bool) {
	a, ok := l.areas[key]
	return a, ok
}

func (l *Level) sortedAreas() []*Area {
	keys := make([]string, 0, len(l.areas))
	for k := range l.areas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Area, 0, len(keys))
	for _, k := range keys {
		out = append(out, l.areas[k])
	}
	return out
}

func toVec(v protocol.Vector3) vec.Vec3 { return vec.Vec3{X: v.X, Y: v.Y, Z: v.Z} }
