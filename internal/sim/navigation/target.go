// Package navigation defines where an agent is headed and drives the
// underlying mover toward it.
package navigation

import (
	"math/rand"

	"lyfebridge.ai/internal/sim/vec"
)

type Kind int

const (
	KindWorld Kind = iota
	KindCharacter
)

func (k Kind) String() string {
	if k == KindCharacter {
		return "character"
	}
	return "world"
}

// Target is a navigation destination.
type Target interface {
	Kind() Kind
	// Key identifies the destination on the wire: an area key or a user id.
	Key() string
	Point() vec.Vec3
	IsDynamic() bool
	StoppingDistance() float64
	IsValid() bool
}

// Area is a named world location.
type Area interface {
	Key() string
	Position() vec.Vec3
}

// Followable is a character that can be followed.
type Followable interface {
	ID() string
	Position() vec.Vec3
	Destroyed() bool
}

// WorldPoint is a fixed location. Its point is captured at construction.
type WorldPoint struct {
	key   string
	point vec.Vec3
}

func NewWorldPoint(a Area) *WorldPoint {
	return &WorldPoint{key: a.Key(), point: a.Position()}
}

func (w *WorldPoint) Kind() Kind                 { return KindWorld }
func (w *WorldPoint) Key() string                { return w.key }
func (w *WorldPoint) Point() vec.Vec3            { return w.point }
func (w *WorldPoint) IsDynamic() bool            { return false }
func (w *WorldPoint) StoppingDistance() float64 { return 0 }
func (w *WorldPoint) IsValid() bool              { return w != nil }

const (
	DefaultFollowStopMin = 0.6
	DefaultFollowStopMax = 2.0
)

// CharacterPoint follows a character. Point reads the character's current
// position on every call. The stopping distance is drawn once per target
// from [min, max).
type CharacterPoint struct {
	target Followable
	stop   float64
}

func NewCharacterPoint(c Followable, rng *rand.Rand, min, max float64) *CharacterPoint {
	if max <= min {
		return &CharacterPoint{target: c, stop: min}
	}
	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64()
	}
	return &CharacterPoint{target: c, stop: min + f*(max-min)}
}

func (c *CharacterPoint) Kind() Kind                 { return KindCharacter }
func (c *CharacterPoint) Key() string                { return c.target.ID() }
func (c *CharacterPoint) Point() vec.Vec3            { return c.target.Position() }
func (c *CharacterPoint) IsDynamic() bool            { return true }
func (c *CharacterPoint) StoppingDistance() float64 { return c.stop }

func (c *CharacterPoint) IsValid() bool {
	return c != nil && c.target != nil && !c.target.Destroyed()
}
