package world

import (
	"lyfebridge.ai/internal/sim/vec"
)

// linearMover walks its character straight toward the destination at a fixed
// speed. It stands in for a navmesh agent: no obstacles, no path planning.
type linearMover struct {
	c       *Character
	speed   float64
	dest    vec.Vec3
	hasDest bool
	stop    float64
	halted  bool
}

func newLinearMover(c *Character, speed float64) *linearMover {
	return &linearMover{c: c, speed: speed}
}

func (m *linearMover) SetDestination(p vec.Vec3) {
	m.dest = p
	m.hasDest = true
}

func (m *linearMover) SetStoppingDistance(d float64) { m.stop = d }

func (m *linearMover) Resume() { m.halted = false }

func (m *linearMover) Halt() {
	m.halted = true
	m.hasDest = false
}

func (m *linearMover) Moving() bool {
	if m.halted || !m.hasDest {
		return false
	}
	return vec.Dist(m.c.pos.Flat(), m.dest.Flat()) > m.stop
}

// advance moves the character for dt seconds. Reaching the stopping distance
// completes the path.
func (m *linearMover) advance(dt float64) {
	if !m.Moving() {
		m.hasDest = false
		return
	}
	flat := m.c.pos.Flat()
	goal := m.dest.Flat()
	remain := vec.Dist(flat, goal) - m.stop
	step := m.speed * dt
	if step >= remain {
		step = remain
	}
	dir := goal.Sub(flat)
	next := vec.MoveTowards(flat, goal, step)
	m.c.pos = vec.Vec3{X: next.X, Y: m.c.pos.Y, Z: next.Z}
	if dir.LenSq() > 0 {
		m.c.yaw = vec.Yaw(dir)
	}
	if vec.Dist(m.c.pos.Flat(), goal) <= m.stop+1e-9 {
		m.hasDest = false
	}
}
