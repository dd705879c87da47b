package navigation

import (
	"time"

	"lyfebridge.ai/internal/sim/vec"
)

// DefaultReissueInterval is how often a moving target is re-sent to the mover.
const DefaultReissueInterval = 300 * time.Millisecond

// Mover is the pathfinding agent that physically moves toward a point.
type Mover interface {
	SetDestination(p vec.Vec3)
	SetStoppingDistance(d float64)
	Resume()
	Halt()
	// Moving reports whether the mover currently has somewhere left to go.
	Moving() bool
}

// Scheduler runs fn every interval on the owner's timeline until cancelled.
// Cancel must take effect before it returns.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// Controller owns an agent's current target. All methods must be called from
// the timeline the Scheduler runs on.
type Controller struct {
	mover    Mover
	sched    Scheduler
	interval time.Duration

	target    Target
	stopLoop  func()
	wasMoving bool
	onArrived []func(Target)
}

func NewController(m Mover, s Scheduler, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultReissueInterval
	}
	return &Controller{mover: m, sched: s, interval: interval}
}

func (c *Controller) Target() Target { return c.target }

// Following reports whether the re-issue loop is active.
func (c *Controller) Following() bool { return c.stopLoop != nil }

// OnArrived registers a callback for the moving to not-moving edge.
func (c *Controller) OnArrived(fn func(Target)) {
	if fn != nil {
		c.onArrived = append(c.onArrived, fn)
	}
}

// Assign replaces the current target. A nil or invalid target is stored but not
// acted on. Dynamic targets are re-issued to the mover every interval until the
// target is replaced, stopped, or becomes invalid.
func (c *Controller) Assign(t Target) {
	c.cancelLoop()
	c.target = t
	if t == nil || !t.IsValid() {
		return
	}
	c.mover.Resume()
	c.mover.SetStoppingDistance(t.StoppingDistance())
	c.mover.SetDestination(t.Point())
	c.sampleMoving()
	if t.IsDynamic() && c.sched != nil {
		c.stopLoop = c.sched.Every(c.interval, func() { c.reissue(t) })
	}
}

func (c *Controller) reissue(t Target) {
	if c.target != t || !t.IsDynamic() {
		c.cancelLoop()
		return
	}
	if !t.IsValid() {
		c.cancelLoop()
		return
	}
	c.mover.SetDestination(t.Point())
	c.sampleMoving()
}

// sampleMoving latches a start of motion so an arrival within the same tick
// is still seen by Update.
func (c *Controller) sampleMoving() {
	if c.mover.Moving() {
		c.wasMoving = true
	}
}

// Stop cancels the re-issue loop, clears the target and halts the mover.
func (c *Controller) Stop() {
	c.cancelLoop()
	c.target = nil
	c.mover.Halt()
}

func (c *Controller) cancelLoop() {
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
	}
}

// Update samples the mover and fires arrival callbacks once per transition
// from moving to not moving. Arrivals with no target are swallowed.
func (c *Controller) Update() {
	moving := c.mover.Moving()
	arrived := c.wasMoving && !moving
	c.wasMoving = moving
	if !arrived || c.target == nil {
		return
	}
	t := c.target
	for _, fn := range c.onArrived {
		fn(t)
	}
}
