// Package visibility narrows a proximity set to the members an owner can
// actually see: inside a horizontal field of view and not occluded.
package visibility

import (
	"lyfebridge.ai/internal/sim/proximity"
	"lyfebridge.ai/internal/sim/vec"
)

const (
	DefaultFOVDeg    = 120.0
	DefaultEyeHeight = 0.75
)

// Raycaster reports the first object hit by a ray. ignore is excluded from hits.
type Raycaster interface {
	Raycast(origin, dir vec.Vec3, maxDist float64, ignore any) (hit any, ok bool)
}

// Viewer is the entity doing the looking.
type Viewer interface {
	Position() vec.Vec3
	Forward() vec.Vec3
}

type Config struct {
	FOVDeg    float64
	EyeHeight float64
}

type Filter[T proximity.Member] struct {
	cfg Config
	ray Raycaster
}

func New[T proximity.Member](cfg Config, ray Raycaster) *Filter[T] {
	if cfg.FOVDeg <= 0 {
		cfg.FOVDeg = DefaultFOVDeg
	}
	if cfg.EyeHeight <= 0 {
		cfg.EyeHeight = DefaultEyeHeight
	}
	return &Filter[T]{cfg: cfg, ray: ray}
}

// Visible reports whether viewer can see candidate. Bearing is checked in the
// horizontal plane only; the occlusion probe runs eye to eye. A probe that hits
// nothing counts as visible.
func (f *Filter[T]) Visible(viewer Viewer, candidate T) bool {
	up := vec.Vec3{Y: f.cfg.EyeHeight}
	eye := viewer.Position().Add(up)
	target := candidate.Position().Add(up)

	toTarget := target.Sub(eye)
	if vec.AngleDeg(viewer.Forward().Flat(), toTarget.Flat()) > f.cfg.FOVDeg/2 {
		return false
	}
	if f.ray == nil {
		return true
	}
	dist := toTarget.Len()
	if dist == 0 {
		return true
	}
	hit, ok := f.ray.Raycast(eye, toTarget.Normalize(), dist, viewer)
	if !ok {
		return true
	}
	if h, isT := hit.(T); isT && h == candidate {
		return true
	}
	return false
}

// Result partitions visible members by category.
type Result[T proximity.Member] map[proximity.Category]map[T]struct{}

func (r Result[T]) Get(cat proximity.Category) map[T]struct{} {
	if s, ok := r[cat]; ok {
		return s
	}
	return map[T]struct{}{}
}

// Query evaluates the player and agent members of set. Nothing is cached; every
// call recomputes from current positions.
func (f *Filter[T]) Query(viewer Viewer, set *proximity.Tracker[T]) Result[T] {
	out := Result[T]{}
	for _, cat := range []proximity.Category{proximity.CategoryPlayer, proximity.CategoryAgent} {
		vis := map[T]struct{}{}
		for m := range set.ByCategory(cat) {
			if any(m) == any(viewer) {
				continue
			}
			if f.Visible(viewer, m) {
				vis[m] = struct{}{}
			}
		}
		out[cat] = vis
	}
	return out
}
