// Package vec holds the small float64 vector math used by the simulation.
// Axes follow the engine convention: Y is up, yaw rotates about Y and a yaw of
// zero faces +Z.
package vec

import "math"

type Vec3 struct {
	X, Y, Z float64
}

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }

func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

func (a Vec3) Scale(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }

func (a Vec3) Dot(b Vec3) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func (a Vec3) LenSq() float64 { return a.Dot(a) }

func (a Vec3) Len() float64 { return math.Sqrt(a.LenSq()) }

// Flat drops the vertical component.
func (a Vec3) Flat() Vec3 { return Vec3{a.X, 0, a.Z} }

func (a Vec3) Normalize() Vec3 {
	mag := a.Len()
	if mag == 0 {
		return Vec3{}
	}
	inv := 1.0 / mag
	return Vec3{a.X * inv, a.Y * inv, a.Z * inv}
}

func Dist(a, b Vec3) float64 { return a.Sub(b).Len() }

func DistSq(a, b Vec3) float64 { return a.Sub(b).LenSq() }

// AngleDeg returns the unsigned angle between a and b in degrees.
// A zero-length input yields 0.
func AngleDeg(a, b Vec3) float64 {
	la, lb := a.Len(), b.Len()
	if la == 0 || lb == 0 {
		return 0
	}
	c := a.Dot(b) / (la * lb)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}

// Forward returns the unit facing vector for a yaw in degrees.
func Forward(yawDeg float64) Vec3 {
	r := yawDeg * math.Pi / 180
	return Vec3{math.Sin(r), 0, math.Cos(r)}
}

// Yaw returns the yaw in degrees that faces along dir in the horizontal plane.
func Yaw(dir Vec3) float64 {
	if dir.X == 0 && dir.Z == 0 {
		return 0
	}
	return math.Atan2(dir.X, dir.Z) * 180 / math.Pi
}

// MoveTowards steps from cur toward target by at most maxStep.
func MoveTowards(cur, target Vec3, maxStep float64) Vec3 {
	d := target.Sub(cur)
	l := d.Len()
	if l <= maxStep || l == 0 {
		return target
	}
	return cur.Add(d.Scale(maxStep / l))
}
