package vec

import (
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAngleDeg(t *testing.T) {
	cases := []struct {
		a, b Vec3
		want float64
	}{
		{Vec3{0, 0, 1}, Vec3{0, 0, 1}, 0},
		{Vec3{0, 0, 1}, Vec3{1, 0, 0}, 90},
		{Vec3{0, 0, 1}, Vec3{0, 0, -3}, 180},
		{Vec3{}, Vec3{1, 0, 0}, 0},
	}
	for _, c := range cases {
		if got := AngleDeg(c.a, c.b); !near(got, c.want) {
			t.Fatalf("AngleDeg(%v,%v)=%v want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestForwardYawInverse(t *testing.T) {
	for _, yaw := range []float64{0, 45, 90, -135} {
		if got := Yaw(Forward(yaw)); !near(got, yaw) {
			t.Fatalf("Yaw(Forward(%v))=%v", yaw, got)
		}
	}
}

func TestMoveTowards(t *testing.T) {
	got := MoveTowards(Vec3{}, Vec3{10, 0, 0}, 3)
	if !near(got.X, 3) {
		t.Fatalf("expected partial step, got %v", got)
	}
	got = MoveTowards(Vec3{}, Vec3{1, 0, 0}, 3)
	if got != (Vec3{1, 0, 0}) {
		t.Fatalf("expected snap to target, got %v", got)
	}
}
