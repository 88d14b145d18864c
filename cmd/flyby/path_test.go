package main

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.dev/internal/observerproto"
)

func TestCirclePath(t *testing.T) {
	p, err := newPath("circle", 32, 40)
	if err != nil {
		t.Fatalf("newPath: %v", err)
	}
	start := p.at(0)
	if !start.ApproxEqualThreshold(mgl32.Vec3{32, 40, 0}, 1e-4) {
		t.Fatalf("start: got %v", start)
	}
	for _, d := range []float32{1, 17, 100, 1000} {
		pos := p.at(d)
		if r := (mgl32.Vec2{pos.X(), pos.Z()}).Len(); r < 31.99 || r > 32.01 {
			t.Fatalf("radius at %v: got %v", d, r)
		}
		if pos.Y() != 40 {
			t.Fatalf("altitude: got %v", pos.Y())
		}
	}
}

func TestLinePathBounces(t *testing.T) {
	p, err := newPath("line", 10, 5)
	if err != nil {
		t.Fatalf("newPath: %v", err)
	}
	cases := map[float32]float32{0: -10, 10: 0, 20: 10, 30: 0, 40: -10, 45: -5}
	for d, want := range cases {
		if got := p.at(d).X(); got < want-1e-3 || got > want+1e-3 {
			t.Fatalf("x at %v: got %v want %v", d, got, want)
		}
	}
}

func TestNewPathRejects(t *testing.T) {
	if _, err := newPath("spiral", 10, 0); err == nil {
		t.Fatalf("expected unknown path error")
	}
	if _, err := newPath("circle", 0, 0); err == nil {
		t.Fatalf("expected radius error")
	}
}

func TestFlightStats(t *testing.T) {
	var s flightStats
	s.addRegion(observerproto.RegionMsg{Added: make([][3]int, 9), Resident: 9})
	s.addRegion(observerproto.RegionMsg{Added: make([][3]int, 3), Removed: make([][3]int, 3), Resident: 12, Purged: 2})
	if s.Frames != 2 || s.Added != 12 || s.Removed != 3 || s.Purged != 2 || s.MaxRes != 12 {
		t.Fatalf("got %+v", s)
	}
}
