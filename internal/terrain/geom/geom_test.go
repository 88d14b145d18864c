package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestMinCornerForPoint(t *testing.T) {
	cases := []struct {
		p    mgl32.Vec3
		want Vec3i
	}{
		{mgl32.Vec3{0, 0, 0}, Vec3i{0, 0, 0}},
		{mgl32.Vec3{15.9, 63.9, 15.9}, Vec3i{0, 0, 0}},
		{mgl32.Vec3{16, 10, -0.5}, Vec3i{16, 0, -16}},
		{mgl32.Vec3{-16, 64, -17}, Vec3i{-16, 64, -32}},
	}
	for _, c := range cases {
		if got := MinCornerForPoint(c.p); got != c.want {
			t.Fatalf("MinCornerForPoint(%v): got %v want %v", c.p, got, c.want)
		}
	}
}

func TestNeighborRoundTrip(t *testing.T) {
	seen := map[Vec3i]bool{}
	ForEachNeighbor(func(n Neighbor) {
		dx, dz := n.Step()
		back, ok := NeighborAt(dx, dz)
		if !ok || back != n {
			t.Fatalf("NeighborAt(%d,%d): got %d,%v want %d", dx, dz, back, ok, n)
		}
		seen[n.Offset()] = true
	})
	if len(seen) != NumNeighbors {
		t.Fatalf("distinct offsets: got %d want %d", len(seen), NumNeighbors)
	}
	if NeighborCenter.Offset() != ZeroVec3i {
		t.Fatalf("center offset: got %v", NeighborCenter.Offset())
	}
	if _, ok := NeighborAt(2, 0); ok {
		t.Fatalf("expected out-of-range neighbor to be rejected")
	}
	if got := CombinedDimensions(); got != (Vec3i{3 * ChunkSizeX, ChunkSizeY, 3 * ChunkSizeZ}) {
		t.Fatalf("combined dims: got %v", got)
	}
}

func TestAABBIntersectRay(t *testing.T) {
	box := ChunkBounds(Vec3i{16, 0, 0})

	hit, d := box.IntersectRay(NewRay(mgl32.Vec3{0, 10, 8}, mgl32.Vec3{1, 0, 0}))
	if !hit || d != 16 {
		t.Fatalf("hit=%v d=%v want hit at 16", hit, d)
	}
	if hit, _ := box.IntersectRay(NewRay(mgl32.Vec3{0, 10, 8}, mgl32.Vec3{-1, 0, 0})); hit {
		t.Fatalf("expected miss behind origin")
	}
	if hit, _ := box.IntersectRay(NewRay(mgl32.Vec3{0, 100, 8}, mgl32.Vec3{1, 0, 0})); hit {
		t.Fatalf("expected miss above chunk")
	}
	hit, d = box.IntersectRay(NewRay(mgl32.Vec3{20, 10, 8}, mgl32.Vec3{0, 1, 0}))
	if !hit || d != 0 {
		t.Fatalf("inside origin: hit=%v d=%v", hit, d)
	}
}
