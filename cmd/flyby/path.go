package main

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.dev/internal/observerproto"
)

type path interface {
	// at returns the observer position after flying dist world units.
	at(dist float32) mgl32.Vec3
}

func newPath(shape string, radius, altitude float32) (path, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("radius must be > 0, got %v", radius)
	}
	switch shape {
	case "circle":
		return circle{r: radius, y: altitude}, nil
	case "line":
		return line{half: radius, y: altitude}, nil
	default:
		return nil, fmt.Errorf("unknown path %q", shape)
	}
}

type circle struct{ r, y float32 }

func (c circle) at(dist float32) mgl32.Vec3 {
	a := float64(dist / c.r)
	return mgl32.Vec3{c.r * float32(math.Cos(a)), c.y, c.r * float32(math.Sin(a))}
}

// line flies back and forth along X between -half and +half.
type line struct{ half, y float32 }

func (l line) at(dist float32) mgl32.Vec3 {
	period := 4 * l.half
	d := float32(math.Mod(float64(dist), float64(period)))
	x := d - l.half
	if d > 2*l.half {
		x = 3*l.half - d
	}
	return mgl32.Vec3{x, l.y, 0}
}

type flightStats struct {
	Frames  int
	Added   int
	Removed int
	Purged  int
	Dug     int
	MaxRes  int
}

func (s *flightStats) addRegion(rm observerproto.RegionMsg) {
	s.Frames++
	s.Added += len(rm.Added)
	s.Removed += len(rm.Removed)
	s.Purged += rm.Purged
	if rm.Resident > s.MaxRes {
		s.MaxRes = rm.Resident
	}
}

func (s flightStats) String() string {
	return fmt.Sprintf("frames=%d added=%d removed=%d purged=%d dug=%d max_resident=%d",
		s.Frames, s.Added, s.Removed, s.Purged, s.Dug, s.MaxRes)
}
