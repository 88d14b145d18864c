// Package gen fills chunks procedurally. Generators are deterministic: the
// same seed and cell always produce the same answer.
package gen

import (
	"math"

	"voxelstream.dev/internal/terrain/geom"
)

// Generator decides whether the voxel at a world cell is solid.
type Generator interface {
	Solid(world geom.Vec3i) bool
}

// Flat is solid below Height and empty at or above it.
type Flat struct{ Height int }

func (f Flat) Solid(p geom.Vec3i) bool { return p.Y < f.Height }

// Heightmap rolls a flat surface at Height by up to Amplitude cells using
// hashed value noise sampled on a grid of Scale cells.
type Heightmap struct {
	Seed      int64
	Height    int
	Amplitude int
	Scale     int
}

func NewHeightmap(seed int64, height, amplitude int) Heightmap {
	return Heightmap{Seed: seed, Height: height, Amplitude: amplitude, Scale: 32}
}

func (h Heightmap) Solid(p geom.Vec3i) bool { return p.Y < h.SurfaceAt(p.X, p.Z) }

// SurfaceAt returns the first empty y of the column at (x, z).
func (h Heightmap) SurfaceAt(x, z int) int {
	if h.Amplitude == 0 {
		return h.Height
	}
	scale := h.Scale
	if scale <= 0 {
		scale = 32
	}
	gx, gz := geom.FloorDiv(x, scale), geom.FloorDiv(z, scale)
	fx := smooth(float64(geom.Mod(x, scale)) / float64(scale))
	fz := smooth(float64(geom.Mod(z, scale)) / float64(scale))

	n00 := h.corner(gx, gz)
	n10 := h.corner(gx+1, gz)
	n01 := h.corner(gx, gz+1)
	n11 := h.corner(gx+1, gz+1)
	n := lerp(lerp(n00, n10, fx), lerp(n01, n11, fx), fz)
	return h.Height + int(math.Round(n*float64(h.Amplitude)))
}

// corner maps a grid hash to [-1, 1].
func (h Heightmap) corner(gx, gz int) float64 {
	v := Hash2(h.Seed, gx, gz)
	return float64(v%2001)/1000 - 1
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
