package geom

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Chunks are full-height columns: every chunk spans [0, ChunkSizeY) on Y.
const (
	ChunkSizeX = 16
	ChunkSizeY = 64
	ChunkSizeZ = 16
)

type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

var ZeroVec3i = Vec3i{}

func V(x, y, z int) Vec3i { return Vec3i{X: x, Y: y, Z: z} }

// ChunkSize returns the dimensions of one chunk's voxel buffer.
func ChunkSize() Vec3i { return Vec3i{ChunkSizeX, ChunkSizeY, ChunkSizeZ} }

func (a Vec3i) Add(b Vec3i) Vec3i { return Vec3i{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3i) Sub(b Vec3i) Vec3i { return Vec3i{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

// Volume is the number of cells in a box of these dimensions. Negative
// components count as zero.
func (a Vec3i) Volume() int {
	if a.X <= 0 || a.Y <= 0 || a.Z <= 0 {
		return 0
	}
	return a.X * a.Y * a.Z
}

// Within reports whether a lies in [0, dims) on every axis.
func (a Vec3i) Within(dims Vec3i) bool {
	return a.X >= 0 && a.Y >= 0 && a.Z >= 0 && a.X < dims.X && a.Y < dims.Y && a.Z < dims.Z
}

func (a Vec3i) Vec3() mgl32.Vec3 { return mgl32.Vec3{float32(a.X), float32(a.Y), float32(a.Z)} }

func (a Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", a.X, a.Y, a.Z) }

// Floor converts a world-space point to the integer cell containing it.
func Floor(p mgl32.Vec3) Vec3i {
	return Vec3i{
		X: int(math.Floor(float64(p.X()))),
		Y: int(math.Floor(float64(p.Y()))),
		Z: int(math.Floor(float64(p.Z()))),
	}
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// MinCornerForCell returns the minimum corner of the chunk containing the
// integer world cell c.
func MinCornerForCell(c Vec3i) Vec3i {
	return Vec3i{
		X: FloorDiv(c.X, ChunkSizeX) * ChunkSizeX,
		Y: FloorDiv(c.Y, ChunkSizeY) * ChunkSizeY,
		Z: FloorDiv(c.Z, ChunkSizeZ) * ChunkSizeZ,
	}
}

// MinCornerForPoint returns the minimum corner of the chunk containing p.
func MinCornerForPoint(p mgl32.Vec3) Vec3i { return MinCornerForCell(Floor(p)) }

// ChunkCenter returns the world-space center of the chunk with minimum corner minP.
func ChunkCenter(minP Vec3i) mgl32.Vec3 {
	return minP.Vec3().Add(mgl32.Vec3{ChunkSizeX / 2, ChunkSizeY / 2, ChunkSizeZ / 2})
}

// LightingDimensions is the shape of a per-chunk lighting buffer: the chunk
// plus one cell of padding on each horizontal side.
func LightingDimensions() Vec3i { return Vec3i{ChunkSizeX + 2, ChunkSizeY, ChunkSizeZ + 2} }

// LightingOffset maps chunk-local space into a lighting buffer.
func LightingOffset() Vec3i { return Vec3i{1, 0, 1} }
