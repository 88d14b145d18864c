// Package voxel implements fixed-size terrain chunks backed by an immutable
// buffer of voxel cells.
package voxel

import (
	"fmt"

	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/gen"
	"voxelstream.dev/internal/terrain/geom"
)

type Voxel struct {
	Empty bool
}

// Cells are 0 for empty and 1 for solid, so out-of-range lookups read as empty.
const (
	cellEmpty uint16 = 0
	cellSolid uint16 = 1
)

func Encode(v Voxel) uint16 {
	if v.Empty {
		return cellEmpty
	}
	return cellSolid
}

func Decode(c uint16) Voxel { return Voxel{Empty: c == cellEmpty} }

// FileName is the storage name of the chunk whose minimum corner is minP.
func FileName(minP geom.Vec3i) string {
	return fmt.Sprintf("%d_%d_%d.voxels.dat", minP.X, minP.Y, minP.Z)
}

// Generate fills a chunk-sized voxel buffer. A nil generator yields an
// all-empty chunk.
func Generate(g gen.Generator, minP geom.Vec3i) *buffer.Buffer {
	if g == nil {
		return buffer.New(geom.ChunkSize())
	}
	return buffer.Build(geom.ChunkSize(), func(p geom.Vec3i) uint16 {
		return Encode(Voxel{Empty: !g.Solid(minP.Add(p))})
	})
}

type State int32

const (
	Unloaded State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Source records where a chunk's voxels came from.
type Source int32

const (
	SourceNone Source = iota
	SourceFile
	SourceGenerated
	// SourceFallback means a file existed but could not be used.
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceFile:
		return "file"
	case SourceGenerated:
		return "generated"
	case SourceFallback:
		return "fallback"
	default:
		return "none"
	}
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (geom.Vec3i, bool) {
	var p geom.Vec3i
	var rest string
	n, _ := fmt.Sscanf(name, "%d_%d_%d.%s", &p.X, &p.Y, &p.Z, &rest)
	if n != 4 || rest != "voxels.dat" {
		return geom.Vec3i{}, false
	}
	return p, FileName(p) == name
}
