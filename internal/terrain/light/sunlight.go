// Package light derives per-chunk sunlight from a chunk and its horizontal
// neighbors.
package light

import (
	"fmt"

	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/voxel"
)

// MaxLevel is the light of a cell open to the sky. Light drops by one per
// step through empty cells.
const MaxLevel = 15

func FileName(minP geom.Vec3i) string {
	return fmt.Sprintf("%d_%d_%d.sunlight.dat", minP.X, minP.Y, minP.Z)
}

// Neighborhood assembles the combined voxel buffer for a chunk. Entries are
// indexed by geom.Neighbor; nil entries read as empty.
func Neighborhood(voxels [geom.NumNeighbors]*buffer.Buffer) (*buffer.Buffer, error) {
	combined := buffer.New(geom.CombinedDimensions())
	for i, b := range voxels {
		if b == nil {
			continue
		}
		if err := b.CopyToNeighborhood(combined, geom.Neighbor(i)); err != nil {
			return nil, fmt.Errorf("neighbor %d: %w", i, err)
		}
	}
	return combined, nil
}

// Sunlight computes light levels for every cell of a voxel buffer. The
// result uses the same layout as the input.
func Sunlight(vox *buffer.Buffer) []uint16 {
	dims := vox.Dimensions()
	cells := vox.Data()
	out := make([]uint16, len(cells))
	queue := make([]int, 0, dims.X*dims.Z*8)

	colStride := dims.Y
	for col := 0; col < dims.X*dims.Z; col++ {
		base := col * colStride
		for y := dims.Y - 1; y >= 0; y-- {
			i := base + y
			if !voxel.Decode(cells[i]).Empty {
				break
			}
			out[i] = MaxLevel
			queue = append(queue, i)
		}
	}

	xStride := dims.Y * dims.Z
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		level := out[i]
		if level <= 1 {
			continue
		}
		x := i / xStride
		z := (i % xStride) / dims.Y
		y := i % dims.Y
		spread := func(n int) {
			if voxel.Decode(cells[n]).Empty && out[n] < level-1 {
				out[n] = level - 1
				queue = append(queue, n)
			}
		}
		if x > 0 {
			spread(i - xStride)
		}
		if x < dims.X-1 {
			spread(i + xStride)
		}
		if z > 0 {
			spread(i - dims.Y)
		}
		if z < dims.Z-1 {
			spread(i + dims.Y)
		}
		if y > 0 {
			spread(i - 1)
		}
		if y < dims.Y-1 {
			spread(i + 1)
		}
	}
	return out
}

// ChunkSunlight returns the padded lighting buffer for the center chunk of
// the given neighborhood.
func ChunkSunlight(voxels [geom.NumNeighbors]*buffer.Buffer) (*buffer.Buffer, error) {
	combined, err := Neighborhood(voxels)
	if err != nil {
		return nil, err
	}
	return buffer.FromLargerRaw(Sunlight(combined), geom.CombinedMinP, geom.CombinedMaxP)
}
