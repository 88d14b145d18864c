// Package buffer holds dense 3D grids of uint16 cells used for both voxel
// and lighting data. A published Buffer is never mutated; edits return a
// new Buffer.
package buffer

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.dev/internal/terrain/geom"
)

// CellSize is the on-disk size of one cell in bytes.
const CellSize = 2

var (
	ErrSizeMismatch     = errors.New("buffer: size does not match dimensions")
	ErrNeighborhoodSize = errors.New("buffer: destination is not a combined neighborhood")
)

type Buffer struct {
	dims geom.Vec3i
	// offset maps chunk-local positions into this buffer. It is non-zero
	// for padded buffers cropped out of a neighborhood.
	offset geom.Vec3i
	data   []uint16
}

// New returns a zero-filled buffer.
func New(dims geom.Vec3i) *Buffer {
	return &Buffer{dims: dims, data: make([]uint16, dims.Volume())}
}

// NewWithData copies data into a new buffer. data must be laid out Y-fastest.
func NewWithData(dims geom.Vec3i, data []uint16) (*Buffer, error) {
	if len(data) != dims.Volume() {
		return nil, fmt.Errorf("%w: got %d cells want %d", ErrSizeMismatch, len(data), dims.Volume())
	}
	out := New(dims)
	copy(out.data, data)
	return out, nil
}

// Build fills a new buffer by calling fn for every position in layout order.
func Build(dims geom.Vec3i, fn func(p geom.Vec3i) uint16) *Buffer {
	b := New(dims)
	i := 0
	for x := 0; x < dims.X; x++ {
		for z := 0; z < dims.Z; z++ {
			for y := 0; y < dims.Y; y++ {
				b.data[i] = fn(geom.Vec3i{X: x, Y: y, Z: z})
				i++
			}
		}
	}
	return b
}

// FromLargerRaw crops a lighting-shaped buffer (chunk plus one cell of
// horizontal padding) out of a raw array spanning [srcMin, srcMax) in the
// center chunk's local space. Cells with no overlap stay zero.
func FromLargerRaw(src []uint16, srcMin, srcMax geom.Vec3i) (*Buffer, error) {
	srcDims := srcMax.Sub(srcMin)
	if len(src) != srcDims.Volume() {
		return nil, fmt.Errorf("%w: got %d cells want %d", ErrSizeMismatch, len(src), srcDims.Volume())
	}
	dims := geom.LightingDimensions()
	out := &Buffer{dims: dims, offset: geom.LightingOffset(), data: make([]uint16, dims.Volume())}
	for x := 0; x < dims.X; x++ {
		for z := 0; z < dims.Z; z++ {
			for y := 0; y < dims.Y; y++ {
				p := geom.Vec3i{X: x, Y: y, Z: z}
				s := p.Sub(out.offset).Sub(srcMin)
				if !s.Within(srcDims) {
					continue
				}
				out.data[out.index(p)] = src[indexIn(srcDims, s)]
			}
		}
	}
	return out, nil
}

// CropNeighborhood is FromLargerRaw over a combined neighborhood buffer.
func CropNeighborhood(src *Buffer) (*Buffer, error) {
	if src.dims != geom.CombinedDimensions() {
		return nil, fmt.Errorf("%w: got %v", ErrNeighborhoodSize, src.dims)
	}
	return FromLargerRaw(src.data, geom.CombinedMinP, geom.CombinedMaxP)
}

// WithOffset returns a view of b that maps chunk-local space through off.
// The cells are shared, which is safe because buffers are immutable.
func (b *Buffer) WithOffset(off geom.Vec3i) *Buffer {
	return &Buffer{dims: b.dims, offset: off, data: b.data}
}

func (b *Buffer) Dimensions() geom.Vec3i { return b.dims }
func (b *Buffer) Offset() geom.Vec3i     { return b.offset }

// Data exposes the backing array. Callers must treat it as read-only.
func (b *Buffer) Data() []uint16 { return b.data }

func indexIn(dims, p geom.Vec3i) int { return p.X*dims.Y*dims.Z + p.Z*dims.Y + p.Y }

func (b *Buffer) index(p geom.Vec3i) int { return indexIn(b.dims, p) }

// ValueAt returns the cell at a chunk-local position, or 0 when the position
// falls outside the buffer on any axis.
func (b *Buffer) ValueAt(chunkLocal geom.Vec3i) uint16 {
	p := chunkLocal.Add(b.offset)
	if !p.Within(b.dims) {
		return 0
	}
	return b.data[b.index(p)]
}

// WithEdit returns a copy of b with one cell changed. Cost is O(volume).
// An out-of-range position yields an unchanged copy.
func (b *Buffer) WithEdit(chunkLocal geom.Vec3i, v uint16) *Buffer {
	out := &Buffer{dims: b.dims, offset: b.offset, data: make([]uint16, len(b.data))}
	copy(out.data, b.data)
	if p := chunkLocal.Add(b.offset); p.Within(b.dims) {
		out.data[out.index(p)] = v
	}
	return out
}

// CopyToNeighborhood writes b into the sub-region of dst that belongs to
// neighbor n. dst must have the combined neighborhood shape and must not be
// published yet; b must be one chunk in size.
func (b *Buffer) CopyToNeighborhood(dst *Buffer, n geom.Neighbor) error {
	if dst.dims != geom.CombinedDimensions() {
		return fmt.Errorf("%w: got %v", ErrNeighborhoodSize, dst.dims)
	}
	if b.dims != geom.ChunkSize() {
		return fmt.Errorf("%w: neighbor buffer is %v", ErrSizeMismatch, b.dims)
	}
	if !n.Valid() {
		return fmt.Errorf("buffer: invalid neighbor %d", n)
	}
	base := n.Offset().Sub(geom.CombinedMinP)
	col := b.dims.Y
	for x := 0; x < b.dims.X; x++ {
		for z := 0; z < b.dims.Z; z++ {
			src := b.index(geom.Vec3i{X: x, Z: z})
			d := dst.index(geom.Vec3i{X: base.X + x, Y: base.Y, Z: base.Z + z})
			copy(dst.data[d:d+col], b.data[src:src+col])
		}
	}
	return nil
}

// LightForVertex samples the cell a face vertex receives light from. The
// vertex is pushed half a cell along its normal and rounded to the nearest
// block center. Values at the buffer's own border are returned as stored,
// without correcting for missing neighbor data.
func (b *Buffer) LightForVertex(vertex, normal mgl32.Vec3, minP geom.Vec3i) uint16 {
	p := vertex.Sub(minP.Vec3()).Add(normal.Mul(0.5))
	local := geom.Vec3i{
		X: int(math.Floor(float64(p.X()) + 0.5)),
		Y: int(math.Floor(float64(p.Y()) + 0.5)),
		Z: int(math.Floor(float64(p.Z()) + 0.5)),
	}
	return b.ValueAt(local)
}

func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.dims != o.dims || b.offset != o.offset {
		return false
	}
	for i := range b.data {
		if b.data[i] != o.data[i] {
			return false
		}
	}
	return true
}
