package buffer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.dev/internal/dispatch"
	"voxelstream.dev/internal/terrain/geom"
)

func patterned(dims geom.Vec3i, salt int) *Buffer {
	return Build(dims, func(p geom.Vec3i) uint16 {
		return uint16((p.X*7 + p.Y*13 + p.Z*31 + salt) % 65521)
	})
}

func TestValueAtOutOfRange(t *testing.T) {
	dims := geom.V(3, 4, 5)
	b := patterned(dims, 1)
	outside := []geom.Vec3i{
		{X: -1, Y: 0, Z: 0}, {X: 3, Y: 0, Z: 0},
		{X: 0, Y: -1, Z: 0}, {X: 0, Y: 4, Z: 0},
		{X: 0, Y: 0, Z: -1}, {X: 0, Y: 0, Z: 5},
		{X: 100, Y: -100, Z: 2},
	}
	for _, p := range outside {
		if v := b.ValueAt(p); v != 0 {
			t.Fatalf("ValueAt(%v): got %d want 0", p, v)
		}
	}
	if v := b.ValueAt(geom.V(2, 3, 4)); v == 0 {
		t.Fatalf("in-range value unexpectedly zero")
	}
}

func TestLayoutIsYContiguous(t *testing.T) {
	dims := geom.V(2, 3, 2)
	b := Build(dims, func(p geom.Vec3i) uint16 { return uint16(p.X*100 + p.Z*10 + p.Y) })
	want := []uint16{0, 1, 2, 10, 11, 12, 100, 101, 102, 110, 111, 112}
	for i, v := range b.Data() {
		if v != want[i] {
			t.Fatalf("data[%d]: got %d want %d", i, v, want[i])
		}
	}
}

func TestWithEditIsCopyOnWrite(t *testing.T) {
	dims := geom.V(4, 4, 4)
	orig := patterned(dims, 3)
	for x := 0; x < dims.X; x++ {
		for y := 0; y < dims.Y; y++ {
			for z := 0; z < dims.Z; z++ {
				p := geom.V(x, y, z)
				before := orig.ValueAt(p)
				edited := orig.WithEdit(p, 9999)
				if orig.ValueAt(p) != before {
					t.Fatalf("original changed at %v", p)
				}
				if edited.ValueAt(p) != 9999 {
					t.Fatalf("edit missing at %v", p)
				}
			}
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pool := dispatch.NewPool(2)
	defer pool.Stop()

	for i, dims := range []geom.Vec3i{geom.V(1, 1, 1), geom.V(2, 7, 3), geom.ChunkSize()} {
		b := patterned(dims, i)
		path := filepath.Join(dir, "buf", filepath.Base(dims.String())+".dat")

		var g dispatch.Group
		b.Save(path, pool, &g)
		if err := g.Wait(); err != nil {
			t.Fatalf("save %v: %v", dims, err)
		}

		type result struct {
			b   *Buffer
			err error
		}
		ch := make(chan result, 1)
		Load(path, dims, pool, pool, func(got *Buffer, err error) { ch <- result{got, err} })
		r := <-ch
		if r.err != nil {
			t.Fatalf("load %v: %v", dims, r.err)
		}
		if !r.b.Equal(b) {
			t.Fatalf("round trip mismatch for %v", dims)
		}
	}
}

func TestLoadRejectsShortFile(t *testing.T) {
	dir := t.TempDir()
	dims := geom.V(2, 2, 2)
	path := filepath.Join(dir, "short.dat")
	if err := patterned(dims, 0).WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(path, raw[:len(raw)-1], 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	var got *Buffer
	var loadErr error
	Load(path, dims, dispatch.Inline{}, dispatch.Inline{}, func(b *Buffer, err error) { got, loadErr = b, err })
	if !errors.Is(loadErr, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", loadErr)
	}
	if got != nil {
		t.Fatalf("expected no buffer on failure")
	}

	_, err = ReadFile(filepath.Join(dir, "missing.dat"), dims)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestNeighborhoodCropRoundTrip(t *testing.T) {
	combined := New(geom.CombinedDimensions())
	chunks := make([]*Buffer, geom.NumNeighbors)
	geom.ForEachNeighbor(func(n geom.Neighbor) {
		chunks[n] = patterned(geom.ChunkSize(), int(n)*1000)
		if err := chunks[n].CopyToNeighborhood(combined, n); err != nil {
			t.Fatalf("CopyToNeighborhood(%d): %v", n, err)
		}
	})

	lit, err := CropNeighborhood(combined)
	if err != nil {
		t.Fatalf("CropNeighborhood: %v", err)
	}
	if lit.Dimensions() != geom.LightingDimensions() {
		t.Fatalf("dims: got %v want %v", lit.Dimensions(), geom.LightingDimensions())
	}

	// Every cell of the padded buffer must come from the chunk that owns it.
	for x := -1; x <= geom.ChunkSizeX; x++ {
		for z := -1; z <= geom.ChunkSizeZ; z++ {
			for y := 0; y < geom.ChunkSizeY; y++ {
				local := geom.V(x, y, z)
				n, _ := geom.NeighborAt(geom.FloorDiv(x, geom.ChunkSizeX), geom.FloorDiv(z, geom.ChunkSizeZ))
				owner := local.Sub(n.Offset())
				if got, want := lit.ValueAt(local), chunks[n].ValueAt(owner); got != want {
					t.Fatalf("cell %v: got %d want %d", local, got, want)
				}
			}
		}
	}

	// Cropping then re-assembling reproduces the center chunk exactly.
	again := New(geom.CombinedDimensions())
	center := Build(geom.ChunkSize(), func(p geom.Vec3i) uint16 { return lit.ValueAt(p) })
	if err := center.CopyToNeighborhood(again, geom.NeighborCenter); err != nil {
		t.Fatalf("CopyToNeighborhood: %v", err)
	}
	recropped, err := CropNeighborhood(again)
	if err != nil {
		t.Fatalf("CropNeighborhood: %v", err)
	}
	for x := 0; x < geom.ChunkSizeX; x++ {
		for z := 0; z < geom.ChunkSizeZ; z++ {
			for y := 0; y < geom.ChunkSizeY; y++ {
				p := geom.V(x, y, z)
				if recropped.ValueAt(p) != chunks[geom.NeighborCenter].ValueAt(p) {
					t.Fatalf("center cell %v changed across round trip", p)
				}
			}
		}
	}
}

func TestCopyToNeighborhoodRejectsWrongShape(t *testing.T) {
	b := New(geom.ChunkSize())
	if err := b.CopyToNeighborhood(New(geom.ChunkSize()), geom.NeighborCenter); !errors.Is(err, ErrNeighborhoodSize) {
		t.Fatalf("expected ErrNeighborhoodSize, got %v", err)
	}
}

func TestLightForVertex(t *testing.T) {
	minP := geom.V(16, 0, -16)
	b := New(geom.ChunkSize()).WithEdit(geom.V(4, 10, 3), 15)

	// Top face of the block at (4,9,3): vertex at its +Y face, normal up.
	v := mgl32.Vec3{16 + 4, 9.5, -16 + 3}
	if got := b.LightForVertex(v, mgl32.Vec3{0, 1, 0}, minP); got != 15 {
		t.Fatalf("light: got %d want 15", got)
	}
	// Facing away samples the block itself, which is dark.
	if got := b.LightForVertex(v, mgl32.Vec3{0, -1, 0}, minP); got != 0 {
		t.Fatalf("light: got %d want 0", got)
	}
	// Probes past the border read as zero.
	if got := b.LightForVertex(mgl32.Vec3{16 + 15.5, 10, -16 + 3}, mgl32.Vec3{1, 0, 0}, minP); got != 0 {
		t.Fatalf("border light: got %d want 0", got)
	}
}
