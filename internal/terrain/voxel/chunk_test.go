package voxel

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.dev/internal/dispatch"
	"voxelstream.dev/internal/terrain/gen"
	"voxelstream.dev/internal/terrain/geom"
)

func TestFileNameDeterministic(t *testing.T) {
	minP := geom.V(-16, 0, 32)
	if got := FileName(minP); got != "-16_0_32.voxels.dat" {
		t.Fatalf("FileName: got %q", got)
	}
	if FileName(minP) != FileName(geom.V(-16, 0, 32)) {
		t.Fatalf("FileName not deterministic")
	}
}

func assertFlat(t *testing.T, c *Chunk, height int) {
	t.Helper()
	c.RLock()
	defer c.RUnlock()
	for x := 0; x < geom.ChunkSizeX; x += 5 {
		for z := 0; z < geom.ChunkSizeZ; z += 5 {
			for y := 0; y < geom.ChunkSizeY; y++ {
				v := c.GetVoxel(geom.V(x, y, z))
				if want := y >= height; v.Empty != want {
					t.Fatalf("voxel (%d,%d,%d): empty=%v want %v", x, y, z, v.Empty, want)
				}
			}
		}
	}
}

func TestOpenGeneratesWhenMissing(t *testing.T) {
	c := Open(1, geom.V(16, 0, 0), 20, t.TempDir())
	if c.State() != Ready {
		t.Fatalf("state: got %v want ready", c.State())
	}
	if c.Source() != SourceGenerated {
		t.Fatalf("source: got %v want generated", c.Source())
	}
	assertFlat(t, c, 20)
}

func TestTruncatedFileFallsBackToGeneration(t *testing.T) {
	dir := t.TempDir()
	minP := geom.V(0, 0, 0)

	// A full-size all-solid file, then cut one byte.
	solid := New(Config{MinP: minP, Folder: dir, Generator: gen.Flat{Height: geom.ChunkSizeY}})
	solid.Init()
	var g dispatch.Group
	solid.Save(dir, dispatch.Inline{}, &g)
	if err := g.Wait(); err != nil {
		t.Fatalf("save: %v", err)
	}
	path := filepath.Join(dir, FileName(minP))
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(path, raw[:len(raw)-1], 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	var gotErr error
	c := New(Config{
		MinP:      minP,
		Folder:    dir,
		Generator: gen.Flat{Height: 10},
		OnReady:   func(_ *Chunk, err error) { gotErr = err },
	})
	c.Init()
	if c.Source() != SourceFallback {
		t.Fatalf("source: got %v want fallback", c.Source())
	}
	if gotErr == nil {
		t.Fatalf("expected OnReady to report the load error")
	}
	assertFlat(t, c, 10)
}

func TestSaveAndReopen(t *testing.T) {
	dir := t.TempDir()
	minP := geom.V(-32, 0, 16)
	c := Open(9, minP, 8, dir)
	c.EditVoxel(geom.V(3, 30, 4), Voxel{Empty: false})
	c.EditVoxel(geom.V(3, 2, 4), Voxel{Empty: true})
	if !c.Dirty() {
		t.Fatalf("expected dirty after edit")
	}

	pool := dispatch.NewPool(2)
	defer pool.Stop()
	var g dispatch.Group
	c.Save(dir, pool, &g)
	if err := g.Wait(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if c.Dirty() {
		t.Fatalf("expected clean after save")
	}

	again := Open(9, minP, 8, dir)
	if again.Source() != SourceFile {
		t.Fatalf("source: got %v want file", again.Source())
	}
	again.RLock()
	defer again.RUnlock()
	if again.GetVoxel(geom.V(3, 30, 4)).Empty {
		t.Fatalf("placed voxel lost")
	}
	if !again.GetVoxel(geom.V(3, 2, 4)).Empty {
		t.Fatalf("removed voxel lost")
	}
}

func TestInitAsyncBlocksReaders(t *testing.T) {
	pool := dispatch.NewPool(2)
	defer pool.Stop()

	ready := make(chan struct{})
	c := New(Config{
		MinP:      geom.V(0, 0, 0),
		Folder:    t.TempDir(),
		Generator: gen.Flat{Height: 5},
		OnReady:   func(*Chunk, error) { close(ready) },
	})
	c.InitAsync(pool)

	// RLock must not return before the chunk is Ready.
	c.RLock()
	if c.State() != Ready {
		t.Fatalf("RLock returned in state %v", c.State())
	}
	if c.GetVoxel(geom.V(0, 4, 0)).Empty {
		t.Fatalf("expected solid below height")
	}
	c.RUnlock()
	<-ready
}

func TestConcurrentEditsLastWriterWins(t *testing.T) {
	dir := t.TempDir()
	c := Open(0, geom.V(0, 0, 0), 0, dir)
	p := geom.V(1, 1, 1)

	var (
		wg   sync.WaitGroup
		last Voxel
	)
	for i := 0; i < 32; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := Voxel{Empty: i%2 == 0}
			c.Lock()
			c.SetVoxel(p, v)
			last = v
			c.Unlock()
		}()
	}
	wg.Wait()

	var g dispatch.Group
	c.Save(dir, dispatch.Inline{}, &g)
	if err := g.Wait(); err != nil {
		t.Fatalf("save: %v", err)
	}
	again := Open(0, geom.V(0, 0, 0), 0, dir)
	again.RLock()
	got := again.GetVoxel(p)
	again.RUnlock()
	if got != last {
		t.Fatalf("persisted %v want %v", got, last)
	}
}

func TestVoxelAccessWithoutLockPanics(t *testing.T) {
	c := Open(0, geom.V(0, 0, 0), 4, t.TempDir())
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected panic", name)
			}
		}()
		fn()
	}
	mustPanic("GetVoxel", func() { c.GetVoxel(geom.V(0, 0, 0)) })
	mustPanic("SetVoxel", func() { c.SetVoxel(geom.V(0, 0, 0), Voxel{}) })

	c.RLock()
	mustPanic("SetVoxel under read lock", func() { c.SetVoxel(geom.V(0, 0, 0), Voxel{}) })
	c.RUnlock()

	// Holders are counted per chunk.
	other := Open(0, geom.V(16, 0, 0), 4, t.TempDir())
	other.Lock()
	mustPanic("GetVoxel with another chunk locked", func() { c.GetVoxel(geom.V(0, 0, 0)) })
	mustPanic("SetVoxel with another chunk locked", func() { c.SetVoxel(geom.V(0, 0, 0), Voxel{}) })
	other.Unlock()

	// Releasing clears the check.
	c.Lock()
	c.SetVoxel(geom.V(0, 0, 0), Voxel{Empty: true})
	c.Unlock()
	mustPanic("SetVoxel after Unlock", func() { c.SetVoxel(geom.V(0, 0, 0), Voxel{}) })
	mustPanic("GetVoxel after Unlock", func() { c.GetVoxel(geom.V(0, 0, 0)) })
}

func TestLoadReplacesVoxels(t *testing.T) {
	dir := t.TempDir()
	src := Open(0, geom.V(0, 0, 0), 30, dir)
	var g dispatch.Group
	src.Save(dir, dispatch.Inline{}, &g)
	if err := g.Wait(); err != nil {
		t.Fatalf("save: %v", err)
	}

	other := Open(0, geom.V(0, 0, 0), 3, t.TempDir())
	if err := other.Load(filepath.Join(dir, FileName(geom.V(0, 0, 0)))); err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertFlat(t, other, 30)

	if err := other.Load(filepath.Join(dir, "nope.dat")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	assertFlat(t, other, 30)
}

func TestRayIntersection(t *testing.T) {
	c := Open(0, geom.V(32, 0, 0), 4, t.TempDir())
	hit, d := c.RayIntersection(geom.NewRay(mgl32.Vec3{0, 8, 8}, mgl32.Vec3{1, 0, 0}))
	if !hit || d != 32 {
		t.Fatalf("hit=%v d=%v want hit at 32", hit, d)
	}
	if hit, _ := c.RayIntersection(geom.NewRay(mgl32.Vec3{0, 8, 8}, mgl32.Vec3{0, 0, 1})); hit {
		t.Fatalf("expected miss")
	}
}
