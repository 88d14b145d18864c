package voxel

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/atomic"

	"voxelstream.dev/internal/dispatch"
	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/gen"
	"voxelstream.dev/internal/terrain/geom"
)

type Config struct {
	MinP      geom.Vec3i
	Folder    string
	Generator gen.Generator
	Logger    *log.Logger

	// OnReady runs after the voxels are in place and just before waiters
	// are released. It must not lock the chunk. loadErr is the storage
	// error that forced a fallback, or nil.
	OnReady func(c *Chunk, loadErr error)
}

// Chunk is one column of terrain. Voxel reads and writes require the
// caller to hold RLock or Lock; both block until the chunk is Ready.
//
// The lock check in GetVoxel and SetVoxel is best-effort. It counts holders
// per chunk, not per goroutine, so it panics when no goroutine holds the
// required lock but cannot tell a caller without the lock from one with it
// while some other goroutine is a holder.
type Chunk struct {
	minP    geom.Vec3i
	folder  string
	gen     gen.Generator
	log     *log.Logger
	onReady func(*Chunk, error)

	state   atomic.Int32
	source  atomic.Int32
	readers atomic.Int32
	editing atomic.Bool
	dirty   atomic.Bool

	readyMu sync.Mutex
	ready   *sync.Cond

	// mu guards the voxels slot. The buffer itself is immutable.
	mu     sync.RWMutex
	voxels *buffer.Buffer
}

func New(cfg Config) *Chunk {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	c := &Chunk{
		minP:    cfg.MinP,
		folder:  cfg.Folder,
		gen:     cfg.Generator,
		log:     logger,
		onReady: cfg.OnReady,
	}
	c.ready = sync.NewCond(&c.readyMu)
	return c
}

// Open creates a chunk and initializes it synchronously: from its file when
// present and valid, otherwise from a flat surface at terrainHeight.
func Open(seed int64, minP geom.Vec3i, terrainHeight int, folder string) *Chunk {
	c := New(Config{MinP: minP, Folder: folder, Generator: gen.NewHeightmap(seed, terrainHeight, 0)})
	c.Init()
	return c
}

func (c *Chunk) MinP() geom.Vec3i { return c.minP }
func (c *Chunk) State() State      { return State(c.state.Load()) }
func (c *Chunk) Source() Source    { return Source(c.source.Load()) }
func (c *Chunk) Dirty() bool       { return c.dirty.Load() }
func (c *Chunk) Path() string      { return filepath.Join(c.folder, FileName(c.minP)) }

// Init loads or generates the voxels on the calling goroutine. It is a
// no-op unless the chunk is Unloaded.
func (c *Chunk) Init() {
	if !c.state.CAS(int32(Unloaded), int32(Loading)) {
		return
	}
	b, err := buffer.ReadFile(c.Path(), geom.ChunkSize())
	c.finishLoad(b, err)
}

// InitAsync reads the chunk file on q and returns immediately. The chunk
// becomes Ready from whichever goroutine finishes the work.
func (c *Chunk) InitAsync(q dispatch.Queue) {
	if !c.state.CAS(int32(Unloaded), int32(Loading)) {
		return
	}
	buffer.Load(c.Path(), geom.ChunkSize(), q, dispatch.Inline{}, c.finishLoad)
}

func (c *Chunk) finishLoad(b *buffer.Buffer, err error) {
	src := SourceFile
	var loadErr error
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		src = SourceGenerated
		b = Generate(c.gen, c.minP)
	default:
		src = SourceFallback
		loadErr = err
		c.log.Printf("chunk %v: load failed, regenerating: %v", c.minP, err)
		b = Generate(c.gen, c.minP)
	}
	c.mu.Lock()
	c.voxels = b
	c.mu.Unlock()
	c.source.Store(int32(src))
	if c.onReady != nil {
		c.onReady(c, loadErr)
	}
	c.setReady()
}

func (c *Chunk) setReady() {
	c.readyMu.Lock()
	c.state.Store(int32(Ready))
	c.readyMu.Unlock()
	c.ready.Broadcast()
}

// WaitReady blocks until the chunk is Ready.
func (c *Chunk) WaitReady() {
	if c.State() == Ready {
		return
	}
	c.readyMu.Lock()
	for c.State() != Ready {
		c.ready.Wait()
	}
	c.readyMu.Unlock()
}

func (c *Chunk) RLock() {
	c.WaitReady()
	c.mu.RLock()
	c.readers.Inc()
}

func (c *Chunk) RUnlock() {
	c.readers.Dec()
	c.mu.RUnlock()
}

func (c *Chunk) Lock() {
	c.WaitReady()
	c.mu.Lock()
	c.editing.Store(true)
}

func (c *Chunk) Unlock() {
	c.editing.Store(false)
	c.mu.Unlock()
}

// GetVoxel reads a chunk-local voxel. The caller must hold RLock or Lock;
// see Chunk for the limits of the check.
func (c *Chunk) GetVoxel(p geom.Vec3i) Voxel {
	if c.readers.Load() == 0 && !c.editing.Load() {
		panic("voxel: GetVoxel called without holding the chunk lock")
	}
	return Decode(c.voxels.ValueAt(p))
}

// SetVoxel writes a chunk-local voxel. The caller must hold Lock; the check
// only sees whether some goroutine holds it. Each call replaces the voxel
// buffer, so earlier snapshots stay unchanged.
func (c *Chunk) SetVoxel(p geom.Vec3i, v Voxel) {
	if !c.editing.Load() {
		panic("voxel: SetVoxel called without holding the chunk write lock")
	}
	c.voxels = c.voxels.WithEdit(p, Encode(v))
	c.dirty.Store(true)
}

// EditVoxel acquires the write lock for a single edit.
func (c *Chunk) EditVoxel(p geom.Vec3i, v Voxel) {
	c.Lock()
	defer c.Unlock()
	c.SetVoxel(p, v)
}

// Voxels returns the current voxel buffer, or nil before the chunk is Ready.
func (c *Chunk) Voxels() *buffer.Buffer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voxels
}

// Save writes the current voxels to folder on q as a member of g. Edits that
// completed before Save are included. Save on a chunk that is not Ready
// does nothing.
func (c *Chunk) Save(folder string, q dispatch.Queue, g *dispatch.Group) {
	if c.State() != Ready {
		return
	}
	c.mu.RLock()
	b := c.voxels
	c.dirty.Store(false)
	c.mu.RUnlock()

	path := filepath.Join(folder, FileName(c.minP))
	g.Submit(q, func() error {
		if err := b.WriteFile(path); err != nil {
			c.dirty.Store(true)
			return err
		}
		return nil
	})
}

// Load replaces the voxels from path. On failure the chunk is unchanged.
func (c *Chunk) Load(path string) error {
	b, err := buffer.ReadFile(path, geom.ChunkSize())
	if err != nil {
		return err
	}
	c.Lock()
	c.voxels = b
	c.dirty.Store(false)
	c.Unlock()
	c.source.Store(int32(SourceFile))
	return nil
}

// RayIntersection tests the ray against the chunk's bounding box.
func (c *Chunk) RayIntersection(r geom.Ray) (bool, float32) {
	return geom.ChunkBounds(c.minP).IntersectRay(r)
}
