// Package store owns every chunk the process has touched. It produces chunks
// for the active region, derives their lighting, applies edits and writes
// everything back to disk.
package store

import (
	"errors"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/atomic"

	"voxelstream.dev/internal/dispatch"
	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/gen"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/region"
	"voxelstream.dev/internal/terrain/voxel"
)

var (
	ErrClosed     = errors.New("store: closed")
	ErrOutOfWorld = errors.New("store: position outside the world column")
)

// Event kinds written to the journal.
const (
	EventLoad     = "load"
	EventGenerate = "generate"
	EventFallback = "fallback"
	EventEdit     = "edit"
	EventLight    = "light"
	EventSave     = "save"
	EventEvict    = "evict"
)

type Event struct {
	Time   time.Time   `json:"time"`
	Kind   string      `json:"kind"`
	MinP   geom.Vec3i  `json:"min_p"`
	Cell   *geom.Vec3i `json:"cell,omitempty"`
	Detail string      `json:"detail,omitempty"`
	Bytes  int         `json:"bytes,omitempty"`
	Digest string      `json:"digest,omitempty"`
}

// Journal receives chunk lifecycle events.
type Journal interface {
	Record(e Event) error
}

// Index keeps a durable record of chunks the store has loaded and saved.
type Index interface {
	RecordLoad(minP geom.Vec3i, source string)
	RecordSave(minP geom.Vec3i, digest string, bytes int)
	RecordEdit(cell geom.Vec3i, empty bool)
}

type Config struct {
	Folder        string
	Seed          int64
	TerrainHeight int
	Amplitude     int
	// Generator overrides the heightmap built from Seed/TerrainHeight/Amplitude.
	Generator gen.Generator

	Extent  mgl32.Vec3
	Sorting bool
	// PurgeDistance is how far (horizontally, in world units) an inactive
	// chunk's center must be from the observer before Purge drops it.
	PurgeDistance float32

	IO      dispatch.Queue
	Logger  *log.Logger
	Journal Journal
	Index   Index
}

type entry struct {
	chunk *voxel.Chunk

	lightMu    sync.Mutex
	light      *buffer.Buffer
	lightDirty bool
	// lightStale means the lighting file on disk no longer matches the voxels.
	lightStale bool
	// lightGen counts invalidations.
	lightGen uint64
}

type Store struct {
	folder  string
	gen     gen.Generator
	io      dispatch.Queue
	log     *log.Logger
	journal Journal
	index   Index
	sorting bool
	purge   float32

	region *region.Region

	// frameMu serializes Update and Purge.
	frameMu  sync.Mutex
	observer mgl32.Vec3

	mu     sync.RWMutex
	chunks map[geom.Vec3i]*entry

	// saveMu keeps batches from overlapping, so an older snapshot can never
	// land on disk after a newer one.
	saveMu sync.Mutex

	closed atomic.Bool
}

func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	g := cfg.Generator
	if g == nil {
		g = gen.NewHeightmap(cfg.Seed, cfg.TerrainHeight, cfg.Amplitude)
	}
	q := cfg.IO
	if q == nil {
		q = dispatch.Inline{}
	}
	return &Store{
		folder:  cfg.Folder,
		gen:     g,
		io:      q,
		log:     logger,
		journal: cfg.Journal,
		index:   cfg.Index,
		sorting: cfg.Sorting,
		purge:   cfg.PurgeDistance,
		region:  region.New(cfg.Extent),
		chunks:  map[geom.Vec3i]*entry{},
	}
}

func (s *Store) Folder() string         { return s.folder }
func (s *Store) Region() *region.Region { return s.region }

// Update recomputes the active region around observer, producing any
// missing chunks. Chunks start loading asynchronously.
func (s *Store) Update(observer mgl32.Vec3) region.Diff {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.observer = observer
	return s.region.Update(s.sorting, observer, s.Produce)
}

// Produce returns the chunk covering point, creating and starting its load
// if needed. It returns nil once the store is closed.
func (s *Store) Produce(point mgl32.Vec3) region.Chunk {
	c, err := s.chunkAt(geom.MinCornerForPoint(point))
	if err != nil {
		return nil
	}
	return c
}

// Chunk looks up a chunk without creating it.
func (s *Store) Chunk(minP geom.Vec3i) (*voxel.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.chunks[minP]
	if !ok {
		return nil, false
	}
	return e.chunk, true
}

func (s *Store) chunkAt(minP geom.Vec3i) (*voxel.Chunk, error) {
	e, err := s.entryAt(minP)
	if err != nil {
		return nil, err
	}
	return e.chunk, nil
}

func (s *Store) entryAt(minP geom.Vec3i) (*entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.mu.RLock()
	e, ok := s.chunks[minP]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}

	s.mu.Lock()
	if e, ok := s.chunks[minP]; ok {
		s.mu.Unlock()
		return e, nil
	}
	e = &entry{chunk: voxel.New(voxel.Config{
		MinP:      minP,
		Folder:    s.folder,
		Generator: s.gen,
		Logger:    s.log,
		OnReady:   s.chunkReady,
	})}
	s.chunks[minP] = e
	s.mu.Unlock()

	e.chunk.InitAsync(s.io)
	return e, nil
}

func (s *Store) chunkReady(c *voxel.Chunk, loadErr error) {
	kind := EventLoad
	detail := ""
	switch c.Source() {
	case voxel.SourceGenerated:
		kind = EventGenerate
	case voxel.SourceFallback:
		kind = EventFallback
		if loadErr != nil {
			detail = loadErr.Error()
		}
	}
	s.record(Event{Kind: kind, MinP: c.MinP(), Detail: detail})
	if s.index != nil {
		s.index.RecordLoad(c.MinP(), c.Source().String())
	}
}

func (s *Store) record(e Event) {
	if s.journal == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if err := s.journal.Record(e); err != nil {
		s.log.Printf("journal %s %v: %v", e.Kind, e.MinP, err)
	}
}

// EnumerateActiveChunks visits the active chunks.
func (s *Store) EnumerateActiveChunks(visit func(*voxel.Chunk)) {
	s.region.EnumerateActiveChunks(func(c region.Chunk) {
		visit(c.(*voxel.Chunk))
	})
}

// Keys returns the minimum corners of all resident chunks, sorted.
func (s *Store) Keys() []geom.Vec3i {
	s.mu.RLock()
	keys := make([]geom.Vec3i, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		if keys[i].Z != keys[j].Z {
			return keys[i].Z < keys[j].Z
		}
		return keys[i].Y < keys[j].Y
	})
	return keys
}

func (s *Store) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.chunks))
	for _, e := range s.chunks {
		out = append(out, e)
	}
	return out
}
