// Package region tracks the bounded set of chunks around an observer.
package region

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.dev/internal/terrain/geom"
)

// Chunk is the region's view of a chunk. The region only borrows chunks;
// their lifetime belongs to whoever produced them.
type Chunk interface {
	MinP() geom.Vec3i
}

// Producer returns the chunk covering point. It runs on the goroutine
// calling Update and must not call Update itself. A nil result leaves the
// cell empty for this update.
type Producer func(point mgl32.Vec3) Chunk

// Diff is what one Update changed.
type Diff struct {
	Added   []Chunk
	Removed []Chunk
}

func (d Diff) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

type Region struct {
	extent  mgl32.Vec3
	halfX   int
	halfZ int
	max   int

	updateMu sync.Mutex

	mu     sync.RWMutex
	active []Chunk
}

// New sizes a region from its extent: floor(extent/chunk size) chunks on
// each horizontal side of the observer's column. Chunks span the whole world
// height, so there is one layer at y=0 whatever extent.Y says.
func New(extent mgl32.Vec3) *Region {
	r := &Region{extent: extent}
	r.halfX = int(math.Floor(float64(extent.X()) / geom.ChunkSizeX))
	r.halfZ = int(math.Floor(float64(extent.Z()) / geom.ChunkSizeZ))
	if r.halfX < 0 {
		r.halfX = 0
	}
	if r.halfZ < 0 {
		r.halfZ = 0
	}
	r.max = (2*r.halfX + 1) * (2*r.halfZ + 1)
	r.active = make([]Chunk, 0, r.max)
	return r
}

func (r *Region) Extent() mgl32.Vec3 { return r.extent }

// MaxActiveChunks is the hard bound on the active set.
func (r *Region) MaxActiveChunks() int { return r.max }

func (r *Region) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// EnumerateActiveChunks calls visit for every active chunk. The set does not
// change during the call.
func (r *Region) EnumerateActiveChunks(visit func(Chunk)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.active {
		visit(c)
	}
}

// EnumeratePointsNearObserver visits the center of every chunk cell inside
// the extent around observer, nearest first when sorted is set.
func (r *Region) EnumeratePointsNearObserver(observer mgl32.Vec3, sorted bool, visit func(mgl32.Vec3)) {
	pts := r.candidates(observer)
	if sorted {
		pts = PointsSortedByDistance(observer, pts)
	}
	for _, p := range pts {
		visit(p)
	}
}

func (r *Region) candidates(observer mgl32.Vec3) []mgl32.Vec3 {
	base := geom.MinCornerForPoint(observer)
	pts := make([]mgl32.Vec3, 0, r.max)
	for dx := -r.halfX; dx <= r.halfX; dx++ {
		for dz := -r.halfZ; dz <= r.halfZ; dz++ {
			minP := geom.V(base.X+dx*geom.ChunkSizeX, 0, base.Z+dz*geom.ChunkSizeZ)
			pts = append(pts, geom.ChunkCenter(minP))
		}
	}
	return pts
}

// Update recomputes the active set for observer. Cells already active keep
// their chunk; missing cells are filled by produce; chunks outside the
// extent are dropped from the table. Updates are serialized.
func (r *Region) Update(sorting bool, observer mgl32.Vec3, produce Producer) Diff {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	r.mu.RLock()
	prev := make([]Chunk, len(r.active))
	copy(prev, r.active)
	r.mu.RUnlock()

	existing := make(map[geom.Vec3i]Chunk, len(prev))
	for _, c := range prev {
		existing[c.MinP()] = c
	}

	var diff Diff
	next := make([]Chunk, 0, r.max)
	kept := make(map[geom.Vec3i]struct{}, r.max)
	r.EnumeratePointsNearObserver(observer, sorting, func(p mgl32.Vec3) {
		key := geom.MinCornerForPoint(p)
		c, ok := existing[key]
		if !ok {
			c = produce(p)
			if c == nil {
				return
			}
			diff.Added = append(diff.Added, c)
		}
		if len(next) >= r.max {
			panic(fmt.Sprintf("region: active set would exceed %d chunks", r.max))
		}
		next = append(next, c)
		kept[key] = struct{}{}
	})

	for _, c := range prev {
		if _, ok := kept[c.MinP()]; !ok {
			diff.Removed = append(diff.Removed, c)
		}
	}

	r.mu.Lock()
	r.active = next
	r.mu.Unlock()
	return diff
}

// PointsSortedByDistance returns pts ordered by Euclidean distance from
// observer. Equal distances keep their input order.
func PointsSortedByDistance(observer mgl32.Vec3, pts []mgl32.Vec3) []mgl32.Vec3 {
	type keyed struct {
		p mgl32.Vec3
		d float32
	}
	ks := make([]keyed, len(pts))
	for i, p := range pts {
		ks[i] = keyed{p: p, d: p.Sub(observer).LenSqr()}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].d < ks[j].d })
	out := make([]mgl32.Vec3, len(ks))
	for i, k := range ks {
		out[i] = k.p
	}
	return out
}

// ChunksSortedByDistance orders chunks by the distance of their centers from
// observer. Equal distances keep their input order.
func ChunksSortedByDistance[C Chunk](observer mgl32.Vec3, chunks []C) []C {
	type keyed struct {
		c C
		d float32
	}
	ks := make([]keyed, len(chunks))
	for i, c := range chunks {
		ks[i] = keyed{c: c, d: geom.ChunkCenter(c.MinP()).Sub(observer).LenSqr()}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].d < ks[j].d })
	out := make([]C, len(ks))
	for i, k := range ks {
		out[i] = k.c
	}
	return out
}
