package region

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.dev/internal/terrain/geom"
)

type fakeChunk struct{ minP geom.Vec3i }

func (c *fakeChunk) MinP() geom.Vec3i { return c.minP }

type producer struct {
	calls int
}

func (p *producer) produce(point mgl32.Vec3) Chunk {
	p.calls++
	return &fakeChunk{minP: geom.MinCornerForPoint(point)}
}

func activeSet(r *Region) map[geom.Vec3i]Chunk {
	out := map[geom.Vec3i]Chunk{}
	r.EnumerateActiveChunks(func(c Chunk) { out[c.MinP()] = c })
	return out
}

func threeByThree() *Region {
	return New(mgl32.Vec3{geom.ChunkSizeX, geom.ChunkSizeY, geom.ChunkSizeZ})
}

func TestUpdateFillsThreeByThree(t *testing.T) {
	r := threeByThree()
	if r.MaxActiveChunks() != 9 {
		t.Fatalf("max: got %d want 9", r.MaxActiveChunks())
	}
	var p producer
	diff := r.Update(true, mgl32.Vec3{1, 10, 1}, p.produce)
	if len(diff.Added) != 9 || len(diff.Removed) != 0 {
		t.Fatalf("diff: added %d removed %d", len(diff.Added), len(diff.Removed))
	}
	set := activeSet(r)
	if len(set) != 9 {
		t.Fatalf("active: got %d want 9", len(set))
	}
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			key := geom.V(dx*geom.ChunkSizeX, 0, dz*geom.ChunkSizeZ)
			if _, ok := set[key]; !ok {
				t.Fatalf("missing chunk %v", key)
			}
		}
	}
}

func TestMoveOneCellKeepsInterior(t *testing.T) {
	r := threeByThree()
	var p producer
	r.Update(false, mgl32.Vec3{1, 10, 1}, p.produce)
	before := activeSet(r)

	diff := r.Update(false, mgl32.Vec3{1 + geom.ChunkSizeX, 10, 1}, p.produce)
	if len(diff.Added) != 3 || len(diff.Removed) != 3 {
		t.Fatalf("diff: added %d removed %d want 3/3", len(diff.Added), len(diff.Removed))
	}
	if p.calls != 12 {
		t.Fatalf("producer calls: got %d want 12", p.calls)
	}
	for _, c := range diff.Added {
		if c.MinP().X != 2*geom.ChunkSizeX {
			t.Fatalf("added chunk %v not on leading edge", c.MinP())
		}
	}
	for _, c := range diff.Removed {
		if c.MinP().X != -geom.ChunkSizeX {
			t.Fatalf("removed chunk %v not on trailing edge", c.MinP())
		}
	}
	after := activeSet(r)
	same := 0
	for key, c := range after {
		if old, ok := before[key]; ok {
			if old != c {
				t.Fatalf("chunk %v was replaced", key)
			}
			same++
		}
	}
	if same != 6 {
		t.Fatalf("kept instances: got %d want 6", same)
	}
}

func TestUpdateNeverExceedsBound(t *testing.T) {
	r := New(mgl32.Vec3{40, 100, 20})
	var p producer
	rng := rand.New(rand.NewSource(3))
	pos := mgl32.Vec3{}
	for i := 0; i < 200; i++ {
		pos = pos.Add(mgl32.Vec3{rng.Float32()*40 - 20, rng.Float32()*10 - 5, rng.Float32()*40 - 20})
		r.Update(i%2 == 0, pos, p.produce)
		if n := r.Len(); n > r.MaxActiveChunks() {
			t.Fatalf("step %d: %d active, max %d", i, n, r.MaxActiveChunks())
		}
	}
	if r.MaxActiveChunks() != 5*3 {
		t.Fatalf("max: got %d want 15", r.MaxActiveChunks())
	}
}

func TestTallExtentStaysOneLayer(t *testing.T) {
	r := New(mgl32.Vec3{geom.ChunkSizeX, 100, geom.ChunkSizeZ})
	if r.MaxActiveChunks() != 9 {
		t.Fatalf("max: got %d want 9", r.MaxActiveChunks())
	}
	var p producer
	r.Update(true, mgl32.Vec3{8, 5, 8}, p.produce)
	for key := range activeSet(r) {
		if key.Y != 0 {
			t.Fatalf("chunk %v outside the world column", key)
		}
	}
	if p.calls != 9 {
		t.Fatalf("producer calls: got %d want 9", p.calls)
	}
}

func TestNilProducerLeavesCellEmpty(t *testing.T) {
	r := threeByThree()
	diff := r.Update(true, mgl32.Vec3{}, func(mgl32.Vec3) Chunk { return nil })
	if !diff.Empty() || r.Len() != 0 {
		t.Fatalf("expected empty region, got %d", r.Len())
	}
}

func TestPointsSortedByDistance(t *testing.T) {
	obs := mgl32.Vec3{0, 0, 0}
	pts := []mgl32.Vec3{
		{5, 0, 0}, {1, 0, 0}, {0, 0, -1}, {-3, 4, 0}, {0, 1, 0}, {2, 0, 0},
	}
	got := PointsSortedByDistance(obs, pts)
	for i := 1; i < len(got); i++ {
		if got[i].Sub(obs).Len() < got[i-1].Sub(obs).Len() {
			t.Fatalf("not sorted at %d: %v", i, got)
		}
	}
	// Stable for ties: three points at distance 1 keep input order.
	want := []mgl32.Vec3{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("tie order at %d: got %v want %v", i, got[i], w)
		}
	}
	// {5,0,0} and {-3,4,0} are both at distance 5.
	if got[4] != (mgl32.Vec3{5, 0, 0}) || got[5] != (mgl32.Vec3{-3, 4, 0}) {
		t.Fatalf("tail order: %v", got[4:])
	}
}

func TestChunksSortedByDistance(t *testing.T) {
	chunks := []*fakeChunk{
		{minP: geom.V(32, 0, 0)},
		{minP: geom.V(0, 0, 0)},
		{minP: geom.V(-16, 0, 0)},
	}
	got := ChunksSortedByDistance(geom.ChunkCenter(geom.ZeroVec3i), chunks)
	if got[0].minP != geom.ZeroVec3i || got[1].minP != geom.V(-16, 0, 0) || got[2].minP != geom.V(32, 0, 0) {
		t.Fatalf("order: %v %v %v", got[0].minP, got[1].minP, got[2].minP)
	}
}

func TestSortedEnumerationStartsAtObserver(t *testing.T) {
	r := New(mgl32.Vec3{48, 64, 48})
	obs := mgl32.Vec3{20, 3, 40}
	var first mgl32.Vec3
	n := 0
	r.EnumeratePointsNearObserver(obs, true, func(p mgl32.Vec3) {
		if n == 0 {
			first = p
		}
		n++
	})
	if n != r.MaxActiveChunks() {
		t.Fatalf("points: got %d want %d", n, r.MaxActiveChunks())
	}
	if geom.MinCornerForPoint(first) != geom.MinCornerForPoint(mgl32.Vec3{20, 0, 40}) {
		t.Fatalf("first point %v is not the observer's chunk", first)
	}
}
