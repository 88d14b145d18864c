package store

import (
	"fmt"
	"math"
	"sort"

	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/voxel"
)

// VoxelAt reads one world cell, waiting for its chunk to load.
func (s *Store) VoxelAt(cell geom.Vec3i) (voxel.Voxel, error) {
	if cell.Y < 0 || cell.Y >= geom.ChunkSizeY {
		return voxel.Voxel{Empty: true}, nil
	}
	minP := geom.MinCornerForCell(cell)
	c, err := s.chunkAt(minP)
	if err != nil {
		return voxel.Voxel{}, err
	}
	c.RLock()
	defer c.RUnlock()
	return c.GetVoxel(cell.Sub(minP)), nil
}

// EditVoxel sets one world cell and invalidates lighting around it.
func (s *Store) EditVoxel(cell geom.Vec3i, v voxel.Voxel) error {
	if cell.Y < 0 || cell.Y >= geom.ChunkSizeY {
		return fmt.Errorf("%w: %v", ErrOutOfWorld, cell)
	}
	minP := geom.MinCornerForCell(cell)
	for {
		e, err := s.entryAt(minP)
		if err != nil {
			return err
		}
		e.chunk.WaitReady()

		// Holding the table read lock keeps Purge from dropping the chunk
		// between the edit and its dirty flag becoming visible.
		s.mu.RLock()
		if s.chunks[minP] != e {
			s.mu.RUnlock()
			continue
		}
		e.chunk.EditVoxel(cell.Sub(minP), v)
		s.mu.RUnlock()
		break
	}

	s.invalidateLight(minP)
	s.record(Event{Kind: EventEdit, MinP: minP, Cell: &cell, Detail: fmt.Sprintf("empty=%t", v.Empty)})
	if s.index != nil {
		s.index.RecordEdit(cell, v.Empty)
	}
	return nil
}

type Hit struct {
	// Cell is the first solid voxel along the ray.
	Cell geom.Vec3i `json:"cell"`
	// Prev is the cell the ray crossed just before Cell.
	Prev     geom.Vec3i `json:"prev"`
	Distance float32    `json:"distance"`
}

// Raycast finds the first solid voxel along r within maxDist among the
// active chunks. Chunks are pruned by their bounding boxes and walked in
// order of entry distance, so the first hit found is the nearest.
func (s *Store) Raycast(r geom.Ray, maxDist float32) (Hit, bool) {
	type candidate struct {
		c *voxel.Chunk
		d float32
	}
	var cands []candidate
	s.EnumerateActiveChunks(func(c *voxel.Chunk) {
		if hit, d := c.RayIntersection(r); hit && d <= maxDist {
			cands = append(cands, candidate{c: c, d: d})
		}
	})
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].d < cands[j].d })

	for _, cand := range cands {
		if h, ok := walkChunk(cand.c, r, cand.d, maxDist); ok {
			return h, true
		}
	}
	return Hit{}, false
}

func walkChunk(c *voxel.Chunk, r geom.Ray, entry, maxDist float32) (Hit, bool) {
	c.RLock()
	defer c.RUnlock()

	minP := c.MinP()
	var (
		hit   Hit
		found bool
	)
	walk(r, entry, maxDist, func(cell, prev geom.Vec3i, t float32) bool {
		local := cell.Sub(minP)
		if !local.Within(geom.ChunkSize()) {
			return false
		}
		if !c.GetVoxel(local).Empty {
			hit = Hit{Cell: cell, Prev: prev, Distance: t}
			found = true
			return false
		}
		return true
	})
	return hit, found
}

const nudge = 1e-4

// walk steps through the unit cells pierced by r from t0 up to tEnd,
// calling visit until it returns false.
func walk(r geom.Ray, t0, tEnd float32, visit func(cell, prev geom.Vec3i, t float32) bool) {
	start := r.At(t0 + nudge)
	first := geom.Floor(start)
	c := [3]int{first.X, first.Y, first.Z}
	prev := first
	if t0 > 0 {
		prev = geom.Floor(r.At(t0 - nudge))
	}

	var (
		step  [3]int
		next  [3]float32
		delta [3]float32
	)
	inf := float32(math.Inf(1))
	for i := 0; i < 3; i++ {
		switch {
		case r.Dir[i] > 0:
			step[i] = 1
			next[i] = t0 + nudge + (float32(c[i]+1)-start[i])/r.Dir[i]
			delta[i] = 1 / r.Dir[i]
		case r.Dir[i] < 0:
			step[i] = -1
			next[i] = t0 + nudge + (float32(c[i])-start[i])/r.Dir[i]
			delta[i] = -1 / r.Dir[i]
		default:
			next[i] = inf
			delta[i] = inf
		}
	}

	t := t0
	for t <= tEnd {
		cell := geom.V(c[0], c[1], c[2])
		if !visit(cell, prev, t) {
			return
		}
		prev = cell
		axis := 0
		if next[1] < next[axis] {
			axis = 1
		}
		if next[2] < next[axis] {
			axis = 2
		}
		if next[axis] == inf {
			return
		}
		t = next[axis]
		c[axis] += step[axis]
		next[axis] += delta[axis]
	}
}

// RemoveBlock empties the first solid voxel along r.
func (s *Store) RemoveBlock(r geom.Ray, maxDist float32) (Hit, bool, error) {
	h, ok := s.Raycast(r, maxDist)
	if !ok {
		return Hit{}, false, nil
	}
	if err := s.EditVoxel(h.Cell, voxel.Voxel{Empty: true}); err != nil {
		return h, false, err
	}
	return h, true, nil
}

// PlaceBlock fills the empty cell in front of the first solid voxel along r.
func (s *Store) PlaceBlock(r geom.Ray, maxDist float32) (Hit, bool, error) {
	h, ok := s.Raycast(r, maxDist)
	if !ok || h.Prev == h.Cell {
		return Hit{}, false, nil
	}
	if h.Prev.Y < 0 || h.Prev.Y >= geom.ChunkSizeY {
		return h, false, nil
	}
	if err := s.EditVoxel(h.Prev, voxel.Voxel{Empty: false}); err != nil {
		return h, false, err
	}
	return h, true, nil
}
