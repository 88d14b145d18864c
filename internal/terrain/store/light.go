package store

import (
	"errors"
	"os"
	"path/filepath"

	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/light"
	"voxelstream.dev/internal/terrain/voxel"
)

// Sunlight returns the padded lighting buffer of the chunk at minP. A cached
// copy is returned when valid. The stored file is used only when the voxels
// themselves came from disk and no edit has touched the neighborhood since.
// Otherwise lighting is computed from the chunk and its eight horizontal
// neighbors, producing any that are not resident.
func (s *Store) Sunlight(minP geom.Vec3i) (*buffer.Buffer, error) {
	e, err := s.entryAt(minP)
	if err != nil {
		return nil, err
	}
	e.chunk.WaitReady()

	e.lightMu.Lock()
	if e.light != nil {
		lit := e.light
		e.lightMu.Unlock()
		return lit, nil
	}
	if e.chunk.Source() == voxel.SourceFile && !e.lightStale {
		path := filepath.Join(s.folder, light.FileName(minP))
		b, err := buffer.ReadFile(path, geom.LightingDimensions())
		if err == nil {
			e.light = b.WithOffset(geom.LightingOffset())
			e.lightMu.Unlock()
			return e.light, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Printf("lighting %v: %v, recomputing", minP, err)
			s.record(Event{Kind: EventFallback, MinP: minP, Detail: "sunlight: " + err.Error()})
		}
	}
	seq := e.lightGen
	e.lightMu.Unlock()

	// lightMu is not held here: producing neighbors takes the table lock,
	// which invalidateLight holds while it takes lightMu.
	var vox [geom.NumNeighbors]*buffer.Buffer
	for n := geom.Neighbor(0); n < geom.NumNeighbors; n++ {
		ne := e
		if n != geom.NeighborCenter {
			if ne, err = s.entryAt(minP.Add(n.Offset())); err != nil {
				return nil, err
			}
		}
		ne.chunk.WaitReady()
		vox[n] = ne.chunk.Voxels()
	}
	lit, err := light.ChunkSunlight(vox)
	if err != nil {
		return nil, err
	}

	e.lightMu.Lock()
	defer e.lightMu.Unlock()
	if e.lightGen != seq {
		// An edit landed while computing; the result may predate it.
		return lit, nil
	}
	if e.light != nil {
		return e.light, nil
	}
	e.light = lit
	e.lightDirty = true
	s.record(Event{Kind: EventLight, MinP: minP})
	return lit, nil
}

// invalidateLight drops cached lighting for the chunk at minP and its eight
// horizontal neighbors. Resident entries are marked stale so the next save
// rewrites or removes their file. Lighting files of neighbors that are not
// resident are removed now, so a later load of such a neighbor recomputes
// instead of trusting a file lit against the old voxels. Everything happens
// under the table lock so Purge cannot drop an entry in between.
func (s *Store) invalidateLight(minP geom.Vec3i) {
	s.mu.Lock()
	defer s.mu.Unlock()
	geom.ForEachNeighbor(func(n geom.Neighbor) {
		p := minP.Add(n.Offset())
		if e, ok := s.chunks[p]; ok {
			e.lightMu.Lock()
			e.light = nil
			e.lightDirty = false
			e.lightStale = true
			e.lightGen++
			e.lightMu.Unlock()
			return
		}
		path := filepath.Join(s.folder, light.FileName(p))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Printf("lighting %v: remove stale file: %v", p, err)
		}
	})
}
