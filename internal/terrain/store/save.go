package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.dev/internal/dispatch"
	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/light"
	"voxelstream.dev/internal/terrain/region"
	"voxelstream.dev/internal/terrain/voxel"
)

// Digest is the hex sha256 of a buffer's stored bytes.
func Digest(b *buffer.Buffer) string {
	h := sha256.New()
	var tmp [2]byte
	for _, v := range b.Data() {
		binary.LittleEndian.PutUint16(tmp[:], v)
		h.Write(tmp[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SaveAll writes every dirty chunk and any recomputed lighting as one batch
// and waits until the batch is durable.
func (s *Store) SaveAll() error {
	return s.save(s.entries())
}

func (s *Store) save(es []*entry) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	var (
		g     dispatch.Group
		saved []*entry
	)
	for _, e := range es {
		if e.chunk.State() != voxel.Ready {
			continue
		}
		if e.chunk.Dirty() {
			e.chunk.Save(s.folder, s.io, &g)
			saved = append(saved, e)
		}
		s.saveLight(e, &g)
	}
	err := g.Wait()

	for _, e := range saved {
		// Still dirty means the write failed or a newer edit landed.
		if e.chunk.Dirty() {
			continue
		}
		minP := e.chunk.MinP()
		b := e.chunk.Voxels()
		n := len(b.Data()) * buffer.CellSize
		digest := Digest(b)
		s.record(Event{Kind: EventSave, MinP: minP, Bytes: n, Digest: digest})
		if s.index != nil {
			s.index.RecordSave(minP, digest, n)
		}
	}
	if err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

func (s *Store) saveLight(e *entry, g *dispatch.Group) {
	path := filepath.Join(s.folder, light.FileName(e.chunk.MinP()))

	e.lightMu.Lock()
	defer e.lightMu.Unlock()
	switch {
	case e.light != nil && e.lightDirty:
		b := e.light
		e.lightDirty = false
		e.lightStale = false
		g.Submit(s.io, func() error {
			if err := b.WriteFile(path); err != nil {
				_ = os.Remove(path)
				return err
			}
			return nil
		})
	case e.light == nil && e.lightStale:
		e.lightStale = false
		g.Submit(s.io, func() error {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return nil
		})
	}
}

// Purge saves and then drops resident chunks that are outside the active
// region and whose centers lie farther than the purge distance from
// observer on the horizontal plane. Chunks edited during the save stay
// resident. It returns the number of chunks dropped.
func (s *Store) Purge(observer mgl32.Vec3) (int, error) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	active := map[geom.Vec3i]struct{}{}
	s.region.EnumerateActiveChunks(func(c region.Chunk) {
		active[c.MinP()] = struct{}{}
	})

	limit := s.purge * s.purge
	var victims []*entry
	for _, e := range s.entries() {
		minP := e.chunk.MinP()
		if _, ok := active[minP]; ok {
			continue
		}
		if e.chunk.State() != voxel.Ready {
			continue
		}
		center := geom.ChunkCenter(minP)
		dx, dz := center.X()-observer.X(), center.Z()-observer.Z()
		if dx*dx+dz*dz <= limit {
			continue
		}
		victims = append(victims, e)
	}
	if len(victims) == 0 {
		return 0, nil
	}
	if err := s.save(victims); err != nil {
		return 0, err
	}

	var dropped []geom.Vec3i
	s.mu.Lock()
	for _, e := range victims {
		minP := e.chunk.MinP()
		if e.chunk.Dirty() || s.chunks[minP] != e {
			continue
		}
		e.lightMu.Lock()
		pending := e.lightDirty || e.lightStale
		e.lightMu.Unlock()
		if pending {
			continue
		}
		delete(s.chunks, minP)
		dropped = append(dropped, minP)
	}
	s.mu.Unlock()

	for _, minP := range dropped {
		s.record(Event{Kind: EventEvict, MinP: minP})
	}
	return len(dropped), nil
}

// Close stops the store from producing chunks, waits for in-flight loads
// and saves everything that changed.
func (s *Store) Close() error {
	if !s.closed.CAS(false, true) {
		return nil
	}
	for _, e := range s.entries() {
		e.chunk.WaitReady()
	}
	return s.SaveAll()
}
