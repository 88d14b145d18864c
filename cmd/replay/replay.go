package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	persistlog "voxelstream.dev/internal/persistence/log"
	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/store"
	"voxelstream.dev/internal/terrain/voxel"
)

type chunkHistory struct {
	Loads  int
	Edits  int
	Saves  int
	Evicts int
	// Digest is the digest of the last save, if any.
	Digest string
}

type summary struct {
	Events      int
	First, Last time.Time
	Kinds       map[string]int
	Chunks      map[geom.Vec3i]*chunkHistory
}

func (s summary) saved() int {
	n := 0
	for _, h := range s.Chunks {
		if h.Digest != "" {
			n++
		}
	}
	return n
}

func summarize(dir string, from time.Time) (summary, error) {
	s := summary{Kinds: map[string]int{}, Chunks: map[geom.Vec3i]*chunkHistory{}}
	err := persistlog.ReadJournal(dir, func(e store.Event) error {
		if !from.IsZero() && e.Time.Before(from) {
			return nil
		}
		if s.Events == 0 || e.Time.Before(s.First) {
			s.First = e.Time
		}
		if e.Time.After(s.Last) {
			s.Last = e.Time
		}
		s.Events++
		s.Kinds[e.Kind]++

		h := s.Chunks[e.MinP]
		if h == nil {
			h = &chunkHistory{}
			s.Chunks[e.MinP] = h
		}
		switch e.Kind {
		case store.EventLoad, store.EventGenerate, store.EventFallback:
			h.Loads++
		case store.EventEdit:
			h.Edits++
		case store.EventSave:
			h.Saves++
			h.Digest = e.Digest
		case store.EventEvict:
			h.Evicts++
		}
		return nil
	})
	return s, err
}

type mismatch struct {
	MinP   geom.Vec3i
	Reason string
}

// verifyDigests compares each chunk's last journaled save against the file
// on disk. Results are ordered by position.
func verifyDigests(folder string, s summary) []mismatch {
	var out []mismatch
	for minP, h := range s.Chunks {
		if h.Digest == "" {
			continue
		}
		b, err := buffer.ReadFile(filepath.Join(folder, voxel.FileName(minP)), geom.ChunkSize())
		switch {
		case errors.Is(err, os.ErrNotExist):
			out = append(out, mismatch{MinP: minP, Reason: "file missing"})
		case err != nil:
			out = append(out, mismatch{MinP: minP, Reason: err.Error()})
		default:
			if got := store.Digest(b); got != h.Digest {
				out = append(out, mismatch{MinP: minP, Reason: fmt.Sprintf("digest %.12s, journal %.12s", got, h.Digest)})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].MinP, out[j].MinP
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return out
}
