// Package snapshot packs the persisted chunk files of a world into a single
// compressed archive and unpacks them again.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/light"
	"voxelstream.dev/internal/terrain/store"
	"voxelstream.dev/internal/terrain/voxel"
)

const Version = 1

type Header struct {
	Version       int    `json:"version"`
	ArchiveID     string `json:"archive_id"`
	CreatedAt     string `json:"created_at"`
	Seed          int64  `json:"seed"`
	TerrainHeight int    `json:"terrain_height"`
	ChunkSize     [3]int `json:"chunk_size"`
	Chunks        int    `json:"chunks"`
}

type ArchiveV1 struct {
	Header Header    `json:"header"`
	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	MinP     geom.Vec3i `json:"min_p"`
	Digest   string     `json:"digest"`
	Voxels   []uint16   `json:"voxels"`
	Sunlight []uint16   `json:"sunlight,omitempty"`
}

// Export reads every chunk file under folder into an archive. Lighting is
// included when a valid lighting file sits next to the chunk.
func Export(folder string, seed int64, terrainHeight int) (ArchiveV1, error) {
	var a ArchiveV1
	ents, err := os.ReadDir(folder)
	if err != nil {
		return a, err
	}
	var keys []geom.Vec3i
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if minP, ok := voxel.ParseFileName(e.Name()); ok {
			keys = append(keys, minP)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		if keys[i].Z != keys[j].Z {
			return keys[i].Z < keys[j].Z
		}
		return keys[i].Y < keys[j].Y
	})

	for _, minP := range keys {
		vox, err := buffer.ReadFile(filepath.Join(folder, voxel.FileName(minP)), geom.ChunkSize())
		if err != nil {
			return a, fmt.Errorf("chunk %v: %w", minP, err)
		}
		c := ChunkV1{MinP: minP, Digest: store.Digest(vox), Voxels: vox.Data()}
		lit, err := buffer.ReadFile(filepath.Join(folder, light.FileName(minP)), geom.LightingDimensions())
		if err == nil {
			c.Sunlight = lit.Data()
		}
		a.Chunks = append(a.Chunks, c)
	}

	size := geom.ChunkSize()
	a.Header = Header{
		Version:       Version,
		ArchiveID:     uuid.NewString(),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Seed:          seed,
		TerrainHeight: terrainHeight,
		ChunkSize:     [3]int{size.X, size.Y, size.Z},
		Chunks:        len(a.Chunks),
	}
	return a, nil
}

// Import writes the archive's chunks into folder, replacing existing files.
// Every chunk is validated before anything is written.
func Import(folder string, a ArchiveV1) (int, error) {
	if a.Header.Version != Version {
		return 0, fmt.Errorf("unsupported archive version %d", a.Header.Version)
	}
	size := geom.ChunkSize()
	if a.Header.ChunkSize != [3]int{size.X, size.Y, size.Z} {
		return 0, fmt.Errorf("chunk size mismatch: archive %v, expected %v", a.Header.ChunkSize, size)
	}

	type pending struct {
		minP geom.Vec3i
		vox  *buffer.Buffer
		lit  *buffer.Buffer
	}
	out := make([]pending, 0, len(a.Chunks))
	seen := map[geom.Vec3i]bool{}
	for _, c := range a.Chunks {
		if seen[c.MinP] {
			return 0, fmt.Errorf("duplicate chunk %v", c.MinP)
		}
		seen[c.MinP] = true
		if geom.MinCornerForCell(c.MinP) != c.MinP {
			return 0, fmt.Errorf("chunk %v is not chunk-aligned", c.MinP)
		}
		vox, err := buffer.NewWithData(size, c.Voxels)
		if err != nil {
			return 0, fmt.Errorf("chunk %v: %w", c.MinP, err)
		}
		if c.Digest != "" && store.Digest(vox) != c.Digest {
			return 0, fmt.Errorf("chunk %v: digest mismatch", c.MinP)
		}
		p := pending{minP: c.MinP, vox: vox}
		if len(c.Sunlight) > 0 {
			if p.lit, err = buffer.NewWithData(geom.LightingDimensions(), c.Sunlight); err != nil {
				return 0, fmt.Errorf("chunk %v sunlight: %w", c.MinP, err)
			}
		}
		out = append(out, p)
	}

	for _, p := range out {
		if err := p.vox.WriteFile(filepath.Join(folder, voxel.FileName(p.minP))); err != nil {
			return 0, err
		}
		litPath := filepath.Join(folder, light.FileName(p.minP))
		if p.lit != nil {
			if err := p.lit.WriteFile(litPath); err != nil {
				return 0, err
			}
		} else if err := os.Remove(litPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
	}
	return len(out), nil
}

// WriteArchive stores a as a zstd stream holding one JSON header line
// followed by the gob-encoded archive.
func WriteArchive(path string, a ArchiveV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, a); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, a ArchiveV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(a.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&a); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadArchive(path string) (ArchiveV1, error) {
	var a ArchiveV1
	f, err := os.Open(path)
	if err != nil {
		return a, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return a, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return a, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&a); err != nil {
		return a, fmt.Errorf("gob decode: %w", err)
	}
	return a, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
