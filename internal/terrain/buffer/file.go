package buffer

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"voxelstream.dev/internal/dispatch"
	"voxelstream.dev/internal/terrain/geom"
)

// ReadFile loads a headerless little-endian buffer. The file size must equal
// dims.Volume()*CellSize exactly.
func ReadFile(path string, dims geom.Vec3i) (*Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	want := dims.Volume() * CellSize
	if len(raw) != want {
		return nil, fmt.Errorf("%s: %w: got %d bytes want %d", path, ErrSizeMismatch, len(raw), want)
	}
	b := New(dims)
	for i := range b.data {
		b.data[i] = binary.LittleEndian.Uint16(raw[i*CellSize:])
	}
	return b, nil
}

// WriteFile stores the dense array. The write goes through a temp file and a
// rename so readers never observe a partial file.
func (b *Buffer) WriteFile(path string) error {
	raw := make([]byte, len(b.data)*CellSize)
	for i, v := range b.data {
		binary.LittleEndian.PutUint16(raw[i*CellSize:], v)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Load reads path on io and delivers the result to done on completion. done
// receives either a buffer or an error, never both. If a queue rejects the
// work, done runs on the calling goroutine.
func Load(path string, dims geom.Vec3i, io, completion dispatch.Queue, done func(*Buffer, error)) {
	err := io.Go(func() {
		b, err := ReadFile(path, dims)
		deliver(completion, func() { done(b, err) })
	})
	if err != nil {
		done(nil, err)
	}
}

// Save writes b to path on q as one member of g.
func (b *Buffer) Save(path string, q dispatch.Queue, g *dispatch.Group) {
	g.Submit(q, func() error { return b.WriteFile(path) })
}

func deliver(q dispatch.Queue, fn func()) {
	if err := q.Go(fn); err != nil {
		fn()
	}
}
