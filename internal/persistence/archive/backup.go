// Package archive keeps a rotating set of world backups under
// <dataDir>/archives, each a snapshot archive plus a meta.json.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"voxelstream.dev/internal/persistence/snapshot"
)

const (
	dirPrefix   = "backup_"
	archiveName = "world.vsa.zst"
)

type Meta struct {
	Seq       int    `json:"seq"`
	ArchiveID string `json:"archive_id"`
	Archive   string `json:"archive"`
	Chunks    int    `json:"chunks"`
	Bytes     int64  `json:"bytes"`
	Seed      int64  `json:"seed"`
	CreatedAt string `json:"created_at"`
}

func Dir(dataDir string) string { return filepath.Join(dataDir, "archives") }

// Rotate exports the chunk files in folder into a new numbered backup and
// removes all but the newest keep backups. keep <= 0 keeps everything.
// It returns the new backup's metadata and archive path.
func Rotate(dataDir, folder string, seed int64, terrainHeight, keep int) (Meta, string, error) {
	seqs, err := list(Dir(dataDir))
	if err != nil {
		return Meta{}, "", err
	}
	seq := 1
	if len(seqs) > 0 {
		seq = seqs[len(seqs)-1] + 1
	}

	a, err := snapshot.Export(folder, seed, terrainHeight)
	if err != nil {
		return Meta{}, "", fmt.Errorf("export: %w", err)
	}
	dir := filepath.Join(Dir(dataDir), fmt.Sprintf("%s%03d", dirPrefix, seq))
	dst := filepath.Join(dir, archiveName)
	if err := snapshot.WriteArchive(dst, a); err != nil {
		return Meta{}, "", err
	}
	st, err := os.Stat(dst)
	if err != nil {
		return Meta{}, "", err
	}

	meta := Meta{
		Seq:       seq,
		ArchiveID: a.Header.ArchiveID,
		Archive:   archiveName,
		Chunks:    len(a.Chunks),
		Bytes:     st.Size(),
		Seed:      seed,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}

	if keep > 0 {
		seqs = append(seqs, seq)
		for len(seqs) > keep {
			old := filepath.Join(Dir(dataDir), fmt.Sprintf("%s%03d", dirPrefix, seqs[0]))
			if err := os.RemoveAll(old); err != nil {
				return meta, dst, fmt.Errorf("prune %s: %w", filepath.Base(old), err)
			}
			seqs = seqs[1:]
		}
	}
	return meta, dst, nil
}

// Latest returns the archive path of the newest backup, or "" if none.
func Latest(dataDir string) (string, error) {
	seqs, err := list(Dir(dataDir))
	if err != nil || len(seqs) == 0 {
		return "", err
	}
	return filepath.Join(Dir(dataDir), fmt.Sprintf("%s%03d", dirPrefix, seqs[len(seqs)-1]), archiveName), nil
}

// list returns the backup sequence numbers under dir in ascending order.
func list(dir string) ([]int, error) {
	ents, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []int
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), dirPrefix))
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}
