// Package log persists the chunk store's lifecycle events as compressed
// JSON lines.
package log

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"voxelstream.dev/internal/terrain/store"
)

const journalPrefix = "chunks"

// Journal records store events under <dataDir>/journal.
type Journal struct{ w *JSONLZstdWriter }

func NewJournal(dataDir string) *Journal {
	return &Journal{w: NewJSONLZstdWriter(JournalDir(dataDir), journalPrefix)}
}

func JournalDir(dataDir string) string { return filepath.Join(dataDir, "journal") }

func (j *Journal) Record(e store.Event) error { return j.w.Write(e) }
func (j *Journal) Lines() uint64              { return j.w.Lines() }
func (j *Journal) Close() error               { return j.w.Close() }

// ReadJournal replays every event under dir in write order.
func ReadJournal(dir string, fn func(store.Event) error) error {
	files, err := ListFiles(dir, journalPrefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		err := ScanFile(path, func(line []byte) error {
			var e store.Event
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
