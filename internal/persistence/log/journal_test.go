package log

import (
	"testing"
	"time"

	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/store"
)

func TestJournalRoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)

	clock := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	j.w.now = func() time.Time { return clock }

	kinds := []string{store.EventGenerate, store.EventEdit, store.EventSave, store.EventEvict}
	for i, k := range kinds {
		if i == 2 {
			clock = clock.Add(2 * time.Minute)
		}
		if err := j.Record(store.Event{Time: clock, Kind: k, MinP: geom.V(i*16, 0, 0)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if j.Lines() != 4 {
		t.Fatalf("lines: got %d want 4", j.Lines())
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListFiles(JournalDir(dir), journalPrefix)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files: got %d want 2", len(files))
	}

	var got []store.Event
	if err := ReadJournal(JournalDir(dir), func(e store.Event) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(got) != len(kinds) {
		t.Fatalf("events: got %d want %d", len(got), len(kinds))
	}
	for i, e := range got {
		if e.Kind != kinds[i] || e.MinP.X != i*16 {
			t.Fatalf("event %d: %+v", i, e)
		}
	}
}

func TestJournalReopenSameHourAppends(t *testing.T) {
	dir := t.TempDir()
	for round := 0; round < 2; round++ {
		j := NewJournal(dir)
		if err := j.Record(store.Event{Kind: store.EventLoad}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if err := j.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	n := 0
	if err := ReadJournal(JournalDir(dir), func(store.Event) error { n++; return nil }); err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if n != 2 {
		t.Fatalf("events: got %d want 2", n)
	}
}
