// Package indexdb keeps a SQLite record of every chunk the store has
// loaded, saved or edited. Chunk files on disk remain the source of truth;
// the index exists for inspection.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelstream.dev/internal/terrain/geom"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqLoad reqKind = iota + 1
	reqSave
	reqEdit
	reqArchive
)

type req struct {
	kind reqKind
	at   string

	minP   geom.Vec3i
	source string
	digest string
	bytes  int
	empty  bool
	path   string
	chunks int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			source TEXT NOT NULL,
			loads INTEGER NOT NULL DEFAULT 0,
			saves INTEGER NOT NULL DEFAULT 0,
			edits INTEGER NOT NULL DEFAULT 0,
			digest TEXT NOT NULL DEFAULT '',
			bytes INTEGER NOT NULL DEFAULT 0,
			first_seen TEXT NOT NULL,
			last_loaded TEXT,
			last_saved TEXT,
			PRIMARY KEY (x, y, z)
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_z INTEGER NOT NULL,
			empty INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_chunk ON edits(chunk_x, chunk_z, seq);`,
		`CREATE TABLE IF NOT EXISTS archives (
			path TEXT PRIMARY KEY,
			chunks INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts requests discarded because the writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	r.at = time.Now().UTC().Format(time.RFC3339Nano)
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; chunk files and the journal remain authoritative.
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) RecordLoad(minP geom.Vec3i, source string) {
	s.enqueue(req{kind: reqLoad, minP: minP, source: source})
}

func (s *SQLiteIndex) RecordSave(minP geom.Vec3i, digest string, bytes int) {
	s.enqueue(req{kind: reqSave, minP: minP, digest: digest, bytes: bytes})
}

func (s *SQLiteIndex) RecordEdit(cell geom.Vec3i, empty bool) {
	s.enqueue(req{kind: reqEdit, minP: cell, empty: empty})
}

func (s *SQLiteIndex) RecordArchive(path string, chunks int, bytes int64) {
	s.enqueue(req{kind: reqArchive, path: path, chunks: chunks, bytes: int(bytes)})
}

// UpsertConfig stores the canonical JSON of a configuration value that the
// process actually applied.
func (s *SQLiteIndex) UpsertConfig(name string, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		name, hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertLoad, _ := s.db.Prepare(`INSERT INTO chunks(x,y,z,source,loads,first_seen,last_loaded) VALUES(?,?,?,?,1,?,?)
		ON CONFLICT(x,y,z) DO UPDATE SET source=excluded.source, loads=loads+1, last_loaded=excluded.last_loaded`)
	upsertSave, _ := s.db.Prepare(`INSERT INTO chunks(x,y,z,source,saves,digest,bytes,first_seen,last_saved) VALUES(?,?,?,'file',1,?,?,?,?)
		ON CONFLICT(x,y,z) DO UPDATE SET saves=saves+1, digest=excluded.digest, bytes=excluded.bytes, last_saved=excluded.last_saved`)
	bumpEdits, _ := s.db.Prepare(`UPDATE chunks SET edits=edits+1 WHERE x=? AND y=? AND z=?`)
	insertEdit, _ := s.db.Prepare(`INSERT INTO edits(at,x,y,z,chunk_x,chunk_z,empty) VALUES(?,?,?,?,?,?,?)`)
	insertArchive, _ := s.db.Prepare(`INSERT OR REPLACE INTO archives(path,chunks,bytes,created_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertLoad, upsertSave, bumpEdits, insertEdit, insertArchive} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		p := r.minP
		switch r.kind {
		case reqLoad:
			exec(upsertLoad, p.X, p.Y, p.Z, r.source, r.at, r.at)
		case reqSave:
			exec(upsertSave, p.X, p.Y, p.Z, r.digest, r.bytes, r.at, r.at)
		case reqEdit:
			minP := geom.MinCornerForCell(p)
			empty := 0
			if r.empty {
				empty = 1
			}
			if exec(insertEdit, r.at, p.X, p.Y, p.Z, minP.X, minP.Z, empty) {
				exec(bumpEdits, minP.X, minP.Y, minP.Z)
			}
		case reqArchive:
			exec(insertArchive, r.path, r.chunks, r.bytes, r.at)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}

	commit()
}
