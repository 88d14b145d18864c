package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	cx := fs.Int("cx", 0, "chunk min x filter (edits)")
	cz := fs.Int("cz", 0, "chunk min z filter (edits)")
	chunkFilter := fs.Bool("chunk", false, "apply -cx/-cz filter (edits)")
	_ = fs.Parse(args)

	q := "chunks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rowsErr error
	switch q {
	case "chunks":
		rowsErr = queryChunks(db, *limit)
	case "edits":
		rowsErr = queryEdits(db, *limit, *chunkFilter, *cx, *cz)
	case "archives":
		rowsErr = queryArchives(db, *limit)
	case "configs":
		rowsErr = queryConfigs(db)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(chunks|edits|archives|configs)")
		os.Exit(2)
	}
	if rowsErr != nil {
		fmt.Fprintln(os.Stderr, "query:", rowsErr)
		os.Exit(1)
	}
}

func queryChunks(db *sql.DB, limit int) error {
	rows, err := db.Query(`SELECT x,y,z,source,loads,saves,edits,digest,bytes,first_seen,COALESCE(last_loaded,''),COALESCE(last_saved,'') FROM chunks ORDER BY edits DESC, x, z LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			X          int    `json:"x"`
			Y          int    `json:"y"`
			Z          int    `json:"z"`
			Source     string `json:"source"`
			Loads      int    `json:"loads"`
			Saves      int    `json:"saves"`
			Edits      int    `json:"edits"`
			Digest     string `json:"digest,omitempty"`
			Bytes      int64  `json:"bytes"`
			FirstSeen  string `json:"first_seen"`
			LastLoaded string `json:"last_loaded,omitempty"`
			LastSaved  string `json:"last_saved,omitempty"`
		}
		if err := rows.Scan(&r.X, &r.Y, &r.Z, &r.Source, &r.Loads, &r.Saves, &r.Edits, &r.Digest, &r.Bytes, &r.FirstSeen, &r.LastLoaded, &r.LastSaved); err != nil {
			return err
		}
		printJSON(r)
	}
	return rows.Err()
}

func queryEdits(db *sql.DB, limit int, filter bool, cx, cz int) error {
	query := `SELECT seq,at,x,y,z,chunk_x,chunk_z,empty FROM edits ORDER BY seq DESC LIMIT ?`
	qargs := []any{limit}
	if filter {
		query = `SELECT seq,at,x,y,z,chunk_x,chunk_z,empty FROM edits WHERE chunk_x=? AND chunk_z=? ORDER BY seq DESC LIMIT ?`
		qargs = []any{cx, cz, limit}
	}
	rows, err := db.Query(query, qargs...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Seq    int64  `json:"seq"`
			At     string `json:"at"`
			X      int    `json:"x"`
			Y      int    `json:"y"`
			Z      int    `json:"z"`
			ChunkX int    `json:"chunk_x"`
			ChunkZ int    `json:"chunk_z"`
			Empty  bool   `json:"empty"`
		}
		if err := rows.Scan(&r.Seq, &r.At, &r.X, &r.Y, &r.Z, &r.ChunkX, &r.ChunkZ, &r.Empty); err != nil {
			return err
		}
		printJSON(r)
	}
	return rows.Err()
}

func queryArchives(db *sql.DB, limit int) error {
	rows, err := db.Query(`SELECT path,chunks,bytes,created_at FROM archives ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Path      string `json:"path"`
			Chunks    int    `json:"chunks"`
			Bytes     int64  `json:"bytes"`
			CreatedAt string `json:"created_at"`
		}
		if err := rows.Scan(&r.Path, &r.Chunks, &r.Bytes, &r.CreatedAt); err != nil {
			return err
		}
		printJSON(r)
	}
	return rows.Err()
}

func queryConfigs(db *sql.DB) error {
	rows, err := db.Query(`SELECT name,digest,json,updated_at FROM configs ORDER BY name`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name, digest, raw, at string
		)
		if err := rows.Scan(&name, &digest, &raw, &at); err != nil {
			return err
		}
		printJSON(map[string]any{
			"name":       name,
			"digest":     digest,
			"config":     json.RawMessage(raw),
			"updated_at": at,
		})
	}
	return rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
