package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"voxelstream.dev/internal/persistence/indexdb"
	"voxelstream.dev/internal/persistence/snapshot"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/light"
	"voxelstream.dev/internal/terrain/voxel"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type chunkFile struct {
	MinP  geom.Vec3i `json:"min_p"`
	Bytes int64      `json:"bytes"`
	Lit   bool       `json:"lit"`
}

// listChunkFiles returns the chunk files under folder ordered by x, then z.
func listChunkFiles(folder string) ([]chunkFile, error) {
	ents, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	lit := map[string]bool{}
	for _, e := range ents {
		lit[e.Name()] = true
	}
	var out []chunkFile
	for _, e := range ents {
		minP, ok := voxel.ParseFileName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, chunkFile{MinP: minP, Bytes: info.Size(), Lit: lit[light.FileName(minP)]})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].MinP, out[j].MinP
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return out, nil
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	asJSON := fs.Bool("json", false, "print one JSON object per chunk")
	_ = fs.Parse(args)

	files, err := listChunkFiles(filepath.Join(*dataDir, "chunks"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var total int64
	lit := 0
	for _, f := range files {
		total += f.Bytes
		if f.Lit {
			lit++
		}
		if *asJSON {
			printJSON(f)
			continue
		}
		fmt.Printf("%s\t%s\tlit=%v\n", f.MinP, humanize.Bytes(uint64(f.Bytes)), f.Lit)
	}
	if !*asJSON {
		fmt.Printf("%s chunks, %d lit, %s\n", humanize.Comma(int64(len(files))), lit, humanize.Bytes(uint64(total)))
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	outPath := fs.String("out", "", "archive path (required)")
	seed := fs.Int64("seed", 0, "seed recorded in the archive header")
	height := fs.Int("terrain_height", 0, "terrain height recorded in the archive header")
	_ = fs.Parse(args)

	if strings.TrimSpace(*outPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -out")
		os.Exit(2)
	}
	a, err := snapshot.Export(filepath.Join(*dataDir, "chunks"), *seed, *height)
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	if err := snapshot.WriteArchive(*outPath, a); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	st, err := os.Stat(*outPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stat:", err)
		os.Exit(1)
	}
	recordArchive(*dataDir, *outPath, len(a.Chunks), st.Size())
	fmt.Printf("exported %s chunks to %s (%s) id=%s\n",
		humanize.Comma(int64(len(a.Chunks))), *outPath, humanize.Bytes(uint64(st.Size())), a.Header.ArchiveID)
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	inPath := fs.String("in", "", "archive path (required)")
	headerOnly := fs.Bool("header", false, "print the archive header and exit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*inPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}
	if *headerOnly {
		h, err := snapshot.ReadHeader(*inPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}

	a, err := snapshot.ReadArchive(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	n, err := snapshot.Import(filepath.Join(*dataDir, "chunks"), a)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
	if st, err := os.Stat(*inPath); err == nil {
		recordArchive(*dataDir, *inPath, n, st.Size())
	}
	fmt.Printf("imported %s chunks from %s (seed=%d)\n", humanize.Comma(int64(n)), *inPath, a.Header.Seed)
}

// recordArchive notes the archive in the index if the data dir has one.
func recordArchive(dataDir, path string, chunks int, bytes int64) {
	dbPath := filepath.Join(dataDir, "index.sqlite")
	if _, err := os.Stat(dbPath); err != nil {
		return
	}
	idx, err := indexdb.OpenSQLite(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	idx.RecordArchive(abs, chunks, bytes)
	if err := idx.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "index close:", err)
	}
}
