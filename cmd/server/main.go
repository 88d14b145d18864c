package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/lumberjack"

	"voxelstream.dev/internal/dispatch"
	"voxelstream.dev/internal/persistence/archive"
	"voxelstream.dev/internal/persistence/indexdb"
	persistlog "voxelstream.dev/internal/persistence/log"
	"voxelstream.dev/internal/terrain/store"
	"voxelstream.dev/internal/transport/observer"
	"voxelstream.dev/internal/tuning"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configPath  = flag.String("config", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir     = flag.String("data", "", "runtime data directory (overrides data_dir)")
		seed        = flag.Int64("seed", 0, "terrain seed (overrides seed)")
		allowRemote = flag.Bool("allow_remote", false, "accept observer connections from non-loopback addresses")
	)
	flag.Parse()

	boot := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			boot.Fatalf("load tuning: %v", err)
		}
		boot.Printf("tuning not found (%s); using defaults", *configPath)
		tune = tuning.Defaults()
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			tune.DataDir = *dataDir
		case "seed":
			tune.Seed = *seed
		}
	})
	if err := tune.Validate(); err != nil {
		boot.Fatalf("tuning: %v", err)
	}

	var out io.Writer = os.Stdout
	if p := strings.TrimSpace(tune.LogPath); p != "" {
		rot := &lumberjack.Logger{
			Filename: p,
			MaxSize:  tune.LogMaxSizeMB,
			Compress: true,
		}
		defer rot.Close()
		out = io.MultiWriter(os.Stdout, rot)
	}
	logger := log.New(out, "[server] ", log.LstdFlags|log.Lmicroseconds)
	storeLog := log.New(out, "[store] ", log.LstdFlags|log.Lmicroseconds)
	obsLog := log.New(out, "[observer] ", log.LstdFlags|log.Lmicroseconds)

	if err := os.MkdirAll(tune.DataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	cfg := store.Config{
		Folder:        filepath.Join(tune.DataDir, "chunks"),
		Seed:          tune.Seed,
		TerrainHeight: tune.TerrainHeight,
		Amplitude:     tune.TerrainAmplitude,
		Extent:        tune.Extent(),
		Sorting:       tune.Sorting,
		PurgeDistance: tune.PurgeDistance,
		Logger:        storeLog,
	}

	// Optional read-model index; chunk files stay the source of truth.
	var idx *indexdb.SQLiteIndex
	if tune.Index {
		idx, err = indexdb.OpenSQLite(filepath.Join(tune.DataDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer func() {
			if err := idx.Close(); err != nil {
				logger.Printf("index close: %v", err)
			}
			if n := idx.Dropped(); n > 0 {
				logger.Printf("index dropped %d records", n)
			}
		}()
		if err := idx.UpsertConfig("tuning", tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
		cfg.Index = idx
	}
	if tune.Journal {
		j := persistlog.NewJournal(tune.DataDir)
		defer func() {
			if err := j.Close(); err != nil {
				logger.Printf("journal close: %v", err)
			}
			logger.Printf("journal: %d events", j.Lines())
		}()
		cfg.Journal = j
	}

	if tune.IOWorkers > 0 {
		pool := dispatch.NewPool(tune.IOWorkers)
		defer pool.Stop()
		cfg.IO = pool
	}

	st := store.New(cfg)
	defer func() {
		if err := st.Close(); err != nil {
			logger.Printf("final save: %v", err)
			return
		}
		logger.Printf("saved: %s", st.Info())
	}()

	obsSrv := observer.NewServer(st, observer.Config{
		Seed:          tune.Seed,
		TerrainHeight: tune.TerrainHeight,
		AllowRemote:   *allowRemote,
	}, obsLog)

	ctx, cancel := signalContext()
	defer cancel()

	if tune.StatusEverySec > 0 {
		go reportStatus(ctx, st, time.Duration(tune.StatusEverySec)*time.Second, logger)
	}
	if tune.ArchiveEverySec > 0 {
		go runBackups(ctx, st, tune, idx, logger)
	}

	mux := http.NewServeMux()
	registerHandlers(mux, st, logger)
	mux.HandleFunc("/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/observer/ws", obsSrv.WSHandler())
	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VS_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		obsSrv.Close()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s data=%s seed=%d extent=%v", *addr, tune.DataDir, tune.Seed, tune.ActiveExtent)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}
}

func reportStatus(ctx context.Context, st *store.Store, every time.Duration, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logger.Printf("status %s", st.Info())
		}
	}
}

// runBackups periodically flushes the store and rotates a world archive.
func runBackups(ctx context.Context, st *store.Store, tune tuning.Tuning, idx *indexdb.SQLiteIndex, logger *log.Logger) {
	t := time.NewTicker(time.Duration(tune.ArchiveEverySec) * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := st.SaveAll(); err != nil {
			logger.Printf("backup: save: %v", err)
			continue
		}
		meta, path, err := archive.Rotate(tune.DataDir, st.Folder(), tune.Seed, tune.TerrainHeight, tune.ArchiveKeep)
		if err != nil {
			logger.Printf("backup: %v", err)
			continue
		}
		if idx != nil {
			idx.RecordArchive(path, meta.Chunks, meta.Bytes)
		}
		logger.Printf("backup %d: %d chunks, %s", meta.Seq, meta.Chunks, humanize.Bytes(uint64(meta.Bytes)))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
