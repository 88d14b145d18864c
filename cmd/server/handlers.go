package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"voxelstream.dev/internal/terrain/store"
)

func registerHandlers(mux *http.ServeMux, st *store.Store, logger *log.Logger) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, st.Info())
	})

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Info   store.Info `json:"info"`
			Chunks int        `json:"chunks"`
		}{
			Info:   st.Info(),
			Chunks: len(st.Keys()),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		start := time.Now()
		err := st.SaveAll()
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			logger.Printf("admin save: %v", err)
			rw.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "ms": time.Since(start).Milliseconds()})
	})
}

// Minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, info store.Info) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s %v\n", name, v)
	}
	gauge("voxelstream_chunks_resident", "Chunks held by the store.", info.Resident)
	gauge("voxelstream_chunks_active", "Chunks in the active region.", info.Active)
	gauge("voxelstream_chunks_active_max", "Active region capacity.", info.MaxActive)
	gauge("voxelstream_chunks_loading", "Chunks still loading.", info.Loading)
	gauge("voxelstream_chunks_dirty", "Chunks with unsaved edits.", info.Dirty)
	gauge("voxelstream_chunks_lit", "Chunks with cached lighting.", info.Lit)
	gauge("voxelstream_buffer_bytes", "Bytes held in voxel and lighting buffers.", info.Bytes)
	if p := info.Pool; p != nil {
		fmt.Fprintf(rw, "# HELP voxelstream_io_tasks IO pool task counts.\n")
		fmt.Fprintf(rw, "# TYPE voxelstream_io_tasks gauge\n")
		fmt.Fprintf(rw, "voxelstream_io_tasks{state=%q} %d\n", "running", p.Running)
		fmt.Fprintf(rw, "voxelstream_io_tasks{state=%q} %d\n", "waiting", p.Waiting)
		fmt.Fprintf(rw, "voxelstream_io_tasks{state=%q} %d\n", "completed", p.Completed)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
