package store

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"voxelstream.dev/internal/dispatch"
	"voxelstream.dev/internal/terrain/buffer"
	"voxelstream.dev/internal/terrain/geom"
	"voxelstream.dev/internal/terrain/voxel"
)

type Info struct {
	Resident  int             `json:"resident"`
	Active    int             `json:"active"`
	MaxActive int             `json:"max_active"`
	Loading   int             `json:"loading"`
	Dirty     int             `json:"dirty"`
	Lit       int             `json:"lit"`
	Bytes     uint64          `json:"bytes"`
	Pool      *dispatch.Stats `json:"pool,omitempty"`
}

type statser interface {
	Stats() dispatch.Stats
}

func (s *Store) Info() Info {
	info := Info{
		Active:    s.region.Len(),
		MaxActive: s.region.MaxActiveChunks(),
	}
	for _, e := range s.entries() {
		info.Resident++
		if e.chunk.State() != voxel.Ready {
			info.Loading++
			continue
		}
		info.Bytes += uint64(geom.ChunkSize().Volume() * buffer.CellSize)
		if e.chunk.Dirty() {
			info.Dirty++
		}
		e.lightMu.Lock()
		if e.light != nil {
			info.Lit++
			info.Bytes += uint64(geom.LightingDimensions().Volume() * buffer.CellSize)
		}
		e.lightMu.Unlock()
	}
	if st, ok := s.io.(statser); ok {
		ps := st.Stats()
		info.Pool = &ps
	}
	return info
}

func (i Info) String() string {
	out := fmt.Sprintf("resident=%s active=%d/%d loading=%d dirty=%d lit=%d mem=%s",
		humanize.Comma(int64(i.Resident)), i.Active, i.MaxActive, i.Loading, i.Dirty, i.Lit, humanize.Bytes(i.Bytes))
	if i.Pool != nil {
		out += fmt.Sprintf(" io_running=%d io_waiting=%d io_done=%s",
			i.Pool.Running, i.Pool.Waiting, humanize.Comma(int64(i.Pool.Completed)))
	}
	return out
}
