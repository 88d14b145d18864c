package tuning

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"voxelstream.dev/internal/terrain/geom"
)

type Tuning struct {
	Seed             int64      `yaml:"seed"`
	TerrainHeight    int        `yaml:"terrain_height"`
	TerrainAmplitude int        `yaml:"terrain_amplitude"`
	ActiveExtent     [3]float32 `yaml:"active_region_extent"`
	Sorting          bool       `yaml:"sorting"`
	IOWorkers        int        `yaml:"io_workers"`
	DataDir          string     `yaml:"data_dir"`
	PurgeDistance    float32    `yaml:"purge_distance"`

	LogPath        string `yaml:"log_path"`
	LogMaxSizeMB   int    `yaml:"log_max_size_mb"`
	Journal        bool   `yaml:"journal"`
	Index          bool   `yaml:"index"`
	StatusEverySec int    `yaml:"status_every_sec"`

	ArchiveEverySec int `yaml:"archive_every_sec"`
	ArchiveKeep     int `yaml:"archive_keep"`
}

func Defaults() Tuning {
	return Tuning{
		Seed:             1337,
		TerrainHeight:    24,
		TerrainAmplitude: 6,
		ActiveExtent:     [3]float32{64, 64, 64},
		Sorting:          true,
		IOWorkers:        4,
		DataDir:          "data",
		PurgeDistance:    160,
		LogPath:          "",
		LogMaxSizeMB:     64,
		Journal:          true,
		Index:            true,
		StatusEverySec:   30,
		ArchiveEverySec:  0,
		ArchiveKeep:      5,
	}
}

// Load reads path over Defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs *multierror.Error
	for i, v := range t.ActiveExtent {
		if v <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("active_region_extent[%d] must be > 0, got %v", i, v))
		}
	}
	if t.ActiveExtent[1] > geom.ChunkSizeY {
		errs = multierror.Append(errs, fmt.Errorf("active_region_extent[1] must be <= %d (chunk column height), got %v", geom.ChunkSizeY, t.ActiveExtent[1]))
	}
	if t.IOWorkers < 0 {
		errs = multierror.Append(errs, fmt.Errorf("io_workers must be >= 0, got %d", t.IOWorkers))
	}
	if t.TerrainHeight < 0 || t.TerrainHeight > geom.ChunkSizeY {
		errs = multierror.Append(errs, fmt.Errorf("terrain_height must be in [0,%d], got %d", geom.ChunkSizeY, t.TerrainHeight))
	}
	if t.TerrainAmplitude < 0 {
		errs = multierror.Append(errs, fmt.Errorf("terrain_amplitude must be >= 0, got %d", t.TerrainAmplitude))
	}
	if t.PurgeDistance < 0 {
		errs = multierror.Append(errs, fmt.Errorf("purge_distance must be >= 0, got %v", t.PurgeDistance))
	}
	if t.DataDir == "" {
		errs = multierror.Append(errs, errors.New("data_dir is required"))
	}
	if t.LogMaxSizeMB < 0 {
		errs = multierror.Append(errs, fmt.Errorf("log_max_size_mb must be >= 0, got %d", t.LogMaxSizeMB))
	}
	if t.StatusEverySec < 0 {
		errs = multierror.Append(errs, fmt.Errorf("status_every_sec must be >= 0, got %d", t.StatusEverySec))
	}
	if t.ArchiveEverySec < 0 {
		errs = multierror.Append(errs, fmt.Errorf("archive_every_sec must be >= 0, got %d", t.ArchiveEverySec))
	}
	if t.ArchiveKeep < 0 {
		errs = multierror.Append(errs, fmt.Errorf("archive_keep must be >= 0, got %d", t.ArchiveKeep))
	}
	return errs.ErrorOrNil()
}

func (t Tuning) Extent() mgl32.Vec3 { return mgl32.Vec3(t.ActiveExtent) }
