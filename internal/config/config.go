// Package config holds the settings shared by the serve and annotate
// commands.
package config

import (
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/autoannotate/internal/detector"
	"github.com/ayusman/autoannotate/internal/pipeline"
)

// Defaults.
const (
	DefaultAddr           = ":8080"
	DefaultModelPath      = "yolov8n.onnx"
	DefaultTargetClass    = "person"
	DefaultThreshold      = 75
	DefaultBatchThreshold = 85
	DefaultThumbnailSize  = 320
	DefaultMaxUploadMB    = 50
)

// Config is the application configuration.
type Config struct {
	Addr    string
	DataDir string

	ModelPath      string
	ClassesPath    string
	TargetClass    string
	Threshold      float64
	InputSize      int
	ScoreThreshold float64
	NMSThreshold   float64

	ThumbnailSize int
	MaxUploadMB   int
	Tray          bool
	Debug         bool
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	d := detector.DefaultConfig()
	return Config{
		Addr:           DefaultAddr,
		DataDir:        ".",
		ModelPath:      DefaultModelPath,
		TargetClass:    DefaultTargetClass,
		Threshold:      DefaultThreshold,
		InputSize:      d.InputSize,
		ScoreThreshold: d.ScoreThreshold,
		NMSThreshold:   d.NMSThreshold,
		ThumbnailSize:  DefaultThumbnailSize,
		MaxUploadMB:    DefaultMaxUploadMB,
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs error
	if c.TargetClass == "" {
		errs = multierr.Append(errs, errors.New("target class is required"))
	}
	if c.Threshold < 0 || c.Threshold > 100 {
		errs = multierr.Append(errs, errors.Errorf("threshold %v out of range [0, 100]", c.Threshold))
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		errs = multierr.Append(errs, errors.Errorf("input size %d must be a positive multiple of 32", c.InputSize))
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		errs = multierr.Append(errs, errors.Errorf("score threshold %v out of range [0, 1]", c.ScoreThreshold))
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		errs = multierr.Append(errs, errors.Errorf("nms threshold %v out of range [0, 1]", c.NMSThreshold))
	}
	if c.ThumbnailSize < 0 {
		errs = multierr.Append(errs, errors.Errorf("thumbnail size %d must not be negative", c.ThumbnailSize))
	}
	if c.MaxUploadMB < 0 {
		errs = multierr.Append(errs, errors.Errorf("max upload %d MB must not be negative", c.MaxUploadMB))
	}
	return errs
}

// UploadDir is where received files are saved.
func (c Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// ProcessedDir is where per-upload outputs are written.
func (c Config) ProcessedDir() string {
	return filepath.Join(c.DataDir, "processed")
}

// DBPath is the upload history database.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "autoannotate.db")
}

// MaxUploadBytes converts MaxUploadMB to bytes; 0 means no limit.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Detector returns the detector settings.
func (c Config) Detector() detector.Config {
	return detector.Config{
		ModelPath:      c.ModelPath,
		InputSize:      c.InputSize,
		ScoreThreshold: c.ScoreThreshold,
		NMSThreshold:   c.NMSThreshold,
	}
}

// Pipeline returns the post-processing settings.
func (c Config) Pipeline(logger *zap.SugaredLogger) pipeline.Config {
	return pipeline.Config{
		TargetClass:   c.TargetClass,
		Threshold:     c.Threshold,
		ThumbnailSize: c.ThumbnailSize,
		Logger:        logger,
	}
}

// Catalog loads ClassesPath, or returns the COCO catalog when it is unset.
func (c Config) Catalog() (detector.Catalog, error) {
	if c.ClassesPath == "" {
		return detector.COCO(), nil
	}
	return detector.LoadCatalog(c.ClassesPath)
}
