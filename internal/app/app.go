// Package app provides the upload service: it stores received images, runs
// them through the annotation pipeline and records the outcome.
package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayusman/autoannotate/internal/annotate"
	"github.com/ayusman/autoannotate/internal/detector"
	"github.com/ayusman/autoannotate/internal/pipeline"
	"github.com/ayusman/autoannotate/internal/store"
)

// ErrInvalidFilename is returned for upload names with no usable base name.
var ErrInvalidFilename = errors.New("invalid filename")

// Config holds configuration options for the application.
type Config struct {
	Store        *store.Store
	Processor    *pipeline.Processor
	UploadDir    string
	ProcessedDir string
	Logger       *zap.SugaredLogger
}

// App ingests uploads. Each upload gets its own id and its own output
// directory, so uploads never overwrite each other's predicted image.
type App struct {
	config    Config
	logger    *zap.SugaredLogger
	callbacks []func(*store.Upload)
	mu        sync.RWMutex
}

// New creates a new App and makes sure its directories exist.
func New(config Config) (*App, error) {
	if config.Store == nil {
		return nil, errors.New("store is required")
	}
	if config.Processor == nil {
		return nil, errors.New("processor is required")
	}

	for _, dir := range []string{config.UploadDir, config.ProcessedDir} {
		if dir == "" {
			return nil, errors.New("upload and processed directories are required")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &App{
		config: config,
		logger: logger,
	}, nil
}

// NewDetector returns a YOLO detector for cfg, or a mock detector that
// finds nothing when the model cannot be used.
func NewDetector(cfg detector.Config, logger *zap.SugaredLogger) detector.Detector {
	d, _ := OpenDetector(cfg, true, logger)
	return d
}

// OpenDetector returns a YOLO detector for cfg. When the model cannot be
// used it returns a mock detector if allowMock is set, and the load error
// otherwise.
func OpenDetector(cfg detector.Config, allowMock bool, logger *zap.SugaredLogger) (detector.Detector, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	d, err := detector.NewYOLODetector(cfg)
	if err != nil {
		if !allowMock {
			return nil, errors.Wrapf(err, "load model %s", cfg.ModelPath)
		}
		logger.Warnw("YOLO model not available, using mock detector", "model", cfg.ModelPath, "error", err)
		return detector.NewMockDetector(), nil
	}

	logger.Infow("Using YOLO detection", "model", cfg.ModelPath, "input_size", cfg.InputSize)
	return d, nil
}

// RegisterUploadCallback registers fn to be called after every upload is
// recorded, whether it was processed or failed.
func (a *App) RegisterUploadCallback(fn func(*store.Upload)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// Store returns the application's store.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Ingest saves r as UploadDir/{id}/{filename}, processes it into
// ProcessedDir/{id} and records the outcome. When processing fails the
// upload is still recorded as failed and returned together with the error.
// A nil upload means nothing was recorded.
func (a *App) Ingest(ctx context.Context, filename string, r io.Reader) (*store.Upload, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	sourcePath, err := a.save(id, name, r)
	if err != nil {
		return nil, err
	}

	u := &store.Upload{
		ID:         id,
		Filename:   name,
		SourcePath: sourcePath,
		OutputDir:  filepath.Join(a.config.ProcessedDir, id),
	}

	result, processErr := a.config.Processor.Process(ctx, sourcePath, u.OutputDir)
	if processErr != nil {
		u.Status = store.UploadStatusFailed
		u.Error = processErr.Error()
		a.logger.Warnw("Failed to process upload", "id", id, "filename", name, "error", processErr)
	} else {
		u.Status = store.UploadStatusProcessed
		u.AnnotationPath = result.AnnotationPath
		u.ImagePath = result.ImagePath
		u.ThumbnailPath = result.ThumbnailPath
		u.Width = result.Width
		u.Height = result.Height
	}

	var detections []store.Detection
	if result != nil {
		detections = toStoreDetections(result.Records)
	}
	if err := a.config.Store.Uploads().Create(u, detections...); err != nil {
		return nil, errors.Wrap(err, "record upload")
	}

	a.notify(u)
	return u, processErr
}

// Delete removes an upload's record and its files.
func (a *App) Delete(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}

	if err := a.config.Store.Uploads().Delete(id); err != nil {
		return err
	}

	for _, dir := range []string{
		filepath.Join(a.config.UploadDir, id),
		filepath.Join(a.config.ProcessedDir, id),
	} {
		if err := os.RemoveAll(dir); err != nil {
			a.logger.Warnw("Failed to remove upload files", "id", id, "dir", dir, "error", err)
		}
	}
	return nil
}

func (a *App) save(id, name string, r io.Reader) (string, error) {
	dir := filepath.Join(a.config.UploadDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "create upload directory")
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create upload file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", errors.Wrap(err, "save upload")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "save upload")
	}
	return path, nil
}

func (a *App) notify(u *store.Upload) {
	a.mu.RLock()
	callbacks := make([]func(*store.Upload), len(a.callbacks))
	copy(callbacks, a.callbacks)
	a.mu.RUnlock()

	for _, fn := range callbacks {
		fn(u)
	}
}

// SanitizeFilename strips any directory part from a client-supplied name.
func SanitizeFilename(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "", errors.Wrapf(ErrInvalidFilename, "%q", name)
	}
	return base, nil
}

// toStoreDetections converts annotation records to store rows.
func toStoreDetections(records []annotate.Record) []store.Detection {
	detections := make([]store.Detection, len(records))
	for i, r := range records {
		detections[i] = store.Detection{
			Seq:        i,
			ClassID:    r.ClassID,
			Confidence: r.Confidence,
			X1:         r.Box.Min.X,
			Y1:         r.Box.Min.Y,
			X2:         r.Box.Max.X,
			Y2:         r.Box.Max.Y,
		}
	}
	return detections
}
