// Package pipeline runs the detection post-processing pass over image files.
package pipeline

import (
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/autoannotate/internal/annotate"
	"github.com/ayusman/autoannotate/internal/detector"
)

// Output file names written into the output directory.
const (
	// PredictedImageName is shared by every image processed into the same
	// directory; the last one processed wins.
	PredictedImageName = "predicted_image.jpg"
	ThumbnailName      = "thumbnail.jpg"
)

// ErrDecode is returned when an input image cannot be read or decoded.
var ErrDecode = errors.New("decode image")

// OutputError reports a failure writing one of the output files.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return "write " + e.Path + ": " + e.Err.Error()
}

func (e *OutputError) Unwrap() error {
	return e.Err
}

// Config holds the post-processing settings. They are fixed for the life
// of a Processor.
type Config struct {
	// TargetClass is the catalog name of the class to annotate.
	TargetClass string
	// Threshold is the minimum confidence in percent (0-100).
	Threshold float64
	// ThumbnailSize is the longest side of thumbnail.jpg; 0 disables it.
	ThumbnailSize int
	Logger        *zap.SugaredLogger
}

// Result describes the outputs of one processed image.
type Result struct {
	InputPath      string
	AnnotationPath string
	ImagePath      string
	ThumbnailPath  string
	Width          int
	Height         int
	Records        []annotate.Record
}

// Processor is a long-lived handle on a detector and class catalog.
// Calls to Process are serialized.
type Processor struct {
	detector detector.Detector
	classID  int
	config   Config
	logger   *zap.SugaredLogger
	mu       sync.Mutex
}

// New creates a Processor. The target class is resolved against catalog
// here and ErrClassNotFound is returned when it is absent.
func New(d detector.Detector, catalog detector.Catalog, config Config) (*Processor, error) {
	if d == nil {
		return nil, errors.New("detector is required")
	}
	if len(catalog) == 0 {
		return nil, errors.New("class catalog is empty")
	}
	if config.Threshold < 0 || config.Threshold > 100 {
		return nil, errors.Errorf("threshold %v out of range [0, 100]", config.Threshold)
	}
	classID, err := catalog.Resolve(config.TargetClass)
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Processor{
		detector: d,
		classID:  classID,
		config:   config,
		logger:   logger,
	}, nil
}

// Process detects objects in the image at inputPath and writes
// "{basename}.txt" and predicted_image.jpg into outputDir, creating the
// directory if needed.
func (p *Processor) Process(ctx context.Context, inputPath, outputDir string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	img := gocv.IMRead(inputPath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, errors.Wrapf(ErrDecode, "%s", inputPath)
	}

	detections, err := p.detector.Detect(&img)
	if err != nil {
		return nil, errors.Wrapf(err, "detect %s", inputPath)
	}

	accepted := annotate.Filter(detections, p.classID, p.config.Threshold)
	annotate.Draw(&img, accepted, p.config.TargetClass)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, &OutputError{Path: outputDir, Err: err}
	}

	result := &Result{
		InputPath:      inputPath,
		AnnotationPath: filepath.Join(outputDir, AnnotationName(inputPath)),
		ImagePath:      filepath.Join(outputDir, PredictedImageName),
		Width:          img.Cols(),
		Height:         img.Rows(),
		Records:        annotate.Records(accepted, p.classID),
	}

	if err := annotate.WriteAnnotations(result.AnnotationPath, result.Records); err != nil {
		return nil, &OutputError{Path: result.AnnotationPath, Err: err}
	}
	p.logger.Debugw("Annotations saved", "path", result.AnnotationPath, "records", len(result.Records))

	if ok := gocv.IMWrite(result.ImagePath, img); !ok {
		return nil, &OutputError{Path: result.ImagePath, Err: errors.New("encode jpeg")}
	}
	p.logger.Debugw("Predicted image saved", "path", result.ImagePath)

	if p.config.ThumbnailSize > 0 {
		result.ThumbnailPath = filepath.Join(outputDir, ThumbnailName)
		if err := writeThumbnail(result.ThumbnailPath, img, p.config.ThumbnailSize); err != nil {
			return nil, &OutputError{Path: result.ThumbnailPath, Err: err}
		}
	}

	p.logger.Infow("Processed image",
		"input", inputPath,
		"detections", len(detections),
		"accepted", len(accepted),
		"output_dir", outputDir,
	)
	return result, nil
}

// ProcessDir processes every PNG and JPEG file in inputDir into outputDir,
// in name order. A failing image does not stop the others; all failures
// are returned combined.
func (p *Processor) ProcessDir(ctx context.Context, inputDir, outputDir string) ([]*Result, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, errors.Wrap(err, "read input directory")
	}

	var (
		results []*Result
		errs    error
	)
	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}

		path := filepath.Join(inputDir, entry.Name())
		result, err := p.Process(ctx, path, outputDir)
		if err != nil {
			p.logger.Warnw("Failed to process image", "input", path, "error", err)
			errs = multierr.Append(errs, err)
			continue
		}
		results = append(results, result)
	}

	return results, errs
}

// AnnotationName returns "{basename without extension}.txt" for path.
func AnnotationName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

// IsImage reports whether name has a .png, .jpg or .jpeg extension.
func IsImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

func writeThumbnail(path string, img gocv.Mat, size int) error {
	src, err := img.ToImage()
	if err != nil {
		return errors.Wrap(err, "convert image")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, annotate.Thumbnail(src, size), &jpeg.Options{Quality: 85}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
