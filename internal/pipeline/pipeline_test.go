package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"github.com/ayusman/autoannotate/internal/detector"
	"github.com/ayusman/autoannotate/internal/testutil"
)

func newTestProcessor(t *testing.T, d detector.Detector, cfg Config) *Processor {
	t.Helper()

	if cfg.TargetClass == "" {
		cfg.TargetClass = "person"
	}
	cfg.Logger = zaptest.NewLogger(t).Sugar()

	p, err := New(d, detector.COCO(), cfg)
	require.NoError(t, err)
	return p
}

func writeImage(t *testing.T, dir, name string, rows, cols int) string {
	t.Helper()

	path, err := testutil.WriteImage(dir, name, rows, cols)
	require.NoError(t, err)
	return path
}

func TestNew(t *testing.T) {
	t.Run("requires a detector", func(t *testing.T) {
		_, err := New(nil, detector.COCO(), Config{})
		assert.Error(t, err)
	})

	t.Run("requires a catalog", func(t *testing.T) {
		_, err := New(detector.NewMockDetector(), nil, Config{})
		assert.Error(t, err)
	})

	t.Run("rejects thresholds outside 0-100", func(t *testing.T) {
		for _, threshold := range []float64{-1, 100.5} {
			_, err := New(detector.NewMockDetector(), detector.COCO(), Config{Threshold: threshold})
			assert.Error(t, err, "threshold %v", threshold)
		}
	})

	t.Run("unknown target class returns ErrClassNotFound", func(t *testing.T) {
		mock := detector.NewMockDetector()
		_, err := New(mock, detector.COCO(), Config{TargetClass: "unicorn", Threshold: 75})
		assert.ErrorIs(t, err, detector.ErrClassNotFound)
		assert.Zero(t, mock.Calls())
	})

	t.Run("target class id comes from the catalog", func(t *testing.T) {
		catalog := detector.Catalog{{ID: 0, Name: "helmet"}, {ID: 2, Name: "vest"}}
		p, err := New(detector.NewMockDetector(), catalog, Config{TargetClass: "vest", Threshold: 75})
		require.NoError(t, err)
		assert.Equal(t, 2, p.classID)
	})
}

func TestProcessor_Process(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping image pipeline test")
	}

	ctx := context.Background()

	t.Run("writes annotations and the predicted image", func(t *testing.T) {
		inDir, outDir := t.TempDir(), filepath.Join(t.TempDir(), "out")
		input := writeImage(t, inDir, "street.jpg", 240, 320)

		mock := detector.NewMockDetector()
		mock.SetDetections(detector.PeopleScene())
		p := newTestProcessor(t, mock, Config{Threshold: 75})

		result, err := p.Process(ctx, input, outDir)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(outDir, "street.txt"), result.AnnotationPath)
		assert.Equal(t, filepath.Join(outDir, PredictedImageName), result.ImagePath)
		assert.Equal(t, 320, result.Width)
		assert.Equal(t, 240, result.Height)
		assert.Empty(t, result.ThumbnailPath)

		data, err := os.ReadFile(result.AnnotationPath)
		require.NoError(t, err)
		assert.Equal(t, "0 0.91 10 20 110 220\n0 0.80 200 10 300 180\n", string(data))

		rows, cols, err := testutil.ImageSize(result.ImagePath)
		require.NoError(t, err)
		assert.Equal(t, 240, rows)
		assert.Equal(t, 320, cols)
	})

	t.Run("no detections writes an empty annotation file", func(t *testing.T) {
		inDir, outDir := t.TempDir(), t.TempDir()
		input := writeImage(t, inDir, "empty.png", 100, 150)

		p := newTestProcessor(t, detector.NewMockDetector(), Config{Threshold: 75})

		result, err := p.Process(ctx, input, outDir)
		require.NoError(t, err)
		assert.Empty(t, result.Records)

		info, err := os.Stat(filepath.Join(outDir, "empty.txt"))
		require.NoError(t, err)
		assert.Zero(t, info.Size())

		rows, cols, err := testutil.ImageSize(filepath.Join(outDir, PredictedImageName))
		require.NoError(t, err)
		assert.Equal(t, 100, rows)
		assert.Equal(t, 150, cols)
	})

	t.Run("writes a thumbnail when configured", func(t *testing.T) {
		inDir, outDir := t.TempDir(), t.TempDir()
		input := writeImage(t, inDir, "wide.jpg", 200, 800)

		p := newTestProcessor(t, detector.NewMockDetector(), Config{Threshold: 75, ThumbnailSize: 160})

		result, err := p.Process(ctx, input, outDir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(outDir, ThumbnailName), result.ThumbnailPath)

		rows, cols, err := testutil.ImageSize(result.ThumbnailPath)
		require.NoError(t, err)
		assert.Equal(t, 40, rows)
		assert.Equal(t, 160, cols)
	})

	t.Run("unreadable image returns ErrDecode", func(t *testing.T) {
		inDir := t.TempDir()
		input := filepath.Join(inDir, "broken.jpg")
		require.NoError(t, os.WriteFile(input, []byte("not an image"), 0644))

		mock := detector.NewMockDetector()
		p := newTestProcessor(t, mock, Config{Threshold: 75})

		_, err := p.Process(ctx, input, t.TempDir())
		assert.True(t, errors.Is(err, ErrDecode))
		assert.Zero(t, mock.Calls(), "detector must not run on undecodable input")
	})

	t.Run("detector errors are returned", func(t *testing.T) {
		input := writeImage(t, t.TempDir(), "a.jpg", 50, 50)

		mock := detector.NewMockDetector()
		boom := errors.New("inference failed")
		mock.SetError(boom)
		p := newTestProcessor(t, mock, Config{Threshold: 75})

		_, err := p.Process(ctx, input, t.TempDir())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unwritable output returns OutputError", func(t *testing.T) {
		input := writeImage(t, t.TempDir(), "a.jpg", 50, 50)
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))

		p := newTestProcessor(t, detector.NewMockDetector(), Config{Threshold: 75})

		_, err := p.Process(ctx, input, blocker)
		var outErr *OutputError
		require.True(t, errors.As(err, &outErr))
		assert.Equal(t, blocker, outErr.Path)
	})

	t.Run("cancelled context stops before reading", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		mock := detector.NewMockDetector()
		p := newTestProcessor(t, mock, Config{Threshold: 75})

		_, err := p.Process(cancelled, "unused.jpg", t.TempDir())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, mock.Calls())
	})

	t.Run("concurrent calls into one directory leave one predicted image", func(t *testing.T) {
		inDir, outDir := t.TempDir(), t.TempDir()
		small := writeImage(t, inDir, "small.jpg", 60, 80)
		large := writeImage(t, inDir, "large.jpg", 120, 160)

		p := newTestProcessor(t, detector.NewMockDetector(), Config{Threshold: 75})

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, input := range []string{small, large} {
			wg.Add(1)
			go func(i int, input string) {
				defer wg.Done()
				_, errs[i] = p.Process(ctx, input, outDir)
			}(i, input)
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		images, err := filepath.Glob(filepath.Join(outDir, "*.jpg"))
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(outDir, PredictedImageName)}, images)

		rows, cols, err := testutil.ImageSize(images[0])
		require.NoError(t, err)
		assert.Contains(t, [][2]int{{60, 80}, {120, 160}}, [2]int{rows, cols})

		assert.FileExists(t, filepath.Join(outDir, "small.txt"))
		assert.FileExists(t, filepath.Join(outDir, "large.txt"))
	})
}

func TestProcessor_ProcessDir(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping image pipeline test")
	}

	inDir, outDir := t.TempDir(), t.TempDir()
	writeImage(t, inDir, "a.jpg", 40, 40)
	writeImage(t, inDir, "b.PNG", 40, 40)
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "c.jpeg"), []byte("garbage"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "notes.md"), []byte("skip me"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(inDir, "nested.jpg"), 0755))

	mock := detector.NewMockDetector()
	p := newTestProcessor(t, mock, Config{Threshold: 85})

	results, err := p.ProcessDir(context.Background(), inDir, outDir)

	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDecode)

	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(inDir, "a.jpg"), results[0].InputPath)
	assert.Equal(t, filepath.Join(inDir, "b.PNG"), results[1].InputPath)
	assert.Equal(t, 2, mock.Calls())

	assert.FileExists(t, filepath.Join(outDir, "a.txt"))
	assert.FileExists(t, filepath.Join(outDir, "b.txt"))
	assert.FileExists(t, filepath.Join(outDir, PredictedImageName))
}

func TestAnnotationName(t *testing.T) {
	assert.Equal(t, "street.txt", AnnotationName("/data/uploads/street.jpg"))
	assert.Equal(t, "archive.tar.txt", AnnotationName("archive.tar.png"))
	assert.Equal(t, "noext.txt", AnnotationName("noext"))
}

func TestIsImage(t *testing.T) {
	for name, want := range map[string]bool{
		"a.jpg":  true,
		"a.JPEG": true,
		"a.png":  true,
		"a.gif":  false,
		"a":      false,
	} {
		assert.Equal(t, want, IsImage(name), name)
	}
}
