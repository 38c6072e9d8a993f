package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ayusman/autoannotate/internal/config"
)

// runConfig parses args against a command carrying flags and returns the
// resulting configuration.
func runConfig(t *testing.T, flags []cli.Flag, args ...string) (config.Config, error) {
	t.Helper()

	var (
		cfg    config.Config
		cfgErr error
	)
	app := &cli.App{
		Name:  "autoannotate",
		Flags: []cli.Flag{&cli.BoolFlag{Name: flagDebug}},
		Commands: []*cli.Command{{
			Name:  "test",
			Flags: flags,
			Action: func(c *cli.Context) error {
				cfg, cfgErr = configFromContext(c)
				return nil
			},
		}},
	}
	require.NoError(t, app.Run(append([]string{"autoannotate"}, args...)))
	return cfg, cfgErr
}

func TestEnvVars(t *testing.T) {
	assert.Equal(t, []string{"AUTOANNOTATE_MAX_UPLOAD_MB"}, envVars(flagMaxUploadMB))
	assert.Equal(t, []string{"AUTOANNOTATE_ADDR"}, envVars(flagAddr))
}

func TestConfigFromContext(t *testing.T) {
	t.Run("serve defaults", func(t *testing.T) {
		cfg, err := runConfig(t, append(serveFlags(), detectionFlags(config.DefaultThreshold)...), "test")
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("annotate uses the batch threshold", func(t *testing.T) {
		cfg, err := runConfig(t, detectionFlags(config.DefaultBatchThreshold), "test")
		require.NoError(t, err)
		assert.Equal(t, 85.0, cfg.Threshold)
	})

	t.Run("flags override defaults", func(t *testing.T) {
		cfg, err := runConfig(t, append(serveFlags(), detectionFlags(config.DefaultThreshold)...),
			"--debug", "test", "--addr", ":9000", "--threshold", "60", "--target-class", "dog", "--tray")
		require.NoError(t, err)
		assert.True(t, cfg.Debug)
		assert.True(t, cfg.Tray)
		assert.Equal(t, ":9000", cfg.Addr)
		assert.Equal(t, 60.0, cfg.Threshold)
		assert.Equal(t, "dog", cfg.TargetClass)
	})

	t.Run("environment variables are read", func(t *testing.T) {
		t.Setenv("AUTOANNOTATE_THRESHOLD", "42")
		cfg, err := runConfig(t, detectionFlags(config.DefaultThreshold), "test")
		require.NoError(t, err)
		assert.Equal(t, 42.0, cfg.Threshold)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := runConfig(t, detectionFlags(config.DefaultThreshold), "test", "--threshold", "150")
		assert.Error(t, err)
	})

	t.Run("commands without detection flags keep defaults", func(t *testing.T) {
		cfg, err := runConfig(t, []cli.Flag{&cli.StringFlag{Name: flagClasses}}, "test")
		require.NoError(t, err)
		assert.Equal(t, "person", cfg.TargetClass)
	})
}

func TestGalleryURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/gallery", galleryURL(":8080"))
	assert.Equal(t, "http://0.0.0.0:80/gallery", galleryURL("0.0.0.0:80"))
}

func TestAnnotateAction_MissingModel(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "street.jpg")
	require.NoError(t, os.WriteFile(input, []byte("not decoded"), 0644))
	outDir := filepath.Join(dir, "out")

	app := &cli.App{
		Name:     "autoannotate",
		Flags:    []cli.Flag{&cli.BoolFlag{Name: flagDebug}},
		Commands: []*cli.Command{annotateCommand()},
	}

	err := app.Run([]string{"autoannotate", "annotate",
		"--model", filepath.Join(dir, "missing.onnx"), "-o", outDir, input})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.onnx")
	assert.NoDirExists(t, outDir, "nothing is written when the model cannot be loaded")
}
