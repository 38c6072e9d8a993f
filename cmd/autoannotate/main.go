// Package main is the autoannotate command.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ayusman/autoannotate/internal/config"
)

const (
	// Flags.
	flagDebug          = "debug"
	flagAddr           = "addr"
	flagDataDir        = "data-dir"
	flagModel          = "model"
	flagClasses        = "classes"
	flagTargetClass    = "target-class"
	flagThreshold      = "threshold"
	flagInputSize      = "input-size"
	flagScoreThreshold = "score-threshold"
	flagNMSThreshold   = "nms-threshold"
	flagThumbnailSize  = "thumbnail-size"
	flagMaxUploadMB    = "max-upload-mb"
	flagTray           = "tray"
	flagOutputDir      = "output-dir"
	flagAllowMock      = "allow-mock"

	envPrefix = "AUTOANNOTATE_"
)

func main() {
	app := &cli.App{
		Name:  "autoannotate",
		Usage: "detect objects in images and write annotation files",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Usage:   "enable debug logging",
				EnvVars: envVars(flagDebug),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the upload and gallery web server",
				Flags:  append(serveFlags(), detectionFlags(config.DefaultThreshold)...),
				Action: serveAction,
			},
			annotateCommand(),
			{
				Name:  "classes",
				Usage: "print the class catalog as 'id name'",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:      flagClasses,
						Usage:     "class names file, one per line (default: COCO)",
						TakesFile: true,
						EnvVars:   envVars(flagClasses),
					},
				},
				Action: classesAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "autoannotate: %v\n", err)
		os.Exit(1)
	}
}

func envVars(flag string) []string {
	return []string{envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))}
}

func annotateCommand() *cli.Command {
	return &cli.Command{
		Name:      "annotate",
		Usage:     "annotate an image file or every image in a directory",
		ArgsUsage: "INPUT",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    flagOutputDir,
				Aliases: []string{"o"},
				Usage:   "directory for annotation files and the predicted image",
				Value:   "annotations",
				EnvVars: envVars(flagOutputDir),
			},
			&cli.BoolFlag{
				Name:    flagAllowMock,
				Usage:   "use a detector that finds nothing when the model cannot be loaded",
				EnvVars: envVars(flagAllowMock),
			},
		}, detectionFlags(config.DefaultBatchThreshold)...),
		Action: annotateAction,
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagAddr,
			Usage:   "listen address",
			Value:   config.DefaultAddr,
			EnvVars: envVars(flagAddr),
		},
		&cli.StringFlag{
			Name:    flagDataDir,
			Usage:   "directory for uploads, processed outputs and the database",
			Value:   ".",
			EnvVars: envVars(flagDataDir),
		},
		&cli.IntFlag{
			Name:    flagThumbnailSize,
			Usage:   "longest side of gallery thumbnails, 0 disables them",
			Value:   config.DefaultThumbnailSize,
			EnvVars: envVars(flagThumbnailSize),
		},
		&cli.IntFlag{
			Name:    flagMaxUploadMB,
			Usage:   "maximum size of one upload request in MB, 0 for no limit",
			Value:   config.DefaultMaxUploadMB,
			EnvVars: envVars(flagMaxUploadMB),
		},
		&cli.BoolFlag{
			Name:    flagTray,
			Usage:   "show a system tray entry",
			EnvVars: envVars(flagTray),
		},
	}
}

func detectionFlags(threshold float64) []cli.Flag {
	d := config.Default()
	return []cli.Flag{
		&cli.StringFlag{
			Name:      flagModel,
			Usage:     "YOLOv8 ONNX model",
			Value:     config.DefaultModelPath,
			TakesFile: true,
			EnvVars:   envVars(flagModel),
		},
		&cli.StringFlag{
			Name:      flagClasses,
			Usage:     "class names file, one per line (default: COCO)",
			TakesFile: true,
			EnvVars:   envVars(flagClasses),
		},
		&cli.StringFlag{
			Name:    flagTargetClass,
			Usage:   "class to annotate",
			Value:   config.DefaultTargetClass,
			EnvVars: envVars(flagTargetClass),
		},
		&cli.Float64Flag{
			Name:    flagThreshold,
			Usage:   "minimum confidence in percent",
			Value:   threshold,
			EnvVars: envVars(flagThreshold),
		},
		&cli.IntFlag{
			Name:    flagInputSize,
			Usage:   "model input size",
			Value:   d.InputSize,
			EnvVars: envVars(flagInputSize),
		},
		&cli.Float64Flag{
			Name:    flagScoreThreshold,
			Usage:   "minimum detector score before non-maximum suppression",
			Value:   d.ScoreThreshold,
			EnvVars: envVars(flagScoreThreshold),
		},
		&cli.Float64Flag{
			Name:    flagNMSThreshold,
			Usage:   "non-maximum suppression IoU threshold",
			Value:   d.NMSThreshold,
			EnvVars: envVars(flagNMSThreshold),
		},
	}
}

// configFromContext reads the flags defined on the running command over the
// defaults.
func configFromContext(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	cfg.Debug = c.Bool(flagDebug)

	if hasFlag(c, flagAddr) {
		cfg.Addr = c.String(flagAddr)
	}
	if hasFlag(c, flagDataDir) {
		cfg.DataDir = c.String(flagDataDir)
	}
	if hasFlag(c, flagThumbnailSize) {
		cfg.ThumbnailSize = c.Int(flagThumbnailSize)
	}
	if hasFlag(c, flagMaxUploadMB) {
		cfg.MaxUploadMB = c.Int(flagMaxUploadMB)
	}
	cfg.Tray = c.Bool(flagTray)

	if hasFlag(c, flagModel) {
		cfg.ModelPath = c.String(flagModel)
	}
	cfg.ClassesPath = c.String(flagClasses)
	if hasFlag(c, flagTargetClass) {
		cfg.TargetClass = c.String(flagTargetClass)
		cfg.Threshold = c.Float64(flagThreshold)
		cfg.InputSize = c.Int(flagInputSize)
		cfg.ScoreThreshold = c.Float64(flagScoreThreshold)
		cfg.NMSThreshold = c.Float64(flagNMSThreshold)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func hasFlag(c *cli.Context, name string) bool {
	for _, f := range c.Command.Flags {
		for _, n := range f.Names() {
			if n == name {
				return true
			}
		}
	}
	return false
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, errors.Wrap(err, "create logger")
	}
	return logger.Sugar(), nil
}
