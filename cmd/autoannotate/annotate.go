package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/ayusman/autoannotate/internal/app"
	"github.com/ayusman/autoannotate/internal/pipeline"
)

func annotateAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("annotate takes exactly one INPUT file or directory", 2)
	}
	input := c.Args().First()
	outputDir := c.String(flagOutputDir)

	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	cfg.ThumbnailSize = 0

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	info, err := os.Stat(input)
	if err != nil {
		return errors.Wrap(err, "input")
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	det, err := app.OpenDetector(cfg.Detector(), c.Bool(flagAllowMock), logger)
	if err != nil {
		return err
	}
	defer det.Close()

	proc, err := pipeline.New(det, catalog, cfg.Pipeline(logger))
	if err != nil {
		return err
	}

	if !info.IsDir() {
		result, err := proc.Process(c.Context, input, outputDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s: %d detections -> %s\n", input, len(result.Records), result.AnnotationPath)
		return nil
	}

	results, err := proc.ProcessDir(c.Context, input, outputDir)
	for _, result := range results {
		fmt.Fprintf(c.App.Writer, "%s: %d detections -> %s\n", result.InputPath, len(result.Records), result.AnnotationPath)
	}
	if err != nil {
		failed := multierr.Errors(err)
		for _, e := range failed {
			fmt.Fprintf(c.App.ErrWriter, "error: %v\n", e)
		}
		return errors.Errorf("%d of %d images failed", len(failed), len(failed)+len(results))
	}

	fmt.Fprintf(c.App.Writer, "Processed %d images into %s\n", len(results), outputDir)
	return nil
}

func classesAction(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	for _, class := range catalog {
		fmt.Fprintf(c.App.Writer, "%d %s\n", class.ID, class.Name)
	}
	return nil
}
