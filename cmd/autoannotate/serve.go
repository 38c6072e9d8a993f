package main

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ayusman/autoannotate/internal/app"
	"github.com/ayusman/autoannotate/internal/detector"
	"github.com/ayusman/autoannotate/internal/pipeline"
	"github.com/ayusman/autoannotate/internal/server"
	"github.com/ayusman/autoannotate/internal/store"
	"github.com/ayusman/autoannotate/internal/tray"
)

func serveAction(c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return errors.Wrap(err, "create data directory")
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return errors.Wrap(err, "initialize store")
	}
	defer st.Close()

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	det := app.NewDetector(cfg.Detector(), logger)
	defer det.Close()

	proc, err := pipeline.New(det, catalog, cfg.Pipeline(logger))
	if err != nil {
		return err
	}

	application, err := app.New(app.Config{
		Store:        st,
		Processor:    proc,
		UploadDir:    cfg.UploadDir(),
		ProcessedDir: cfg.ProcessedDir(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		App:            application,
		ProcessedDir:   cfg.ProcessedDir(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		TargetClass:    cfg.TargetClass,
		Threshold:      cfg.Threshold,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("Starting autoannotate",
		"addr", cfg.Addr,
		"data_dir", cfg.DataDir,
		"db", st.Path(),
		"target_class", cfg.TargetClass,
		"threshold", cfg.Threshold,
		"mock_detector", isMock(det),
	)

	if !cfg.Tray {
		return serve(ctx, srv, cfg.Addr)
	}
	return serveWithTray(ctx, stop, srv, application, cfg.Addr, logger)
}

func serve(ctx context.Context, srv *server.Server, addr string) error {
	err := srv.ListenAndServe(ctx, addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// serveWithTray runs the server in the background; the tray owns the main
// goroutine until it quits.
func serveWithTray(ctx context.Context, stop context.CancelFunc, srv *server.Server, application *app.App, addr string, logger *zap.SugaredLogger) error {
	t := tray.New()
	t.OnOpen(func() {
		if err := openBrowser(galleryURL(addr)); err != nil {
			logger.Warnw("Failed to open browser", "error", err)
		}
	})
	t.OnQuit(stop)
	application.RegisterUploadCallback(func(u *store.Upload) {
		t.SetLast(u.Filename)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, srv, addr)
		t.Quit()
	}()

	t.Run()
	stop()
	return <-errCh
}

func isMock(d detector.Detector) bool {
	_, ok := d.(*detector.MockDetector)
	return ok
}

// galleryURL turns a listen address such as ":8080" into a browsable URL.
func galleryURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/gallery"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
