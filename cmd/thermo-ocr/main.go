package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/camera"
	"github.com/ironsheep/thermo-ocr/internal/config"
	"github.com/ironsheep/thermo-ocr/internal/httpapi"
	"github.com/ironsheep/thermo-ocr/internal/imaging"
	"github.com/ironsheep/thermo-ocr/internal/metrics"
	"github.com/ironsheep/thermo-ocr/internal/ocr"
	"github.com/ironsheep/thermo-ocr/internal/sampler"
	"github.com/ironsheep/thermo-ocr/internal/server"
	"github.com/ironsheep/thermo-ocr/internal/sink"
	"github.com/ironsheep/thermo-ocr/internal/storage/sqlite"
	"github.com/ironsheep/thermo-ocr/internal/transport"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("thermo-ocr %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("thermo-ocr - samples a temperature display through a camera and OCR")
			fmt.Println()
			fmt.Println("Usage: thermo-ocr [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables (also read from ./.env):")
			fmt.Println("  THERMO_OCR_LOG_LEVEL=debug         Enable debug logging")
			fmt.Println("  THERMO_OCR_SINK=storage|network    Where readings go")
			fmt.Println("  THERMO_OCR_DB_PATH=readings.db     SQLite database")
			fmt.Println("  THERMO_OCR_NETWORK_URL=...         http://, mqtt:// or kafka:// address")
			fmt.Println("  THERMO_OCR_CAMERA_INDEX=1          Local camera")
			fmt.Println("  THERMO_OCR_RTSP_URL=...            Stream instead of a local camera")
			fmt.Println("  THERMO_OCR_SNAPSHOT_PATH=...       Image file instead of a camera")
			fmt.Println("  THERMO_OCR_REGION=x,y,w,h          OCR region")
			fmt.Println("  THERMO_OCR_OCR_ENGINE=tesseract    or ollama")
			fmt.Println("  THERMO_OCR_AUTOSTART=true          Start sampling immediately")
			fmt.Println("  THERMO_OCR_HTTP_ADDR=:8090         Metrics and readings API (empty disables)")
			fmt.Println()
			fmt.Println("The MCP control surface is served over stdin/stdout.")
			return
		}
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	logger.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Info("thermo-ocr starting")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("thermo-ocr stopped")
	}
	logger.Info("thermo-ocr shut down gracefully")
}

// initLogger writes to stderr; stdout is for MCP protocol.
func initLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if lvl >= logrus.DebugLevel {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	component := func(name string) *logrus.Entry {
		return logger.WithField("component", name)
	}

	store := sqlite.New(cfg.DBPath)
	defer store.Disconnect()
	if cfg.Sink == sink.KindStorage {
		if err := store.Connect(ctx); err != nil {
			component("storage").WithError(err).Warn("Database unavailable; connect it with storage_connect")
		} else {
			component("storage").WithField("path", cfg.DBPath).Info("Database connected")
		}
	}

	router := transport.NewRouter(component("transport"))
	defer router.Close()
	dispatcher := sink.NewDispatcher(router, cfg.NetworkTimeout, component("sink"))

	target, err := sink.ParseTarget(cfg.Sink, cfg.NetworkURL, store)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	frames, closeFrames := openFrames(ctx, cfg, component("camera"))
	defer closeFrames()
	selection := camera.NewSelection(cfg.Region)

	var loop *sampler.Loop
	m := metrics.New(func() bool { return loop != nil && loop.State() == sampler.Running })

	loop, err = sampler.New(sampler.Options{
		Source:     camera.Source{Frames: frames, Selection: selection},
		OCR:        engine,
		Dispatcher: dispatcher,
		Target:     target,
		Params:     cfg.Params,
		Language:   cfg.Language,
		Observer:   m,
		Log:        component("sampler"),
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.NetworkTimeout+5*time.Second)
		defer cancel()
		if err := loop.Close(closeCtx); err != nil {
			component("sampler").WithError(err).Warn("Sampler did not stop cleanly")
		}
	}()
	if err := loop.RefreshRecent(ctx); err != nil {
		component("sampler").WithError(err).Warn("Could not load recent readings")
	}

	if cfg.Autostart {
		if err := loop.Start(cfg.Interval); err != nil {
			component("sampler").WithError(err).Error("Autostart failed")
		}
	}

	if cfg.HTTPAddr != "" {
		api := httpapi.New(loop, store, m, component("httpapi"))
		defer api.Close()
		go func() {
			if err := httpapi.ListenAndServe(ctx, cfg.HTTPAddr, api.Handler(), component("httpapi")); err != nil && !errors.Is(err, http.ErrServerClosed) {
				component("httpapi").WithError(err).Error("HTTP API stopped")
			}
		}()
	}

	srv, err := server.New(server.Deps{
		Loop:      loop,
		Frames:    frames,
		Selection: selection,
		Engine:    engine,
		Storage:   store,
		Version:   Version,
		Log:       component("mcp"),
	})
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server: %w", err)
	}

	// stdin closed: keep sampling and serving HTTP until interrupted.
	if ctx.Err() == nil && (loop.State() == sampler.Running || cfg.HTTPAddr != "") {
		logger.Info("MCP client disconnected; running headless until interrupted")
		<-ctx.Done()
	}
	return nil
}

func newEngine(cfg *config.Config) (ocr.Engine, error) {
	if cfg.OCREngine == config.EngineOllama {
		return ocr.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	}
	return ocr.NewTesseract(cfg.TessdataPrefix), nil
}

// openFrames selects the snapshot file when configured, otherwise the
// camera. A camera that cannot be opened leaves sampling running with no
// frames, so cycles report no_frame.
func openFrames(ctx context.Context, cfg *config.Config, log *logrus.Entry) (camera.Frames, func()) {
	if cfg.SnapshotPath != "" {
		log.WithField("path", cfg.SnapshotPath).Info("Using snapshot frame source")
		return camera.NewSnapshot(cfg.SnapshotPath, imaging.NewFrameCache(), log), func() {}
	}

	dev, err := camera.OpenDevice(ctx, camera.DeviceConfig{
		Index:    cfg.CameraIndex,
		RTSPURL:  cfg.RTSPURL,
		Username: cfg.RTSPUsername,
		Password: cfg.RTSPPassword,
	}, log)
	if err != nil {
		log.WithError(err).Error("Camera unavailable")
		return noFrames{}, func() {}
	}
	return dev, func() {
		if err := dev.Close(); err != nil {
			log.WithError(err).Warn("Camera did not close cleanly")
		}
	}
}

type noFrames struct{}

func (noFrames) CurrentFrame() *imaging.Buffer { return nil }
