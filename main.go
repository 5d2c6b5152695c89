package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pi-camera-node/camera"
	"pi-camera-node/config"
	"pi-camera-node/mjpeg"
	"pi-camera-node/mmal"
	"pi-camera-node/publish"
	"pi-camera-node/web"
)

const (
	DefaultConfigPath = "config.toml"
	AppName           = "Pi Camera Node"
	AppVersion        = "1.0.0"
)

// Application wires the pipeline, the publishers and the web server.
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	pipeline  *camera.Pipeline
	generator *mmal.Generator
	nats      *publish.NATSPublisher
	streamer  *mjpeg.Streamer
	hub       *web.PreviewHub
	webServer *web.Server
}

func main() {
	var (
		configPath = flag.String("config", DefaultConfigPath, "Path to configuration file")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		simulate   = flag.Bool("simulate", false, "Run against the in-memory runtime instead of camera hardware")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	logger, err := createLogger(*logLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Pi Camera Node",
		zap.String("version", AppVersion),
		zap.String("go_version", runtime.Version()),
		zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH))

	cfg, err := config.LoadConfig(*configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *simulate {
		cfg.Camera.Simulate = true
	}

	app := &Application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	if err := app.Start(); err != nil {
		logger.Fatal("Failed to start application", zap.Error(err))
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	sig := <-signalCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.Stop()
	logger.Info("Shutdown complete")
}

// Start builds the sink chain, the pipeline and the web server, and begins
// capturing.
func (a *Application) Start() error {
	cfg := a.config

	cal, err := config.LoadCalibration(cfg.Calibration.Path, a.logger)
	if err != nil {
		a.logger.Warn("Camera uncalibrated", zap.Error(err))
	}
	info := camera.InfoFromCalibration(cal, cfg.Calibration.FramePrefix)

	sinks := []camera.FrameSink{}

	if cfg.NATS.Enabled {
		pub, err := publish.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		a.nats = pub
		sinks = append(sinks, pub)
	}

	if cfg.RTP.Enabled {
		a.streamer = mjpeg.NewStreamer(cfg.RTP, cfg.Camera.Width, cfg.Camera.Height, a.logger)
		if err := a.streamer.Start(); err != nil {
			return fmt.Errorf("failed to start RTP streamer: %w", err)
		}
		sinks = append(sinks, a.streamer)
	}

	a.hub = web.NewPreviewHub(a.logger)
	sinks = append(sinks, a.hub)

	sink := publish.NewMultiSink(sinks...)
	metrics := camera.NewMetrics(a.registry)

	// The VideoCore-backed runtime plugs in behind mmal.Runtime on target
	// hardware; this build carries the in-memory runtime.
	if !cfg.Camera.Simulate {
		a.logger.Warn("Hardware runtime not compiled in, using simulated runtime")
	} else {
		a.logger.Info("Using simulated camera runtime")
	}
	sim := mmal.NewSimRuntime()
	var rt mmal.Runtime = sim

	a.pipeline = camera.NewPipeline(rt, cfg.Camera, info, sink, metrics, a.logger)
	if err := a.pipeline.Start(); err != nil {
		return fmt.Errorf("failed to start camera pipeline: %w", err)
	}

	if sim != nil {
		a.generator = mmal.NewGenerator(sim, mmal.GeneratorConfig{
			Width:      cfg.Camera.Width,
			Height:     cfg.Camera.Height,
			Monochrome: cfg.Camera.Monochrome,
			FrameRate:  cfg.Camera.Framerate,
		}, a.pipeline.RawPort(), a.pipeline.EncodedPort(), a.pipeline.CapturePort(), a.logger)
		a.generator.Start()
	}

	a.webServer = web.NewServer(cfg, a.pipeline, a.hub, a.registry, a.logger)
	if err := a.webServer.Start(); err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}

	a.logger.Info("Application started",
		zap.String("address", fmt.Sprintf("http://%s:%d", cfg.Server.BindIP, cfg.Server.WebPort)))
	return nil
}

// Stop tears everything down in reverse order of startup. The pipeline's
// Stop is the single close path shared with signal-driven shutdown.
func (a *Application) Stop() {
	a.logger.Info("Shutting down...")

	if a.webServer != nil {
		if err := a.webServer.Stop(); err != nil {
			a.logger.Error("Error stopping web server", zap.Error(err))
		}
	}
	if a.generator != nil {
		a.generator.Stop()
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}
	if a.streamer != nil {
		a.streamer.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.nats != nil {
		a.nats.Close()
	}
}

// createLogger creates the structured logger.
func createLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
