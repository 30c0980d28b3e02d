package main

import (
	"io"
	"log/slog"

	"github.com/nvr-ai/leafscan/config"
	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/nvr-ai/leafscan/inference/detectors"
	"github.com/nvr-ai/leafscan/knowledge"
	"github.com/nvr-ai/leafscan/profiler"
	"github.com/pkg/errors"
)

// app holds the process-wide singletons: the knowledge store, the detector
// and the diagnosis service built on them.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	knowledge *knowledge.Store
	detector  detectors.Detector
	profiler  *profiler.RuntimeProfiler
	service   *diagnosis.Service
	ownsORT   bool
}

type appOptions struct {
	// dryRun replaces the ONNX detector with one that finds nothing.
	dryRun bool
	// logOutput receives the logs.
	logOutput io.Writer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(flagLogLevel)); err != nil {
			return nil, errors.Wrapf(err, "invalid --log-level %q", flagLogLevel)
		}
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

func loadKnowledge(cfg *config.Config) (*knowledge.Store, error) {
	if cfg.Knowledge.Path == "" {
		return knowledge.LoadDefault()
	}
	return knowledge.Load(cfg.Knowledge.Path)
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger := newLogger(cfg, opts.logOutput)

	store, err := loadKnowledge(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, knowledge: store}

	if opts.dryRun {
		a.detector = &detectors.StaticDetector{Names: inference.Names(store.Names())}
	} else {
		d, err := detectors.NewONNXDetector(cfg.Detector.Detectors(), logger.With("system", "detector"))
		if err != nil {
			return nil, errors.Wrap(err, "load detector")
		}
		a.detector = d
		a.ownsORT = true
	}

	a.profiler = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
		ReportInterval: cfg.ReportIntervalDuration(),
		Logger:         logger,
	})

	a.service, err = diagnosis.NewService(diagnosis.ServiceArgs{
		Detector:       a.detector,
		Knowledge:      store,
		Profiler:       a.profiler,
		Logger:         logger,
		MaxImageSide:   cfg.UI.MaxImageSide,
		MaxImagePixels: cfg.UI.MaxImagePixels,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	defaults := cfg.UI.Options()
	logger.Info("leafscan ready",
		"version", version,
		"env", cfg.Env(),
		"model", cfg.Detector.ModelPath,
		"dry_run", opts.dryRun,
		"detector_classes", len(a.detector.Classes()),
		"knowledge_classes", store.Len(),
		"default_confidence", defaults.Threshold,
		"floor_confidence", cfg.Detector.Detectors().FloorConfidence,
		"nms_threshold", cfg.Detector.NMSThreshold,
	)
	return a, nil
}

// Close releases the detector and the runtime.
func (a *app) Close() {
	a.profiler.Stop()
	if err := a.detector.Close(); err != nil {
		a.logger.Error("close detector", "error", err)
	}
	if a.ownsORT {
		if err := inference.DestroyEnvironment(); err != nil {
			a.logger.Error("destroy onnxruntime environment", "error", err)
		}
	}
}
