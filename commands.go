package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nvr-ai/leafscan/benchmark"
	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/server"
	"github.com/nvr-ai/leafscan/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload page and the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, appOptions{logOutput: os.Stderr})
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(server.Args{
				Server:    cfg.Server,
				Defaults:  cfg.UI.Options(),
				Service:   a.service,
				Knowledge: a.knowledge,
				Logger:    a.logger,
				Version:   version,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.profiler.Start()
			return srv.Run(ctx)
		},
	}
}

type detectFlags struct {
	confidence float32
	boxes      bool
	out        string
	json       bool
	dryRun     bool
}

func detectCmd() *cobra.Command {
	var f detectFlags
	defaults := diagnosis.DefaultOptions()

	c := &cobra.Command{
		Use:   "detect <image|dir>",
		Short: "Diagnose an image or every image in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts := cfg.UI.Options()
			if cmd.Flags().Changed("confidence") {
				opts.Threshold = f.confidence
			}
			if cmd.Flags().Changed("boxes") {
				opts.DrawBoxes = f.boxes
			}
			if !diagnosis.ValidThreshold(opts.Threshold) {
				return errors.Wrapf(diagnosis.ErrInvalidThreshold, "got %v", opts.Threshold)
			}

			files, err := util.LoadImageFiles(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.Errorf("no images found in %s", args[0])
			}

			a, err := newApp(cfg, appOptions{dryRun: f.dryRun, logOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			return runDetect(cmd.Context(), a.service, files, opts, f, cmd.OutOrStdout())
		},
	}

	c.Flags().Float32Var(&f.confidence, "confidence", defaults.Threshold, "minimum confidence to report a detection (0-1)")
	c.Flags().BoolVar(&f.boxes, "boxes", defaults.DrawBoxes, "draw bounding boxes on the written image")
	c.Flags().StringVar(&f.out, "out", "", "write the result image here: a file for one image, a directory for several")
	c.Flags().BoolVar(&f.json, "json", false, "print reports as JSON lines")
	c.Flags().BoolVar(&f.dryRun, "dry-run", false, "skip the model and use a detector that finds nothing")
	return c
}

func runDetect(ctx context.Context, svc *diagnosis.Service, files []util.ImageFile, opts diagnosis.Options, f detectFlags, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var failed int
	for _, file := range files {
		report, err := svc.Diagnose(ctx, file.Data, opts)
		if err != nil {
			if len(files) == 1 {
				return errors.Wrap(err, file.Path)
			}
			failed++
			fmt.Fprintf(w, "%s: error: %v\n", file.Path, err)
			continue
		}

		if f.json {
			if err := json.NewEncoder(w).Encode(struct {
				Path string `json:"path"`
				*diagnosis.Report
			}{file.Path, report}); err != nil {
				return errors.Wrap(err, "encode report")
			}
		} else {
			printReport(w, file.Path, report)
		}

		if f.out != "" {
			dst := outputPath(f.out, file.Path, len(files) > 1)
			if err := writePNG(dst, report); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d images failed", failed, len(files))
	}
	return nil
}

// printReport writes a human readable summary of a report.
func printReport(w io.Writer, path string, r *diagnosis.Report) {
	fmt.Fprintf(w, "%s\n", path)
	if r.NoDetection {
		headline, detail := r.Message()
		fmt.Fprintf(w, "  %s\n  %s\n", headline, detail)
		return
	}
	fmt.Fprintf(w, "  Detected leaves: %d  Unique diseases: %d\n", r.Summary.Detections, r.Summary.Unique)
	for _, c := range r.Summary.Classes {
		fmt.Fprintf(w, "  - %s [%.2f]\n", c.Label, c.BestConfidence)
		if !c.Known {
			fmt.Fprintf(w, "      Information not available for this class.\n")
			continue
		}
		fmt.Fprintf(w, "      Cause: %s\n", c.Cause)
		fmt.Fprintf(w, "      Cure/Treatment: %s\n", c.Cure)
	}
}

func outputPath(out, src string, many bool) string {
	if !many {
		return out
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(out, base+".leafscan.png")
}

func writePNG(path string, r *diagnosis.Report) error {
	data, err := images.EncodePNG(r.Image)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

type benchFlags struct {
	scenarios  string
	iterations int
	warmup     int
	out        string
	dryRun     bool
}

func benchCmd() *cobra.Command {
	var f benchFlags

	c := &cobra.Command{
		Use:   "bench <image|dir>",
		Short: "Measure diagnosis latency over an image corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			scenarios := benchmark.DefaultScenarios()
			if f.scenarios != "" {
				if scenarios, err = benchmark.LoadScenarios(f.scenarios); err != nil {
					return err
				}
			}
			for i := range scenarios {
				if cmd.Flags().Changed("iterations") {
					scenarios[i].Iterations = f.iterations
				}
				if cmd.Flags().Changed("warmup") {
					scenarios[i].WarmupRuns = f.warmup
				}
			}

			files, err := util.LoadImageFiles(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.Errorf("no images found in %s", args[0])
			}

			a, err := newApp(cfg, appOptions{dryRun: f.dryRun, logOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			suite, err := benchmark.NewSuite(benchmark.SuiteArgs{
				Service:   a.service,
				Corpus:    files,
				OutputDir: f.out,
				Logger:    a.logger.With("system", "benchmark"),
			})
			if err != nil {
				return err
			}
			for _, s := range scenarios {
				if err := suite.AddScenario(s); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, err := suite.RunAllScenarios(ctx)
			if err != nil {
				return err
			}
			printBench(cmd.OutOrStdout(), results)

			if f.out != "" {
				jsonPath, csvPath, err := suite.SaveResults(time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "results: %s\nsummary: %s\n", jsonPath, csvPath)
			}
			return nil
		},
	}

	c.Flags().StringVar(&f.scenarios, "scenarios", "", "TOML file of [[scenario]] tables to run instead of the defaults")
	c.Flags().IntVar(&f.iterations, "iterations", 10, "measured passes over the corpus per scenario")
	c.Flags().IntVar(&f.warmup, "warmup", 1, "unmeasured passes over the corpus per scenario")
	c.Flags().StringVar(&f.out, "out", "", "directory for JSON and CSV results")
	c.Flags().BoolVar(&f.dryRun, "dry-run", false, "skip the model and use a detector that finds nothing")
	return c
}

func printBench(w io.Writer, results []benchmark.PerformanceMetrics) {
	fmt.Fprintf(w, "%-16s %9s %10s %10s %10s %7s\n", "scenario", "img/s", "mean", "p95", "p99", "errors")
	for _, r := range results {
		fmt.Fprintf(w, "%-16s %9.2f %10s %10s %10s %7d\n",
			r.Scenario.Name,
			r.ImagesPerSecond,
			r.Latency.Mean.Round(time.Microsecond),
			r.Latency.P95.Round(time.Microsecond),
			r.Latency.P99.Round(time.Microsecond),
			r.Errors,
		)
	}
}

func classesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List the disease classes in the knowledge store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := loadKnowledge(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, name := range store.Names() {
				entry, _ := store.Lookup(name)
				fmt.Fprintf(w, "%s\n    cause: %s\n    cure:  %s\n", name, entry.Cause, entry.Cure)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
