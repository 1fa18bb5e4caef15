package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-dispatch/inference-dispatch/dispatch"
	"github.com/inference-dispatch/inference-dispatch/dispatch/metrics"
	"github.com/inference-dispatch/inference-dispatch/dispatch/simulated"
)

var (
	// CLI flags for dispatcher configs
	logLevel      string        // Log verbosity level
	timeout       time.Duration // Hard deadline per model invocation
	cacheEnabled  bool          // Whether the result cache is consulted
	cacheCapacity int           // Max result cache entries
	cacheTTL      time.Duration // Cache entry time-to-live
	batchEnabled  bool          // Whether batches fan out concurrently
	batchWidth    int           // Max requests dispatched together
	batchWindow   time.Duration // Batch aggregation wait bound
	parallel      int           // Max concurrent model invocations (0 = unbounded)

	// CLI flags for generation configs
	temperature float64 // Sampling temperature
	topP        float64 // Nucleus sampling threshold
	maxTokens   int     // Max output length in tokens

	// Simulated model configs
	seed          int64         // Seed for the simulated runtime RNG
	baseLatency   time.Duration // Simulated fixed cost per generate call
	perTokenCost  time.Duration // Simulated per-output-token cost
	latencyJitter float64       // Simulated latency jitter fraction
	loadDelay     time.Duration // Simulated weight-load delay

	// Bench workload configs
	numPrompts     int     // Number of requests to replay
	duplicateRatio float64 // Fraction of prompts repeated to exercise the cache

	// Config bundle and outputs
	configPath  string // Path to YAML config bundle (flags override)
	resultsPath string // File to save the stats report to
	dumpMetrics bool   // Print prometheus metrics after the run
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "inference-dispatch",
	Short: "Bounded-latency dispatch layer for text-generation runtimes",
}

// benchCmd replays a generated workload through a dispatcher backed by the
// simulated runtime and reports the resulting statistics.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a dispatch benchmark against the simulated runtime",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := dispatch.DefaultInferenceConfig()

		// Apply bundle values as defaults; CLI flags override via Changed().
		// Pointer fields (nil = not set in YAML) distinguish "0" from "unset".
		if configPath != "" {
			bundle, err := dispatch.LoadConfigBundle(configPath)
			if err != nil {
				logrus.Fatalf("Failed to load config bundle: %v", err)
			}
			cfg = bundle.Apply(cfg)
		}
		if cmd.Flags().Changed("timeout") {
			cfg.Dispatcher.Timeout = timeout
		}
		if cmd.Flags().Changed("cache") {
			cfg.Dispatcher.CacheEnabled = cacheEnabled
		}
		if cmd.Flags().Changed("cache-capacity") {
			cfg.Dispatcher.CacheCapacity = cacheCapacity
		}
		if cmd.Flags().Changed("cache-ttl") {
			cfg.Dispatcher.CacheTTL = cacheTTL
		}
		if cmd.Flags().Changed("batch") {
			cfg.Dispatcher.BatchEnabled = batchEnabled
		}
		if cmd.Flags().Changed("batch-width") {
			cfg.Dispatcher.BatchWidth = batchWidth
		}
		if cmd.Flags().Changed("batch-window") {
			cfg.Dispatcher.BatchWindow = batchWindow
		}
		if cmd.Flags().Changed("parallel") {
			cfg.Resources.Parallel = parallel
		}
		if cmd.Flags().Changed("temperature") {
			cfg.Generation.Temperature = temperature
		}
		if cmd.Flags().Changed("top-p") {
			cfg.Generation.TopP = topP
		}
		if cmd.Flags().Changed("max-tokens") {
			cfg.Generation.MaxTokens = maxTokens
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		if numPrompts < 1 {
			logrus.Fatalf("--num-prompts must be >= 1, got %d", numPrompts)
		}
		if duplicateRatio < 0 || duplicateRatio >= 1 {
			logrus.Fatalf("--duplicate-ratio must be in [0, 1), got %f", duplicateRatio)
		}

		profile := simulated.NewLatencyProfile(baseLatency, 0, perTokenCost, latencyJitter)
		d, err := dispatch.NewDispatcher(cfg, simulated.Loader(profile, seed, loadDelay))
		if err != nil {
			logrus.Fatalf("Failed to construct dispatcher: %v", err)
		}

		registry := prometheus.NewRegistry()
		if err := registry.Register(metrics.NewDispatcherCollector(d)); err != nil {
			logrus.Fatalf("Failed to register metrics collector: %v", err)
		}

		ctx := context.Background()
		if err := d.Load(ctx); err != nil {
			logrus.Fatalf("Model load failed: %v", err)
		}

		logrus.Infof("Starting bench: %d prompts, timeout=%v, cache=%v(cap=%d ttl=%v), batch=%v(width=%d)",
			numPrompts, cfg.Dispatcher.Timeout, cfg.Dispatcher.CacheEnabled, cfg.Dispatcher.CacheCapacity,
			cfg.Dispatcher.CacheTTL, cfg.Dispatcher.BatchEnabled, cfg.Dispatcher.BatchWidth)

		prompts := buildWorkload(numPrompts, duplicateRatio)
		startTime := time.Now()
		outcomes := d.InferBatch(ctx, prompts, nil, true)
		elapsed := time.Since(startTime)

		failures := 0
		for _, out := range outcomes {
			if out.Err != nil {
				failures++
			}
		}
		if failures > 0 {
			logrus.Warnf("%d of %d requests failed", failures, len(outcomes))
		}

		saveReport(d.Stats(), elapsed, resultsPath)

		if dumpMetrics {
			families, err := registry.Gather()
			if err != nil {
				logrus.Fatalf("Failed to gather metrics: %v", err)
			}
			fmt.Println("=== Prometheus Metrics ===")
			enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
			for _, mf := range families {
				if err := enc.Encode(mf); err != nil {
					logrus.Fatalf("Failed to encode metrics: %v", err)
				}
			}
		}

		if err := d.Unload(); err != nil {
			logrus.Warnf("Unload failed: %v", err)
		}
		logrus.Info("Bench complete.")
	},
}

// buildWorkload generates n prompts. The first duplicateRatio fraction reuse
// a small set of repeated prompts so the result cache sees hits.
func buildWorkload(n int, duplicateRatio float64) []string {
	prompts := make([]string, 0, n)
	repeated := int(float64(n) * duplicateRatio)
	for i := 0; i < n; i++ {
		if i < repeated {
			prompts = append(prompts, fmt.Sprintf("repeated prompt %d", i%4))
		} else {
			prompts = append(prompts, fmt.Sprintf("unique prompt %d about topic %d", i, i*7))
		}
	}
	return prompts
}

// benchReport is the JSON report written after a bench run.
type benchReport struct {
	WallClockSec float64        `json:"wall_clock_sec"`
	Stats        dispatch.Stats `json:"stats"`
	HitRate      float64        `json:"cache_hit_rate"`
}

// saveReport prints the stats report to stdout and optionally writes it to a file.
func saveReport(stats dispatch.Stats, elapsed time.Duration, outputFilePath string) {
	report := benchReport{
		WallClockSec: elapsed.Seconds(),
		Stats:        stats,
		HitRate:      stats.CacheHitRate(),
	}
	fmt.Println("=== Dispatch Statistics ===")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Println("Error marshalling:", err)
		return
	}
	fmt.Println(string(data))

	if outputFilePath != "" {
		if err := os.WriteFile(outputFilePath, data, 0644); err != nil {
			fmt.Printf("Error writing JSON file: %v\n", err)
			return
		}
		fmt.Printf("\nReport written to: %s\n", outputFilePath)
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	benchCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	benchCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config bundle (flags override file values)")

	// Dispatcher configs
	benchCmd.Flags().DurationVar(&timeout, "timeout", 20*time.Millisecond, "Hard deadline per model invocation")
	benchCmd.Flags().BoolVar(&cacheEnabled, "cache", true, "Enable the result cache")
	benchCmd.Flags().IntVar(&cacheCapacity, "cache-capacity", 256, "Maximum result cache entries")
	benchCmd.Flags().DurationVar(&cacheTTL, "cache-ttl", 5*time.Minute, "Result cache entry time-to-live")
	benchCmd.Flags().BoolVar(&batchEnabled, "batch", true, "Dispatch batches concurrently")
	benchCmd.Flags().IntVar(&batchWidth, "batch-width", 8, "Maximum requests dispatched together")
	benchCmd.Flags().DurationVar(&batchWindow, "batch-window", 10*time.Millisecond, "Batch aggregation wait bound")
	benchCmd.Flags().IntVar(&parallel, "parallel", 0, "Max concurrent model invocations (0 = unbounded)")

	// Generation configs
	benchCmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Sampling temperature")
	benchCmd.Flags().Float64Var(&topP, "top-p", 0.9, "Nucleus sampling threshold")
	benchCmd.Flags().IntVar(&maxTokens, "max-tokens", 256, "Maximum output tokens")

	// Simulated runtime configs
	benchCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for simulated latency jitter")
	benchCmd.Flags().DurationVar(&baseLatency, "sim-base-latency", 2*time.Millisecond, "Simulated fixed cost per generate call")
	benchCmd.Flags().DurationVar(&perTokenCost, "sim-per-token", 20*time.Microsecond, "Simulated per-output-token cost")
	benchCmd.Flags().Float64Var(&latencyJitter, "sim-jitter", 0.1, "Simulated latency jitter fraction [0, 1)")
	benchCmd.Flags().DurationVar(&loadDelay, "sim-load-delay", 50*time.Millisecond, "Simulated weight-load delay")

	// Workload configs
	benchCmd.Flags().IntVar(&numPrompts, "num-prompts", 100, "Number of requests to replay")
	benchCmd.Flags().Float64Var(&duplicateRatio, "duplicate-ratio", 0.25, "Fraction of prompts repeated to exercise the cache")

	// Outputs
	benchCmd.Flags().StringVar(&resultsPath, "results-path", "", "File to save the stats report to")
	benchCmd.Flags().BoolVar(&dumpMetrics, "dump-metrics", false, "Print prometheus metrics after the run")

	// Attach `bench` as a subcommand to `root`
	rootCmd.AddCommand(benchCmd)
}
