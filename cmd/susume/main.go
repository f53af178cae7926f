// Package main is the Susume CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/config"
	"github.com/hyperjump/susume/internal/engine"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/server"
	"github.com/hyperjump/susume/internal/similarity"
	"github.com/hyperjump/susume/internal/storage"
	"github.com/hyperjump/susume/internal/watcher"
	"github.com/hyperjump/susume/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/susume/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "sync":
		runTrigger("sync", "/api/v1/sync")
	case "train":
		runTrigger("train", "/api/v1/train")
	case "retrain":
		runTrigger("retrain", "/api/v1/retrain")
	case "similar":
		runLookup("similar", "/api/v1/similar")
	case "copurchased":
		runLookup("copurchased", "/api/v1/copurchased")
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("susume version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: susume <command> [flags]

Commands:
  server          run the recommendation server
  sync            refresh the analytics copy from production
  train           train a new model generation from the analytics copy
  retrain         sync, then train (full refresh)
  similar         top-N products similar to a product id
  copurchased     top-N products frequently bought together with a product id
  status          live generation and trainer state
  version         print version

Run 'susume <command> -h' for command flags.
`)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	production, err := storage.NewSQLiteProductionStore(cfg.Storage.ProductionDBPath)
	if err != nil {
		logger.Fatal("Failed to open production store", zap.Error(err))
	}
	defer production.Close()
	analytics, err := storage.NewSQLiteAnalyticsStore(cfg.Storage.AnalyticsDBPath)
	if err != nil {
		logger.Fatal("Failed to open analytics store", zap.Error(err))
	}
	defer analytics.Close()
	syncer := storage.NewSyncer(production, analytics, storage.WithSyncLogger(logger))

	var simOpts []similarity.Option
	if cfg.Training.PrecomputeTopK > 0 {
		simOpts = append(simOpts, similarity.WithPrecomputedTopK(cfg.Training.PrecomputeTopK))
	}

	store := engine.NewStore()
	trainerOpts := []engine.TrainerOption{
		engine.WithLogger(logger),
		engine.WithPrecomputedTopK(cfg.Training.PrecomputeTopK),
	}
	if gen, err := engine.LoadLatest(cfg.Storage.ModelDir, logger, simOpts...); err != nil {
		logger.Warn("loading persisted generation failed", zap.Error(err))
	} else if gen != nil {
		store.Swap(gen)
		trainerOpts = append(trainerOpts, engine.WithLastGenerationID(gen.ID))
		logger.Info("loaded persisted generation",
			zap.Uint64("generation", gen.ID),
			zap.Int("products", len(gen.Products)),
		)
	}
	trainer := engine.NewTrainer(analytics, store, cfg.Storage.ModelDir, trainerOpts...)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.EnabledOrDefault() {
		if err := os.MkdirAll(cfg.Storage.ModelDir, 0755); err != nil {
			logger.Fatal("Failed to create model dir", zap.Error(err))
		}
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.NewWatcher(cfg.Storage.ModelDir, func(path string) {
			gen, err := engine.Load(path, simOpts...)
			if err != nil {
				logger.Warn("reloading artifact failed", zap.String("path", path), zap.Error(err))
				return
			}
			if store.SwapIfNewer(gen) {
				logger.Info("hot-reloaded newer generation", zap.Uint64("generation", gen.ID))
			}
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start model watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(store, trainer, syncer, analytics, &cfg.Server, &cfg.Serving, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// runTrigger fires one of the long-running POST operations (sync, train,
// retrain) and prints the server's JSON response.
func runTrigger(name, path string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	timeout := fs.Duration("timeout", 10*time.Minute, "request timeout (training is long-running)")
	_ = fs.Parse(os.Args[2:])

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Post(joinURL(*serverURL, path), "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "%s failed (%s): %s\n", name, resp.Status, string(body))
		os.Exit(1)
	}
	printIndented(body)
}

// runLookup queries one of the recommendation endpoints for a product id.
func runLookup(name, path string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	limit := fs.Int("limit", 10, "number of results")
	outputJSON := fs.Bool("json", false, "print raw JSON instead of text")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: susume %s [flags] <product-id>\n", name)
		os.Exit(1)
	}

	url := fmt.Sprintf("%s/%s?limit=%d", joinURL(*serverURL, path), fs.Arg(0), *limit)
	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "%s failed (%s): %s\n", name, resp.Status, string(body))
		os.Exit(1)
	}
	if *outputJSON {
		printIndented(body)
		return
	}
	var recs []models.Recommendation
	if err := json.Unmarshal(body, &recs); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse response: %v\n", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("No recommendations.")
		return
	}
	for i, rec := range recs {
		fmt.Printf("%2d. [%d] %s  (%.2f)  %s\n", i+1, rec.ProductID, rec.Name, rec.Score, rec.Reason)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(joinURL(*serverURL, "/api/v1/status"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	printIndented(body)
}

// joinURL joins a base server URL with a path, tolerating a trailing slash on
// the base.
func joinURL(base, path string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}

// printIndented pretty-prints a JSON body, falling back to raw output when it
// is not valid JSON.
func printIndented(body []byte) {
	var buf interface{}
	if err := json.Unmarshal(body, &buf); err != nil {
		fmt.Println(string(body))
		return
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(string(out))
}
