package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vsharma-va/ABB-Final/internal/api"
	"github.com/vsharma-va/ABB-Final/internal/config"
	"github.com/vsharma-va/ABB-Final/internal/gbdt"
	"github.com/vsharma-va/ABB-Final/internal/ingest"
	"github.com/vsharma-va/ABB-Final/internal/simulation"
	"github.com/vsharma-va/ABB-Final/internal/storage"
	"github.com/vsharma-va/ABB-Final/internal/training"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the intelliinspect server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running intelliinspect server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, model and dataset status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "intelliinspect.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// trainingParams applies the configurable tree depth to the default
// 100-round, 0.1 learning rate ensemble.
func trainingParams(cfg config.Config) gbdt.Params {
	p := gbdt.DefaultParams()
	p.MaxDepth = cfg.Training.MaxDepth
	return p
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "intelliinspect version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("intelliinspect is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("intelliinspect is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	loc := cfg.Location()
	files := storage.NewFiles(cfg.Storage.DataDir)
	params := trainingParams(cfg)
	repo := training.NewMemoryRepository()

	trainer := training.NewTrainer(training.Config{
		Repo:     repo,
		Recorder: store,
		Params:   &params,
		Location: loc,
		Logger:   logger.With("component", "training"),
	})
	simulator := simulation.NewEngine(repo, training.KindXGBoost, cfg.Simulation.Interval).
		WithLogger(logger.With("component", "simulation"))

	handler := api.NewAppHandler(api.AppDeps{
		Store:          store,
		Files:          files,
		Ingester:       ingest.NewIngester(store, files, loc, cfg.MaxUploadBytes()).WithLogger(logger.With("component", "ingest")),
		Trainer:        trainer,
		Simulator:      simulator,
		DataDir:        cfg.Storage.DataDir,
		Location:       loc,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger.With("component", "api"),
	})

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	slog.Info("server configured",
		"data_dir", cfg.Storage.DataDir,
		"timezone", loc.String(),
		"simulation_interval", cfg.Simulation.Interval,
		"rounds", params.Rounds,
	)

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "intelliinspect listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Open simulation streams end with the base context, so shutdown does
	// not wait for them to drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("intelliinspect is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop intelliinspect (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to intelliinspect (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient = &http.Client{Timeout: 2 * time.Second}

	if !reportStatus(ctx, client) {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "running at %s", client.baseURL)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Timezone", "%s", cfg.Simulation.Timezone)
	return nil
}

// reportStatus prints model and dataset status from a running server. It
// returns false when the server is unreachable.
func reportStatus(ctx context.Context, client *apiClient) bool {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return true
	}

	var m metricsResponse
	if resp, err := client.get(ctx, "/model/metrics"); err == nil && decodeJSON(resp, &m) == nil {
		if m.Error != nil {
			printStatus("Model", "not trained")
		} else {
			printStatus("Model", "trained (accuracy %.4f)", m.Accuracy)
		}
	}

	var datasets []json.RawMessage
	if resp, err := client.get(ctx, "/datasets?limit=100"); err == nil && decodeJSON(resp, &datasets) == nil {
		printStatus("Datasets", "%s", countLabel(len(datasets), 100))
	}
	return true
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
