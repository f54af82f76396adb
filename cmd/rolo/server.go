package main

import (
	"context"
	"errors"
	"fmt"
	"io"
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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/rolo/internal/api"
	"github.com/kalambet/rolo/internal/config"
	"github.com/kalambet/rolo/internal/generator"
	"github.com/kalambet/rolo/internal/ollama"
	"github.com/kalambet/rolo/internal/pipeline"
	"github.com/kalambet/rolo/internal/retrieval"
	"github.com/kalambet/rolo/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the rolo server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running rolo server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rolo system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "rolo.pid")
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

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// contactStore is what the server needs from either storage backend.
type contactStore interface {
	retrieval.ContactStore
	io.Closer
}

func openStore(ctx context.Context, cfg config.Config) (contactStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		s, err := storage.OpenPostgres(ctx, cfg.Secrets.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "rolo version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("rolo is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("rolo is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("Opening %s contact store", cfg.Storage.Driver)
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	printStep("Connecting to %s", cfg.Generator.Provider)
	if cfg.Generator.Provider == generator.ProviderOllama {
		if err := ollama.EnsureReady(ctx, ollama.New(ollamaURL(cfg)), generatorModel(cfg), os.Stderr); err != nil {
			return err
		}
	}
	gen, err := generator.New(ctx, cfg.GeneratorSettings())
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	repo := retrieval.NewRepository(store, cfg.Retrieval.GeneralLimit)
	pipe := pipeline.New(repo, gen, pipeline.Options{
		DisplayLimit: cfg.Context.DisplayLimit,
		Language:     cfg.Pipeline.Language,
		Timeout:      cfg.Generator.Timeout,
	})

	if cfg.Secrets.APIToken == "" {
		slog.Info("API bearer token not set, /v1 routes are open to local callers")
	}
	handler := api.NewHandler(api.Deps{
		Pipeline: pipe,
		Contacts: repo,
		Token:    cfg.Secrets.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Pipeline: pipe,
			Contacts: repo,
			Version:  version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "rolo listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	// Graceful shutdown with timeout.
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
		printError("rolo is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop rolo (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to rolo (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	c := clientFor(cfg, &http.Client{Timeout: 2 * time.Second})

	running := false
	var apiErr *apiError
	switch err := c.call(context.Background(), http.MethodGet, "/health", nil, nil); {
	case err == nil:
		running = true
		printStatus("Server", "running on port %d", cfg.Server.Port)
	case errors.As(err, &apiErr):
		printStatus("Server", "error (HTTP %d)", apiErr.Status)
	default:
		printStatus("Server", "stopped")
	}

	printStatus("Generator", "%s (%s)", cfg.Generator.Provider, generatorModel(cfg))
	if cfg.Generator.Provider == generator.ProviderOllama {
		oc := ollama.New(ollamaURL(cfg))
		switch {
		case !oc.IsRunning(context.Background()):
			printStatus("Ollama", "not running at %s", oc.BaseURL())
		case !oc.HasModel(context.Background(), generatorModel(cfg)):
			printStatus("Ollama", "running at %s, model %s not pulled", oc.BaseURL(), generatorModel(cfg))
		default:
			printStatus("Ollama", "running at %s", oc.BaseURL())
		}
	}

	if err := cfg.Validate(); err != nil {
		printWarning("configuration problems:\n%v", err)
	}

	if running {
		var st api.StatsResponse
		if c.call(context.Background(), http.MethodGet, "/v1/stats", nil, &st) == nil {
			printStatus("Contacts", "%d", st.Contacts)
			printStatus("Interactions", "%d", st.Interactions)
		}
	}

	printStatus("Storage", "%s", storageLabel(cfg))
	return nil
}

func generatorModel(cfg config.Config) string {
	if cfg.Generator.Model != "" {
		return cfg.Generator.Model
	}
	switch cfg.Generator.Provider {
	case generator.ProviderGemini:
		return generator.DefaultGeminiModel
	case generator.ProviderOpenRouter:
		return generator.DefaultOpenRouterModel
	case generator.ProviderOllama:
		return generator.DefaultOllamaModel
	}
	return "unknown"
}

func ollamaURL(cfg config.Config) string {
	if cfg.Generator.BaseURL != "" {
		return cfg.Generator.BaseURL
	}
	return generator.DefaultOllamaURL
}

func storageLabel(cfg config.Config) string {
	if cfg.Storage.Driver == config.DriverPostgres {
		return "postgres"
	}
	return "sqlite at " + cfg.Storage.DataDir
}
