// Command llmscraper runs chat scrape tasks: one-shot from a task file or
// stdin, a batch of tasks with bounded concurrency, or a long-running task
// API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/api"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/chatgpt"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/config"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/scrapeless"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/task"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/webhook"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a config file (default: standard locations)")
		taskPath    = flag.String("task", "", "task JSON file for one-shot mode (default: stdin)")
		batchPath   = flag.String("batch", "", "file holding a JSON array of tasks")
		concurrency = flag.Int("concurrency", 3, "concurrent tasks in batch mode")
		serve       = flag.Bool("serve", false, "run the task API server")
	)
	flag.Parse()

	if err := run(*configPath, *taskPath, *batchPath, *concurrency, *serve); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, taskPath, batchPath string, concurrency int, serve bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.NewLogger(os.Stdout, os.Stderr)
	log.SetMinLevel(parseLevel(cfg.Log.Level))

	client, err := scrapeless.NewClient(scrapeless.Config{
		APIKey:     cfg.Scrapeless.APIKey,
		GatewayURL: cfg.Scrapeless.GatewayURL,
	})
	if err != nil {
		return err
	}

	connector := chatgpt.NewGatewayConnector(client, log)
	connector.SessionTTL = cfg.Scrapeless.SessionTTL

	sessions := browser.NewManager()
	svc, err := chatgpt.NewService(chatgpt.Config{
		Connector:       connector,
		Pusher:          webhook.NewPusher(webhook.Config{Timeout: cfg.Webhook.Timeout}, log),
		Logger:          log,
		Sessions:        sessions,
		ClockOffsetDays: cfg.Task.ClockOffsetDays,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Warn(logging.CategorySession, "shutdown_teardown_failed", "remote session teardown failed", map[string]any{"error": err.Error()})
		}
	}()

	switch {
	case serve:
		return serveAPI(ctx, cfg, svc, log)
	case batchPath != "":
		return runBatch(ctx, cfg, svc, batchPath, concurrency)
	default:
		return runOne(ctx, cfg, svc, taskPath)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func parseLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// applyDefaultTimeout fills the configured budget into tasks that carry
// none, before the package-level default kicks in.
func applyDefaultTimeout(cfg *config.Config, in task.Input) task.Input {
	if in.TimeoutMS <= 0 {
		in.TimeoutMS = cfg.Task.DefaultTimeout.Milliseconds()
	}
	return in
}

func runOne(ctx context.Context, cfg *config.Config, svc *chatgpt.Service, taskPath string) error {
	var (
		data []byte
		err  error
	)
	if taskPath != "" {
		data, err = os.ReadFile(taskPath)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read task input: %w", err)
	}

	var in task.Input
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("task input is not valid JSON: %w", err)
	}

	out, err := svc.Solver(ctx, applyDefaultTimeout(cfg, in))
	if err != nil {
		return err
	}
	os.Stdout.Write(out.Data)
	fmt.Println()
	return nil
}

func runBatch(ctx context.Context, cfg *config.Config, svc *chatgpt.Service, batchPath string, concurrency int) error {
	data, err := os.ReadFile(batchPath)
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}
	var inputs []task.Input
	if err := json.Unmarshal(data, &inputs); err != nil {
		return fmt.Errorf("batch file is not a JSON array of tasks: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var outMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			out, err := svc.Solver(gctx, applyDefaultTimeout(cfg, in))
			if err != nil {
				return err
			}
			outMu.Lock()
			defer outMu.Unlock()
			os.Stdout.Write(out.Data)
			fmt.Println()
			return nil
		})
	}
	return g.Wait()
}

func serveAPI(ctx context.Context, cfg *config.Config, svc *chatgpt.Service, log *logging.Logger) error {
	server := api.NewServer(svc, log).WithRunContext(ctx)
	httpServer := &http.Server{
		Addr:    cfg.Server.Bind,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(logging.CategoryAPI, "server_started", "task API listening", map[string]any{"bind": cfg.Server.Bind})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info(logging.CategoryAPI, "server_stopped", "task API stopped", nil)
	return nil
}
