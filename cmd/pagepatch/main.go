// Command pagepatch applies behavior patches to web pages.
//
// Usage:
//
//	pagepatch -config pagepatch.yaml                     # pages from YAML config
//	pagepatch -url https://example.com -patch set-attr -args "video|muted|true"
//	pagepatch -list                                      # print the patch catalog
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagepatch/dbopen"
	"github.com/hazyhaar/pagepatch/hitsink"
	"github.com/hazyhaar/pagepatch/internal/api"
	"github.com/hazyhaar/pagepatch/internal/browser"
	"github.com/hazyhaar/pagepatch/internal/config"
	"github.com/hazyhaar/pagepatch/internal/runner"
	"github.com/hazyhaar/pagepatch/patches"
	"github.com/hazyhaar/pagepatch/safeurl"
)

func main() {
	configPath := flag.String("config", "", "path to pagepatch.yaml config file")
	singleURL := flag.String("url", "", "patch a single URL (stdout sink)")
	patchName := flag.String("patch", "", "patch to apply with -url")
	patchArgs := flag.String("args", "", "patch arguments with -url, | separated")
	listPatches := flag.Bool("list", false, "print the patch catalog and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *listPatches {
		for _, name := range patches.Names() {
			fmt.Println(name)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *patchName, *patchArgs); err != nil {
		logger.Error("pagepatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, patchName, patchArgs string) error {
	if singleURL != "" {
		return runSingle(ctx, logger, singleURL, patchName, patchArgs)
	}

	if configPath != "" {
		return runConfig(ctx, logger, configPath)
	}

	fmt.Fprintln(os.Stderr, "usage: pagepatch -config <file> | -url <url> -patch <name> [-args <a|b|c>] | -list")
	os.Exit(1)
	return nil
}

func runSingle(ctx context.Context, logger *slog.Logger, url, patchName, patchArgs string) error {
	if patchName == "" {
		return fmt.Errorf("-url requires -patch")
	}

	cfg := config.PageConfig{
		ID:  "page-1",
		URL: url,
		Patches: []config.PatchConfig{{
			Name: patchName,
			Args: splitPatchArgs(patchArgs),
		}},
	}

	mgr := browser.NewManager(browser.Config{Logger: logger})
	if _, err := mgr.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	r := runner.New(ctx, mgr, hitsink.NewStdout(nil), logger)
	defer r.Close()

	if err := r.RunPage(ctx, cfg); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func runConfig(ctx context.Context, logger *slog.Logger, path string) error {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var (
		sinks []hitsink.Sink
		store *hitsink.Store
	)
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, hitsink.NewStdout(nil))
		case "webhook":
			if err := safeurl.Validate(sc.URL); err != nil {
				return fmt.Errorf("webhook sink: %w", err)
			}
			sinks = append(sinks, hitsink.NewWebhook(sc.URL, hitsink.WithWebhookLogger(logger)))
		case "store":
			db, err := dbopen.Open(sc.Path,
				dbopen.WithMkdirAll(),
				dbopen.WithSchema(hitsink.StoreSchema))
			if err != nil {
				return fmt.Errorf("open hit store: %w", err)
			}
			defer db.Close()
			store = hitsink.NewStore(db)
			sinks = append(sinks, store)
		}
	}

	var stream *hitsink.Stream
	if cfg.API.Listen != "" {
		stream = hitsink.NewStream(logger)
		sinks = append(sinks, stream)
	}

	router := hitsink.NewRouter(logger, sinks...)
	defer router.Close()

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headful:          cfg.Browser.Headful,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	if _, err := mgr.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	r := runner.New(ctx, mgr, router, logger)
	defer r.Close()

	for _, page := range cfg.Pages {
		if err := r.RunPage(ctx, page); err != nil {
			logger.Error("pagepatch: page failed", "page", page.ID, "error", err)
		}
	}

	if cfg.API.Listen != "" {
		srv := &http.Server{
			Addr:    cfg.API.Listen,
			Handler: api.NewServer(r, store, stream, logger).Handler(),
		}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		logger.Info("pagepatch: control plane listening", "addr", cfg.API.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("control plane: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	return nil
}

// splitPatchArgs splits the -args flag on "|" so arguments may contain
// spaces (space-separated path lists, comma-separated selectors).
func splitPatchArgs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
