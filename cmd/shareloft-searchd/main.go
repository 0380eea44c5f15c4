// shareloft-searchd is the Shareloft search service: it indexes uploaded
// files into a full-text index and serves search, suggestions and index
// management over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/shareloft/shareloft/pkg/files"
	"github.com/shareloft/shareloft/pkg/infrastructure/config"
	"github.com/shareloft/shareloft/pkg/infrastructure/logging"
	"github.com/shareloft/shareloft/pkg/notify"
	"github.com/shareloft/shareloft/pkg/search"
	"github.com/shareloft/shareloft/pkg/server"
	"github.com/shareloft/shareloft/pkg/watch"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to configuration file")
		addr       = flag.String("addr", "", "HTTP server address (overrides config)")
		indexPath  = flag.String("index", "", "Search index path (overrides config)")
		watchRoot  = flag.String("watch", "", "Upload root to watch for changes (overrides config)")
		reindex    = flag.Bool("reindex", false, "Rebuild the index from the file store on startup")
		hashSecret = flag.Bool("hash-secret", false, "Prompt for an admin secret, print its bcrypt hash and exit")
	)
	flag.Parse()

	if *hashSecret {
		if err := runHashSecret(); err != nil {
			log.Fatalf("Failed to hash secret: %v", err)
		}
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *indexPath != "" {
		cfg.Index.Path = *indexPath
	}
	if *watchRoot != "" {
		cfg.Watch.Root = *watchRoot
		cfg.Watch.Enabled = true
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	if err := run(cfg, logger, *reindex); err != nil {
		logger.Error("service failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

// run wires the components together and serves until a signal arrives
func run(cfg *config.Config, logger *logging.Logger, reindex bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := notify.NewHub(logger)
	defer hub.Close()

	engine, err := search.Open(search.Config{
		IndexPath:      cfg.Index.Path,
		DefaultResults: cfg.Index.DefaultResults,
		MaxResults:     cfg.Index.MaxResults,
		CacheSize:      cfg.Index.CacheSize,
		CacheTTL:       time.Duration(cfg.Index.CacheTTL) * time.Second,
	}, search.Deps{
		Logger: logger,
		Store:  store,
		Events: hub,
	})
	if err != nil {
		return fmt.Errorf("failed to open search engine: %w", err)
	}
	defer engine.Close()

	if reindex {
		indexed, err := engine.IndexAll(ctx)
		if err != nil {
			return fmt.Errorf("startup reindex failed: %w", err)
		}
		logger.Info("startup reindex complete", map[string]interface{}{
			"indexed": indexed,
		})
	}

	if cfg.Watch.Enabled {
		reindexer := watch.ReindexFunc(engine.IndexAll)
		if owner := cfg.Watch.ReindexOwnerOnly; owner != "" {
			reindexer = func(ctx context.Context) (int, error) {
				return engine.IndexOwner(ctx, owner)
			}
		}
		watcher, err := watch.New(watch.Config{
			Root:            cfg.Watch.Root,
			Debounce:        time.Duration(cfg.Watch.DebounceMillis) * time.Millisecond,
			ReindexInterval: time.Duration(cfg.Watch.ReindexInterval) * time.Minute,
		}, reindexer, logger)
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer watcher.Stop()
	}

	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		AdminSecretHash: cfg.Server.AdminSecretHash,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}, engine, store, hub, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildStore selects the file store: PostgreSQL when a DSN is configured,
// otherwise an empty in-memory store for standalone use.
func buildStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (files.Store, error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database configured, using in-memory file store")
		return files.NewMemoryStore(), nil
	}

	store, err := files.NewPostgresStore(ctx, &files.PostgresConfig{
		ConnectionString: cfg.Database.DSN,
		MaxConnections:   cfg.Database.MaxConnections,
		ConnectTimeout:   time.Duration(cfg.Database.ConnectTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("connected to file database")
	return store, nil
}

// buildLogger constructs the logger from the logging config section
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseLogFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	logConfig := &logging.Config{
		Level:  level,
		Format: format,
		Output: os.Stderr,
	}

	switch cfg.Logging.Output {
	case "file":
		out, err := logging.CreateFileOutput(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		logConfig.Output = out
	case "both":
		out, err := logging.CreateCombinedOutput(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		logConfig.Output = out
	}

	return logging.NewLogger(logConfig), nil
}

// runHashSecret prompts for an admin secret and prints its bcrypt hash
// for use in the server.admin_secret_hash config field.
func runHashSecret() error {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return fmt.Errorf("prompting for a secret requires a terminal")
	}

	secret, err := readSecret("Admin secret: ")
	if err != nil {
		return err
	}
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("secret cannot be empty")
	}
	confirmation, err := readSecret("Confirm: ")
	if err != nil {
		return err
	}
	if secret != confirmation {
		return fmt.Errorf("entries do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash secret: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}

// readSecret reads one line from the terminal with echo disabled
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return string(secret), nil
}
