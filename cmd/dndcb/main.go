package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/TheTechChild/dnd-character-builder/internal/cache"
	"github.com/TheTechChild/dnd-character-builder/internal/catalog"
	"github.com/TheTechChild/dnd-character-builder/internal/character"
	"github.com/TheTechChild/dnd-character-builder/internal/config"
	"github.com/TheTechChild/dnd-character-builder/internal/database"
	"github.com/TheTechChild/dnd-character-builder/internal/reference"
)

var (
	configFile string
	debugMode  bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "dndcb",
		Short:        "Build and manage D&D characters offline",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(debugMode)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml or $HOME/.config/dndcb/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newReferenceCommand(),
		newCacheCommand(),
		newBookmarkCommand(),
		newCharacterCommand(),
	)
	return rootCmd
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	slog.SetDefault(slog.New(handler))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.Load() > %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config.Validate() > %w", err)
	}
	return cfg, nil
}

// openCache opens the content cache. A cache that cannot be opened is logged
// and replaced by nil, which every cache method treats as empty.
func openCache(cfg *config.Config) *cache.Cache {
	c, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		slog.Default().Warn("content cache is unavailable, continuing without it",
			slog.String("path", cfg.Cache.Path),
			slog.Any("error", err),
		)
		return nil
	}
	return c
}

type catalogSession struct {
	service *catalog.Service
	cache   *cache.Cache
	client  *reference.HTTPClient
}

func openCatalog(cfg *config.Config) *catalogSession {
	client := reference.NewHTTPClient(reference.Config{
		BaseURL:       cfg.Reference.BaseURL,
		RequestDelay:  cfg.Reference.RequestDelay,
		Timeout:       cfg.Reference.Timeout,
		RetryAttempts: cfg.Reference.RetryAttempts,
		PageLimit:     cfg.Reference.PageLimit,
	})
	c := openCache(cfg)
	return &catalogSession{
		service: catalog.NewService(client, c),
		cache:   c,
		client:  client,
	}
}

func (s *catalogSession) Close() {
	if err := s.client.Close(); err != nil {
		slog.Default().Debug("failed to close the reference client", slog.Any("error", err))
	}
	if err := s.cache.Close(); err != nil {
		slog.Default().Debug("failed to close the cache", slog.Any("error", err))
	}
}

func openRepository(ctx context.Context, cfg *config.Config) (*character.DBRepository, *sqlx.DB, error) {
	db, err := database.Open(cfg.Records.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("database.Open() > %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("database.Migrate() > %w", err)
	}
	return character.NewDBRepository(db), db, nil
}
