package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/dreamjournal/internal/bootstrap"
	"github.com/at-ishikawa/dreamjournal/internal/config"
	"github.com/at-ishikawa/dreamjournal/internal/database"
	"github.com/at-ishikawa/dreamjournal/internal/dream"
	"github.com/at-ishikawa/dreamjournal/internal/logger"
	"github.com/at-ishikawa/dreamjournal/internal/server"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "dreamjournal-server",
		Short:         "Dream journal HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %+v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}

	log, err := logger.New(cfg.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("logger.New() > %w", err)
	}
	app := bootstrap.New(log, time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database.Open(%s) > %w", cfg.Database.Path, err)
	}
	app.AddShutdownHook("database", func(ctx context.Context) error {
		return db.Close()
	})
	database.InitSchema(ctx, db, log)

	s := server.New(cfg.Server, log, db, dream.NewDBRepository(db))
	srv := s.HTTPServer()
	app.AddShutdownHook("http server", srv.Shutdown)

	return app.Run(ctx, func(ctx context.Context) error {
		log.Info().Str("addr", srv.Addr).Str("database", cfg.Database.Path).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("srv.ListenAndServe() > %w", err)
		}
		return nil
	})
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader() > %w", err)
	}
	return loader.Load()
}
