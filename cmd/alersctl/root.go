package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/alers-api/pkg/config"
	"github.com/noah-isme/alers-api/pkg/database"
	"github.com/noah-isme/alers-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "alersctl",
	Short:         "Operator commands for the ALERS API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is the shared runtime of every subcommand.
type env struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger *zap.Logger
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &env{cfg: cfg, db: db, logger: logr}, nil
}

func (e *env) Close() {
	_ = e.logger.Sync()
	_ = e.db.Close()
}
