package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/desertthunder/sheepd/internal/store"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, the cache layout, the installation id and the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configFile(cmd)

	config := r.config
	if config == nil {
		if _, err := os.Stat(configPath); err == nil {
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		} else {
			r.logger.Info("config file not found, creating from template", "path", configPath)
			if err := shared.CreateConfigFile(configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
				config = shared.DefaultConfig()
			} else {
				r.logger.Info("config file created", "path", configPath)
				if config, err = shared.LoadConfig(configPath); err != nil {
					r.logger.Warn("failed to load created config, using defaults", "error", err)
					config = shared.DefaultConfig()
				}
			}
		}
	}

	root := config.Cache.ExpandedRoot()
	r.logger.Info("creating cache layout", "root", root)
	if _, err := store.New(store.Options{Root: root, Logger: r.logger}); err != nil {
		return fmt.Errorf("failed to create cache layout: %w", err)
	}

	clientID, err := shared.LoadOrCreateInstallationID(filepath.Join(root, installationIDFile))
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.writePlain("✓ Setup complete\n")
	r.writePlain("Config:          %s\n", configPath)
	r.writePlain("Cache:           %s\n", root)
	r.writePlain("Database:        %s\n", config.Database.Path)
	r.writePlain("Installation ID: %s\n", clientID)
	return nil
}

// SetupRollback reverts the most recent database migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	r.writePlain("✓ Rolled back the latest migration\n")
	return nil
}
