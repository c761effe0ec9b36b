package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dukerupert/frostbox/internal/backup"
	"github.com/dukerupert/frostbox/internal/config"
	"github.com/dukerupert/frostbox/internal/database"
	"github.com/dukerupert/frostbox/internal/email"
	"github.com/dukerupert/frostbox/internal/logging"
	"github.com/dukerupert/frostbox/internal/server"
)

func main() {
	root := &cli.Command{
		Name:  "frostbox",
		Usage: "shared freezer and fridge inventory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("FROSTBOX_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			backupCommand(),
			restoreCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"), slog.Default())
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, logger, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "listen address, overrides listen_addr"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr := cmd.String("listen"); addr != "" {
				cfg.ListenAddr = addr
			}
			return serve(ctx, cfg, logger)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending schema migrations and exit",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			v, err := database.Version(db)
			if err != nil {
				return err
			}
			logger.Info("database migrated", "path", cfg.DBPath, "version", v)
			return nil
		},
	}
}

func passphraseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "passphrase",
		Usage:    "passphrase the backup is encrypted with",
		Sources:  cli.EnvVars("FROSTBOX_BACKUP_PASSPHRASE"),
		Required: true,
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "write an encrypted snapshot of the database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "archive path", Required: true},
			passphraseFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			return backup.Snapshot(ctx, db, cmd.String("out"), cmd.String("passphrase"), logger)
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "replace the database with an encrypted snapshot; stop the server first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "archive path", Required: true},
			passphraseFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return backup.Restore(ctx, cmd.String("in"), cfg.DBPath, cmd.String("passphrase"), logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From, cfg.BaseURL)
	if !emailClient.Configured() {
		logger.Warn("postmark token not set; invitations will be created without e-mail")
	}

	srv := server.New(db, cfg, emailClient, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go srv.RateLimiter().RunCleanup(ctx, 10*time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("frostbox listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
