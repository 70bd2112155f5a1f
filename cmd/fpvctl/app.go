package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/AdamBeresnev/fpv-bracket/internal/config"
	"github.com/AdamBeresnev/fpv-bracket/internal/db"
	"github.com/AdamBeresnev/fpv-bracket/internal/export"
	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "fpvctl",
		Usage: "operate an FPV bracket database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file", EnvVars: []string{"FPV_CONFIG"}},
			&cli.StringFlag{Name: "db", Usage: "sqlite database path, overrides the config"},
			&cli.StringFlag{Name: "migrations", Usage: "migration source URL, overrides the config"},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			exportCommand(),
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("db"); v != "" {
		cfg.DBPath = v
	}
	if v := c.String("migrations"); v != "" {
		cfg.Migrations = v
	}
	return cfg, nil
}

func openDB(c *cli.Context) (*sqlx.DB, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return database, cfg, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply every pending migration",
				Action: func(c *cli.Context) error {
					database, cfg, err := openDB(c)
					if err != nil {
						return err
					}
					defer database.Close()

					if err := db.RunMigrations(database.DB, cfg.Migrations); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "Migrations applied.")
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "revert the latest migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to revert"},
				},
				Action: func(c *cli.Context) error {
					steps := c.Int("steps")
					if steps < 1 {
						return fmt.Errorf("steps must be at least 1, got %d", steps)
					}
					database, cfg, err := openDB(c)
					if err != nil {
						return err
					}
					defer database.Close()

					if err := db.RollbackMigrations(database.DB, cfg.Migrations, steps); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Reverted %d migration(s).\n", steps)
					return nil
				},
			},
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write standings to a file",
		Subcommands: []*cli.Command{
			{
				Name:  "xlsx",
				Usage: "workbook with the overall classification and one sheet per stage",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tournament", Required: true},
					&cli.StringFlag{Name: "out", Required: true},
				},
				Action: func(c *cli.Context) error {
					id, err := uuid.Parse(c.String("tournament"))
					if err != nil {
						return fmt.Errorf("invalid tournament id: %w", err)
					}
					return withServices(c, func(ctx context.Context, tournaments *service.TournamentService, brackets *service.BracketService) error {
						sheets, err := export.TournamentSheets(ctx, brackets, tournaments, id)
						if err != nil {
							return err
						}
						if len(sheets) == 0 {
							return fmt.Errorf("tournament %s has no stages to export", id)
						}
						return writeFile(c.String("out"), func(w io.Writer) error {
							return export.WriteStandingsXLSX(w, sheets...)
						})
					})
				},
			},
			{
				Name:  "csv",
				Usage: "standings of one stage",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "stage", Required: true},
					&cli.StringFlag{Name: "out", Required: true},
				},
				Action: func(c *cli.Context) error {
					id, err := uuid.Parse(c.String("stage"))
					if err != nil {
						return fmt.Errorf("invalid stage id: %w", err)
					}
					return withServices(c, func(ctx context.Context, tournaments *service.TournamentService, brackets *service.BracketService) error {
						sheet, err := export.StageSheetByID(ctx, brackets, tournaments, id)
						if err != nil {
							return err
						}
						return writeFile(c.String("out"), func(w io.Writer) error {
							return export.WriteStandingsCSV(w, sheet)
						})
					})
				},
			},
		},
	}
}

func withServices(c *cli.Context, fn func(context.Context, *service.TournamentService, *service.BracketService) error) error {
	database, _, err := openDB(c)
	if err != nil {
		return err
	}
	defer database.Close()

	deps := service.Deps{DB: database, Locks: service.NewLocks()}
	return fn(c.Context, service.NewTournamentService(deps), service.NewBracketService(deps))
}

// writeFile removes a partially written file when fn fails.
func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
