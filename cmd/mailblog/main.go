package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mailblog/internal"
	"github.com/starford/mailblog/internal/apperr"
	pkgconfig "github.com/starford/mailblog/pkg/config"
)

// loadConfig builds the configuration from defaults, the optional config
// file and the command-line overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if path := cmd.String("config"); path != "" {
		if err := pkgconfig.Decode(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if v := cmd.String("output"); v != "" {
		cfg.Output.Driver = internal.OutputDriverFS
		cfg.Output.Path = v
	}
	if v := cmd.String("database"); v != "" {
		cfg.Database.DSN = v
	}
	if v := cmd.String("dialect"); v != "" {
		cfg.Database.Dialect = v
	}
	if err := pkgconfig.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// action adapts an App method to a cli action.
func action(fn func(context.Context, *internal.App, *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return internal.Run(ctx, func(ctx context.Context, app *internal.App) error {
			return fn(ctx, app, cmd)
		}, internal.WithConfig(cfg))
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "mailblog",
		Usage: "Blogging from emails",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				Sources: cli.EnvVars("MAILBLOG_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "output",
				Usage:   "Directory for HTML files",
				Sources: cli.EnvVars("MAILBLOG_OUTPUT"),
			},
			&cli.StringFlag{
				Name:    "database",
				Usage:   "Database file (sqlite) or connection URL (postgres)",
				Sources: cli.EnvVars("MAILBLOG_DATABASE"),
			},
			&cli.StringFlag{
				Name:    "dialect",
				Usage:   "SQL dialect: sqlite or postgres",
				Sources: cli.EnvVars("MAILBLOG_DIALECT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "mail",
				Usage: "Receive an e-mail on standard input",
				Action: action(func(ctx context.Context, app *internal.App, _ *cli.Command) error {
					return app.Mail(ctx)
				}),
			},
			{
				Name:      "del",
				Usage:     "Delete a user account",
				ArgsUsage: "USER",
				Action: action(func(ctx context.Context, app *internal.App, cmd *cli.Command) error {
					return app.Delete(ctx, cmd.Args().First())
				}),
			},
			{
				Name:      "refresh",
				Usage:     "Regenerate HTML for a user",
				ArgsUsage: "USER",
				Action: action(func(ctx context.Context, app *internal.App, cmd *cli.Command) error {
					return app.Refresh(ctx, cmd.Args().First())
				}),
			},
			{
				Name:  "create",
				Usage: "Create the database schema",
				Action: action(func(ctx context.Context, app *internal.App, _ *cli.Command) error {
					return app.Create(ctx)
				}),
			},
			{
				Name:  "watch",
				Usage: "Ingest messages dropped into the spool directory",
				Action: action(func(ctx context.Context, app *internal.App, _ *cli.Command) error {
					return app.Watch(ctx)
				}),
			},
			{
				Name:  "serve",
				Usage: "Serve the output directory for preview",
				Action: action(func(ctx context.Context, app *internal.App, _ *cli.Command) error {
					return app.Serve(ctx)
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error",
			slog.String("kind", apperr.Kind(err)),
			slog.String("error", err.Error()))
		os.Exit(apperr.ExitCode(err))
	}
}
