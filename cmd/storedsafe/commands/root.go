package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/storedsafe-tokenhandler/internal/app"
	"github.com/florianilch/storedsafe-tokenhandler/internal/observability"
	"github.com/florianilch/storedsafe-tokenhandler/internal/tokenhandler"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "storedsafe",
		Usage: "StoredSafe token handler and lookup client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: app.DefaultConfigLogLevel,
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "server--address",
				Usage: "StoredSafe server address",
			},
			&cli.StringFlag{
				Name:  "server--ca-bundle",
				Usage: "path to a CA bundle for servers with a private CA",
			},
			&cli.BoolFlag{
				Name:  "server--skip-verify",
				Usage: "disable TLS certificate verification",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "policy when the server is unreachable (strict|lenient)",
				Value: string(app.DefaultConfigMode),
			},
			&cli.StringFlag{
				Name:  "check--mode",
				Usage: "token liveness check (local|remote|both)",
				Value: string(app.DefaultConfigCheckMode),
			},
			&cli.StringFlag{
				Name:  "storage--file",
				Usage: "path to the credential rc file",
			},
			&cli.StringFlag{
				Name:  "login--script",
				Usage: "external token update script",
			},
		},
		Commands: []*cli.Command{
			checkCommand(),
			loginCommand(),
			ensureCommand(),
			lookupCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setup loads config, installs logging, and wires the application.
func setup(cmd *cli.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	return application, nil
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "verify the cached token; exit 0 if valid, 1 if invalid or absent",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := setup(cmd)
			if err != nil {
				return err
			}
			defer shutdownObservability(ctx)

			status, err := application.Check(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("check failed: %v", err), 2)
			}
			switch status {
			case tokenhandler.StatusValid:
				slog.InfoContext(ctx, "token is valid")
				return nil
			case tokenhandler.StatusUnreachable:
				return cli.Exit("server unreachable, token state unknown", 2)
			default:
				return cli.Exit("token invalid or absent", 1)
			}
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate and persist a fresh token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := setup(cmd)
			if err != nil {
				return err
			}
			defer shutdownObservability(ctx)

			res, err := application.Login(ctx)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			slog.InfoContext(ctx, "logged in", "server", res.Record.Server)
			return nil
		},
	}
}

func ensureCommand() *cli.Command {
	return &cli.Command{
		Name:  "ensure",
		Usage: "print a valid token, logging in first if needed",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := setup(cmd)
			if err != nil {
				return err
			}
			defer shutdownObservability(ctx)

			res, err := application.EnsureValid(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Writer, res.Record.Token)
			return nil
		},
	}
}

func lookupCommand() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "resolve one or more <objectid>/<fieldname> paths",
		ArgsUsage: "<objectid>/<fieldname> [...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				return fmt.Errorf("at least one <objectid>/<fieldname> argument is required")
			}

			application, err := setup(cmd)
			if err != nil {
				return err
			}
			defer shutdownObservability(ctx)

			for _, path := range paths {
				value, err := application.Lookup(ctx, path)
				if err != nil {
					return fmt.Errorf("lookup %s: %w", path, err)
				}
				fmt.Fprintln(cmd.Writer, value)
			}
			return nil
		},
	}
}

func shutdownObservability(ctx context.Context) {
	if err := observability.Shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "flushing logs:", err)
	}
}
