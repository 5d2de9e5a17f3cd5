package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/restobook/realtime-server/internal/app"
	"github.com/restobook/realtime-server/internal/auth"
	"github.com/restobook/realtime-server/internal/config"
	applog "github.com/restobook/realtime-server/internal/log"
	"github.com/restobook/realtime-server/internal/store"
)

type rootOptions struct {
	configPath string
	overrides  config.Config
	// rateLimitSet applies overrides.RateLimitPerMinute even when it is 0 (off).
	rateLimitSet bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "restobook-realtime",
		Short:         "Realtime messaging and presence server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.overrides.Database.Driver, "db-driver", "", "database driver (sqlite, postgres)")
	flags.StringVar(&opts.overrides.Database.Path, "db-path", "", "sqlite database path")
	flags.StringVar(&opts.overrides.Database.URL, "db-url", "", "postgres connection url")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.rateLimitSet = cmd.Flags().Changed("rate-limit")
			return runServe(cmd.Context(), opts)
		},
	}
	serve.Flags().StringVar(&opts.overrides.Addr, "addr", "", "HTTP listen address")
	serve.Flags().DurationVar(&opts.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	serve.Flags().DurationVar(&opts.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	serve.Flags().IntVar(&opts.overrides.RateLimitPerMinute, "rate-limit", 0, "inbound events per minute per connection (0 disables)")

	root.AddCommand(serve, newMigrateCmd(opts), newUserCmd(opts), newTokenCmd(opts))
	return root
}

// loadConfig applies file, environment and flag overrides in that order.
func loadConfig(opts *rootOptions) (config.Config, *zerolog.Logger, error) {
	bootLog := applog.New("info", "console")

	cfg, path, err := config.Load(bootLog, opts.configPath)
	if err != nil {
		return cfg, bootLog, err
	}
	cfg.UpdateFrom(opts.overrides)
	if opts.rateLimitSet {
		cfg.RateLimitPerMinute = opts.overrides.RateLimitPerMinute
	}

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == config.Default().JWTSecret {
		logger.Warn().Msg("jwt_secret is the default value; set RESTOBOOK_JWT_SECRET in production")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting restobook realtime server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			st, err := app.OpenStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			version, err := st.SchemaVersion()
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			logger.Info().Str("driver", cfg.Database.Driver).Int64("version", version).Msg("database is up to date")
			return nil
		},
	}
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var (
		name     string
		email    string
		password string
		role     string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user, employee or admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAuth(cmd.Context(), opts, func(ctx context.Context, svc *auth.Service, _ store.Store) error {
				u, err := svc.Register(ctx, name, email, password, store.Role(role))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Email, u.Role)
				return nil
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&password, "password", "", "password (min 6 characters)")
	add.Flags().StringVar(&role, "role", string(store.RoleUser), "user, employee or admin")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	var lift bool
	suspend := &cobra.Command{
		Use:   "suspend <user-id>",
		Short: "Suspend an account; --lift restores it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), opts, func(ctx context.Context, _ *auth.Service, st store.Store) error {
				return st.SetUserSuspended(ctx, args[0], !lift)
			})
		},
	}
	suspend.Flags().BoolVar(&lift, "lift", false, "remove the suspension")

	userCmd.AddCommand(add, suspend)
	return userCmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for an existing account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl > 0 {
				opts.overrides.JWTTTL = ttl
			}
			return withAuth(cmd.Context(), opts, func(ctx context.Context, svc *auth.Service, st store.Store) error {
				u, err := st.GetUserByID(ctx, args[0])
				if err != nil {
					return err
				}
				token, err := svc.IssueToken(u)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt_ttl)")
	return cmd
}

func withAuth(ctx context.Context, opts *rootOptions, fn func(context.Context, *auth.Service, store.Store) error) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}

	st, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, auth.NewService(st, app.JWTConfig(&cfg)), st)
}
