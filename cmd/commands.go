package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"haintegrations/internal/api"
	"haintegrations/internal/config"
	"haintegrations/internal/ha"
	"haintegrations/internal/host"
	"haintegrations/internal/jewishcalendar"
	"haintegrations/internal/logging"
	"haintegrations/internal/omie"
	"haintegrations/internal/scheduler"
	"haintegrations/internal/store"
	"haintegrations/pkg/integration"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configDir string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "haintegrations",
		Short:         "Poll third-party sources and publish their values to Home Assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is fine; the environment may already be set
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", envOr("CONFIG_DIR", "."), "Directory containing "+config.DefaultFileName)
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the log level from the config")

	root.AddCommand(
		newRunCmd(opts),
		newNextRefreshCmd(opts),
		newHebrewDateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadConfig loads the config with a bootstrap logger, then builds the real one
func (o *rootOptions) loadConfig() (*config.Config, *zap.Logger, error) {
	bootstrap, err := zap.NewProduction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer bootstrap.Sync()

	cfg, err := config.NewLoader(o.configDir, bootstrap).Load()
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the integration host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting integration host",
		zap.String("version", version),
		zap.Int("entries", len(cfg.Integrations)),
		zap.Strings("domains", integration.Domains()),
		zap.Bool("read_only", cfg.HomeAssistant.ReadOnly))

	db, err := store.Open(ctx, cfg.Store.Path, logger.Named("store"))
	if err != nil {
		return err
	}
	defer db.Close()

	var publisher *ha.Publisher
	if cfg.HomeAssistant.URL != "" {
		client := ha.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
		publisher = ha.NewPublisher(client, cfg.HomeAssistant.ReadOnly, logger)
		client.OnConnect(publisher.Invalidate)
		defer publisher.Close()
		defer client.Disconnect()

		if cfg.HomeAssistant.Restore {
			// Restore reads helper states during setup, so connect first
			if err := client.ConnectWithRetry(ctx); err != nil {
				return fmt.Errorf("failed to connect to Home Assistant: %w", err)
			}
		} else {
			go func() {
				if err := client.ConnectWithRetry(ctx); err != nil && ctx.Err() == nil {
					logger.Error("Giving up on Home Assistant", zap.Error(err))
				}
			}()
		}
	} else {
		logger.Warn("homeassistant.url not set, entity values are only served by the API")
	}

	h, err := host.New(host.Options{
		Config:    cfg,
		Store:     db,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(h, logger, cfg.API.Listen)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	err = h.Run(ctx)
	logger.Info("Shutting down gracefully...")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func parseAt(at string, loc *time.Location) (time.Time, error) {
	if at == "" {
		return time.Now().In(loc), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, at, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", at)
}

func newNextRefreshCmd(opts *rootOptions) *cobra.Command {
	var at string
	var diaspora bool

	cmd := &cobra.Command{
		Use:       "next-refresh [omie|jewish_calendar]",
		Short:     "Show when a boundary-scheduled coordinator refreshes next",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{omie.Domain, jewishcalendar.Domain},
		RunE: func(cmd *cobra.Command, args []string) error {
			var boundary scheduler.Boundary
			loc := time.UTC

			switch args[0] {
			case omie.Domain:
				planner, err := omie.NewPlanner(omie.PlannerOptions{})
				if err != nil {
					return err
				}
				boundary = omie.RefreshBoundary(planner)
				loc = planner.Location()
			case jewishcalendar.Domain:
				cfg, _, err := opts.loadConfig()
				if err != nil {
					return err
				}
				loc = cfg.TimeLocation()
				service := jewishcalendar.NewService(jewishcalendar.Calculator{
					Latitude:  cfg.Location.Latitude,
					Longitude: cfg.Location.Longitude,
					Location:  loc,
				}, diaspora)
				boundary = jewishcalendar.RefreshBoundary(service)
			default:
				return fmt.Errorf("%s is not boundary scheduled", args[0])
			}

			now, err := parseAt(at, loc)
			if err != nil {
				return err
			}
			next := boundary.Next(now)
			interval := scheduler.NextRefreshInterval(boundary, now, scheduler.DefaultMargin)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "now:      %s\n", now.Format(time.RFC3339))
			fmt.Fprintf(out, "boundary: %s\n", next.Format(time.RFC3339))
			fmt.Fprintf(out, "refresh:  %s (in %s)\n", now.Add(interval).Format(time.RFC3339), interval)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this time instead of now (RFC3339 or 2006-01-02 15:04)")
	cmd.Flags().BoolVar(&diaspora, "diaspora", false, "Use the diaspora holiday schedule")
	return cmd
}

func newHebrewDateCmd(opts *rootOptions) *cobra.Command {
	var at string
	var diaspora bool

	cmd := &cobra.Command{
		Use:   "hebrew-date",
		Short: "Print the Hebrew date, holidays and zmanim for the configured location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			loc := cfg.TimeLocation()
			now, err := parseAt(at, loc)
			if err != nil {
				return err
			}

			service := jewishcalendar.NewService(jewishcalendar.Calculator{
				Latitude:  cfg.Location.Latitude,
				Longitude: cfg.Location.Longitude,
				Location:  loc,
			}, diaspora)
			snap := service.Compute(now)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", snap.Date.String(), snap.Date.Hebrew())
			if names := snap.HolidayNames(); names != "" {
				fmt.Fprintf(out, "holiday:            %s\n", names)
			}
			if snap.Omer > 0 {
				fmt.Fprintf(out, "omer:               %d\n", snap.Omer)
			}
			fmt.Fprintf(out, "issur melacha:      %t\n", snap.IssurMelacha)
			if snap.Zmanim.Valid() {
				fmt.Fprintf(out, "sunrise:            %s\n", snap.Zmanim.Sunrise.Format(time.Kitchen))
				fmt.Fprintf(out, "sunset:             %s\n", snap.Zmanim.Sunset.Format(time.Kitchen))
			}
			if !snap.UpcomingCandleLighting.IsZero() {
				fmt.Fprintf(out, "candle lighting:    %s\n", snap.UpcomingCandleLighting.Format(time.RFC1123))
				fmt.Fprintf(out, "havdalah:           %s\n", snap.UpcomingHavdalah.Format(time.RFC1123))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this time instead of now (RFC3339 or 2006-01-02 15:04)")
	cmd.Flags().BoolVar(&diaspora, "diaspora", false, "Use the diaspora holiday schedule")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\ncommit: %s\n", version, commit)
		},
	}
}
