package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/dawvox/internal/app"
	"github.com/MrWong99/dawvox/internal/config"
	"github.com/MrWong99/dawvox/internal/observe"
)

// options holds the flag values shared by all commands.
type options struct {
	configPath string
	verbose    bool

	dryRun     bool
	live       bool
	lowLatency bool
	source     string
	device     string
}

func execute() int {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "dawvox:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "dawvox",
		Short:         "Offline voice control for Logic Pro",
		Long:          "dawvox listens for a wake word, transcribes the command that follows\nand turns it into Logic Pro key commands, all on this machine.",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return runPipeline(cmd, o) },
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", "", "path to the YAML configuration file")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	addRunFlags(root, o)

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the voice pipeline",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return runPipeline(cmd, o) },
	}
	addRunFlags(run, o)

	root.AddCommand(run, newCheckCmd(o), newResolveCmd(o), newHistoryCmd(o), newPhrasesCmd(o))
	return root
}

func addRunFlags(cmd *cobra.Command, o *options) {
	f := cmd.Flags()
	f.BoolVar(&o.dryRun, "dry-run", false, "simulate commands instead of sending them to Logic Pro")
	f.BoolVar(&o.live, "live", false, "send commands to Logic Pro")
	f.BoolVar(&o.lowLatency, "low-latency", false, "use smaller frames and a shorter hangover")
	f.StringVar(&o.source, "source", "", "audio source provider (command, stdin, file, websocket)")
	f.StringVar(&o.device, "device", "", "capture device, or the recording for the file source")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "live")
}

// loadConfig loads the configuration, applies flag overrides and installs
// the logger. It returns the config file used, "" for built-in defaults.
func loadConfig(o *options) (*config.Config, string, error) {
	path, err := config.Find(o.configPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}

	if o.verbose {
		cfg.System.LogLevel = config.LogDebug
	}
	switch {
	case o.dryRun:
		cfg.SetDryRun(true)
	case o.live:
		cfg.SetDryRun(false)
	}
	if o.lowLatency {
		cfg.System.LowLatency = true
	}
	cfg.ApplyLowLatency()
	if o.source != "" {
		cfg.Providers.Source.Name = o.source
	}
	if o.device != "" {
		cfg.Audio.Device = o.device
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}

	slog.SetDefault(newLogger(cfg.System.LogLevel))
	return cfg, path, nil
}

func runPipeline(cmd *cobra.Command, o *options) error {
	cfg, path, err := loadConfig(o)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "dawvox", ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Debug("telemetry shutdown", "err", err)
		}
	}()

	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(cfg, path))

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}

	slog.Info("listening for the wake word, press Ctrl+C to quit")
	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
