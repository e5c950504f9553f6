package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cognicore/pem/internal/logging"
	"github.com/cognicore/pem/pkg/pem/config"
	"github.com/cognicore/pem/pkg/pem/metrics"
)

// envPrefix namespaces the environment overrides, e.g. PEM_BASE_DIR.
const envPrefix = "PEM"

// app carries what every subcommand needs once the root has run.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// rootCommand creates the command tree. Subcommands share the global
// flags; the root itself behaves like "run".
func rootCommand(ctx context.Context) *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "pem-build",
		Short:         "Build the mention/entity prior table",
		Long:          `Computes p(e|m) from Wikipedia anchors and CrossWiki counts, merges an optional secondary corpus and loads the result into the lookup database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAll(cmd.Context(), cmd)
		},
	}

	if err := setupFlags(rootCmd.PersistentFlags(), a.v); err != nil {
		// Binding only fails on programming errors.
		panic(err)
	}

	rootCmd.AddCommand(
		wikiCommand(a),
		customCommand(a),
		runCommand(a),
		lookupCommand(a),
		statsCommand(a),
	)
	rootCmd.SetContext(ctx)
	return rootCmd
}

// setupFlags defines the global flags and binds them, together with
// their PEM_* environment variables, to v.
func setupFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String("config", "", "Path to the YAML configuration file")
	flags.String("base-dir", "", "Directory relative paths resolve against")
	flags.String("backend", "", "Accumulator backend: memory, sqlite")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("metrics-addr", "", "Expose prometheus metrics on this address while running")
	flags.String("export-dsn", "", "Lookup database DSN (sqlite path or mysql DSN)")
	flags.String("custom-source", "", "Secondary corpus: yago, clueweb, json, none")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

// loadConfig reads the config file named by v and overlays the flag and
// environment overrides onto it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	applyOverrides(v, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies every non-empty override onto cfg.
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"base-dir", &cfg.BaseDir},
		{"backend", &cfg.Accumulator.Backend},
		{"log-level", &cfg.Log.Level},
		{"metrics-addr", &cfg.Metrics.Addr},
		{"export-dsn", &cfg.Export.DSN},
		{"custom-source", &cfg.Custom.Source},
	}
	for _, o := range overrides {
		if s := strings.TrimSpace(v.GetString(o.key)); s != "" {
			*o.target = s
		}
	}
}

// initialize loads the configuration, builds the logger and starts the
// metrics endpoint when one is configured.
func (a *app) initialize(ctx context.Context) error {
	cfg, err := loadConfig(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.logger = logger

	m, err := metrics.New()
	if err != nil {
		return err
	}
	a.metrics = m

	if addr := cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := m.Serve(ctx, addr, logger); err != nil {
				logger.Warn("Metrics endpoint stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}
	return nil
}
