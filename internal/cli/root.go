// Package cli implements the command-line interface for xs.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kilupskalvis/xs/internal/config"
	"github.com/kilupskalvis/xs/internal/logging"
	"github.com/kilupskalvis/xs/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  *store.Store
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.Logger.Warn().Err(err).Msg("close store")
		}
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	storePath  string
	configPath string
	logLevel   string
}

// loadConfig reads the configuration file and applies flag overrides. The
// file is optional unless --config was given explicitly.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(g.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if g.storePath != "" {
		cfg.Store = g.storePath
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, cfg.Validate()
}

// initContext loads config and opens the store
func (g *globalFlags) initContext(cmd *cobra.Command) (*cmdContext, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, logging.Format(cfg.LogFormat))

	opts, err := storeOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cmd.Context(), cfg.Store, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &cmdContext{Config: cfg, Logger: logger, Store: st}, nil
}

func storeOptions(cfg *config.Config, logger zerolog.Logger) (store.Options, error) {
	backend, err := cfg.Backend()
	if err != nil {
		return store.Options{}, err
	}
	alg, err := cfg.Algorithm()
	if err != nil {
		return store.Options{}, err
	}
	comp, err := cfg.CompressionMode()
	if err != nil {
		return store.Options{}, err
	}
	maxSize, err := cfg.MaxFrameBytes()
	if err != nil {
		return store.Options{}, err
	}
	return store.Options{
		IndexBackend: backend,
		Algorithm:    alg,
		Compression:  comp,
		MaxFrameSize: maxSize,
		ScanPageSize: cfg.ScanPageSize,
		Logger:       logger,
	}, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "xs",
		Short: "Append-only local record store",
		Long: `xs durably stores arbitrary byte payloads as frames. Each frame gets a
time-sortable id; identical content is stored once and addressed by its
integrity hash.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.storePath, "store", "", "Store directory (default $"+config.EnvStore+" or the XDG data dir)")
	flags.StringVar(&g.configPath, "config", config.DefaultPath(), "Configuration file")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")

	rootCmd.AddCommand(newPutCmd(g))
	rootCmd.AddCommand(newListCmd(g))
	rootCmd.AddCommand(newCatCmd(g))
	rootCmd.AddCommand(newGetCmd(g))
	rootCmd.AddCommand(newVerifyCmd(g))
	rootCmd.AddCommand(newGCCmd(g))
	rootCmd.AddCommand(newStatsCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))
	rootCmd.AddCommand(newCompletionCmd(rootCmd))

	return rootCmd
}

// Execute runs the root command. An interrupt cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}
