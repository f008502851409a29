// -- cmd/root.go --
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
	"github.com/planopticon/planopticon/internal/config"
	"github.com/planopticon/planopticon/internal/graphstore"
	"github.com/planopticon/planopticon/internal/knowledge"
	"github.com/planopticon/planopticon/internal/llmclient"
	"github.com/planopticon/planopticon/internal/observability"
)

var (
	cfgFile string

	// appCfg is populated by PersistentPreRunE before any subcommand runs.
	appCfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "planopticon",
	Short: "PlanOpticon builds and queries knowledge graphs from video content.",
	// Version is dynamically set at build time. See cmd/version.go.
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// This function runs before any command, setting up config and logging.
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Initialize a fallback logger if config loading fails.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "planopticon"})
			return fmt.Errorf("failed to load config: %w", err)
		}
		appCfg = cfg

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting planopticon",
			zap.String("version", Version),
			zap.String("graph_backend", cfg.Graph.Backend),
		)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Use the logger if available, otherwise fall back to stderr.
		if logger := observability.GetLogger(); logger != nil && logger != zap.NewNop() {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newGraphCmd())
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig() error {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	config.SetDefaults(v)

	v.SetEnvPrefix("PLANOPTICON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

// activeConfig returns the loaded configuration, falling back to defaults so
// helpers stay usable in tests that bypass PersistentPreRunE.
func activeConfig() *config.Config {
	if appCfg != nil {
		return appCfg
	}
	return config.NewDefaultConfig()
}

// buildLLM constructs the model router. A missing API key is not fatal for
// commands that can run without a model, so the error is returned for the
// caller to decide.
func buildLLM(logger *zap.Logger) (schemas.LLMClient, error) {
	return llmclient.NewRouter(activeConfig().LLM, logger)
}

// openKnowledge opens the configured storage backend wrapped in the
// integration layer. The in-memory backend is hydrated from the snapshot file
// when one exists; the embedded database backend persists on its own.
func openKnowledge(llm schemas.LLMClient, logger *zap.Logger) (*knowledge.Graph, error) {
	cfg := activeConfig()
	store := graphstore.Open(cfg.StorePath(), logger)
	g := knowledge.New(store, llm, logger, knowledge.Options{
		BatchSize:     cfg.Ingest.BatchSize,
		SnippetLength: cfg.Ingest.SnippetLength,
	})

	if cfg.Graph.Backend == "memory" && cfg.Graph.SnapshotPath != "" {
		if _, err := os.Stat(cfg.Graph.SnapshotPath); err == nil {
			if err := g.Load(cfg.Graph.SnapshotPath); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("loading graph snapshot %s: %w", cfg.Graph.SnapshotPath, err)
			}
		}
	}
	return g, nil
}

// persistKnowledge writes the in-memory backend back to its snapshot file.
// The embedded database backend persists through its own data directory.
func persistKnowledge(g *knowledge.Graph) error {
	cfg := activeConfig()
	if cfg.Graph.Backend != "memory" || cfg.Graph.SnapshotPath == "" {
		return nil
	}
	_, err := g.Save(cfg.Graph.SnapshotPath)
	return err
}
