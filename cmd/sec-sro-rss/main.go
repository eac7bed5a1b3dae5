package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edwinhu/sec-sro-rss/internal/config"
	"github.com/edwinhu/sec-sro-rss/internal/pipeline"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

var (
	cfgPath   string
	outputDir string
	dryRun    bool
	verbose   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sec-sro-rss",
	Short: "Publish SEC SRO rule filings as RSS, Atom and JSON feeds",
	Long: `sec-sro-rss walks the SEC self-regulatory organization rulemaking
listings, drops immediate-effectiveness notices and crypto filings, dedupes
against previous runs, and publishes RSS, Atom and JSON documents.

One invocation is one cycle; schedule it with cron or a CI workflow to keep
the feed alive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runPipeline,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yml", "path to YAML config")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "override the publish directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the full cycle without writing anything")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the effective configuration. The default config file
// is optional, but a path named explicitly has to exist.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) && !cmd.Root().PersistentFlags().Changed("config") {
			cfg = config.Default()
		} else {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &pipeline.Runner{
		Config: cfg,
		Log:    logger.With(zap.String("version", Version)),
		DryRun: dryRun,
	}
	_, err = runner.Run(ctx)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
