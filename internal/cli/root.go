package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ctxasm/config"
	"ctxasm/internal/slogutil"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
	logger   *slog.Logger
	logFile  *os.File
)

var rootCmd = &cobra.Command{
	Use:   "ctxasm",
	Short: "Assemble token-bounded context for a query from code and documents",
	Long: `ctxasm keeps a symbol index of a source tree, picks the files relevant to a
query, retrieves and filters documents, and packs everything into a fixed
token budget split between whole documents, excerpts and headroom.

Example usage:
  ctxasm index .                               # Build or refresh the symbol index
  ctxasm select -q "where are sessions made"   # Show the files picked for a query
  ctxasm assemble -q "how auth works" -o ctx.json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}
		rootDir, err = filepath.Abs(rootDir)
		if err != nil {
			return fmt.Errorf("invalid root directory: %w", err)
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		if cfg.Logging.File != "" {
			logger, logFile, err = slogutil.NewFileLogger(cfg.Logging.File, slogutil.LevelFromString(level))
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
		} else {
			logger = slogutil.NewLogger(os.Stderr, slogutil.LevelFromString(level))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ctxasm.yaml or .ctxasm/config.{yaml,toml})")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func GetLogger() *slog.Logger {
	return slogutil.OrDiscard(logger)
}
