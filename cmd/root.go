package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evcorridor/config"
	"github.com/kilianp07/evcorridor/infra/logger"
)

const defaultConfig = "config.yaml"

var (
	cfgPath     string
	datasetPath string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:           "evcorridor",
	Short:         "EV charging station planner for highway corridors",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfig, "configuration file")
	rootCmd.PersistentFlags().StringVarP(&datasetPath, "dataset", "d", "", "segment table, overrides dataset.path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides logging.level")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration and applies the persistent flags. A
// missing default config file is not an error.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == defaultConfig {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if datasetPath != "" {
		cfg.Dataset.Path = datasetPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}
