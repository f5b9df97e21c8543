// Command docchat serves the document chat API and runs the vectorization worker.
package main

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/docchat-go/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents over a retrieval-augmented pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to YAML config file (optional)")
	root.AddCommand(newServeCommand(), newWorkerCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("docchat failed")
		os.Exit(1)
	}
}

// loadConfig reads configuration and initializes the global logger from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(c config.Log) error {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", c.Level)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	switch strings.ToLower(c.Format) {
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	case "", "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	default:
		return errors.Errorf("invalid log format %q", c.Format)
	}
	return nil
}
