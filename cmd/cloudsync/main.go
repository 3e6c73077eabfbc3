package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/cloudsync/internal/app"
	"github.com/dokzlo13/cloudsync/internal/config"
	"github.com/dokzlo13/cloudsync/internal/status"
)

var (
	// Set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "cloudsync.yaml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{
		stdout: stdout,
		stderr: stderr,
		status: status.New(),
	}

	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(app.SignalContext()); err != nil {
		log.Error().Err(err).Msg("Command failed")
		c.status.Record(status.Exception)
	}
	return c.status.Current().Code()
}

// cli holds state shared by every command of one invocation.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	status *status.Aggregator

	configPath string
	logLevel   string
	cfg        *config.Config
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "cloudsync",
		Short: "Reconcile cloud resources with their declarations",
		Long: `cloudsync compares resources declared in YAML files with the resources a
provider reports, prints the differences, and on request applies the calls
needed to make the provider match the declarations.

Exit codes: 0 in sync, 1 error, 2 differences found, 3 differences synced.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", defaultConfigPath, "path to configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	for _, kind := range resourceKinds() {
		root.AddCommand(c.kindCommand(kind))
	}
	root.AddCommand(c.watchCommand(), c.historyCommand(), c.kindsCommand(), c.versionCommand())
	return root
}

// setup loads configuration and configures logging before any command runs.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	c.cfg = cfg

	setupLogging(c.stderr, cfg.Log.Level, cfg.Log.UseJSON, cfg.Log.Colors)
	log.Debug().Str("config", c.configPath).Msg("Configuration loaded")
	return nil
}

// loadConfig reads the config file. A missing default file means defaults.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil && errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return cfg, err
}

func setupLogging(out io.Writer, level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
