// Package cli wires relayctl subcommands to the bus, the demo service and the
// configured transport.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/glimte/relay-go/config"
	"github.com/glimte/relay-go/internal/logging"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

// app holds what PersistentPreRunE resolved for the subcommands
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd creates the relayctl command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Inspect, serve and call relay services",
		Long: `relayctl drives the relay interceptor pipeline from the command line.
It prints the phase orders, describes the demo inventory contract, serves it
over a local, AMQP or NATS transport and calls its operations.`,
		Version:       version + " (commit: " + gitCommit + ")",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newPhasesCmd(a))
	root.AddCommand(newDescribeCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newCallCmd(a))
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), cfg.Log.Format)
	return nil
}
