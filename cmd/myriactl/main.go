// Package main implements myriactl, a one-shot client for the probes and
// lifecycle operations the supervisor daemon exposes over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/egzakutacno/deeep-myria/internal/app"
	"github.com/egzakutacno/deeep-myria/internal/config"
	"github.com/egzakutacno/deeep-myria/internal/logging"
)

// errNegative marks a command whose verdict was printed but is negative.
var errNegative = errors.New("negative verdict")

type rootOptions struct {
	configPath string
	logLevel   string

	// build wires the components; swapped in tests.
	build func(cfg config.Config, logger *logrus.Logger) *app.App
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errNegative) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{
		build: func(cfg config.Config, logger *logrus.Logger) *app.App {
			return app.New(cfg, logger)
		},
	}
	return newRootCmdWith(opts)
}

func newRootCmdWith(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "myriactl",
		Short:         "myriactl inspects and drives a local myria-node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (default $"+config.ConfigPathEnv+")")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	rootCmd.AddCommand(
		newHealthCmd(opts),
		newStatusCmd(opts),
		newReadyCmd(opts),
		newLiveCmd(opts),
		newMetricsCmd(opts),
		newDiagnoseCmd(opts),
		newValidateCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newInstallSecretCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// load reads .env files and the validated config, then wires the app.
func (o *rootOptions) load(cmd *cobra.Command) (*app.App, error) {
	logger, err := logging.NewWithOutput(o.logLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	config.LoadEnv(logger)

	cfg, err := config.LoadValidated(o.configPath)
	if err != nil {
		return nil, err
	}
	return o.build(cfg, logger), nil
}
