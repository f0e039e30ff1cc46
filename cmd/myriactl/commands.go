package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/egzakutacno/deeep-myria/internal/app"
	"github.com/egzakutacno/deeep-myria/internal/config"
	"github.com/egzakutacno/deeep-myria/internal/diagnosis"
	"github.com/egzakutacno/deeep-myria/internal/lifecycle"
	"github.com/egzakutacno/deeep-myria/internal/version"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// verdict prints v and turns a negative verdict into errNegative.
func verdict(cmd *cobra.Command, v any, ok bool) error {
	if err := printJSON(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if !ok {
		return errNegative
	}
	return nil
}

// probeCmd builds a read-only command over the aggregator.
func probeCmd(opts *rootOptions, use, short string, run func(cmd *cobra.Command, a *app.App) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return run(cmd, a)
		},
	}
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return probeCmd(opts, "health", "Run a heartbeat (process and RPC probes)", func(cmd *cobra.Command, a *app.App) error {
		snap := a.Aggregator.Heartbeat(cmd.Context())
		return verdict(cmd, snap, snap.Healthy())
	})
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return probeCmd(opts, "status", "Print the detailed node status", func(cmd *cobra.Command, a *app.App) error {
		st := a.Aggregator.DetailedStatus(cmd.Context())
		return verdict(cmd, st, st.Status != "error")
	})
}

func newReadyCmd(opts *rootOptions) *cobra.Command {
	return probeCmd(opts, "ready", "Check whether the node should receive traffic", func(cmd *cobra.Command, a *app.App) error {
		rd := a.Aggregator.Readiness(cmd.Context())
		return verdict(cmd, rd, rd.Ready)
	})
}

func newLiveCmd(opts *rootOptions) *cobra.Command {
	return probeCmd(opts, "live", "Check whether the node is alive", func(cmd *cobra.Command, a *app.App) error {
		lv := a.Aggregator.Liveness(cmd.Context())
		return verdict(cmd, lv, lv.Alive)
	})
}

func newMetricsCmd(opts *rootOptions) *cobra.Command {
	return probeCmd(opts, "metrics", "Collect node and host metrics", func(cmd *cobra.Command, a *app.App) error {
		m := a.Aggregator.Metrics(cmd.Context())
		return verdict(cmd, m, m.Error == "")
	})
}

func newDiagnoseCmd(opts *rootOptions) *cobra.Command {
	return probeCmd(opts, "diagnose", "Run heartbeat and readiness, then summarize findings", func(cmd *cobra.Command, a *app.App) error {
		a.Aggregator.Heartbeat(cmd.Context())
		a.Aggregator.Readiness(cmd.Context())
		report := a.Diagnosis.Analyze()
		return verdict(cmd, report, report.OverallStatus == diagnosis.StatusOK)
	})
}

type validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without touching the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("configuration load failed: %w", err)
			}
			problems := config.Check(cfg)
			if problems == nil {
				problems = []string{}
			}
			return verdict(cmd, validation{Valid: len(problems) == 0, Errors: problems}, len(problems) == 0)
		},
	}
}

// lifecycleCmd installs credentials first and reconciles with the running
// node, since each invocation starts from a fresh controller. The API key
// comes from --key or MYRIA_API_KEY.
func lifecycleCmd(opts *rootOptions, use, short string, op func(cmd *cobra.Command, c *lifecycle.Controller) lifecycle.Result) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			secrets := map[string]string{}
			if key != "" {
				secrets[lifecycle.KeyAPI] = key
			}
			res := a.Controller.InstallSecret(cmd.Context(), secrets)
			if res.Success && op != nil {
				a.Controller.Reconcile(a.Aggregator.Liveness(cmd.Context()).Alive)
				res = op(cmd, a.Controller)
			}
			return verdict(cmd, res, res.Success)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "node API key (overridden by $"+config.APIKeyEnv+")")
	return cmd
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	return lifecycleCmd(opts, "start", "Start the node (myria-node --start)", func(cmd *cobra.Command, c *lifecycle.Controller) lifecycle.Result {
		return c.Start(cmd.Context())
	})
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return lifecycleCmd(opts, "stop", "Stop the node (myria-node --stop)", func(cmd *cobra.Command, c *lifecycle.Controller) lifecycle.Result {
		return c.Stop(cmd.Context())
	})
}

func newInstallSecretCmd(opts *rootOptions) *cobra.Command {
	return lifecycleCmd(opts, "install-secret", "Install the node if needed and check the API key", nil)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of myriactl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), version.GetInfo())
		},
	}
}
