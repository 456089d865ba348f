// agentdeck config: inspect and edit settings and the deployment configuration.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/core/config"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/pkg/errs"
	"github.com/f9-o/agentdeck/pkg/pprint"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings and the deployment configuration",
	}
	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigResetCmd(),
		newConfigInitCmd(),
	)
	return cmd
}

// configView is what `config show` prints. Durations are rendered as strings
// and the credential only as a fingerprint.
type configView struct {
	Settings   settingsView   `yaml:"settings"   json:"settings"`
	Deployment deploymentView `yaml:"deployment" json:"deployment"`
}

type settingsView struct {
	DataDir           string `yaml:"data_dir"           json:"data_dir"`
	AgentURL          string `yaml:"agent_url"          json:"agent_url"`
	AgentTimeout      string `yaml:"agent_timeout"      json:"agent_timeout"`
	TelemetryInterval string `yaml:"telemetry_interval" json:"telemetry_interval"`
	TunnelProvider    string `yaml:"tunnel_provider"    json:"tunnel_provider"`
	LogLevel          string `yaml:"log_level"          json:"log_level"`
	LogFormat         string `yaml:"log_format"         json:"log_format"`
	LogFile           string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

type deploymentView struct {
	Mode       v1.Mode `yaml:"mode"                 json:"mode"`
	Credential string  `yaml:"credential,omitempty" json:"credential,omitempty"`
	NodeID     string  `yaml:"nodeId,omitempty"     json:"nodeId,omitempty"`
	APIPort    int     `yaml:"apiPort,omitempty"    json:"apiPort,omitempty"`
	MeshPort   int     `yaml:"meshPort,omitempty"   json:"meshPort,omitempty"`
	Configured bool    `yaml:"configured"           json:"configured"`
}

func newConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print effective settings and the saved deployment configuration",
		Example: `  agentdeck config show
  agentdeck config show --format json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			view := buildConfigView(rt.Config, rt.Store.Load())

			if rt.Flags.JSONOutput {
				format = "json"
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			case "yaml", "":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(view)
			default:
				return fmt.Errorf("unknown format %q (yaml | json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml | json")
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <field> <value> [<field> <value>...]",
		Short: "Change deployment fields (mode, token, nodeId, apiPort, meshPort) in one save",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 || len(args)%2 != 0 {
				return fmt.Errorf("expected <field> <value> pairs, got %d args", len(args))
			}
			return nil
		},
		Example: `  agentdeck config set token $ZEXIO_TOKEN
  agentdeck config set meshPort 9081
  agentdeck config set mode cloud token $ZEXIO_TOKEN nodeId node-123`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			ctx := cmd.Context()

			ctrl, err := rt.Controller(ctx, false)
			if err != nil {
				return err
			}
			defer ctrl.Stop()

			if err := ctrl.OpenSettings(ctx); err != nil {
				return errs.Wrap(err, errs.ErrIntentRejected, "cli.config_set").
					WithAdvice("nothing configured yet: run 'agentdeck onboard' first")
			}
			for i := 0; i < len(args); i += 2 {
				if err := ctrl.UpdateField(ctx, args[i], args[i+1]); err != nil {
					_ = ctrl.CancelSettings(ctx)
					printFieldErrors(err)
					return err
				}
			}
			if err := ctrl.SaveSettings(ctx); err != nil {
				_ = ctrl.CancelSettings(ctx)
				printFieldErrors(err)
				return err
			}

			for i := 0; i < len(args); i += 2 {
				shown := args[i+1]
				if config.IsSensitiveKey(args[i]) {
					shown = "fingerprint " + logger.Fingerprint(shown)
				}
				pprint.Success("%s updated (%s)", args[i], shown)
			}
			return nil
		},
	}
}

func newConfigResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:          "reset",
		Short:        "Forget the deployment configuration and return to onboarding",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errs.Newf(errs.ErrValidation, "cli.config_reset", "refusing to reset without confirmation").
					WithAdvice("re-run with --yes")
			}
			rt := FromContext(cmd.Context())
			ctrl, err := rt.Controller(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer ctrl.Stop()

			if err := ctrl.Reset(cmd.Context()); err != nil {
				return err
			}
			pprint.Success("Deployment configuration reset")
			pprint.Info("run 'agentdeck onboard' or 'agentdeck ui' to configure again")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented settings template to ~/.agentdeck/config.yaml",
		Example: `  agentdeck config init
  agentdeck config init --path ./agentdeck.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetPath == "" {
				targetPath = filepath.Join(config.Home(), "config.yaml")
			}
			if _, err := os.Stat(targetPath); err == nil {
				return fmt.Errorf("%s already exists, delete it first to reinitialise", targetPath)
			}
			if err := os.MkdirAll(filepath.Dir(targetPath), 0750); err != nil {
				return fmt.Errorf("create dir %q: %w", filepath.Dir(targetPath), err)
			}
			if err := os.WriteFile(targetPath, []byte(config.DefaultConfigTemplate), 0640); err != nil {
				return fmt.Errorf("write %s: %w", targetPath, err)
			}

			pprint.Success("Created %s", targetPath)
			pprint.Info("every key can also be set with AGENTDECK_<SECTION>_<KEY>")
			return nil
		},
	}
	cmd.Flags().StringVar(&targetPath, "path", "", "Destination file (default ~/.agentdeck/config.yaml)")
	return cmd
}

func buildConfigView(cfg *config.Config, dep v1.DeploymentConfig) configView {
	view := configView{
		Settings: settingsView{
			DataDir:           cfg.DataDir,
			AgentURL:          cfg.Agent.URL,
			AgentTimeout:      cfg.Agent.Timeout.String(),
			TelemetryInterval: cfg.Telemetry.Interval.String(),
			TunnelProvider:    cfg.Tunnel.Provider,
			LogLevel:          cfg.Log.Level,
			LogFormat:         cfg.Log.Format,
			LogFile:           cfg.Log.File,
		},
		Deployment: deploymentView{
			Mode:       dep.Mode,
			NodeID:     dep.NodeID,
			APIPort:    dep.APIPort,
			MeshPort:   dep.MeshPort,
			Configured: dep.Configured(),
		},
	}
	if dep.Credential != "" {
		view.Deployment.Credential = "fingerprint " + logger.Fingerprint(dep.Credential)
	}
	return view
}
