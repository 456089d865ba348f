// Package cli defines the root Cobra command and global flag/context setup.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/f9-o/agentdeck/internal/cli/commands"
	"github.com/f9-o/agentdeck/internal/core/config"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/internal/core/store"
	"github.com/f9-o/agentdeck/pkg/errs"
	"github.com/f9-o/agentdeck/pkg/pprint"
)

// globalFlags holds values bound to persistent global flags.
var globalFlags struct {
	configFile string
	debug      bool
	jsonOutput bool
}

// statelessCommands run without opening the state database.
var statelessCommands = map[string]bool{
	"version":    true,
	"completion": true,
	"dev-agent":  true,
	"init":       true,
}

// rootCmd is the base command for agentdeck.
var rootCmd = &cobra.Command{
	Use:           "agentdeck",
	Short:         "agentdeck: terminal control deck for a local deployment agent",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare `agentdeck`: help func already prints banner
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}
		return initRuntime(cmd)
	},
}

// active is the runtime opened for the running command; execute closes it
// after the command returns, on error too.
var active *commands.Runtime

// Execute runs the CLI. Called by main().
func Execute() {
	// Show banner before every help screen
	origHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		pprint.PrintBanner(commands.Version, commands.BuildDate)
		origHelp(cmd, args)
	})

	if err := execute(context.Background()); err != nil {
		if e := errs.As(err); e != nil {
			pprint.Error("%s", e.UserMessage())
		} else {
			pprint.Error("%s", err)
		}
		os.Exit(1)
	}
}

// execute runs the command tree and releases the runtime afterwards.
func execute(ctx context.Context) error {
	defer closeRuntime()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.configFile, "config", "c", "", "Path to a settings file (merged over ~/.agentdeck/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.debug, "debug", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.jsonOutput, "json", false, "Output in machine-readable JSON")

	// Register all subcommands
	rootCmd.AddCommand(
		commands.NewUICmd(),
		commands.NewStatusCmd(),
		commands.NewOnboardCmd(),
		commands.NewConfigCmd(),
		commands.NewTunnelCmd(),
		commands.NewHistoryCmd(),
		commands.NewMonitorCmd(),
		commands.NewDevAgentCmd(),
		commands.NewVersionCmd(),
	)
}

// initRuntime loads settings, logger, and state before each command runs.
func initRuntime(cmd *cobra.Command) error {
	cfg, err := config.Load(globalFlags.configFile)
	if err != nil {
		if globalFlags.configFile != "" {
			return errs.Wrap(err, errs.ErrConfig, "cli.config").
				WithAdvice("fix the settings file or run 'agentdeck config init' for a template")
		}
		pprint.Warn("settings ignored, using defaults: %s", err)
		cfg = config.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "logs", "agentdeck.log")
	}

	// The TUI owns the terminal: route log lines to its log pane instead of stderr.
	var logLines chan string
	quiet := cmd.Name() == "ui"
	if quiet {
		logLines = make(chan string, 256)
		logger.SetTUISink(logLines)
	}

	log, err := logger.Init(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    logFile,
		HomeDir: cfg.DataDir,
		Debug:   globalFlags.debug,
		Quiet:   quiet,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	rt := &commands.Runtime{
		Config:   cfg,
		Log:      log,
		LogLines: logLines,
		Flags: commands.GlobalFlags{
			Debug:      globalFlags.debug,
			JSONOutput: globalFlags.jsonOutput,
		},
	}

	if !statelessCommands[cmd.Name()] {
		db, err := store.Open(filepath.Join(cfg.DataDir, "state.db"), log)
		if err != nil {
			log.Close()
			return err
		}
		rt.Store = db
	}

	active = rt
	cmd.SetContext(commands.NewContext(cmd.Context(), rt))
	return nil
}

// closeRuntime releases the state database and log files.
func closeRuntime() {
	rt := active
	if rt == nil {
		return
	}
	active = nil
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			rt.Log.Warn("close state db", "err", err)
		}
	}
	_ = rt.Log.Close()
}
