package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/usbsniff/internal/config"
	"github.com/banshee-data/usbsniff/internal/monitoring"
)

// app carries state shared by the subcommands.
type app struct {
	configPath string
	logLevel   string
	logConsole bool

	cfg *config.CaptureConfig
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "usbsniff",
		Short:         "Capture framing pipeline and capture tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "capture config file (.json or .toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")
	root.PersistentFlags().BoolVar(&a.logConsole, "log-console", false, "human readable logs instead of JSON")

	root.AddCommand(
		newCaptureCmd(a),
		newDecodeCmd(a),
		newAnalyseCmd(a),
		newMigrateCmd(a),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.EmptyCaptureConfig()
	if a.configPath != "" {
		cfg, err := config.LoadCaptureConfig(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	level := a.cfg.GetLogLevel()
	if a.logLevel != "" {
		level = a.logLevel
	}
	return monitoring.Configure(cmd.ErrOrStderr(), level, a.logConsole)
}
