package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dpscience/ddrs4pals/cmd/bench"
	configcmd "github.com/dpscience/ddrs4pals/cmd/config"
	"github.com/dpscience/ddrs4pals/cmd/inspect"
	"github.com/dpscience/ddrs4pals/cmd/run"
	"github.com/dpscience/ddrs4pals/internal/buildinfo"
	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/logger"
)

// sentryFlushTimeout bounds how long exit waits for queued error reports.
const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "ddrs4pals",
		Short:         "DRS4 positron lifetime acquisition core",
		Version:       info.Version(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
		},
	}

	rootCmd.AddCommand(
		run.Command(info),
		bench.Command(),
		configcmd.Command(),
		inspect.Command(),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs neither settings nor logging
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		var err error
		central, err = initialize(configFile, info)
		return err
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		errors.FlushSentry(sentryFlushTimeout)
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// initialize loads the settings and sets up logging and error telemetry.
// Flag values bound to viper take precedence over the config file.
func initialize(configFile string, info *buildinfo.Context) (*logger.CentralLogger, error) {
	if configFile != "" {
		conf.SetConfigFile(configFile)
	}

	settings, err := conf.Load()
	if err != nil {
		return nil, err
	}

	logCfg := settings.Main.Log
	if settings.Debug {
		logCfg.DefaultLevel = "debug"
		if logCfg.Console != nil {
			logCfg.Console.Level = "debug"
		}
	}
	// keep stdout clean for the event stream
	if settings.Forward.Sink == conf.SinkWriter && settings.Forward.Path == "-" {
		if logCfg.Console == nil {
			logCfg.Console = &logger.ConsoleOutput{Enabled: true, Level: logCfg.DefaultLevel}
		}
		logCfg.Console.Stderr = true
	}

	central, err := logger.NewCentralLogger(&logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Telemetry.Sentry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.Sentry.DSN, info.Release()); err != nil {
			central.Module("main").Warn("error telemetry disabled", logger.Error(err))
		}
	}

	central.Module("main").Info("ddrs4pals starting",
		logger.String("version", info.Version()),
		logger.String("build_date", info.BuildDate()),
		logger.String("system_id", info.SystemID()),
		logger.String("node", settings.Main.Name),
		logger.String("config", viper.ConfigFileUsed()))

	return central, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to the config file (default: search ./, ~/.config/ddrs4pals, /etc/ddrs4pals)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("node", "", "Name of this acquisition node")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("main.name", rootCmd.PersistentFlags().Lookup("node")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
