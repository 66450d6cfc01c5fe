// Package config implements the config command for showing and creating configuration files.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dpscience/ddrs4pals/internal/conf"
)

// Command creates the config command with its show and init subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration",
	}

	cmd.AddCommand(showCommand(), initCommand())
	return cmd
}

func showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()
			if settings == nil {
				return fmt.Errorf("settings not loaded")
			}
			out, err := conf.Dump(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func initCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = conf.DefaultConfigPath(); err != nil {
					return err
				}
			}
			if err := conf.WriteDefaultConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
