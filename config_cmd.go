package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Inspect the configuration",
		GroupID: GroupDaemon,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return config.Write(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := resolvedConfigPath()
			if p == "" {
				p = "(none, using defaults)"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Write(cmd.OutOrStdout(), config.DefaultConfig())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "themes",
		Short: "List the built-in themes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(theme.Names()))
			for _, name := range theme.Names() {
				t, _ := theme.Get(name)
				rows = append(rows, []string{name, t.Accent, t.OK, t.Warn, t.Error})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"NAME", "ACCENT", "OK", "WARN", "ERROR"}, rows))
			return err
		},
	})
	return cmd
}
