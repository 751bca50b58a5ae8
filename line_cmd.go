package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/barline"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/cache"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
)

func newLineCmd() *cobra.Command {
	var (
		jsonOutput bool
		preset     string
		separator  string
		maxWidth   int
		plain      bool
	)

	cmd := &cobra.Command{
		Use:     "line [service...]",
		Short:   "Print a status line from the snapshots",
		GroupID: GroupOutput,
		Long: `Print one line built from the snapshot files the daemon writes.

The daemon does not have to be reachable: a bar keeps showing the last
values while it restarts. Snapshots older than line.max_age are skipped.
Colors are used only when stdout is a terminal.

Without arguments the services come from line.services, or the preset.
Presets: ` + strings.Join(config.LinePresetNames(), ", ") + `.`,
		Example: `  bar-pulse line                          # Configured services
  bar-pulse line weather prayer battery   # Explicit services
  bar-pulse line --preset desktop         # A preset
  bar-pulse line --json                   # waybar custom module output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			names := args
			switch {
			case len(names) > 0:
			case preset != "":
				names = config.LinePreset(preset)
			default:
				names = cfg.LineServices()
			}

			store, err := cache.NewStore(cache.StoreConfig{Dir: cfg.General.CacheDir, ReadOnly: true})
			if err != nil {
				return err
			}

			if separator == "" {
				separator = cfg.Line.Separator
			}
			if maxWidth <= 0 {
				maxWidth = cfg.Line.MaxWidth
				if barline.IsTerminal(os.Stdout) {
					maxWidth = min(maxWidth, barline.TerminalWidth(os.Stdout, maxWidth))
				}
			}
			profile := barline.DetectProfile(os.Stdout)
			if plain {
				profile = termenv.Ascii
			}

			th, err := theme.Load(cfg.Appearance.Theme, cfg.Appearance.ThemeFile, cfg.Appearance.DarkMode)
			if err != nil {
				return err
			}

			r, err := barline.New(barline.Config{
				Store:     store,
				Services:  names,
				Separator: separator,
				MaxWidth:  maxWidth,
				MaxAge:    cfg.Line.MaxAge.Duration,
				Intervals: cfg.Intervals(),
				Profile:   profile,
				Theme:     th,
				DarkMode:  cfg.Appearance.DarkMode,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSONLine(out, r.Waybar())
			}
			_, err = fmt.Fprintln(out, r.Render())
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, `waybar JSON: {"text","tooltip","class"}`)
	cmd.Flags().StringVar(&preset, "preset", "", "service preset")
	cmd.Flags().StringVar(&separator, "separator", "", "segment separator")
	cmd.Flags().IntVar(&maxWidth, "width", 0, "maximum width in cells")
	cmd.Flags().BoolVar(&plain, "plain", false, "never use color")
	return cmd
}
