package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/bryanchriswhite/Backdrop/internal/config"
	"github.com/spf13/cobra"
)

var wallpaperCmd = &cobra.Command{
	Use:     "wallpaper",
	Aliases: []string{"wp"},
	Short:   "Inspect saved wallpapers",
	Long: `List, show and remove saved wallpapers. Editing happens through the
server so changes can be previewed on the renderer.`,
}

var wallpaperListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved wallpapers",
	RunE:  runWallpaperList,
}

var wallpaperShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one saved wallpaper",
	Args:  cobra.ExactArgs(1),
	RunE:  runWallpaperShow,
}

var wallpaperRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a saved wallpaper",
	Long: `Remove a saved wallpaper from the config file. A running server keeps
drawing it until restarted; delete through the API to remove it live.`,
	Args: cobra.ExactArgs(1),
	RunE: runWallpaperRemove,
}

var wallpaperFormat string

func init() {
	rootCmd.AddCommand(wallpaperCmd)
	wallpaperCmd.AddCommand(wallpaperListCmd)
	wallpaperCmd.AddCommand(wallpaperShowCmd)
	wallpaperCmd.AddCommand(wallpaperRemoveCmd)

	wallpaperShowCmd.Flags().StringVarP(&wallpaperFormat, "format", "f", "yaml", "output format (yaml or json)")
}

func runWallpaperList(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAPPLICATION\tSOURCE\tOPACITY")
	for _, e := range configMgr.List() {
		r := e.Record
		source := "-"
		if r.Source != nil {
			source = fmt.Sprintf("%s %s", r.Source.Kind(), r.Source.Location())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\n", e.ID, r.Name, r.Application.Path, source, r.Opacity)
	}
	return w.Flush()
}

func runWallpaperShow(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	r, err := configMgr.LoadBaseline(args[0])
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: %s", config.ErrNotFound, args[0])
	}
	return printAs(cmd, wallpaperFormat, r)
}

func runWallpaperRemove(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	if err := configMgr.Remove(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed wallpaper %s\n", args[0])
	return nil
}
