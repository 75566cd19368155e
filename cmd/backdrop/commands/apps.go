package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/bryanchriswhite/Backdrop/internal/report"
	"github.com/bryanchriswhite/Backdrop/internal/window"
	"github.com/spf13/cobra"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List running applications",
	Long: `List the running applications a wallpaper can be attached to, one entry
per executable, as the editor's application picker shows them.`,
	Example: `  # List applications in table format (default)
  backdrop apps

  # List applications in JSON format
  backdrop apps --format json

  # Show the currently focused window
  backdrop apps --current`,
	RunE: runApps,
}

var (
	appsFormat  string
	appsCurrent bool
)

func init() {
	rootCmd.AddCommand(appsCmd)

	appsCmd.Flags().StringVarP(&appsFormat, "format", "f", "table", "output format (table or json)")
	appsCmd.Flags().BoolVarP(&appsCurrent, "current", "c", false, "show current focused window")
}

func runApps(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	backend, err := window.Detect()
	if err != nil {
		return report.Wrap("No window backend is available.", err)
	}
	defer backend.Close()

	out := cmd.OutOrStdout()
	if appsCurrent {
		win, err := backend.GetFocusedWindow()
		if err != nil {
			return fmt.Errorf("failed to get focused window: %w", err)
		}
		if appsFormat == "json" {
			return json.NewEncoder(out).Encode(win)
		}
		fmt.Fprintf(out, "Title: %s\nClass: %s\nPID:   %d\nPath:  %s\n", win.Title, win.Class, win.PID, win.Path)
		return nil
	}

	windows, err := backend.ListWindows()
	if err != nil {
		return report.Wrap("Failed to list applications.", err)
	}
	apps := window.Applications(windows)

	switch appsFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(apps)
	case "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPATH\tWINDOW")
		for _, app := range apps {
			fmt.Fprintf(w, "%s\t%s\t%s\n", app.Name, app.Path, app.WindowTitle)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", appsFormat)
	}
}
