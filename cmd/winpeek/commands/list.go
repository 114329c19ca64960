package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/WinPeek/internal/window"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List open windows",
	Long: `List all toplevel windows the compositor reports.

This command connects to the Wayland compositor, waits settle_timeout for
the initial window list and prints it.`,
	Example: `  # List windows in table format (default)
  winpeek list

  # List windows in JSON format
  winpeek list --format json

  # List only windows matching a pattern
  winpeek list --match firefox`,
	RunE: runList,
}

var (
	listFormat string
	listMatch  string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().StringVarP(&listMatch, "match", "m", "", "show only windows whose app id or title match")
}

type listedWindow struct {
	Handle string `json:"handle"`
	window.Info
}

func runList(cmd *cobra.Command, args []string) error {
	if listFormat != "table" && listFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
	cfg := configMgr.Get()

	s, err := openSession(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to compositor: %w", err)
	}
	defer s.close()

	if err := s.settle(cmd.Context(), cfg.SettleTimeout); err != nil {
		return err
	}

	handles := s.order
	if listMatch != "" {
		if handles, err = s.match(listMatch); err != nil {
			return err
		}
	}

	windows := make([]listedWindow, 0, len(handles))
	for _, h := range handles {
		windows = append(windows, listedWindow{Handle: h.String(), Info: s.windows[h]})
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	default:
		return printWindowsTable(windows)
	}
}

func printWindowsTable(windows []listedWindow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "HANDLE\tAPP ID\tTITLE\tSTATE\tOUTPUTS")
	fmt.Fprintln(w, "------\t------\t-----\t-----\t-------")

	for _, win := range windows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			win.Handle, win.AppID, truncate(win.Title, 60), win.State, strings.Join(win.Outputs, ","))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
