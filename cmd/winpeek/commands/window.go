package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/WinPeek/internal/window"
	"github.com/bryanchriswhite/WinPeek/internal/worker"
)

var windowAll bool

func newWindowCommand(use, short string, send func(*worker.Commands, window.Handle) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " PATTERN",
		Short: short,
		Long: short + `.

PATTERN is matched case-insensitively against the app id first, then as a
regular expression against the app id and title. Only the first matching
window is used unless --all is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWindowCommand(cmd, args[0], use, send)
		},
	}
}

func init() {
	for _, c := range []*cobra.Command{
		newWindowCommand("activate", "Focus a window", (*worker.Commands).Activate),
		newWindowCommand("minimize", "Minimize a window", (*worker.Commands).Minimize),
		newWindowCommand("close", "Ask a window to close", (*worker.Commands).CloseWindow),
	} {
		c.Flags().BoolVarP(&windowAll, "all", "a", false, "apply to every matching window")
		rootCmd.AddCommand(c)
	}
}

func runWindowCommand(cmd *cobra.Command, pattern, action string, send func(*worker.Commands, window.Handle) error) error {
	cfg := configMgr.Get()

	s, err := openSession(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to compositor: %w", err)
	}
	if err := s.settle(cmd.Context(), cfg.SettleTimeout); err != nil {
		s.close()
		return err
	}

	handles, err := s.match(pattern)
	if err != nil {
		s.close()
		return err
	}
	if !windowAll {
		handles = handles[:1]
	}
	for _, h := range handles {
		if err := send(s.commands, h); err != nil {
			s.close()
			return err
		}
		info := s.windows[h]
		fmt.Printf("%s %s (%s)\n", action, info.AppID, info.Title)
	}

	// the worker handles queued commands before it shuts down
	return s.close()
}
