package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/WinPeek/internal/logger"
	"github.com/bryanchriswhite/WinPeek/internal/output"
	"github.com/bryanchriswhite/WinPeek/internal/window"
	"github.com/bryanchriswhite/WinPeek/internal/worker"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream window events and capture thumbnails",
	Long: `Print window and workspace events as they happen and keep live captures
of the windows matching the capture patterns.

Without --capture the capture_patterns from the config file are used. With
--out every captured window gets a PNG thumbnail in that directory, replaced
at most once per --interval.`,
	Example: `  # Print events only
  winpeek watch

  # Keep thumbnails of all terminals and browsers
  winpeek watch --capture foot --capture firefox --out /tmp/thumbs`,
	RunE: runWatch,
}

var (
	watchCapture  []string
	watchOut      string
	watchLabel    bool
	watchInterval time.Duration
	watchQuiet    bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceVarP(&watchCapture, "capture", "c", nil, "capture windows matching this pattern (repeatable)")
	watchCmd.Flags().StringVarP(&watchOut, "out", "o", "", "directory for PNG thumbnails")
	watchCmd.Flags().BoolVar(&watchLabel, "label", true, "draw the app id on thumbnails")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "minimum time between thumbnail writes per window")
	watchCmd.Flags().BoolVarP(&watchQuiet, "quiet", "q", false, "do not print window events")
}

// selectWindows returns the windows any matcher selects, in order
func selectWindows(matchers []*window.Matcher, order []window.Handle, windows map[window.Handle]window.Info) []window.Handle {
	var out []window.Handle
	for _, h := range order {
		info := windows[h]
		for _, m := range matchers {
			if m.Match(info) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// thumbnailName names a window's thumbnail; the serial keeps it unique
func thumbnailName(h window.Handle, info window.Info) string {
	app := info.AppID
	if app == "" {
		app = "window"
	}
	return fmt.Sprintf("%s-%d", app, h.Serial())
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")
	cfg := configMgr.Get()

	patterns := watchCapture
	if len(patterns) == 0 {
		patterns = cfg.CapturePatterns
	}
	matchers := make([]*window.Matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := window.NewMatcher(p)
		if err != nil {
			return err
		}
		matchers = append(matchers, m)
	}

	var out output.Output
	if watchOut != "" {
		out = output.NewPNGDirOutput(watchOut, output.Config{
			Width:  cfg.Thumbnail.Width,
			Height: cfg.Thumbnail.Height,
			Label:  watchLabel,
		})
		if err := out.Start(); err != nil {
			return err
		}
		defer out.Stop()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to compositor: %w", err)
	}
	log.Info().Strs("patterns", patterns).Msg("Watching windows")

	var captured []window.Handle
	lastWrite := make(map[window.Handle]time.Time)
	names := make(map[window.Handle]string)

	for u := range s.updates {
		switch u := u.(type) {
		case worker.FrameCaptured:
			writeThumbnail(out, u, names[u.Window], lastWrite)
			continue
		case worker.WindowRemoved:
			if out != nil && names[u.Window] != "" {
				if err := out.RemoveWindow(names[u.Window]); err != nil {
					log.Warn().Err(err).Str("window", u.Window.String()).Msg("Failed to remove thumbnail")
				}
			}
			delete(names, u.Window)
			delete(lastWrite, u.Window)
		}

		if !s.apply(u) {
			break
		}
		if !watchQuiet {
			printUpdate(u)
		}

		switch u := u.(type) {
		case worker.WindowAdded:
			names[u.Window] = thumbnailName(u.Window, u.Info)
		case worker.WindowUpdated:
			names[u.Window] = thumbnailName(u.Window, u.Info)
		}

		want := selectWindows(matchers, s.order, s.windows)
		if !slices.Equal(want, captured) {
			captured = want
			if err := s.commands.SetCaptureFilter(captured...); err != nil {
				log.Debug().Err(err).Msg("Worker no longer accepts commands")
			}
		}
	}

	if ctx.Err() != nil || errors.Is(s.finished, errFinished) {
		return nil
	}
	return s.finished
}

func writeThumbnail(out output.Output, fc worker.FrameCaptured, name string, lastWrite map[window.Handle]time.Time) {
	defer fc.Frame.Release()
	if out == nil || name == "" {
		return
	}
	now := time.Now()
	if now.Sub(lastWrite[fc.Window]) < watchInterval {
		return
	}
	img := fc.Frame.Image()
	if img == nil {
		return
	}
	lastWrite[fc.Window] = now
	if err := out.WriteFrame(name, img); err != nil {
		logger.WithComponent("watch").Warn().Err(err).Str("window", fc.Window.String()).Msg("Failed to write thumbnail")
	}
}

func printUpdate(u worker.Update) {
	switch u := u.(type) {
	case worker.WindowAdded:
		fmt.Printf("+ %s %s %q\n", u.Window, u.Info.AppID, u.Info.Title)
	case worker.WindowUpdated:
		fmt.Printf("~ %s %s %q [%s]\n", u.Window, u.Info.AppID, u.Info.Title, u.Info.State)
	case worker.WindowRemoved:
		fmt.Printf("- %s\n", u.Window)
	case worker.WorkspaceActivated:
		fmt.Printf("* workspace %s %q\n", u.Workspace.ID, u.Workspace.Name)
	}
}
