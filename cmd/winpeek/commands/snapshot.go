package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/WinPeek/internal/output"
	"github.com/bryanchriswhite/WinPeek/internal/worker"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot PATTERN",
	Short: "Capture one frame of a window",
	Long: `Capture a single frame of the first window matching PATTERN and write
it as a PNG, scaled to fit the thumbnail size.`,
	Example: `  # Thumbnail of the first terminal window
  winpeek snapshot foot -o foot.png

  # Full size capture
  winpeek snapshot firefox -o firefox.png --width 0 --height 0`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshot,
}

var (
	snapshotOut     string
	snapshotWidth   int
	snapshotHeight  int
	snapshotLabel   bool
	snapshotTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVarP(&snapshotOut, "output", "o", "snapshot.png", "file to write")
	snapshotCmd.Flags().IntVar(&snapshotWidth, "width", -1, "maximum width (default thumbnail.width, 0 for unlimited)")
	snapshotCmd.Flags().IntVar(&snapshotHeight, "height", -1, "maximum height (default thumbnail.height, 0 for unlimited)")
	snapshotCmd.Flags().BoolVar(&snapshotLabel, "label", false, "draw the app id on the image")
	snapshotCmd.Flags().DurationVar(&snapshotTimeout, "timeout", 5*time.Second, "how long to wait for a frame")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg := configMgr.Get()
	width, height := snapshotWidth, snapshotHeight
	if width < 0 {
		width = cfg.Thumbnail.Width
	}
	if height < 0 {
		height = cfg.Thumbnail.Height
	}

	s, err := openSession(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to compositor: %w", err)
	}
	defer s.close()

	if err := s.settle(cmd.Context(), cfg.SettleTimeout); err != nil {
		return err
	}
	handles, err := s.match(args[0])
	if err != nil {
		return err
	}
	target := handles[0]
	if err := s.commands.SetCaptureFilter(target); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), snapshotTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no frame from %s within %s", target, snapshotTimeout)
		case u, ok := <-s.updates:
			if !ok {
				return s.err()
			}
			fc, isFrame := u.(worker.FrameCaptured)
			if !isFrame || fc.Window != target {
				if !s.apply(u) {
					return s.err()
				}
				if _, open := s.windows[target]; !open {
					return fmt.Errorf("%s closed before a frame arrived", target)
				}
				continue
			}

			img := fc.Frame.Image()
			fc.Frame.Release()
			if img == nil {
				continue
			}
			thumb := output.Thumbnail(img, width, height)
			if snapshotLabel {
				output.Label(thumb, s.windows[target].AppID)
			}
			if err := output.WritePNG(snapshotOut, thumb); err != nil {
				return err
			}
			fmt.Printf("Wrote %s (%dx%d)\n", snapshotOut, thumb.Rect.Dx(), thumb.Rect.Dy())
			return nil
		}
	}
}
