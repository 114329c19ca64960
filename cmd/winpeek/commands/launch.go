package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/WinPeek/internal/launch"
	"github.com/bryanchriswhite/WinPeek/internal/logger"
	"github.com/bryanchriswhite/WinPeek/internal/worker"
)

var launchCmd = &cobra.Command{
	Use:   "launch APP_ID -- COMMAND [ARGS...]",
	Short: "Launch an application with an activation token",
	Long: `Ask the compositor for an activation token for APP_ID and start COMMAND
with it, so the new window may take focus. When the compositor cannot issue
tokens the command is started without one.

The process is moved into a transient systemd scope when the user's systemd
instance is reachable.`,
	Example: `  # Launch a terminal
  winpeek launch foot -- foot

  # Launch on the second GPU
  winpeek launch org.mozilla.firefox --gpu 1 -- firefox --new-window`,
	Args: cobra.MinimumNArgs(2),
	RunE: runLaunch,
}

var (
	launchGPU     int
	launchTimeout time.Duration
	launchNoScope bool
)

func init() {
	rootCmd.AddCommand(launchCmd)

	launchCmd.Flags().IntVar(&launchGPU, "gpu", -1, "GPU index passed as DRI_PRIME")
	launchCmd.Flags().DurationVar(&launchTimeout, "timeout", 2*time.Second, "how long to wait for the token")
	launchCmd.Flags().BoolVar(&launchNoScope, "no-scope", false, "do not create a systemd scope")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	appID := args[0]
	execLine := shellquote.Join(args[1:]...)
	var gpu *uint
	if launchGPU >= 0 {
		g := uint(launchGPU)
		gpu = &g
	}

	issued, err := requestToken(cmd.Context(), appID, execLine, gpu)
	if err != nil {
		return err
	}

	var scoper launch.Scoper
	if !launchNoScope {
		s, err := launch.NewSystemdScoper()
		if err != nil {
			logger.WithComponent("launch").Warn().Err(err).Msg("Launching without a systemd scope")
		} else {
			defer s.Close()
			scoper = s
		}
	}

	pid, err := launch.Start(cmd.Context(), launch.Request{
		AppID:    issued.AppID,
		Exec:     issued.Exec,
		Token:    issued.Token,
		GPUIndex: issued.GPUIndex,
	}, scoper)
	if err != nil {
		return err
	}
	fmt.Printf("Launched %s (pid %d)\n", appID, pid)
	return nil
}

// requestToken returns the worker's answer, or a token-less one when the
// compositor is unreachable or does not answer in time
func requestToken(ctx context.Context, appID, execLine string, gpu *uint) (worker.ActivationTokenIssued, error) {
	fallback := worker.ActivationTokenIssued{AppID: appID, Exec: execLine, GPUIndex: gpu}

	s, err := openSession(ctx, configMgr.Get())
	if err != nil {
		logger.WithComponent("launch").Warn().Err(err).Msg("Compositor unavailable, launching without a token")
		return fallback, nil
	}
	defer s.close()

	if err := s.commands.RequestActivationToken(appID, execLine, gpu); err != nil {
		return fallback, err
	}

	timer := time.NewTimer(launchTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return fallback, ctx.Err()
		case <-timer.C:
			logger.WithComponent("launch").Warn().Str("app_id", appID).Msg("No activation token received, launching without one")
			return fallback, nil
		case u, ok := <-s.updates:
			if !ok {
				return fallback, nil
			}
			if issued, isToken := u.(worker.ActivationTokenIssued); isToken {
				return issued, nil
			}
			if !s.apply(u) {
				return fallback, nil
			}
		}
	}
}
