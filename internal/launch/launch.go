// Package launch starts applications with the activation token the
// compositor issued for them.
package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/kballard/go-shellquote"

	"github.com/bryanchriswhite/WinPeek/internal/logger"
)

// Environment variables set for launched applications
const (
	EnvActivationToken = "XDG_ACTIVATION_TOKEN"
	EnvStartupID       = "DESKTOP_STARTUP_ID"
	EnvDRIPrime        = "DRI_PRIME"
)

// ErrEmptyExec is returned for an exec line with no program
var ErrEmptyExec = errors.New("launch: empty exec line")

// Request describes one launch
type Request struct {
	AppID string
	// Exec is a desktop entry Exec line; field codes are dropped
	Exec string
	// Token is the activation token, nil when none was issued
	Token *string
	// GPUIndex selects a GPU through DRI_PRIME
	GPUIndex *uint
	// Env is the base environment, os.Environ() when nil
	Env []string
}

// Scoper moves a started process into its own systemd scope
type Scoper interface {
	MoveToScope(ctx context.Context, appID string, pid int) error
}

// Args splits an Exec line into argv and removes desktop entry field codes
func Args(execLine string) ([]string, error) {
	parts, err := shellquote.Split(execLine)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exec line %q: %w", execLine, err)
	}

	args := make([]string, 0, len(parts))
	for _, p := range parts {
		if !strings.Contains(p, "%") {
			args = append(args, p)
			continue
		}
		if s := stripFieldCodes(p); s != "" {
			args = append(args, s)
		}
	}
	if len(args) == 0 {
		return nil, ErrEmptyExec
	}
	return args, nil
}

// stripFieldCodes removes %f, %U and friends; %% becomes a literal percent
func stripFieldCodes(arg string) string {
	var b strings.Builder
	for i := 0; i < len(arg); i++ {
		if arg[i] != '%' || i+1 == len(arg) {
			b.WriteByte(arg[i])
			continue
		}
		i++
		switch arg[i] {
		case '%':
			b.WriteByte('%')
		case 'f', 'F', 'u', 'U', 'i', 'c', 'k', 'd', 'D', 'n', 'N', 'v', 'm':
		default:
			b.WriteByte('%')
			b.WriteByte(arg[i])
		}
	}
	return b.String()
}

// Env builds the child environment from base: stale token variables are
// dropped and the new token and GPU selection added.
func Env(base []string, token *string, gpu *uint) []string {
	env := make([]string, 0, len(base)+3)
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		switch name {
		case EnvActivationToken, EnvStartupID:
			continue
		case EnvDRIPrime:
			if gpu != nil {
				continue
			}
		}
		env = append(env, kv)
	}
	if token != nil {
		env = append(env, EnvActivationToken+"="+*token, EnvStartupID+"="+*token)
	}
	if gpu != nil {
		env = append(env, EnvDRIPrime+"="+strconv.FormatUint(uint64(*gpu), 10))
	}
	return env
}

// Command prepares the process for r without starting it
func Command(r Request) (*exec.Cmd, error) {
	args, err := Args(r.Exec)
	if err != nil {
		return nil, err
	}
	base := r.Env
	if base == nil {
		base = os.Environ()
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = Env(base, r.Token, r.GPUIndex)
	// detach from our session so the app outlives us
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd, nil
}

// Start launches r and, when scoper is non-nil, moves the process into a
// transient scope. Scope failures are logged, not returned: the app runs
// either way. Start reaps the child in the background.
func Start(ctx context.Context, r Request, scoper Scoper) (int, error) {
	log := logger.WithComponent("launch")

	cmd, err := Command(r)
	if err != nil {
		return 0, err
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	pid := cmd.Process.Pid
	go cmd.Wait()

	log.Info().
		Str("app_id", r.AppID).
		Int("pid", pid).
		Bool("token", r.Token != nil).
		Msg("Launched application")

	if scoper != nil {
		if err := scoper.MoveToScope(ctx, r.AppID, pid); err != nil {
			log.Warn().Err(err).Str("app_id", r.AppID).Int("pid", pid).Msg("Failed to move application into a scope")
		}
	}
	return pid, nil
}
