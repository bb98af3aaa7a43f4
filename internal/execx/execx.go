package execx

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ErrEmptyCommand is returned when a runner is asked to execute nothing.
var ErrEmptyCommand = errors.New("empty command")

// Runner executes one shell command on the router and returns its stdout.
// It is the only place in the collector where a transport failure is an error;
// everything above it works on text.
type Runner interface {
	Output(ctx context.Context, command string) (string, error)
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context, command string) (string, error)

func (f RunnerFunc) Output(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// Session is a Runner that holds a connection which must be released.
type Session interface {
	Runner
	Close() error
}

// Dialer opens a new Session. Concurrent collection asks for one session per worker.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Exec runs command and degrades any failure to empty output. The failure is
// logged and otherwise swallowed: empty output means "no data" to every parser.
func Exec(ctx context.Context, r Runner, log *zap.Logger, command string) string {
	out, err := r.Output(ctx, command)
	if err != nil {
		log.Warn("command failed", zap.String("cmd", command), zap.Error(err))
		return ""
	}
	log.Debug("command output", zap.String("cmd", command), zap.String("output", out))
	return out
}

// OSRunner executes commands on the local host through /bin/sh. It is used
// when the collector runs on the router itself.
type OSRunner struct {
	Shell string
}

func NewOSRunner() *OSRunner {
	return &OSRunner{Shell: "/bin/sh"}
}

func (r *OSRunner) Output(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", ErrEmptyCommand
	}
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// grep exits 1 on no match; stdout is still the answer.
		if stdout.Len() > 0 {
			return stdout.String(), nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", errors.New(err.Error() + ": " + msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// Close is a no-op so OSRunner can stand in as a Session.
func (r *OSRunner) Close() error { return nil }

// LocalDialer hands out OSRunner sessions.
type LocalDialer struct{}

func (LocalDialer) Dial(context.Context) (Session, error) {
	return NewOSRunner(), nil
}
