package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/noteport/noteport/internal/debug"
)

// ExecContext runs name in workDir and returns its stdout. A non-zero exit
// carries stderr in the error. Running past timeout gives ErrTimeout and a
// missing binary gives ErrGitNotAvailable.
//
// Arguments go to the process as is. No shell is involved.
func ExecContext(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	line := name + " " + strings.Join(args, " ")
	debug.Logf("exec %s (dir=%s)", line, workDir)
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrGitNotAvailable, err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w after %s", line, ErrTimeout, timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// ParseLines returns the trimmed non-empty lines of out.
func ParseLines(out []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// TrimOutput returns out without surrounding whitespace.
func TrimOutput(out []byte) string {
	return strings.TrimSpace(string(out))
}

// GetExitCode returns the exit status carried by err, 0 for nil and -1
// when err did not come from a finished process.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
