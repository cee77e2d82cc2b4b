package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/docker/docker/pkg/stdcopy"
	tcexec "github.com/testcontainers/testcontainers-go/exec"

	"github.com/technopolitica/pgdiff/internal/domain"
)

// Execer is the part of a testcontainers.Container needed to run commands in it.
type Execer interface {
	Exec(ctx context.Context, cmd []string, options ...tcexec.ProcessOption) (int, io.Reader, error)
}

type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// OutText returns stdout without the surrounding whitespace the exec
// transport may add.
func (r ExecResult) OutText() string {
	return strings.TrimSpace(string(r.Stdout))
}

func (r ExecResult) ErrText() string {
	return strings.TrimSpace(string(r.Stderr))
}

type execOptions struct {
	allowedExitCodes []int
}

type ExecOption func(*execOptions)

// AllowExitCodes replaces the default allow-list of {0}.
func AllowExitCodes(codes ...int) ExecOption {
	return func(o *execOptions) {
		o.allowedExitCodes = codes
	}
}

// Exec runs cmd inside target, waits for it to finish and captures stdout
// and stderr separately. An exit code outside the allow-list yields a
// *domain.ExecutionFailure; the captured result is returned alongside it.
func Exec(ctx context.Context, target Execer, cmd []string, opts ...ExecOption) (result ExecResult, err error) {
	options := execOptions{allowedExitCodes: []int{0}}
	for _, opt := range opts {
		opt(&options)
	}

	exitCode, output, err := target.Exec(ctx, cmd)
	if err != nil {
		err = fmt.Errorf("failed to exec %q: %w", strings.Join(cmd, " "), err)
		return
	}
	var stdout, stderr bytes.Buffer
	if output != nil {
		if _, err = stdcopy.StdCopy(&stdout, &stderr, output); err != nil {
			err = fmt.Errorf("failed to read output of %q: %w", strings.Join(cmd, " "), err)
			return
		}
	}
	result = ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
	if !slices.Contains(options.allowedExitCodes, exitCode) {
		err = &domain.ExecutionFailure{
			Command:  cmd,
			ExitCode: exitCode,
			Stderr:   result.ErrText(),
		}
	}
	return
}
