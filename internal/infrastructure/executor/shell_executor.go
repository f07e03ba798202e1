package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/crewsync/crewsync/internal/application/dto"
	"github.com/crewsync/crewsync/internal/application/service"
)

// ShellExecutor runs a task's declared command through the shell. Tasks
// without a command are treated as declarative: they complete
// immediately with whatever artifacts they declared.
type ShellExecutor struct {
	Shell   string        // defaults to /bin/sh
	Timeout time.Duration // per-task execution timeout
}

// NewShellExecutor creates a shell executor with the given timeout
func NewShellExecutor(timeout time.Duration) *ShellExecutor {
	return &ShellExecutor{
		Shell:   "/bin/sh",
		Timeout: timeout,
	}
}

// Execute runs the task's command and returns its declared artifacts
func (e *ShellExecutor) Execute(ctx context.Context, t dto.TaskSnapshot, report service.ProgressFunc) ([]string, error) {
	if t.Command == "" {
		report(100, "no command declared")
		return t.Artifacts, nil
	}

	report(0, "starting: "+t.Command)

	cctx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(cctx, shell, "-c", t.Command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() != nil {
			return nil, cctx.Err()
		}
		return nil, fmt.Errorf("command failed: %w: %s", err, stderr.String())
	}

	report(100, "command finished")
	return t.Artifacts, nil
}
