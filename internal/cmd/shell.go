package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Iron-Ham/fanout/internal/executor"
)

// shellExecutor runs each work-unit description as a shell command and
// treats its stdout as the unit's findings. The orchestrator core never
// executes anything itself; this adapter is what makes the CLI usable
// out of the box.
type shellExecutor struct{}

func newShellExecutor() shellExecutor {
	return shellExecutor{}
}

// Execute implements executor.Executor. Exit status maps onto the
// retry taxonomy: deadline and cancellation surface as ctx.Err() for
// the runner to classify, exit codes 126/127 (not executable, command
// not found) are fatal, and any other non-zero exit is transient.
func (shellExecutor) Execute(ctx context.Context, description string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", description)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		}
		switch exitErr.ExitCode() {
		case 126, 127:
			return "", executor.NewFatal(msg, err)
		}
		return "", executor.NewTransient(msg, err)
	}

	return "", executor.NewFatal("starting command", err)
}
