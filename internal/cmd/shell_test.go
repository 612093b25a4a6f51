package cmd

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/fanout/internal/executor"
)

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestShellExecutorSuccess(t *testing.T) {
	skipIfNoShell(t)

	out, err := newShellExecutor().Execute(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("output = %q, want hello", out)
	}
}

func TestShellExecutorNonZeroExitIsTransient(t *testing.T) {
	skipIfNoShell(t)

	_, err := newShellExecutor().Execute(context.Background(), "echo problem >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if kind := executor.Classify(err); kind != executor.KindTransient {
		t.Errorf("Classify = %v, want transient", kind)
	}
	if !strings.Contains(err.Error(), "problem") {
		t.Errorf("error should carry stderr, got %v", err)
	}
}

func TestShellExecutorCommandNotFoundIsFatal(t *testing.T) {
	skipIfNoShell(t)

	_, err := newShellExecutor().Execute(context.Background(), "definitely-not-a-command-xyz")
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if kind := executor.Classify(err); kind != executor.KindFatal {
		t.Errorf("Classify = %v, want fatal", kind)
	}
}

func TestShellExecutorHonorsDeadline(t *testing.T) {
	skipIfNoShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newShellExecutor().Execute(ctx, "sleep 5")
	if err == nil {
		t.Fatal("expected error for timed-out command")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("command not killed at deadline, took %s", elapsed)
	}
	if kind := executor.Classify(err); kind != executor.KindTimeout {
		t.Errorf("Classify = %v, want timeout", kind)
	}
}
