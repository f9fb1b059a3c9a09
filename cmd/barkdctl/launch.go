package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/machug/woofalytics-v2-sub000/internal/ipc"
)

// locateDaemonBinary finds the barkd executable: first on PATH, then as a
// sibling of the running barkdctl binary, matching the layout a packaged
// install places both binaries in the same bin directory.
func locateDaemonBinary() (string, error) {
	if path, err := exec.LookPath("barkd"); err == nil {
		return path, nil
	}
	self, err := os.Executable()
	if err == nil {
		sibling := filepath.Join(filepath.Dir(self), "barkd")
		if _, statErr := exec.LookPath(sibling); statErr == nil {
			return sibling, nil
		}
	}
	return "", fmt.Errorf("barkd binary not found on PATH")
}

// launchDaemonProcess starts barkd as a detached background process, the
// same fire-and-forget shape as launching any other long-running daemon
// from its control CLI.
func launchDaemonProcess(ctx *commandContext) error {
	exe, err := locateDaemonBinary()
	if err != nil {
		return err
	}
	var args []string
	if ctx.configFlag != nil {
		if cfg := strings.TrimSpace(*ctx.configFlag); cfg != "" {
			args = append(args, "--config", cfg)
		}
	}
	proc := exec.Command(exe, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch barkd: %w", err)
	}
	return proc.Process.Release()
}

// waitForDaemonClient polls the control socket until it accepts a
// connection or the timeout elapses.
func waitForDaemonClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for barkd")
	}
	return nil, fmt.Errorf("barkd failed to start: %w", lastErr)
}

// waitForDaemonShutdown polls the control socket until it stops accepting
// connections or the timeout elapses.
func waitForDaemonShutdown(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return true
		}
		_ = client.Close()
		time.Sleep(200 * time.Millisecond)
	}
	return false
}
