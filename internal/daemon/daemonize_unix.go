//go:build !windows

// Package daemon detaches and supervises the background WebDAV server
// process.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/CrispStrobe/filen-cli/internal/config"
)

// childEnvVar marks the re-executed child so it keeps running instead
// of spawning again.
const childEnvVar = "FILEN_WEBDAV_CHILD"

// killGrace is how long a stopped daemon gets to exit on SIGTERM
// before SIGKILL.
const killGrace = 500 * time.Millisecond

// IsDaemonChild reports whether this process is the detached child.
func IsDaemonChild() bool {
	return os.Getenv(childEnvVar) == "1"
}

// WritePIDFile records the current process's PID.
func WritePIDFile() error {
	path, err := config.WebDAVPIDPath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes the PID file, ignoring a missing one.
func RemovePIDFile() {
	if path, err := config.WebDAVPIDPath(); err == nil {
		os.Remove(path)
	}
}

// ReadPIDFile returns the recorded PID, 0 when absent or invalid.
func ReadPIDFile() int {
	path, err := config.WebDAVPIDPath()
	if err != nil {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// IsDaemonRunning returns the live daemon's PID, or 0. A PID file whose
// process is gone is cleaned up.
func IsDaemonRunning() int {
	pid := ReadPIDFile()
	if pid == 0 {
		return 0
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0
	}
	// FindProcess always succeeds on Unix; kill(0) probes existence.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		RemovePIDFile()
		return 0
	}
	return pid
}

// Spawn re-executes the current binary detached from the terminal in a
// new session and returns the child PID. The child sees the marker env
// var and serves instead of spawning again.
func Spawn(args []string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Env = append(os.Environ(), childEnvVar+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	return cmd.Process.Pid, nil
}

// Stop terminates the daemon: SIGTERM, a short grace period, then
// SIGKILL. Afterwards any orphan still holding the port is killed too,
// and the PID file is removed.
func Stop(port int) error {
	if pid := IsDaemonRunning(); pid != 0 {
		process, err := os.FindProcess(pid)
		if err == nil {
			process.Signal(syscall.SIGTERM)

			deadline := time.Now().Add(killGrace)
			for time.Now().Before(deadline) {
				if process.Signal(syscall.Signal(0)) != nil {
					break
				}
				time.Sleep(50 * time.Millisecond)
			}
			if process.Signal(syscall.Signal(0)) == nil {
				process.Signal(syscall.SIGKILL)
			}
		}
	}

	KillPort(port)
	RemovePIDFile()
	return nil
}

// KillPort force-kills any process still listening on the port. A
// crashed parent can leave such an orphan behind after the PID file is
// gone.
func KillPort(port int) {
	out, err := exec.Command("lsof", "-t", "-i", fmt.Sprintf(":%d", port)).Output()
	if err != nil {
		return
	}
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid == os.Getpid() {
			continue
		}
		if process, err := os.FindProcess(pid); err == nil {
			process.Signal(syscall.SIGKILL)
		}
	}
}
