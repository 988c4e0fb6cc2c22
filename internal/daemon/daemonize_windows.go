//go:build windows

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

	"golang.org/x/sys/windows"

	"github.com/CrispStrobe/filen-cli/internal/config"
)

const childEnvVar = "FILEN_WEBDAV_CHILD"

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

// IsDaemonRunning returns the live daemon's PID, or 0. FindProcess
// always succeeds on Windows, so the process is probed via
// OpenProcess.
func IsDaemonRunning() int {
	pid := ReadPIDFile()
	if pid == 0 {
		return 0
	}
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		RemovePIDFile()
		return 0
	}
	windows.CloseHandle(handle)
	return pid
}

// Spawn re-executes the current binary detached from the console and
// returns the child PID.
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
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	return cmd.Process.Pid, nil
}

// Stop terminates the daemon process and removes the PID file.
func Stop(port int) error {
	if pid := IsDaemonRunning(); pid != 0 {
		handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
		if err == nil {
			windows.TerminateProcess(handle, 0)
			windows.CloseHandle(handle)
		}
	}
	KillPort(port)
	RemovePIDFile()
	return nil
}

// KillPort is a no-op on Windows; the daemon holds the PID file and is
// stopped through it.
func KillPort(int) {}
