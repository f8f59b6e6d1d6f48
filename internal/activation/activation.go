// Package activation provides systemd socket activation support for the
// webhook server.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// listenFdsStart is the first file descriptor systemd passes
// (0=stdin, 1=stdout, 2=stderr).
const listenFdsStart = 3

// Listener returns the systemd-activated listener for this process, or
// nil when the process was not socket-activated. The webhook server
// binds a single socket; extra activated descriptors are an error.
func Listener() (net.Listener, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if pid != os.Getpid() {
		// Socket activation is for a different process
		return nil, nil
	}

	fdsStr := os.Getenv("LISTEN_FDS")
	if fdsStr == "" {
		return nil, nil
	}
	numFDs, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if numFDs < 1 {
		return nil, nil
	}
	if numFDs > 1 {
		return nil, fmt.Errorf("expected a single activated socket, got %d", numFDs)
	}

	// Unset so child processes don't inherit the activation environment
	defer func() {
		_ = os.Unsetenv("LISTEN_PID")
		_ = os.Unsetenv("LISTEN_FDS")
		_ = os.Unsetenv("LISTEN_FDNAMES")
	}()

	file := os.NewFile(uintptr(listenFdsStart), "systemd-socket-0")
	if file == nil {
		return nil, fmt.Errorf("failed to open fd %d", listenFdsStart)
	}

	listener, err := net.FileListener(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to create listener from fd %d: %w", listenFdsStart, err)
	}

	// The listener holds its own duplicate of the descriptor
	_ = file.Close()

	return listener, nil
}
