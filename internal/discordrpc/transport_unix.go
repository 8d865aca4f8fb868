//go:build !windows

package discordrpc

import (
	"fmt"
	"net"
	"os"
)

// dialIPC connects to the first existing Discord IPC Unix domain socket,
// trying $XDG_RUNTIME_DIR, $TMPDIR, then /tmp for discord-ipc-0..9, per §4.3.
func dialIPC() (net.Conn, error) {
	var candidates []string
	for _, dir := range []string{os.Getenv("XDG_RUNTIME_DIR"), os.Getenv("TMPDIR"), "/tmp"} {
		if dir == "" {
			continue
		}
		candidates = append(candidates, dir)
	}

	var lastErr error
	for _, dir := range candidates {
		for n := 0; n < 10; n++ {
			path := fmt.Sprintf("%s/discord-ipc-%d", dir, n)
			conn, err := net.Dial("unix", path)
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no Discord IPC candidate paths found")
	}
	return nil, fmt.Errorf("discord IPC socket not found: %w", lastErr)
}
