//go:build windows

package discordrpc

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/windows"
)

// dialIPC connects to the first existing Discord IPC named pipe,
// \\.\pipe\discord-ipc-0..9, per §4.3.
func dialIPC() (net.Conn, error) {
	var lastErr error
	for n := 0; n < 10; n++ {
		path := fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, n)
		conn, err := dialNamedPipe(path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no Discord IPC pipe candidates found")
	}
	return nil, fmt.Errorf("discord IPC pipe not found: %w", lastErr)
}

// dialNamedPipe opens a Windows named pipe for overlapped-free, synchronous
// duplex I/O and wraps it as a net.Conn via pipeConn.
func dialNamedPipe(path string) (net.Conn, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, err
	}

	return &pipeConn{handle: handle, path: path}, nil
}

// pipeConn adapts a raw Windows named-pipe handle to net.Conn, enough for
// the frame reader/writer in frame.go.
type pipeConn struct {
	handle windows.Handle
	path   string
}

func (p *pipeConn) Read(b []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(p.handle, b, &n, nil)
	return int(n), err
}

func (p *pipeConn) Write(b []byte) (int, error) {
	var n uint32
	err := windows.WriteFile(p.handle, b, &n, nil)
	return int(n), err
}

func (p *pipeConn) Close() error {
	return windows.CloseHandle(p.handle)
}

func (p *pipeConn) LocalAddr() net.Addr                { return pipeAddr(p.path) }
func (p *pipeConn) RemoteAddr() net.Addr               { return pipeAddr(p.path) }
func (p *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (p *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (p *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }
