// Package discordrpc implements the local Discord IPC transport: Unix
// domain socket / named pipe / websocket-fallback framing, handshake,
// SET_ACTIVITY delivery, and exponential-backoff reconnection (spec §4.3).
package discordrpc

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"presence-bridge/internal/connstate"
	"presence-bridge/pkg/models"
)

const handshakeTimeout = 5 * time.Second

// errorFrameThreshold mirrors the Provider-error "N=3 consecutive" rule in
// §7: a conservative reading of an undocumented response protocol treats
// repeated op=1 error responses as a transport failure only after this many
// in a row (§9 Open Question).
const errorFrameThreshold = 3

// Client maintains a session with the local Discord client and delivers
// ActivityPayload updates with at-most-once semantics per update.
type Client struct {
	appID  string
	logger *logrus.Logger
	tracker *connstate.Tracker

	mu        sync.Mutex
	conn      net.Conn
	connected bool

	useWebsocketFallback bool
}

// NewClient creates an RPC client for the given Discord application ID.
func NewClient(appID string, logger *logrus.Logger, tracker *connstate.Tracker) *Client {
	return &Client{
		appID:   appID,
		logger:  logger,
		tracker: tracker,
	}
}

// Tracker returns the connstate.Tracker backing this client's connection
// bookkeeping, so the reconnect loop can record attempts against it.
func (c *Client) Tracker() *connstate.Tracker { return c.tracker }

// Connected reports whether the handshake has completed and no transport
// error has been observed since.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the IPC transport and performs the handshake. It tries the
// native Unix socket / named pipe transport first, falling back to the
// websocket transport only if that fails entirely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := dialIPC()
	if err != nil {
		c.logger.WithError(err).Debug("native IPC transport unavailable, trying websocket fallback")
		conn, err = dialWebsocketIPC(c.appID)
		if err != nil {
			return fmt.Errorf("no discord IPC transport reachable: %w", err)
		}
		c.useWebsocketFallback = true
	} else {
		c.useWebsocketFallback = false
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.connected = true
	c.tracker.Connected()
	return nil
}

// handshake sends op=0 and awaits the READY event within handshakeTimeout.
func (c *Client) handshake(conn net.Conn) error {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	payload, err := json.Marshal(handshakePayload{V: "1", ClientID: c.appID})
	if err != nil {
		return fmt.Errorf("encode handshake: %w", err)
	}
	if err := writeFrame(conn, OpHandshake, payload); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	op, body, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	if op != OpFrame {
		return fmt.Errorf("handshake failed: unexpected opcode %d", op)
	}

	var resp struct {
		Evt string `json:"evt"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("handshake failed: malformed response: %w", err)
	}
	if resp.Evt != "READY" {
		return fmt.Errorf("handshake failed: evt=%q", resp.Evt)
	}

	return nil
}

// Disconnect closes the transport. Safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

func (c *Client) disconnectLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.tracker.Disconnected()
}

// SetActivity sends a SET_ACTIVITY frame for the given payload. A transport
// error marks the session dead; the caller's reconnect loop is responsible
// for re-dialing.
func (c *Client) SetActivity(activity models.ActivityPayload) error {
	return c.sendFrame(buildSetActivityFrame(activity))
}

// Clear sends SET_ACTIVITY with a nil activity, clearing Rich Presence.
func (c *Client) Clear() error {
	return c.sendFrame(buildClearFrame())
}

func (c *Client) sendFrame(frame setActivityFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected to discord")
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	if err := writeFrame(c.conn, OpFrame, payload); err != nil {
		c.disconnectLocked()
		return fmt.Errorf("send frame: %w", err)
	}

	c.tracker.RecordFrame(frame.Nonce)
	return nil
}

// ReadLoop blocks reading inbound frames (op=1 command responses, op=3
// pings) until the connection breaks, replying to pings with pongs and
// logging command responses/errors per §4.3's ping/pong + §9's
// conservative error-frame handling. It returns when the transport dies;
// the caller should then reconnect.
func (c *Client) ReadLoop() error {
	for {
		c.mu.Lock()
		conn := c.conn
		connected := c.connected
		c.mu.Unlock()

		if !connected || conn == nil {
			return fmt.Errorf("discord rpc: read loop exiting, not connected")
		}

		op, body, err := readFrame(conn)
		if err != nil {
			c.mu.Lock()
			c.disconnectLocked()
			c.mu.Unlock()
			return fmt.Errorf("discord rpc: transport read failed: %w", err)
		}

		switch op {
		case OpPing:
			if werr := c.writeRaw(OpPong, body); werr != nil {
				return fmt.Errorf("discord rpc: pong failed: %w", werr)
			}
		case OpFrame:
			c.handleCommandResponse(body)
		case OpClose:
			c.mu.Lock()
			c.disconnectLocked()
			c.mu.Unlock()
			return fmt.Errorf("discord rpc: peer sent close frame")
		default:
			c.logger.WithField("opcode", op).Debug("discord rpc: ignoring unrecognized opcode")
		}
	}
}

func (c *Client) writeRaw(op Opcode, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := writeFrame(c.conn, op, body); err != nil {
		c.disconnectLocked()
		return err
	}
	return nil
}

// handleCommandResponse inspects an op=1 response for an error event. Per
// §9's Open Question, isolated error responses are logged and otherwise
// ignored; only errorFrameThreshold consecutive ones are treated as a
// transport failure.
func (c *Client) handleCommandResponse(body []byte) {
	var resp struct {
		Evt  string `json:"evt"`
		Data struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.WithError(err).Warn("discord rpc: malformed command response frame, dropping")
		return
	}

	if resp.Evt != "ERROR" {
		c.tracker.ResetErrorFrames()
		return
	}

	count := c.tracker.RecordErrorFrame()
	c.logger.WithFields(logrus.Fields{
		"code":    resp.Data.Code,
		"message": resp.Data.Message,
		"count":   count,
	}).Warn("discord rpc: received error response frame")

	if count >= errorFrameThreshold {
		c.mu.Lock()
		c.disconnectLocked()
		c.mu.Unlock()
	}
}
