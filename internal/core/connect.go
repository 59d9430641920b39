package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"echosock/internal/dispatch"
	"echosock/internal/socket"
	"echosock/util"
)

// ConnectMode is a one-shot echo client: it connects, sends one
// payload, prints whatever comes back until the server closes, and
// exits.
type ConnectMode struct {
	Address   string
	Port      uint16
	ChunkSize int    // upper bound on a payload read from stdin
	Message   string // payload; read from Stdin when empty
	Logger    *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *ConnectMode) chunk() int {
	if m.ChunkSize > 0 {
		return m.ChunkSize
	}
	return dispatch.DefaultChunkSize
}

// Run connects, sends the payload and copies the reply to stdout.  The
// socket is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	payload, err := m.payload()
	if err != nil {
		return err
	}

	h := socket.New()
	if err := h.Create(); err != nil {
		return err
	}
	defer h.Close()

	stop := context.AfterFunc(ctx, h.Shutdown)
	defer stop()

	target := util.FormatAddr(m.Address, int(m.Port))
	m.Logger.Verbose("connecting to %s", target)
	if err := h.Connect(m.Address, m.Port); err != nil {
		return err
	}
	m.Logger.Verbose("connected to %s", target)

	if err := socket.SendAll(h, payload); err != nil {
		return err
	}
	m.Logger.Debug("sent %d bytes", len(payload))

	total := 0
	for {
		reply, err := h.Receive(m.chunk())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(reply) == 0 {
			break
		}
		total += len(reply)
		if _, err := m.stdout().Write(reply); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
	}
	m.Logger.Verbose("received %d bytes", total)
	return nil
}

// payload returns Message, or at most one chunk read from stdin.
func (m *ConnectMode) payload() ([]byte, error) {
	if m.Message != "" {
		return []byte(m.Message), nil
	}
	data, err := io.ReadAll(io.LimitReader(m.stdin(), int64(m.chunk())))
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
