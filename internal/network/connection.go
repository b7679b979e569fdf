package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// ErrConnectionClosed is returned by Send after the connection has closed.
var ErrConnectionClosed = errors.New("connection closed")

const receiveBufferSize = 2048

// Connection is the duplex byte transport under one session. Outbound data
// is funneled through a single writer goroutine so that concurrent sends
// never interleave their bytes on the wire; inbound data is delivered to a
// callback from a single reader goroutine. Neither direction ever blocks
// the caller on network I/O beyond channel handoff.
type Connection struct {
	log  *zap.SugaredLogger
	conn net.Conn

	sendCh chan []byte
	done   chan struct{}

	closeOnce  sync.Once
	notifyOnce sync.Once
	wg         sync.WaitGroup

	onBytes  func([]byte)
	onClosed func(error)
}

// Dial opens a TCP connection to addr, honoring ctx for cancellation.
func Dial(ctx context.Context, addr string, log *zap.SugaredLogger) (*Connection, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	return &Connection{
		log:    log,
		conn:   conn,
		sendCh: make(chan []byte, 64),
		done:   make(chan struct{}),
	}, nil
}

// Start spins up the reader and writer loops. onBytes receives every chunk
// read from the wire, in order, on a single goroutine. onClosed fires once,
// with nil for a clean remote close and the transport error otherwise; it
// does not fire for a locally initiated Close.
func (c *Connection) Start(onBytes func([]byte), onClosed func(error)) {
	c.onBytes = onBytes
	c.onClosed = onClosed

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
}

// Send enqueues b for transmission. It never blocks on the network; a full
// queue blocks until the writer drains or the connection closes.
func (c *Connection) Send(b []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	case c.sendCh <- b:
		return nil
	}
}

// Close tears the connection down. Safe to call multiple times and from any
// goroutine.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.log.Debugf("error closing connection: %v", err)
		}
	})
	return nil
}

func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Connection) readLoop() {
	defer c.wg.Done()

	buffer := make([]byte, receiveBufferSize)
	for {
		n, err := c.conn.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			c.onBytes(chunk)
		}

		if err != nil {
			select {
			case <-c.done:
				// Locally initiated close; no notification owed.
			default:
				if errors.Is(err, io.EOF) {
					err = nil
				}
				c.notifyOnce.Do(func() { c.onClosed(err) })
				_ = c.Close()
			}
			return
		}
	}
}

func (c *Connection) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case b := <-c.sendCh:
			if err := c.writeAll(b); err != nil {
				c.log.Warnf("failed to send to %s: %v", c.RemoteAddr(), err)
				c.notifyOnce.Do(func() { c.onClosed(err) })
				_ = c.Close()
				return
			}
		}
	}
}

// writeAll writes the contents of data to the connection until the number
// of bytes written >= len(data).
func (c *Connection) writeAll(data []byte) error {
	sent := 0
	for sent < len(data) {
		n, err := c.conn.Write(data[sent:])
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}
