/*
Package chat contains the core of the chat server: the shared registry of connected users,
the per-connection session loop, and the slash-command dispatcher.

This file defines Connection, the line-oriented wrapper around a duplex byte stream.
Inbound data is split on newlines into chunks of at most maxChunkBytes, decoded as UTF-8
on a best-effort basis (invalid sequences are dropped), and trimmed. Outbound lines are
terminated with "\n\r".
*/
package chat

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	// maxChunkBytes bounds a single inbound line; longer lines are delivered in chunks.
	maxChunkBytes = 300

	// lineTerminator ends every line written to a client.
	lineTerminator = "\n\r"
)

// Transport is the duplex byte stream a session runs over (a TCP connection or an adapted
// WebSocket).
type Transport interface {
	io.ReadWriteCloser
	SetWriteDeadline(t time.Time) error
}

// halfCloser is implemented by transports that can shut down their write side alone.
type halfCloser interface {
	CloseWrite() error
}

// Connection reads and writes lines over a Transport.
// ReadLine must only be called from one goroutine, and WriteLine from one goroutine.
type Connection struct {
	transport    Transport
	addr         string
	scanner      *bufio.Scanner
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps t. addr is the remote address used as the default nickname.
// A zero writeTimeout disables write deadlines.
func NewConnection(t Transport, addr string, writeTimeout time.Duration) *Connection {
	scanner := bufio.NewScanner(t)
	scanner.Buffer(make([]byte, 0, 2*maxChunkBytes), 2*maxChunkBytes)
	scanner.Split(scanBoundedLines)

	return &Connection{
		transport:    t,
		addr:         addr,
		scanner:      scanner,
		writeTimeout: writeTimeout,
	}
}

// Addr returns the remote transport address.
func (c *Connection) Addr() string {
	return c.addr
}

// ReadLine blocks for the next inbound line. It returns io.EOF when the peer closed the stream.
func (c *Connection) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return decodeLine(c.scanner.Bytes()), nil
}

// WriteLine writes line followed by the line terminator.
func (c *Connection) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.transport.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.transport, line+lineTerminator)
	return err
}

// Close half-closes the write side when supported, then closes the transport.
// It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if hc, ok := c.transport.(halfCloser); ok {
			_ = hc.CloseWrite()
		}
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}

// decodeLine drops invalid UTF-8 and surrounding whitespace (including a trailing '\r').
func decodeLine(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}

// scanBoundedLines is a bufio.SplitFunc yielding newline-terminated lines, cut into chunks
// of at most maxChunkBytes.
func scanBoundedLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	limit := min(len(data), maxChunkBytes)
	if i := bytes.IndexByte(data[:limit], '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}

	if len(data) >= maxChunkBytes {
		return maxChunkBytes, data[:maxChunkBytes], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}
