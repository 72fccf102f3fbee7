package lineserver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

const lineTerminator = "\n"

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Conn is one accepted socket with line reads and serialised, flushed writes.
// Only the owning session's read loop calls ReadLine; Write may be called
// from any goroutine.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader

	wmu    sync.Mutex
	writer *bufio.Writer
}

func newConn(raw net.Conn) *Conn {
	return &Conn{
		raw:    raw,
		reader: bufio.NewReader(raw),
		writer: bufio.NewWriter(raw),
	}
}

// ReadLine returns the next line without its terminator. A trailing line
// with no terminator is returned before io.EOF.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if errors.Is(err, io.EOF) && line != "" {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if errors.Is(err, io.EOF) {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}

// Write sends text, optionally followed by the line terminator, and flushes.
func (c *Conn) Write(text string, newline bool) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	err := c.write(text, newline)
	if err != nil {
		// bufio.Writer keeps the first error forever; drop it so a later
		// write reaches the socket again.
		c.writer.Reset(c.raw)
	}
	return err
}

func (c *Conn) write(text string, newline bool) error {
	if _, err := c.writer.WriteString(text); err != nil {
		return err
	}
	if newline {
		if _, err := c.writer.WriteString(lineTerminator); err != nil {
			return err
		}
	}
	return c.writer.Flush()
}

// Shutdown half-closes both directions and then closes the socket. Each step
// runs even if an earlier one failed; only the final close error is returned.
func (c *Conn) Shutdown() error {
	if hc, ok := c.raw.(halfCloser); ok {
		_ = hc.CloseRead()
		_ = hc.CloseWrite()
	}
	return c.raw.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
