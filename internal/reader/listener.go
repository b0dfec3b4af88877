package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

// Listener accepts the tag reader's connection. The system expects a single
// reader, so the listener stops accepting after the first connection.
type Listener struct {
	ln     net.Listener
	dec    *Decoder
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	status model.ReaderStatus
}

// Listen binds addr. A bind failure is returned and is fatal at startup.
func Listen(addr string, dec *Decoder, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for tag reader on %s: %w", addr, err)
	}
	l := &Listener{
		ln:     ln,
		dec:    dec,
		logger: logger,
		now:    time.Now,
	}
	l.status.Listening = true
	l.status.Addr = ln.Addr().String()
	logger.Info("waiting for tag reader connection", "addr", l.status.Addr)
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept waits for the reader to connect and closes the listener.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	nc, err := l.ln.Accept()
	l.ln.Close()
	l.mu.Lock()
	l.status.Listening = false
	l.mu.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept tag reader: %w", err)
	}

	host := nc.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	c := &Conn{
		nc:       nc,
		l:        l,
		id:       uuid.New().String(),
		sourceIP: host,
		buf:      make([]byte, MaxChunk),
	}

	l.mu.Lock()
	l.status.Connected = true
	l.status.RemoteAddr = nc.RemoteAddr().String()
	l.status.ConnectionID = c.id
	l.status.ConnectedAt = l.now()
	l.mu.Unlock()

	l.logger.Info("tag reader connected", "source_ip", host, "conn", c.id)
	return c, nil
}

// Close stops listening. It does not close an accepted connection.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.status.Listening = false
	l.mu.Unlock()
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Status returns the transport counters.
func (l *Listener) Status() model.ReaderStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Conn is an accepted reader connection.
type Conn struct {
	nc       net.Conn
	l        *Listener
	id       string
	sourceIP string
	buf      []byte
}

// ID returns the connection id assigned at accept time.
func (c *Conn) ID() string { return c.id }

// SourceIP returns the reader's remote host.
func (c *Conn) SourceIP() string { return c.sourceIP }

// Next blocks until a valid tag frame arrives. Malformed frames are logged and
// skipped. When the reader closes the connection Next returns ErrDisconnected.
func (c *Conn) Next(ctx context.Context) (model.TagRead, error) {
	stop := context.AfterFunc(ctx, func() { c.nc.Close() })
	defer stop()

	for {
		n, err := c.nc.Read(c.buf)
		if n > 0 {
			read, ok := c.handle(c.buf[:n])
			if ok {
				return read, nil
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return model.TagRead{}, ctx.Err()
			}
			c.disconnect()
			if errors.Is(err, io.EOF) {
				return model.TagRead{}, ErrDisconnected
			}
			return model.TagRead{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
	}
}

func (c *Conn) handle(chunk []byte) (model.TagRead, bool) {
	now := c.l.now()
	tagID, err := c.l.dec.Decode(chunk)

	c.l.mu.Lock()
	c.l.status.FramesRead++
	if err != nil {
		c.l.status.FramesMalformed++
	}
	c.l.mu.Unlock()

	if err != nil {
		c.l.logger.Warn("dropping malformed tag frame", "source_ip", c.sourceIP, "bytes", len(chunk), "err", err)
		return model.TagRead{}, false
	}
	return model.TagRead{TagID: tagID, SourceIP: c.sourceIP, ReceivedAt: now}, true
}

func (c *Conn) disconnect() {
	c.nc.Close()
	c.l.mu.Lock()
	c.l.status.Connected = false
	c.l.mu.Unlock()
	c.l.logger.Warn("tag reader disconnected", "source_ip", c.sourceIP, "conn", c.id)
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
