// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package feed is the push surface: a unix socket accepting one JSON
// event per line. Producers that know about the dashboard write here
// directly instead of waiting for their log lines to be tailed.
package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/bureau-foundation/spyglass/trace"
)

// maxEventLine bounds one pushed event. Anything larger is a broken
// producer, not a legitimate event.
const maxEventLine = 1 << 20

// Listener accepts event pushes and emits parsed events. Malformed
// lines are logged and skipped; only failing to bind the socket is
// fatal.
type Listener struct {
	path     string
	parser   *trace.Parser
	logger   *slog.Logger
	listener net.Listener
	events   chan trace.Event

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	conns  sync.WaitGroup
}

// NewListener binds the socket at path. A stale socket file from a
// previous run is removed first.
func NewListener(path string, parser *trace.Parser, logger *slog.Logger) (*Listener, error) {
	if parser == nil {
		parser = trace.NewParser(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("binding event socket: %w", err)
	}
	return &Listener{
		path:     path,
		parser:   parser,
		logger:   logger,
		listener: listener,
		events:   make(chan trace.Event, 64),
		done:     make(chan struct{}),
	}, nil
}

// Events delivers parsed events pushed by producers.
func (l *Listener) Events() <-chan trace.Event { return l.events }

// Addr returns the socket path the listener is bound to.
func (l *Listener) Addr() string { return l.path }

// Start launches the accept loop.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Stop closes the socket and signals connection handlers to exit.
// Wait blocks until all of them have.
func (l *Listener) Stop() {
	l.once.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		l.listener.Close()
	})
}

// Wait blocks until the accept loop and all connections have exited.
func (l *Listener) Wait() { <-l.done }

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	defer os.Remove(l.path)

	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.conns.Wait()
				return
			}
			l.logger.Warn("accepting event connection", "error", err)
			continue
		}
		l.conns.Add(1)
		go func() {
			defer l.conns.Done()
			l.serve(ctx, conn)
		}()
	}
}

func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		events, err := l.parser.Parse("feed", line, data, "")
		if err != nil {
			l.logger.Warn("skipping malformed pushed event", "error", err)
			continue
		}
		for _, event := range events {
			select {
			case l.events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		l.logger.Warn("reading event connection", "error", err)
	}
}

// Client pushes events to a running listener.
type Client struct {
	conn net.Conn
}

// Dial connects to the event socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dialing event socket: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Send pushes one JSON event line. The trailing newline is added if
// missing.
func (c *Client) Send(event []byte) error {
	if len(event) == 0 {
		return nil
	}
	if event[len(event)-1] != '\n' {
		event = append(append([]byte(nil), event...), '\n')
	}
	if _, err := c.conn.Write(event); err != nil {
		return fmt.Errorf("pushing event: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
