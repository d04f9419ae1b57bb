// Package control serves read-only supervisor state over a local UNIX socket.
package control

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/cenkalti/rpc2"
	"github.com/nyiyui/wgkeepalive/journal"
	"github.com/nyiyui/wgkeepalive/keepalive"
	"go.uber.org/zap"
)

// DefaultEvents is the number of events returned when StatusArgs.Events is 0.
const DefaultEvents = 20

// Source is what the control server reads from; *journal.Store implements it.
type Source interface {
	Tunnels() ([]keepalive.Snapshot, error)
	Events(limit int) ([]journal.Entry, error)
}

type StatusArgs struct {
	// Events is the maximum number of recent events to return.
	Events int
}

type StatusReply struct {
	Tunnels []keepalive.Snapshot
	Events  []journal.Entry
}

type Server struct {
	srv    *rpc2.Server
	source Source
}

func NewServer(source Source) *Server {
	if source == nil {
		panic("control.NewServer: source must not be nil")
	}
	s := &Server{
		srv:    rpc2.NewServer(),
		source: source,
	}
	s.srv.Handle("Status", s.status)
	return s
}

func (s *Server) status(_ *rpc2.Client, args *StatusArgs, reply *StatusReply) error {
	limit := args.Events
	if limit == 0 {
		limit = DefaultEvents
	}
	tunnels, err := s.source.Tunnels()
	if err != nil {
		zap.S().Errorf("control: reading tunnels: %s", err)
		return fmt.Errorf("reading tunnels: %w", err)
	}
	events, err := s.source.Events(limit)
	if err != nil {
		zap.S().Errorf("control: reading events: %s", err)
		return fmt.Errorf("reading events: %w", err)
	}
	reply.Tunnels = tunnels
	reply.Events = events
	return nil
}

// ServeConn serves a single connection until it is closed.
func (s *Server) ServeConn(conn net.Conn) {
	s.srv.ServeConn(conn)
}

// Listen creates the UNIX socket at path, replacing a stale one.
func Listen(path string) (net.Listener, error) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	err = os.Chmod(path, 0600)
	if err != nil {
		lis.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return lis, nil
}

// Serve accepts connections on lis until ctx is done, then closes lis.
func (s *Server) Serve(ctx context.Context, lis net.Listener) {
	stop := context.AfterFunc(ctx, func() { lis.Close() })
	defer stop()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() == nil {
				zap.S().Errorf("control: accept: %s", err)
			}
			return
		}
		go s.ServeConn(conn)
	}
}

// Client is the client for Server.
type Client struct {
	c *rpc2.Client
}

// Dial connects to the control socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	c := rpc2.NewClient(conn)
	go c.Run()
	return &Client{c: c}
}

// Status asks the server for tunnel snapshots and up to events recent events.
func (c *Client) Status(events int) (StatusReply, error) {
	var reply StatusReply
	err := c.c.Call("Status", &StatusArgs{Events: events}, &reply)
	return reply, err
}

// Close calls the underlying rpc2.Client.Close.
func (c *Client) Close() error {
	return c.c.Close()
}
