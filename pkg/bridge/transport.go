package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Conn is one end of a message oriented bridge connection.
// Send may be called concurrently with Receive.
type Conn interface {
	// Send writes one message.
	Send(ctx context.Context, m *Message) error
	// Receive blocks until the next message arrives.
	Receive(ctx context.Context) (*Message, error)
	// Close closes the connection. Pending and future calls fail.
	Close() error
}

// Dialer opens a Conn from a backend to the proxy.
type Dialer interface {
	Dial(ctx context.Context, serverID string) (Conn, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context, serverID string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, serverID string) (Conn, error) {
	return f(ctx, serverID)
}

// ErrClosed is returned when using a closed Conn.
var ErrClosed = errors.New("bridge connection closed")

// Pipe returns two connected in-memory Conns.
// Messages are copied through their wire encoding so both ends never share memory.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	done := make(chan struct{})
	once := new(sync.Once)
	return &pipeConn{in: ba, out: ab, done: done, once: once},
		&pipeConn{in: ab, out: ba, done: done, once: once}
}

type pipeConn struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

func (p *pipeConn) Send(ctx context.Context, m *Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- b:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Receive(ctx context.Context) (*Message, error) {
	var b []byte
	select {
	case b = <-p.in:
	default:
		select {
		case b = <-p.in:
		case <-p.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m := new(Message)
	if err := json.Unmarshal(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// PipeDialer returns a Dialer whose every Dial attaches a new Pipe to the proxy.
// ctx bounds the lifetime of the proxy side of all dialed connections.
func PipeDialer(ctx context.Context, p *Proxy) Dialer {
	return DialerFunc(func(_ context.Context, serverID string) (Conn, error) {
		backend, proxy := Pipe()
		go func() { _ = p.Attach(ctx, serverID, proxy) }()
		return backend, nil
	})
}
