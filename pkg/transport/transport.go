// Package transport provides the polymorphic byte-stream abstraction used by
// the rest of this module: a uniform read/write/close interface over plain
// TCP, TLS-over-TCP, and an address-overriding wrapper, modeled on the
// teacher's transport.Transport capability interface
// (pkg/transport/transport.go) and generalized from its byte-coded
// send/receive semantics to SOCKS5's plain stream-of-bytes world.
package transport

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/desertbit/closer/v3"
)

// nextID is the process-global monotonic counter backing Transport.ID(),
// per spec §3 ("a transport's ID is unique within the process").
var nextID uint64

func newID() uint64 {
	return atomic.AddUint64(&nextID, 1)
}

// Transport is an established, bidirectional byte-stream to one peer. Reads
// and writes from the two directions of a Forwarder run on independent
// goroutines; Close may be called from any goroutine and is idempotent.
type Transport interface {
	// Read fills buf: if allowShort is false it blocks until buf is full
	// or an error occurs (io.ReadFull semantics); if true it returns as
	// soon as any bytes are available.
	Read(ctx context.Context, buf []byte, allowShort bool) (int, error)

	// Write writes all of buf, looping internally on short writes.
	Write(ctx context.Context, buf []byte) (int, error)

	// Close closes the transport. Idempotent; safe to call more than once.
	Close() error

	// CloseWrite half-closes the write side only: it signals EOF to the
	// peer's next Read while this side can still read whatever the peer
	// has in flight or sends afterward. Used by a Forwarder to propagate
	// one direction's EOF without tearing down the other.
	CloseWrite() error

	// LocalAddr returns the local endpoint of the connection.
	LocalAddr() net.Addr

	// ID returns this transport's unique, process-wide identity, used for
	// log correlation.
	ID() uint64
}

// base holds the fields and close-lifecycle shared by every Transport
// implementation in this package. It embeds closer.Closer so Close is
// idempotent and in-flight operations can select on ClosedChan(), instead of
// hand-rolling a sync.Once plus a closed flag.
type base struct {
	closer.Closer
	id uint64
}

func newBase(closeFunc func() error) base {
	c := closer.New()
	c.OnClose(closeFunc)
	return base{
		Closer: c,
		id:     newID(),
	}
}

func (b *base) ID() uint64 { return b.id }

// AcceptCallback is invoked once per accepted connection, or once with a
// non-nil err and a nil Transport when Accept itself fails to produce one.
// Returning false stops the accept loop, mirroring the teacher's
// ServerBase::handle_accept pattern of a callback deciding whether to
// re-arm the next accept.
type AcceptCallback func(err error, t Transport) (keepGoing bool)

// Factory produces and accepts Transports over a particular underlying
// medium (plain TCP, TLS-over-TCP, ...), generalizing the teacher's
// TransportFactoryBase (original_source/include/base.h).
type Factory interface {
	// Accept listens on addr and invokes callback once per incoming
	// connection until callback returns false, ctx is cancelled, or a
	// terminal listener error occurs.
	Accept(ctx context.Context, addr string, callback AcceptCallback) error

	// Connect dials addr directly.
	Connect(ctx context.Context, addr string) (Transport, error)

	// TryConnect resolves host and dials every result in turn, returning
	// the first Transport that connects successfully.
	TryConnect(ctx context.Context, host string, port string) (Transport, error)
}
