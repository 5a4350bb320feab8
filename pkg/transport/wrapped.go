package transport

import (
	"net"
)

// WrappedTransport decorates an underlying Transport with a substitute
// LocalAddr, used by SocksUpstream to present the relay's bound address from
// the upstream's SOCKS5 response instead of the raw TCP socket address of
// the connection to the relay itself — the same "what address should the
// rest of the pipeline see" problem the teacher's transport package leaves
// to its Transport.LocalAddr() implementations, generalized here into an
// explicit decorator so SocksUpstream doesn't need its own Transport type.
type WrappedTransport struct {
	Transport
	addr net.Addr
}

// Wrap returns a Transport identical to inner except that LocalAddr returns
// addr.
func Wrap(inner Transport, addr net.Addr) *WrappedTransport {
	return &WrappedTransport{Transport: inner, addr: addr}
}

// LocalAddr returns the substitute address given to Wrap, not the
// underlying transport's own local socket address.
func (w *WrappedTransport) LocalAddr() net.Addr { return w.addr }
