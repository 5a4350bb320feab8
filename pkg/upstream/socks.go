package upstream

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"socks5d/pkg/socks5"
	"socks5d/pkg/transport"
)

// SocksUpstream relays every request through another SOCKS5 server,
// grounded on original_source/src/socks_upstream.cc's SocksUpstreamImpl.
// The relay's own address is resolved once and cached: the very first
// Request call resolves and connects synchronously under the lock and
// hands that already-open connection straight to the handshake instead of
// connecting a second time, exactly mirroring StartRequest's
// is_upstream_endpoint_init_ guard ("synchronous operations are used to
// simplify locking control"); every later call only reuses the cached
// net.Addr and dials its own fresh connection. Every call, first or later,
// reads the cached address while holding mu.
type SocksUpstream struct {
	factory   transport.Factory
	relayHost string
	relayPort string

	mu       sync.Mutex
	resolved net.Addr
}

// NewSocksUpstream returns a SocksUpstream that relays through the SOCKS5
// server at relayHost:relayPort.
func NewSocksUpstream(factory transport.Factory, relayHost string, relayPort uint16) *SocksUpstream {
	return &SocksUpstream{
		factory:   factory,
		relayHost: relayHost,
		relayPort: strconv.Itoa(int(relayPort)),
	}
}

// endpoint returns the relay's resolved address. The first caller pays for
// a synchronous resolve-and-connect performed while holding mu, trying each
// resolved address in turn and caching the first that connects — mirroring
// StartRequest's is_upstream_endpoint_init_ branch, this hands back the
// already-established connection as the second return value so Request
// doesn't dial a second time for that call. Every later caller gets the
// cached address with a nil Transport and dials its own connection.
func (u *SocksUpstream) endpoint(ctx context.Context) (net.Addr, transport.Transport, error) {
	u.mu.Lock()
	if u.resolved != nil {
		addr := u.resolved
		u.mu.Unlock()
		return addr, nil, nil
	}
	defer u.mu.Unlock()

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, u.relayHost)
	if err != nil {
		return nil, nil, &socks5.Error{Kind: socks5.ErrResolveError, Msg: "relay resolve failed", Cause: err}
	}
	if len(ips) == 0 {
		return nil, nil, &socks5.Error{Kind: socks5.ErrResolveError, Msg: "relay resolve failed", Cause: fmt.Errorf("no addresses found for %s", u.relayHost)}
	}
	port, _ := strconv.Atoi(u.relayPort)

	var lastErr error
	for _, ip := range ips {
		addr := &net.TCPAddr{IP: ip.IP, Port: port}
		t, err := u.factory.Connect(ctx, addr.String())
		if err != nil {
			lastErr = err
			continue
		}
		u.resolved = addr
		return addr, t, nil
	}
	return nil, nil, &socks5.Error{Kind: socks5.ErrIoError, Msg: "relay connect failed", Cause: lastErr}
}

// Request connects to the relay, performs the client-side SOCKS5 handshake
// against target, and on success returns that connection wrapped so its
// LocalAddr reports the relay's BND.ADDR instead of the raw socket address
// of the hop to the relay — the local Forwarder and any logging downstream
// of it should see the address the final hop actually bound, not an
// intermediate leg. The connection itself is either the one endpoint
// already opened synchronously (first call) or a fresh dial to the cached
// address (every later call).
func (u *SocksUpstream) Request(ctx context.Context, target socks5.Address) (transport.Transport, error) {
	addr, t, err := u.endpoint(ctx)
	if err != nil {
		return nil, err
	}

	if t == nil {
		t, err = u.factory.Connect(ctx, addr.String())
		if err != nil {
			return nil, &socks5.Error{Kind: socks5.ErrIoError, Msg: "relay connect failed", Cause: err}
		}
	}

	bound, err := u.handshake(ctx, t, target)
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	return transport.Wrap(t, boundNetAddr(bound)), nil
}

// handshake drives the C0 -> C4 client state machine described in spec
// §4.D against an already-connected relay transport.
func (u *SocksUpstream) handshake(ctx context.Context, t transport.Transport, target socks5.Address) (socks5.Address, error) {
	// C0 -> C1: offer no-auth only, since this module never authenticates
	// to an upstream relay itself (see SPEC_FULL.md Non-goals).
	if err := socks5.WriteAuthMethodList(ctx, t, []byte{socks5.MethodNoAuth}); err != nil {
		return socks5.Address{}, &socks5.Error{Kind: socks5.ErrIoError, Msg: "write auth methods", Cause: err}
	}

	sel, err := socks5.ReadAuthSelect(ctx, t)
	if err != nil {
		return socks5.Address{}, &socks5.Error{Kind: socks5.ErrIoError, Msg: "read auth select", Cause: err}
	}
	if sel.Method != socks5.MethodNoAuth {
		return socks5.Address{}, &socks5.Error{Kind: socks5.ErrUnsupportedAuthMethod, Msg: "relay requires unsupported auth method"}
	}

	// C1 -> C2: send the real request.
	req := socks5.Request{Header: socks5.RequestHeader{Command: socks5.CmdConnect}, Address: target}
	if err := socks5.WriteRequest(ctx, t, req); err != nil {
		return socks5.Address{}, &socks5.Error{Kind: socks5.ErrIoError, Msg: "write request", Cause: err}
	}

	// C2 -> C3/C4: read the reply.
	resp, err := socks5.ReadResponse(ctx, t)
	if err != nil {
		return socks5.Address{}, &socks5.Error{Kind: socks5.ErrIoError, Msg: "read response", Cause: err}
	}
	if resp.Header.ReplyCode != socks5.RepSuccess {
		return socks5.Address{}, &socks5.Error{Kind: socks5.ErrUpstreamReply, RepCode: resp.Header.ReplyCode, Msg: "relay rejected request"}
	}

	return resp.Address, nil
}

func boundNetAddr(addr socks5.Address) net.Addr {
	switch addr.Type {
	case socks5.AddrIPv4, socks5.AddrIPv6:
		return &net.TCPAddr{IP: net.IP(addr.Host), Port: int(addr.Port)}
	default:
		return &net.TCPAddr{}
	}
}
