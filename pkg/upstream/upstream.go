// Package upstream provides the two ways a downstream CONNECT request can
// be satisfied: dialing the target directly (DirectUpstream) or relaying
// through another SOCKS5 server (SocksUpstream), generalizing the teacher's
// upstream-factory split in spirit even though the teacher itself has no
// such abstraction — it is grounded instead on original_source/src/
// direct_upstream.cc and original_source/src/socks_upstream.cc, the two
// concrete UpstreamFactoryBase implementations the spec's C++ predecessor
// ships.
package upstream

import (
	"context"

	"socks5d/pkg/socks5"
	"socks5d/pkg/transport"
)

// Upstream resolves a client's requested target Address into an established
// Transport to that target (or to a relay standing in for it).
type Upstream interface {
	// Request connects to target and returns a Transport ready to relay
	// bytes, or an error wrapping the concrete failure (resolve, dial, or
	// upstream-protocol failure for SocksUpstream).
	Request(ctx context.Context, target socks5.Address) (transport.Transport, error)
}
