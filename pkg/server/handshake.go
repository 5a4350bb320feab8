package server

import (
	"context"

	"socks5d/pkg/socks5"
	"socks5d/pkg/transport"
	"socks5d/pkg/upstream"
)

// handshake drives the downstream S0 -> S5 state machine described in spec
// §4.D against an already-accepted client Transport, and returns the
// Transport to the upstream target on success so the caller can hand both
// ends to a Forwarder.
func handshake(ctx context.Context, client transport.Transport, up upstream.Upstream) (transport.Transport, error) {
	// S0 -> S1: method negotiation. This module supports NO AUTHENTICATION
	// REQUIRED only, per spec §4.D and Non-goals.
	methods, err := socks5.ReadAuthMethodList(ctx, client)
	if err != nil {
		return nil, err
	}

	if !methods.Has(socks5.MethodNoAuth) {
		_ = socks5.WriteAuthSelect(ctx, client, socks5.MethodNoAcceptable)
		return nil, &socks5.Error{Kind: socks5.ErrUnsupportedAuthMethod, Msg: "client offered no supported method"}
	}
	if err := socks5.WriteAuthSelect(ctx, client, socks5.MethodNoAuth); err != nil {
		return nil, err
	}

	// S1 -> S2: read the request header ⊕ address.
	req, err := socks5.ReadRequest(ctx, client)
	if err != nil {
		return nil, err
	}

	// S2 -> S3/S4: dispatch by command. BIND and UDP ASSOCIATE are decoded
	// but rejected with COMMAND NOT SUPPORTED, since relaying either is out
	// of scope (see SPEC_FULL.md Non-goals).
	if req.Header.Command != socks5.CmdConnect {
		sendErrorResponse(ctx, client, &socks5.Error{Kind: socks5.ErrUnsupportedCommand})
		return nil, &socks5.Error{Kind: socks5.ErrUnsupportedCommand, Msg: "only CONNECT is supported"}
	}

	upstreamTransport, err := up.Request(ctx, req.Address)
	if err != nil {
		sendErrorResponse(ctx, client, err)
		return nil, err
	}

	// S4 -> S5: success reply carries the upstream's local (bound) address.
	resp := socks5.Response{
		Header:  socks5.ResponseHeader{ReplyCode: socks5.RepSuccess},
		Address: socks5.AddressFromNetAddr(upstreamTransport.LocalAddr()),
	}
	if err := socks5.WriteResponse(ctx, client, resp); err != nil {
		_ = upstreamTransport.Close()
		return nil, err
	}

	return upstreamTransport, nil
}

func sendErrorResponse(ctx context.Context, client transport.Transport, err error) {
	resp := socks5.Response{
		Header:  socks5.ResponseHeader{ReplyCode: socks5.ReplyCode(err)},
		Address: socks5.DummyAddress,
	}
	_ = socks5.WriteResponse(ctx, client, resp)
}
