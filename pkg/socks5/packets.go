package socks5

import (
	"context"
)

// reader is the minimal capability the packet decoders need from a
// Transport; it lets this package stay independent of the transport
// package (transport.Transport satisfies it).
type reader interface {
	Read(ctx context.Context, buf []byte, allowShort bool) (int, error)
}

// writer is the minimal capability the packet encoders need.
type writer interface {
	Write(ctx context.Context, buf []byte) (int, error)
}

func readFull(ctx context.Context, r reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := r.Read(ctx, buf, false)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// AuthMethodList is the client's method-negotiation request:
//
//	+-----+-------+----------+
//	| VER | NMETH | METHODS  |
//	+-----+-------+----------+
//	|  1  |   1   | 1..255   |
type AuthMethodList struct {
	Methods []byte
}

// Validate checks VER == 0x05 implicitly (the version byte is consumed
// during decode and checked there); this reports whether at least one
// method was offered.
func (p AuthMethodList) Validate() bool {
	return len(p.Methods) > 0
}

// Has reports whether method is present in the offered list.
func (p AuthMethodList) Has(method byte) bool {
	for _, m := range p.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Encode renders the method list to wire format.
func (p AuthMethodList) Encode() []byte {
	buf := make([]byte, 0, 2+len(p.Methods))
	buf = append(buf, Version, byte(len(p.Methods)))
	return append(buf, p.Methods...)
}

// WriteAuthMethodList writes the client's offered methods.
func WriteAuthMethodList(ctx context.Context, w writer, methods []byte) error {
	_, err := w.Write(ctx, AuthMethodList{Methods: methods}.Encode())
	return err
}

// ReadAuthMethodList reads and validates an AuthMethodList from r. It
// returns ErrMalformedPacket if VER != 0x05 or NMETH == 0.
func ReadAuthMethodList(ctx context.Context, r reader) (AuthMethodList, error) {
	hdr, err := readFull(ctx, r, 2)
	if err != nil {
		return AuthMethodList{}, err
	}
	if hdr[0] != Version {
		return AuthMethodList{}, &Error{Kind: ErrMalformedPacket, Msg: "bad VER in auth request"}
	}

	n := int(hdr[1])
	if n == 0 {
		return AuthMethodList{}, &Error{Kind: ErrMalformedPacket, Msg: "NMETHODS is zero"}
	}

	methods, err := readFull(ctx, r, n)
	if err != nil {
		return AuthMethodList{}, err
	}

	p := AuthMethodList{Methods: methods}
	if !p.Validate() {
		return AuthMethodList{}, &Error{Kind: ErrMalformedPacket, Msg: "invalid auth request"}
	}
	return p, nil
}

// AuthSelect is the server's chosen method, or the client's read of it:
//
//	+-----+--------+
//	| VER | METHOD |
//	+-----+--------+
type AuthSelect struct {
	Method byte
}

func (p AuthSelect) Encode() []byte {
	return []byte{Version, p.Method}
}

func WriteAuthSelect(ctx context.Context, w writer, method byte) error {
	_, err := w.Write(ctx, AuthSelect{Method: method}.Encode())
	return err
}

func ReadAuthSelect(ctx context.Context, r reader) (AuthSelect, error) {
	buf, err := readFull(ctx, r, 2)
	if err != nil {
		return AuthSelect{}, err
	}
	if buf[0] != Version {
		return AuthSelect{}, &Error{Kind: ErrMalformedPacket, Msg: "bad VER in auth select"}
	}
	return AuthSelect{Method: buf[1]}, nil
}

// RequestHeader is the fixed part of a client CONNECT/BIND/UDP request:
//
//	+-----+-----+-----+
//	| VER | CMD | RSV |
//	+-----+-----+-----+
type RequestHeader struct {
	Command byte
}

// Validate reports whether Command is CONNECT, BIND, or UDPAssociate (i.e.
// the header decoded to a known command at all — rejecting an unsupported
// *value* of CMD happens at the state-machine layer, per spec §8 property 3).
func (h RequestHeader) Validate() bool {
	switch h.Command {
	case CmdConnect, CmdBind, CmdUDPAssociate:
		return true
	default:
		return false
	}
}

func readRequestHeader(ctx context.Context, r reader) (RequestHeader, error) {
	buf, err := readFull(ctx, r, 3)
	if err != nil {
		return RequestHeader{}, err
	}
	if buf[0] != Version {
		return RequestHeader{}, &Error{Kind: ErrMalformedPacket, Msg: "bad VER in request"}
	}
	h := RequestHeader{Command: buf[1]}
	if !h.Validate() {
		return RequestHeader{}, &Error{Kind: ErrMalformedPacket, Msg: "unknown command"}
	}
	return h, nil
}

// Request is RequestHeader ⊕ Address: the header is fully read and
// validated before the address body is decoded, per the Header⊕Body
// convention described in spec §3/§9.
type Request struct {
	Header  RequestHeader
	Address Address
}

func (r Request) Validate() bool {
	return r.Header.Validate()
}

// ReadRequest performs the composite Header⊕Body read: RequestHeader first,
// then, only if it validates, the target Address.
func ReadRequest(ctx context.Context, r reader) (Request, error) {
	header, err := readRequestHeader(ctx, r)
	if err != nil {
		return Request{}, err
	}

	atypBuf, err := readFull(ctx, r, 1)
	if err != nil {
		return Request{}, err
	}

	addr, err := readAddressBody(ctx, r, atypBuf[0])
	if err != nil {
		return Request{}, err
	}

	return Request{Header: header, Address: addr}, nil
}

func (r Request) Encode() ([]byte, error) {
	buf := []byte{Version, r.Header.Command, 0x00}
	return r.Address.Encode(buf)
}

func WriteRequest(ctx context.Context, w writer, r Request) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(ctx, data)
	return err
}

// ResponseHeader is the fixed part of a server reply:
//
//	+-----+-----+-----+
//	| VER | REP | RSV |
//	+-----+-----+-----+
type ResponseHeader struct {
	ReplyCode byte
}

func readResponseHeader(ctx context.Context, r reader) (ResponseHeader, error) {
	buf, err := readFull(ctx, r, 3)
	if err != nil {
		return ResponseHeader{}, err
	}
	if buf[0] != Version {
		return ResponseHeader{}, &Error{Kind: ErrMalformedPacket, Msg: "bad VER in response"}
	}
	return ResponseHeader{ReplyCode: buf[1]}, nil
}

// Response is ResponseHeader ⊕ Address (the "bound address").
type Response struct {
	Header  ResponseHeader
	Address Address
}

func (r Response) Encode() ([]byte, error) {
	buf := []byte{Version, r.Header.ReplyCode, 0x00}
	return r.Address.Encode(buf)
}

func WriteResponse(ctx context.Context, w writer, r Response) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(ctx, data)
	return err
}

// ReadResponse performs the composite Header⊕Body read for a Response.
func ReadResponse(ctx context.Context, r reader) (Response, error) {
	header, err := readResponseHeader(ctx, r)
	if err != nil {
		return Response{}, err
	}

	atypBuf, err := readFull(ctx, r, 1)
	if err != nil {
		return Response{}, err
	}

	addr, err := readAddressBody(ctx, r, atypBuf[0])
	if err != nil {
		return Response{}, err
	}

	return Response{Header: header, Address: addr}, nil
}

// readAddressBody reads the portion of an address that follows the ATYP
// byte (already consumed by the caller as part of the composite read).
func readAddressBody(ctx context.Context, r reader, atyp byte) (Address, error) {
	var hostLen int
	switch atyp {
	case AddrIPv4:
		hostLen = 4
	case AddrIPv6:
		hostLen = 16
	case AddrDomain:
		lenBuf, err := readFull(ctx, r, 1)
		if err != nil {
			return Address{}, err
		}
		hostLen = int(lenBuf[0])
		if hostLen == 0 {
			return Address{}, &Error{Kind: ErrMalformedPacket, Msg: "zero-length domain"}
		}
	default:
		return Address{}, &Error{Kind: ErrMalformedPacket, Msg: "unknown address type"}
	}

	host, err := readFull(ctx, r, hostLen)
	if err != nil {
		return Address{}, err
	}
	portBuf, err := readFull(ctx, r, 2)
	if err != nil {
		return Address{}, err
	}

	return Address{
		Type: atyp,
		Host: host,
		Port: uint16(portBuf[0])<<8 | uint16(portBuf[1]),
	}, nil
}
