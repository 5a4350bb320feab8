package socks5

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Address is the tagged union used by SOCKS5 for both request and response
// target addresses: an address type, the raw host bytes (4 for IPv4, 16 for
// IPv6, 1..255 ASCII/UTF-8 bytes for a domain), and a port in host order.
type Address struct {
	Type byte
	Host []byte
	Port uint16
}

// DummyAddress is sent as the bound-address body of a failure Response,
// per spec: IPv4 0.0.0.0:0.
var DummyAddress = Address{Type: AddrIPv4, Host: []byte{0, 0, 0, 0}, Port: 0}

// Equal reports structural equality on (Type, Host, Port).
func (a Address) Equal(other Address) bool {
	if a.Type != other.Type || a.Port != other.Port {
		return false
	}
	if len(a.Host) != len(other.Host) {
		return false
	}
	for i := range a.Host {
		if a.Host[i] != other.Host[i] {
			return false
		}
	}
	return true
}

// String renders the address the way net.JoinHostPort would for a socket
// address, used in log messages.
func (a Address) String() string {
	switch a.Type {
	case AddrIPv4, AddrIPv6:
		return net.JoinHostPort(net.IP(a.Host).String(), fmt.Sprint(a.Port))
	case AddrDomain:
		return net.JoinHostPort(string(a.Host), fmt.Sprint(a.Port))
	default:
		return fmt.Sprintf("Address{type: 0x%02x, host: %v, port: %d}", a.Type, a.Host, a.Port)
	}
}

// EncodedLen returns the number of bytes Encode will produce.
func (a Address) EncodedLen() int {
	switch a.Type {
	case AddrDomain:
		return 1 + 1 + len(a.Host) + 2
	default:
		return 1 + len(a.Host) + 2
	}
}

// Encode appends the wire representation of a to dst and returns the result.
// It rejects a Domain address with an empty or too-long host.
func (a Address) Encode(dst []byte) ([]byte, error) {
	if a.Type == AddrDomain && (len(a.Host) == 0 || len(a.Host) > MaxDomainLength) {
		return nil, &Error{Kind: ErrMalformedPacket, Msg: fmt.Sprintf("invalid domain length %d", len(a.Host))}
	}

	dst = append(dst, a.Type)
	if a.Type == AddrDomain {
		dst = append(dst, byte(len(a.Host)))
	}
	dst = append(dst, a.Host...)
	dst = binary.BigEndian.AppendUint16(dst, a.Port)
	return dst, nil
}

// DecodeAddress parses a wire address out of data and returns it together
// with the number of bytes consumed. It fails with ErrMalformedPacket if the
// address type is unknown, the domain length byte is zero, or data is too
// short for the declared length.
func DecodeAddress(data []byte) (Address, int, error) {
	if len(data) < 1 {
		return Address{}, 0, &Error{Kind: ErrMalformedPacket, Msg: "truncated address"}
	}

	atyp := data[0]
	cursor := 1
	var hostLen int

	switch atyp {
	case AddrIPv4:
		hostLen = 4
	case AddrIPv6:
		hostLen = 16
	case AddrDomain:
		if len(data) < cursor+1 {
			return Address{}, 0, &Error{Kind: ErrMalformedPacket, Msg: "truncated domain length"}
		}
		hostLen = int(data[cursor])
		cursor++
		if hostLen == 0 {
			return Address{}, 0, &Error{Kind: ErrMalformedPacket, Msg: "zero-length domain"}
		}
	default:
		return Address{}, 0, &Error{Kind: ErrMalformedPacket, Msg: fmt.Sprintf("unknown address type 0x%02x", atyp)}
	}

	if len(data) < cursor+hostLen+2 {
		return Address{}, 0, &Error{Kind: ErrMalformedPacket, Msg: "truncated address body"}
	}

	host := make([]byte, hostLen)
	copy(host, data[cursor:cursor+hostLen])
	cursor += hostLen

	port := binary.BigEndian.Uint16(data[cursor : cursor+2])
	cursor += 2

	return Address{Type: atyp, Host: host, Port: port}, cursor, nil
}

// AddressFromNetAddr builds an Address from a net.Addr that is expected to
// be a *net.TCPAddr. The type is set to AddrInvalid if the address is
// neither IPv4 nor IPv6 (mirrors Address::FromAsioEndpoint's `0xff` marker).
func AddressFromNetAddr(addr net.Addr) Address {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return Address{Type: AddrInvalid}
	}

	if v4 := tcpAddr.IP.To4(); v4 != nil {
		return Address{Type: AddrIPv4, Host: append([]byte(nil), v4...), Port: uint16(tcpAddr.Port)}
	}
	if v6 := tcpAddr.IP.To16(); v6 != nil {
		return Address{Type: AddrIPv6, Host: append([]byte(nil), v6...), Port: uint16(tcpAddr.Port)}
	}
	return Address{Type: AddrInvalid}
}

// HostPort renders the address as a "host:port" string suitable for
// net.Dial, resolving a Domain address's host as-is (resolution happens
// elsewhere).
func (a Address) HostPort() string {
	switch a.Type {
	case AddrDomain:
		return net.JoinHostPort(string(a.Host), fmt.Sprint(a.Port))
	default:
		return net.JoinHostPort(net.IP(a.Host).String(), fmt.Sprint(a.Port))
	}
}
