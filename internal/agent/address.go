package agent

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/danmuck/fibctl/internal/protocol"
)

var (
	ErrInvalidAddress = errors.New("agent: invalid address")
	ErrInvalidPrefix  = errors.New("agent: invalid prefix")
)

// FormatAddress renders raw address bytes: 4 bytes as dotted IPv4, 16 bytes
// as canonical IPv6.
func FormatAddress(b []byte) (string, error) {
	addr, err := addrFromBytes(b)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

func addrFromBytes(b []byte) (netip.Addr, error) {
	switch len(b) {
	case 4, 16:
		addr, _ := netip.AddrFromSlice(b)
		return addr, nil
	default:
		return netip.Addr{}, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(b))
	}
}

// ParsePrefix accepts "addr/len" or a bare address, which becomes a host
// prefix (/32 or /128).
func ParsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Prefix{}, fmt.Errorf("%w: empty", ErrInvalidPrefix)
	}
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: %v", ErrInvalidPrefix, err)
		}
		return netip.PrefixFrom(addr.WithZone(""), addr.BitLen()), nil
	}
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %v", ErrInvalidPrefix, err)
	}
	return prefix, nil
}

// ParseNextHop parses an IPv4 or IPv6 next-hop address. An IPv6 zone is sent
// as the interface name.
func ParseNextHop(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return addr, nil
}

// writeBinaryAddress encodes BinaryAddress{addr, port=0, ifName=zone}.
func writeBinaryAddress(p protocol.Protocol, addr netip.Addr) error {
	addr = addr.Unmap()
	if err := p.WriteStructBegin("BinaryAddress"); err != nil {
		return err
	}
	if err := p.WriteFieldBegin("addr", protocol.String, addrBytes); err != nil {
		return err
	}
	if err := p.WriteBinary(addr.AsSlice()); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(); err != nil {
		return err
	}
	if err := p.WriteFieldBegin("port", protocol.I64, addrPort); err != nil {
		return err
	}
	if err := p.WriteI64(0); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(); err != nil {
		return err
	}
	if zone := addr.Zone(); zone != "" {
		if err := p.WriteFieldBegin("ifName", protocol.String, addrIfName); err != nil {
			return err
		}
		if err := p.WriteString(zone); err != nil {
			return err
		}
		if err := p.WriteFieldEnd(); err != nil {
			return err
		}
	}
	if err := p.WriteFieldStop(); err != nil {
		return err
	}
	return p.WriteStructEnd()
}

func readBinaryAddress(p protocol.Protocol) (netip.Addr, error) {
	var (
		raw    []byte
		seen   bool
		ifName string
	)
	_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
		switch {
		case f.ID == addrBytes && f.Type == protocol.String:
			b, err := p.ReadBinary()
			raw, seen = b, true
			return true, err
		case f.ID == addrIfName && f.Type == protocol.String:
			s, err := p.ReadString()
			ifName = s
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return netip.Addr{}, err
	}
	if !seen {
		return netip.Addr{}, fmt.Errorf("%w: missing addr field", ErrInvalidAddress)
	}
	addr, err := addrFromBytes(raw)
	if err != nil {
		return netip.Addr{}, err
	}
	if ifName != "" && addr.Is6() && addr.IsLinkLocalUnicast() {
		addr = addr.WithZone(ifName)
	}
	return addr, nil
}

// writeIPPrefix encodes IpPrefix{ip, prefixLength}.
func writeIPPrefix(p protocol.Protocol, prefix netip.Prefix) error {
	if err := p.WriteStructBegin("IpPrefix"); err != nil {
		return err
	}
	if err := p.WriteFieldBegin("ip", protocol.Struct, prefixIP); err != nil {
		return err
	}
	if err := writeBinaryAddress(p, prefix.Addr()); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(); err != nil {
		return err
	}
	if err := p.WriteFieldBegin("prefixLength", protocol.I16, prefixLength); err != nil {
		return err
	}
	if err := p.WriteI16(int16(prefix.Bits())); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(); err != nil {
		return err
	}
	if err := p.WriteFieldStop(); err != nil {
		return err
	}
	return p.WriteStructEnd()
}

func readIPPrefix(p protocol.Protocol) (netip.Prefix, error) {
	var (
		addr netip.Addr
		bits int16
	)
	_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
		switch {
		case f.ID == prefixIP && f.Type == protocol.Struct:
			a, err := readBinaryAddress(p)
			addr = a
			return true, err
		case f.ID == prefixLength && f.Type == protocol.I16:
			v, err := p.ReadI16()
			bits = v
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return netip.Prefix{}, err
	}
	if !addr.IsValid() {
		return netip.Prefix{}, fmt.Errorf("%w: missing ip field", ErrInvalidPrefix)
	}
	prefix := netip.PrefixFrom(addr.WithZone(""), int(bits))
	if !prefix.IsValid() {
		return netip.Prefix{}, fmt.Errorf("%w: %s/%d", ErrInvalidPrefix, addr, bits)
	}
	return prefix, nil
}
