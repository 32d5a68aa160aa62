package agent

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/danmuck/fibctl/internal/protocol"
)

// Route is one unicast route as shown to users: From is "addr/len", To is the
// first next hop ("" when the route has none).
type Route struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	NextHops []string `json:"next_hops,omitempty"`
}

type unicastRoute struct {
	dest     netip.Prefix
	nextHops []netip.Addr
}

func (r unicastRoute) Route() Route {
	out := Route{From: r.dest.String()}
	for _, hop := range r.nextHops {
		out.NextHops = append(out.NextHops, hop.String())
	}
	if len(out.NextHops) > 0 {
		out.To = out.NextHops[0]
	}
	return out
}

// parseRoute validates a user route. NextHops wins over To when both are set.
func parseRoute(r Route) (unicastRoute, error) {
	dest, err := ParsePrefix(r.From)
	if err != nil {
		return unicastRoute{}, err
	}
	hops := r.NextHops
	if len(hops) == 0 && r.To != "" {
		hops = []string{r.To}
	}
	out := unicastRoute{dest: dest}
	for _, h := range hops {
		addr, err := ParseNextHop(h)
		if err != nil {
			return unicastRoute{}, fmt.Errorf("route %s: %w", r.From, err)
		}
		out.nextHops = append(out.nextHops, addr)
	}
	return out, nil
}

// RouteTable returns the agent's unicast routes in wire order.
func (c *Client) RouteTable(ctx context.Context) ([]Route, error) {
	var routes []Route
	result := protocol.StructReaderFunc(func(p protocol.Protocol) error {
		_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
			if f.ID != fieldSuccess || f.Type != protocol.List {
				return false, nil
			}
			rs, err := readRouteList(p)
			for _, r := range rs {
				routes = append(routes, r.Route())
			}
			return true, err
		})
		return err
	})
	if err := c.do(ctx, MethodGetRouteTable, nil, result); err != nil {
		return nil, err
	}
	return routes, nil
}

// SyncFib replaces the agent's routes for this client id with routes.
func (c *Client) SyncFib(ctx context.Context, routes []Route) error {
	parsed := make([]unicastRoute, 0, len(routes))
	for _, r := range routes {
		ur, err := parseRoute(r)
		if err != nil {
			return err
		}
		parsed = append(parsed, ur)
	}
	args := c.routeArgs("syncFib_args", protocol.List, func(p protocol.Protocol) error {
		if err := p.WriteListBegin(protocol.Struct, len(parsed)); err != nil {
			return err
		}
		for _, r := range parsed {
			if err := writeUnicastRoute(p, r); err != nil {
				return err
			}
		}
		return p.WriteListEnd()
	})
	return c.do(ctx, MethodSyncFib, args, voidResult(MethodSyncFib))
}

// AddRoute installs prefix via nextHop.
func (c *Client) AddRoute(ctx context.Context, prefix, nextHop string) error {
	r, err := parseRoute(Route{From: prefix, To: nextHop})
	if err != nil {
		return err
	}
	if len(r.nextHops) == 0 {
		return fmt.Errorf("%w: next hop required", ErrInvalidAddress)
	}
	args := c.routeArgs("addUnicastRoute_args", protocol.Struct, func(p protocol.Protocol) error {
		return writeUnicastRoute(p, r)
	})
	return c.do(ctx, MethodAddUnicastRoute, args, voidResult(MethodAddUnicastRoute))
}

// DeleteRoute removes the route for prefix.
func (c *Client) DeleteRoute(ctx context.Context, prefix string) error {
	dest, err := ParsePrefix(prefix)
	if err != nil {
		return err
	}
	args := c.routeArgs("deleteUnicastRoute_args", protocol.Struct, func(p protocol.Protocol) error {
		return writeIPPrefix(p, dest)
	})
	return c.do(ctx, MethodDeleteUnicastRoute, args, voidResult(MethodDeleteUnicastRoute))
}

// routeArgs writes {1: i16 clientId, 2: payload}.
func (c *Client) routeArgs(name string, payloadType protocol.TypeID, payload func(protocol.Protocol) error) protocol.StructWriter {
	clientID := c.cfg.ClientID
	return protocol.StructWriterFunc(func(p protocol.Protocol) error {
		if err := p.WriteStructBegin(name); err != nil {
			return err
		}
		if err := p.WriteFieldBegin("clientId", protocol.I16, argClientID); err != nil {
			return err
		}
		if err := p.WriteI16(clientID); err != nil {
			return err
		}
		if err := p.WriteFieldEnd(); err != nil {
			return err
		}
		if err := p.WriteFieldBegin("r", payloadType, argPayload); err != nil {
			return err
		}
		if err := payload(p); err != nil {
			return err
		}
		if err := p.WriteFieldEnd(); err != nil {
			return err
		}
		if err := p.WriteFieldStop(); err != nil {
			return err
		}
		return p.WriteStructEnd()
	})
}

// voidResult reads a void reply, surfacing a declared exception in field 1.
func voidResult(method string) protocol.StructReader {
	return protocol.StructReaderFunc(func(p protocol.Protocol) error {
		var remote *RemoteError
		_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
			if f.ID != fieldError || f.Type != protocol.Struct {
				return false, nil
			}
			re, err := readRemoteError(p, method)
			remote = re
			return true, err
		})
		if err != nil {
			return err
		}
		if remote != nil {
			return remote
		}
		return nil
	})
}

func writeUnicastRoute(p protocol.Protocol, r unicastRoute) error {
	if err := p.WriteStructBegin("UnicastRoute"); err != nil {
		return err
	}
	if err := p.WriteFieldBegin("dest", protocol.Struct, routeDest); err != nil {
		return err
	}
	if err := writeIPPrefix(p, r.dest); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(); err != nil {
		return err
	}
	if err := p.WriteFieldBegin("nextHopAddrs", protocol.List, routeNextHops); err != nil {
		return err
	}
	if err := p.WriteListBegin(protocol.Struct, len(r.nextHops)); err != nil {
		return err
	}
	for _, hop := range r.nextHops {
		if err := writeBinaryAddress(p, hop); err != nil {
			return err
		}
	}
	if err := p.WriteListEnd(); err != nil {
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

func readRouteList(p protocol.Protocol) ([]unicastRoute, error) {
	h, err := p.ReadListBegin()
	if err != nil {
		return nil, err
	}
	if h.ElemType != protocol.Struct {
		for i := 0; i < h.Size; i++ {
			if err := p.Skip(h.ElemType); err != nil {
				return nil, err
			}
		}
		return nil, p.ReadListEnd()
	}
	routes := make([]unicastRoute, 0, protocol.CapHint(h.Size))
	for i := 0; i < h.Size; i++ {
		r, err := readUnicastRoute(p)
		if err != nil {
			return routes, err
		}
		routes = append(routes, r)
	}
	return routes, p.ReadListEnd()
}

func readUnicastRoute(p protocol.Protocol) (unicastRoute, error) {
	var r unicastRoute
	_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
		switch {
		case f.ID == routeDest && f.Type == protocol.Struct:
			dest, err := readIPPrefix(p)
			r.dest = dest
			return true, err
		case f.ID == routeNextHops && f.Type == protocol.List:
			hops, err := readNextHops(p)
			r.nextHops = hops
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return unicastRoute{}, err
	}
	if !r.dest.IsValid() {
		return unicastRoute{}, fmt.Errorf("%w: route without dest", ErrInvalidPrefix)
	}
	return r, nil
}

// readNextHops accepts list<BinaryAddress> and list<binary>; other element
// types are skipped.
func readNextHops(p protocol.Protocol) ([]netip.Addr, error) {
	h, err := p.ReadListBegin()
	if err != nil {
		return nil, err
	}
	hops := make([]netip.Addr, 0, protocol.CapHint(h.Size))
	for i := 0; i < h.Size; i++ {
		switch h.ElemType {
		case protocol.Struct:
			addr, err := readBinaryAddress(p)
			if err != nil {
				return nil, err
			}
			hops = append(hops, addr)
		case protocol.String:
			raw, err := p.ReadBinary()
			if err != nil {
				return nil, err
			}
			addr, err := addrFromBytes(raw)
			if err != nil {
				return nil, err
			}
			hops = append(hops, addr)
		default:
			if err := p.Skip(h.ElemType); err != nil {
				return nil, err
			}
		}
	}
	return hops, p.ReadListEnd()
}
