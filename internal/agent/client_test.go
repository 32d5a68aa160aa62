package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/fibctl/internal/protocol"
	"github.com/danmuck/fibctl/internal/protocol/session"
	"github.com/danmuck/fibctl/internal/protocol/transport"
	"github.com/danmuck/fibctl/internal/testutil/testlog"
)

func newTestClient(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.Session.ReadTimeout = 2 * time.Second
	cfg.Session.WriteTimeout = 2 * time.Second
	cfg.Session.Backoff.InitialDelay = time.Millisecond
	cfg.Session.Backoff.MaxDelay = 5 * time.Millisecond
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func routeTableReply(protocol.Value) reply {
	dest := prefixValue(24, 10, 0, 0, 0)
	routes := protocol.Value{Type: protocol.List, ElemType: protocol.Struct, Elems: []protocol.Value{
		routeValue(dest, []byte{10, 0, 0, 1}),
		routeValue(dest, []byte{10, 0, 0, 1}),
	}}
	return reply{body: structOf(field(fieldSuccess, routes))}
}

func TestRouteTableOverLoopbackAgent(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(req request) reply {
		if req.head.Name != MethodGetRouteTable {
			t.Errorf("unexpected method %q", req.head.Name)
		}
		return routeTableReply(req.args)
	})
	c := newTestClient(t, agent.Addr())

	routes, err := c.RouteTable(context.Background())
	if err != nil {
		t.Fatalf("route table: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	for i, r := range routes {
		if r.From != "10.0.0.0/24" || r.To != "10.0.0.1" {
			t.Fatalf("route[%d] unexpected %+v", i, r)
		}
	}

	reqs := agent.Requests()
	if len(reqs) != 1 || reqs[0].head.SeqID != 1 || reqs[0].head.Type != protocol.Call {
		t.Fatalf("unexpected request envelope %+v", reqs)
	}
	if len(reqs[0].args.Fields) != 0 {
		t.Fatalf("getRouteTable args should be empty: %+v", reqs[0].args)
	}
}

func TestPoolReusesConnectionAndAdvancesSequence(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(req request) reply { return routeTableReply(req.args) })
	c := newTestClient(t, agent.Addr())

	for i := 0; i < 3; i++ {
		if _, err := c.RouteTable(context.Background()); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := agent.accepts.Load(); got != 1 {
		t.Fatalf("expected a single pooled connection, got %d accepts", got)
	}
	reqs := agent.Requests()
	for i, req := range reqs {
		if req.head.SeqID != int32(i+1) {
			t.Fatalf("request %d seq=%d", i, req.head.SeqID)
		}
	}
	if c.Idle() != 1 {
		t.Fatalf("expected one idle connection, got %d", c.Idle())
	}
}

func TestPortStats(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(req request) reply {
		ports := protocol.Value{
			Type: protocol.Map, KeyType: protocol.I32, ValueType: protocol.Struct,
			Entries: []protocol.MapEntry{
				{Key: i32(1), Value: structOf(field(portOperState, i32(1)))},
				{Key: i32(2), Value: structOf(field(2, protocol.Value{Type: protocol.I64, Int: 100000}), field(portOperState, i32(0)))},
			},
		}
		return reply{body: structOf(field(fieldSuccess, ports))}
	})
	c := newTestClient(t, agent.Addr())

	stats, err := c.PortStats(context.Background())
	if err != nil {
		t.Fatalf("port stats: %v", err)
	}
	want := []PortStat{{ID: 1, Connected: true, OperState: 1}, {ID: 2, Connected: false}}
	if len(stats) != len(want) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for i := range want {
		if stats[i] != want[i] {
			t.Fatalf("stat[%d] got=%+v want=%+v", i, stats[i], want[i])
		}
	}
}

func TestAddRouteSendsClientIDAndRoute(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(request) reply { return reply{} })
	c := newTestClient(t, agent.Addr())

	if err := c.AddRoute(context.Background(), "10.0.0.0/24", "10.0.0.1"); err != nil {
		t.Fatalf("add route: %v", err)
	}
	args := agent.Requests()[0].args
	clientID, ok := args.Field(argClientID)
	if !ok || clientID.Type != protocol.I16 || clientID.Int != int64(DefaultClientID) {
		t.Fatalf("unexpected clientId %+v", clientID)
	}
	route, ok := args.Field(argPayload)
	if !ok || route.Type != protocol.Struct {
		t.Fatalf("missing route payload: %+v", args)
	}
	hops, _ := route.Field(routeNextHops)
	if hops.ElemType != protocol.Struct || len(hops.Elems) != 1 {
		t.Fatalf("unexpected next hops %+v", hops)
	}
}

func TestDeleteRouteSendsPrefix(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(request) reply { return reply{} })
	c := newTestClient(t, agent.Addr())

	if err := c.DeleteRoute(context.Background(), "2001:db8::/32"); err != nil {
		t.Fatalf("delete route: %v", err)
	}
	req := agent.Requests()[0]
	if req.head.Name != MethodDeleteUnicastRoute {
		t.Fatalf("unexpected method %q", req.head.Name)
	}
	prefix, _ := req.args.Field(argPayload)
	bits, _ := prefix.Field(prefixLength)
	ip, _ := prefix.Field(prefixIP)
	raw, _ := ip.Field(addrBytes)
	if bits.Int != 32 || len(raw.Bytes) != 16 || raw.Bytes[0] != 0x20 || raw.Bytes[1] != 0x01 {
		t.Fatalf("unexpected prefix %+v", prefix)
	}
}

func TestSyncFibSendsRouteList(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(request) reply { return reply{} })
	c := newTestClient(t, agent.Addr())

	err := c.SyncFib(context.Background(), []Route{
		{From: "10.0.0.0/24", To: "10.0.0.1"},
		{From: "10.1.0.0/16", NextHops: []string{"10.0.0.2", "10.0.0.3"}},
	})
	if err != nil {
		t.Fatalf("sync fib: %v", err)
	}
	routes, _ := agent.Requests()[0].args.Field(argPayload)
	if routes.Type != protocol.List || routes.ElemType != protocol.Struct || len(routes.Elems) != 2 {
		t.Fatalf("unexpected routes payload %+v", routes)
	}
	hops, _ := routes.Elems[1].Field(routeNextHops)
	if len(hops.Elems) != 2 {
		t.Fatalf("expected two next hops, got %d", len(hops.Elems))
	}
}

func TestDeclaredExceptionIsRemoteError(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(request) reply {
		return reply{body: structOf(field(fieldError, structOf(field(errMessage, str("route rejected")))))}
	})
	c := newTestClient(t, agent.Addr())

	err := c.AddRoute(context.Background(), "10.0.0.0/24", "10.0.0.1")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.Method != MethodAddUnicastRoute || re.Message != "route rejected" {
		t.Fatalf("unexpected remote error %+v", re)
	}
	if !IsRemote(err) || outcomeOf(err) != "remote" {
		t.Fatalf("remote error misclassified")
	}
	if c.Idle() != 0 {
		t.Fatalf("failed call must not return its connection")
	}
}

func TestApplicationExceptionSurfaces(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(request) reply {
		return reply{kind: protocol.Exception, exc: &protocol.ApplicationException{
			Type: protocol.ExceptionUnknownMethod, Message: "no such method",
		}}
	})
	c := newTestClient(t, agent.Addr())

	_, err := c.Call(context.Background(), "frobnicate")
	if !protocol.IsRemote(err) || !IsRemote(err) {
		t.Fatalf("expected application exception, got %v", err)
	}
}

func TestNonReplyEmptyDropsConnection(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(request) reply {
		return reply{kind: protocol.Exception, exc: &protocol.ApplicationException{Message: "busy"}}
	})
	cfg := DefaultConfig()
	cfg.Address = agent.Addr()
	cfg.Session.NonReplyPolicy = session.NonReplyEmpty
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	for i := 0; i < 2; i++ {
		v, err := c.Call(context.Background(), MethodGetRouteTable)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(v.Fields) != 0 {
			t.Fatalf("expected empty result, got %+v", v)
		}
	}
	if c.Idle() != 0 {
		t.Fatalf("unaligned connection was pooled")
	}
	if got := agent.accepts.Load(); got != 2 {
		t.Fatalf("expected a fresh connection per call, got %d accepts", got)
	}
}

func TestCallReturnsWholeReply(t *testing.T) {
	testlog.Start(t)
	agent := newFakeAgent(t, func(request) reply {
		return reply{body: structOf(field(fieldSuccess, str("3.2.1")))}
	})
	c := newTestClient(t, agent.Addr())

	v, err := c.Call(context.Background(), "getVersion")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	got, ok := v.Field(fieldSuccess)
	if !ok || string(got.Bytes) != "3.2.1" {
		t.Fatalf("unexpected reply %+v", v)
	}
}

func TestValidationFailsBeforeDial(t *testing.T) {
	testlog.Start(t)
	var dials atomic.Int32
	dial := func(context.Context, string, transport.Timeouts) (*transport.Conn, error) {
		dials.Add(1)
		return nil, errors.New("unreachable")
	}
	c := newTestClient(t, "127.0.0.1:1", WithDialFunc(dial))

	if err := c.AddRoute(context.Background(), "10.0.0.0/33", "10.0.0.1"); !errors.Is(err, ErrInvalidPrefix) {
		t.Fatalf("expected ErrInvalidPrefix, got %v", err)
	}
	if err := c.AddRoute(context.Background(), "10.0.0.0/24", "not-an-ip"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if err := c.SyncFib(context.Background(), []Route{{From: ""}}); !errors.Is(err, ErrInvalidPrefix) {
		t.Fatalf("expected ErrInvalidPrefix, got %v", err)
	}
	if dials.Load() != 0 {
		t.Fatalf("validation errors must not dial")
	}
}

func TestDialRetriesUpToMaxAttempts(t *testing.T) {
	testlog.Start(t)
	var dials atomic.Int32
	dial := func(context.Context, string, transport.Timeouts) (*transport.Conn, error) {
		dials.Add(1)
		return nil, protocol.NewTransportError("dial", errors.New("connection refused"))
	}
	c := newTestClient(t, "127.0.0.1:1", WithDialFunc(dial))

	_, err := c.PortStats(context.Background())
	if !protocol.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := dials.Load(); got != 3 {
		t.Fatalf("expected 3 dial attempts, got %d", got)
	}
}

func TestClosedClientRejectsCalls(t *testing.T) {
	testlog.Start(t)
	c := newTestClient(t, "127.0.0.1:1")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.RouteTable(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNewRequiresAddress(t *testing.T) {
	testlog.Start(t)
	if _, err := New(Config{}); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestFramedTransport(t *testing.T) {
	testlog.Start(t)
	agent := newFramedFakeAgent(t, func(req request) reply { return routeTableReply(req.args) })
	cfg := DefaultConfig()
	cfg.Address = agent.Addr()
	cfg.Framed = true
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	routes, err := c.RouteTable(context.Background())
	if err != nil {
		t.Fatalf("route table over framed transport: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
}
