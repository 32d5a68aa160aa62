package agent

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/danmuck/fibctl/internal/protocol"
	"github.com/danmuck/fibctl/internal/protocol/binary"
	"github.com/danmuck/fibctl/internal/protocol/transport"
)

// reply is what fakeAgent sends back for one request.
type reply struct {
	kind protocol.MessageType
	body protocol.Value
	exc  *protocol.ApplicationException
}

type request struct {
	head protocol.MessageHeader
	args protocol.Value
}

// fakeAgent is a loopback server speaking the binary protocol.
type fakeAgent struct {
	t       *testing.T
	ln      net.Listener
	handle  func(req request) reply
	framed  bool
	accepts atomic.Int32

	mu       sync.Mutex
	requests []request
}

func newFakeAgent(t *testing.T, handle func(req request) reply) *fakeAgent {
	t.Helper()
	return startFakeAgent(t, handle, false)
}

func newFramedFakeAgent(t *testing.T, handle func(req request) reply) *fakeAgent {
	t.Helper()
	return startFakeAgent(t, handle, true)
}

func startFakeAgent(t *testing.T, handle func(req request) reply, framed bool) *fakeAgent {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	a := &fakeAgent{t: t, ln: ln, handle: handle, framed: framed}
	go a.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return a
}

func (a *fakeAgent) Addr() string { return a.ln.Addr().String() }

func (a *fakeAgent) Requests() []request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]request(nil), a.requests...)
}

func (a *fakeAgent) serve() {
	for {
		c, err := a.ln.Accept()
		if err != nil {
			return
		}
		a.accepts.Add(1)
		go a.serveConn(c)
	}
}

func (a *fakeAgent) serveConn(c net.Conn) {
	defer c.Close()
	var tr protocol.Transport = transport.NewStream(c)
	if a.framed {
		tr = transport.NewFramed(tr, 0)
	}
	p := binary.New(tr)
	for {
		head, err := p.ReadMessageBegin()
		if err != nil {
			return
		}
		args, err := protocol.ReadValue(p, protocol.Struct, protocol.DefaultMaxDepth)
		if err != nil {
			return
		}
		if err := p.ReadMessageEnd(); err != nil {
			return
		}
		req := request{head: head, args: args}
		a.mu.Lock()
		a.requests = append(a.requests, req)
		a.mu.Unlock()

		rep := a.handle(req)
		kind := rep.kind
		if kind == 0 {
			kind = protocol.Reply
		}
		if err := p.WriteMessageBegin(head.Name, kind, head.SeqID); err != nil {
			return
		}
		if rep.exc != nil {
			err = rep.exc.Write(p)
		} else {
			body := rep.body
			if body.Type == 0 {
				body = structOf()
			}
			err = protocol.WriteValue(p, body)
		}
		if err != nil {
			return
		}
		if err := p.WriteMessageEnd(); err != nil {
			return
		}
		if err := p.Flush(); err != nil {
			return
		}
	}
}

func field(id int16, v protocol.Value) protocol.FieldValue {
	return protocol.FieldValue{ID: id, Value: v}
}

func structOf(fields ...protocol.FieldValue) protocol.Value {
	return protocol.Value{Type: protocol.Struct, Fields: fields}
}

func i32(v int32) protocol.Value { return protocol.Value{Type: protocol.I32, Int: int64(v)} }

func bin(b ...byte) protocol.Value { return protocol.Value{Type: protocol.String, Bytes: b} }

func str(s string) protocol.Value { return protocol.Value{Type: protocol.String, Bytes: []byte(s)} }

func addrValue(b ...byte) protocol.Value {
	return structOf(field(addrBytes, bin(b...)), field(addrPort, protocol.Value{Type: protocol.I64}))
}

func prefixValue(bits int16, b ...byte) protocol.Value {
	return structOf(
		field(prefixIP, addrValue(b...)),
		field(prefixLength, protocol.Value{Type: protocol.I16, Int: int64(bits)}),
	)
}

// routeValue builds a UnicastRoute whose next hops are a list<binary>.
func routeValue(dest protocol.Value, hops ...[]byte) protocol.Value {
	elems := make([]protocol.Value, 0, len(hops))
	for _, h := range hops {
		elems = append(elems, bin(h...))
	}
	return structOf(
		field(routeDest, dest),
		field(routeNextHops, protocol.Value{Type: protocol.List, ElemType: protocol.String, Elems: elems}),
	)
}
