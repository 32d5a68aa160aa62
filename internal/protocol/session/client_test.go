package session

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/fibctl/internal/protocol"
	"github.com/danmuck/fibctl/internal/protocol/binary"
	"github.com/danmuck/fibctl/internal/protocol/transport"
	"github.com/danmuck/fibctl/internal/testutil/testlog"
)

// duplex reads scripted replies from in and records requests in out.
type duplex struct {
	in  *transport.Memory
	out *transport.Memory
}

func newDuplex() *duplex {
	return &duplex{in: transport.NewMemory(), out: transport.NewMemory()}
}

func (d *duplex) ReadFull(p []byte) error { return d.in.ReadFull(p) }
func (d *duplex) Write(p []byte) error    { return d.out.Write(p) }
func (d *duplex) Flush() error            { return d.out.Flush() }

// reply scripts one response envelope followed by body.
func (d *duplex) reply(t *testing.T, name string, typ protocol.MessageType, seq int32, body protocol.StructWriter) {
	t.Helper()
	p := binary.New(d.in)
	if err := p.WriteMessageBegin(name, typ, seq); err != nil {
		t.Fatalf("script envelope: %v", err)
	}
	if err := body.Write(p); err != nil {
		t.Fatalf("script body: %v", err)
	}
}

func i32Result(v int32) protocol.StructWriter {
	return protocol.StructWriterFunc(func(p protocol.Protocol) error {
		if err := p.WriteFieldBegin("success", protocol.I32, 0); err != nil {
			return err
		}
		if err := p.WriteI32(v); err != nil {
			return err
		}
		return p.WriteFieldStop()
	})
}

type i32Reader struct {
	value int32
	set   bool
}

func (r *i32Reader) Read(p protocol.Protocol) error {
	_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
		if f.ID != 0 || f.Type != protocol.I32 {
			return false, nil
		}
		v, err := p.ReadI32()
		r.value, r.set = v, true
		return true, err
	})
	return err
}

func newTestClient(d *duplex, mutate func(*Config)) *Client {
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(binary.New(d), cfg)
}

func TestCallWritesEnvelopeAndDecodesReply(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	d.reply(t, "getCount", protocol.Reply, 1, i32Result(17))
	var out i32Reader
	if err := c.Call("getCount", nil, &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if !out.set || out.value != 17 {
		t.Fatalf("unexpected result %+v", out)
	}
	if c.State() != StateDone {
		t.Fatalf("unexpected state %s", c.State())
	}

	req := binary.New(d.out)
	head, err := req.ReadMessageBegin()
	if err != nil {
		t.Fatalf("read request envelope: %v", err)
	}
	if head.Name != "getCount" || head.Type != protocol.Call || head.SeqID != 1 {
		t.Fatalf("unexpected request envelope %+v", head)
	}
	f, err := req.ReadFieldBegin()
	if err != nil || f.Type != protocol.Stop {
		t.Fatalf("expected empty args struct, got %+v err=%v", f, err)
	}
	if d.out.Len() != 0 || d.out.Flushes() != 1 {
		t.Fatalf("request not fully flushed: len=%d flushes=%d", d.out.Len(), d.out.Flushes())
	}
}

func TestSequenceIDsIncreasePerClient(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, func(cfg *Config) { cfg.InitialSeqID = 100 })

	for want := int32(100); want < 103; want++ {
		d.reply(t, "ping", protocol.Reply, want, i32Result(0))
		if err := c.Call("ping", nil, nil); err != nil {
			t.Fatalf("call seq=%d: %v", want, err)
		}
		if c.LastSeqID() != want {
			t.Fatalf("expected seq %d, got %d", want, c.LastSeqID())
		}
	}
}

func TestSequenceIDWrapsToOne(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, func(cfg *Config) { cfg.InitialSeqID = math.MaxInt32 - 1 })

	for _, want := range []int32{math.MaxInt32 - 1, math.MaxInt32, 1} {
		d.reply(t, "ping", protocol.Reply, want, i32Result(0))
		if err := c.Call("ping", nil, nil); err != nil {
			t.Fatalf("call seq=%d: %v", want, err)
		}
	}
}

func TestSequenceMismatchBreaksClient(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	d.reply(t, "ping", protocol.Reply, 99, i32Result(0))
	err := c.Call("ping", nil, nil)
	if !errors.Is(err, protocol.ErrSequenceMismatch) {
		t.Fatalf("expected ErrSequenceMismatch, got %v", err)
	}
	if !c.Broken() {
		t.Fatalf("client should be broken")
	}
	if err := c.Call("ping", nil, nil); !errors.Is(err, ErrClientBroken) {
		t.Fatalf("expected ErrClientBroken, got %v", err)
	}
}

func TestSequenceCheckCanBeDisabled(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, func(cfg *Config) { cfg.VerifySequence = false })

	d.reply(t, "ping", protocol.Reply, 99, i32Result(5))
	var out i32Reader
	if err := c.Call("ping", nil, &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.value != 5 {
		t.Fatalf("unexpected value %d", out.value)
	}
}

func TestMethodMismatch(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	d.reply(t, "pong", protocol.Reply, 1, i32Result(0))
	if err := c.Call("ping", nil, nil); !errors.Is(err, protocol.ErrMethodMismatch) {
		t.Fatalf("expected ErrMethodMismatch, got %v", err)
	}
}

func TestExceptionIsRemoteAndKeepsClientUsable(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	d.reply(t, "frob", protocol.Exception, 1, &protocol.ApplicationException{
		Type:    protocol.ExceptionUnknownMethod,
		Message: "Invalid method name: 'frob'",
	})
	err := c.Call("frob", nil, nil)
	var exc *protocol.ApplicationException
	if !errors.As(err, &exc) {
		t.Fatalf("expected ApplicationException, got %v", err)
	}
	if exc.Type != protocol.ExceptionUnknownMethod {
		t.Fatalf("unexpected exception type %s", exc.Type)
	}
	if protocol.IsProtocol(err) || protocol.IsTransport(err) {
		t.Fatalf("remote exception misclassified: %v", err)
	}
	if c.Broken() {
		t.Fatalf("exception reply leaves the stream aligned")
	}

	d.reply(t, "ping", protocol.Reply, 2, i32Result(1))
	if err := c.Call("ping", nil, nil); err != nil {
		t.Fatalf("call after exception: %v", err)
	}
}

func TestStaleExceptionIsSequenceMismatch(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	d.reply(t, "frob", protocol.Exception, 7, &protocol.ApplicationException{Message: "from an earlier call"})
	err := c.Call("frob", nil, nil)
	if !errors.Is(err, protocol.ErrSequenceMismatch) {
		t.Fatalf("expected ErrSequenceMismatch, got %v", err)
	}
	if protocol.IsRemote(err) {
		t.Fatalf("stale exception must not be attributed to this call: %v", err)
	}
	if !c.Broken() {
		t.Fatalf("client should be broken")
	}
}

func TestExceptionForOtherMethodIsMismatch(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	d.reply(t, "other", protocol.Exception, 1, &protocol.ApplicationException{Message: "nope"})
	if err := c.Call("frob", nil, nil); !errors.Is(err, protocol.ErrMethodMismatch) {
		t.Fatalf("expected ErrMethodMismatch, got %v", err)
	}
}

func TestUnexpectedCallKindInReply(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	d.reply(t, "ping", protocol.Call, 1, EmptyArgs)
	err := c.Call("ping", nil, nil)
	if !errors.Is(err, protocol.ErrUnexpectedMessage) {
		t.Fatalf("expected ErrUnexpectedMessage, got %v", err)
	}
	if !protocol.IsProtocol(err) {
		t.Fatalf("expected protocol error, got %T", err)
	}
}

func TestNonReplyEmptyPolicyReturnsEmptyResult(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, func(cfg *Config) { cfg.NonReplyPolicy = NonReplyEmpty })

	d.reply(t, "ping", protocol.Exception, 1, &protocol.ApplicationException{Message: "nope"})
	var out i32Reader
	if err := c.Call("ping", nil, &out); err != nil {
		t.Fatalf("expected empty success, got %v", err)
	}
	if out.set {
		t.Fatalf("result should be untouched")
	}
	if !c.Broken() {
		t.Fatalf("unread reply body must break the client")
	}
}

func TestSendWritesOneway(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	if err := c.Send("notify", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	head, err := binary.New(d.out).ReadMessageBegin()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if head.Type != protocol.Oneway {
		t.Fatalf("expected oneway, got %s", head.Type)
	}
	if d.in.Len() != 0 {
		t.Fatalf("send must not read")
	}
}

func TestTruncatedReplyIsTransportError(t *testing.T) {
	testlog.Start(t)
	d := newDuplex()
	c := newTestClient(d, nil)

	d.in.Feed([]byte{0x80, 0x01, 0x00, 0x02, 0x00})
	err := c.Call("ping", nil, nil)
	if !protocol.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if c.State() != StateAwaitingEnvelope {
		t.Fatalf("unexpected state %s", c.State())
	}
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.NonReplyPolicy = "ignore"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.ReadTimeout = -time.Second
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		got := NextBackoffDelay(cfg, 2, rng)
		if got < 100*time.Millisecond || got >= 300*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}
