package session

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/danmuck/fibctl/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrClientBroken = errors.New("session: client unusable after failed exchange")

// State tracks where a Client is in its current exchange.
type State int

const (
	StateIdle State = iota
	StateAwaitingEnvelope
	StateAwaitingStruct
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingEnvelope:
		return "awaiting_envelope"
	case StateAwaitingStruct:
		return "awaiting_struct"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EmptyArgs writes an argument struct with no fields.
var EmptyArgs protocol.StructWriter = protocol.StructWriterFunc(func(p protocol.Protocol) error {
	return protocol.WriteEmptyStruct(p, "")
})

// VoidResult reads a result struct and discards every field.
var VoidResult protocol.StructReader = protocol.StructReaderFunc(func(p protocol.Protocol) error {
	_, err := protocol.ReadStruct(p, func(protocol.FieldHeader) (bool, error) {
		return false, nil
	})
	return err
})

// Client runs call/reply exchanges over one Protocol. It is not safe for
// concurrent use.
type Client struct {
	proto  protocol.Protocol
	cfg    Config
	logger zerolog.Logger

	seq    int32
	last   int32
	state  State
	broken error
}

type ClientOption func(*Client)

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func NewClient(p protocol.Protocol, cfg Config, opts ...ClientOption) *Client {
	cfg = cfg.WithDefaults()
	cfg.NonReplyPolicy = NonReplyPolicy(strings.ToLower(strings.TrimSpace(string(cfg.NonReplyPolicy))))
	c := &Client{
		proto:  p,
		cfg:    cfg,
		logger: log.Logger,
		seq:    cfg.InitialSeqID - 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Protocol() protocol.Protocol { return c.proto }

func (c *Client) State() State { return c.state }

// Broken reports whether a previous exchange left the transport unusable.
func (c *Client) Broken() bool { return c.broken != nil }

// LastSeqID returns the sequence id of the most recent request.
func (c *Client) LastSeqID() int32 { return c.last }

// Call sends method with args and decodes the reply body into result. A nil
// args writes an empty struct; a nil result skips the reply body.
func (c *Client) Call(method string, args protocol.StructWriter, result protocol.StructReader) error {
	if c.broken != nil {
		return fmt.Errorf("%w: %v", ErrClientBroken, c.broken)
	}
	seq := c.nextSeqID()
	if err := c.send(method, protocol.Call, seq, args); err != nil {
		return c.fail(err)
	}
	return c.receive(method, seq, result)
}

// Send writes a oneway message; no reply is read.
func (c *Client) Send(method string, args protocol.StructWriter) error {
	if c.broken != nil {
		return fmt.Errorf("%w: %v", ErrClientBroken, c.broken)
	}
	seq := c.nextSeqID()
	if err := c.send(method, protocol.Oneway, seq, args); err != nil {
		return c.fail(err)
	}
	c.state = StateDone
	return nil
}

func (c *Client) send(method string, typ protocol.MessageType, seq int32, args protocol.StructWriter) error {
	if args == nil {
		args = EmptyArgs
	}
	c.state = StateIdle
	if err := c.proto.WriteMessageBegin(method, typ, seq); err != nil {
		return err
	}
	if err := args.Write(c.proto); err != nil {
		return err
	}
	if err := c.proto.WriteMessageEnd(); err != nil {
		return err
	}
	if err := c.proto.Flush(); err != nil {
		return err
	}
	c.logger.Debug().Str("method", method).Int32("seq_id", seq).Stringer("kind", typ).Msg("session.send")
	return nil
}

func (c *Client) receive(method string, seq int32, result protocol.StructReader) error {
	c.state = StateAwaitingEnvelope
	head, err := c.proto.ReadMessageBegin()
	if err != nil {
		return c.fail(err)
	}

	switch {
	case head.Type == protocol.Reply:
	case c.cfg.NonReplyPolicy == NonReplyEmpty:
		c.logger.Warn().
			Str("method", method).
			Int32("seq_id", head.SeqID).
			Stringer("kind", head.Type).
			Msg("session.receive non-reply response; returning empty result")
		c.broken = protocol.NewProtocolError(protocol.ErrUnexpectedMessage, "%s for %q left unread", head.Type, method)
		c.state = StateDone
		return nil
	case head.Type == protocol.Exception:
		if err := c.verify(head, method, seq); err != nil {
			return c.fail(err)
		}
		exc := &protocol.ApplicationException{}
		if err := exc.Read(c.proto); err != nil {
			return c.fail(err)
		}
		if err := c.proto.ReadMessageEnd(); err != nil {
			return c.fail(err)
		}
		c.state = StateDone
		c.logger.Debug().Str("method", method).Int32("seq_id", head.SeqID).Err(exc).Msg("session.receive exception")
		return exc
	default:
		return c.fail(protocol.NewProtocolError(protocol.ErrUnexpectedMessage, "%s in reply to %q", head.Type, method))
	}

	if err := c.verify(head, method, seq); err != nil {
		return c.fail(err)
	}

	c.state = StateAwaitingStruct
	if result == nil {
		result = VoidResult
	}
	if err := result.Read(c.proto); err != nil {
		return c.fail(err)
	}
	if err := c.proto.ReadMessageEnd(); err != nil {
		return c.fail(err)
	}
	c.state = StateDone
	c.logger.Debug().Str("method", method).Int32("seq_id", seq).Msg("session.receive reply")
	return nil
}

// verify matches a response envelope against the request it answers.
func (c *Client) verify(head protocol.MessageHeader, method string, seq int32) error {
	if head.Name != method {
		return protocol.NewProtocolError(protocol.ErrMethodMismatch, "sent %q, got %q", method, head.Name)
	}
	if c.cfg.VerifySequence && head.SeqID != seq {
		return protocol.NewProtocolError(protocol.ErrSequenceMismatch, "sent %d, got %d", seq, head.SeqID)
	}
	return nil
}

func (c *Client) fail(err error) error {
	c.broken = err
	return err
}

func (c *Client) nextSeqID() int32 {
	if c.seq >= math.MaxInt32 {
		c.seq = 0
	}
	c.seq++
	c.last = c.seq
	return c.seq
}
