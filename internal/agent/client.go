package agent

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/fibctl/internal/observability"
	"github.com/danmuck/fibctl/internal/protocol"
	"github.com/danmuck/fibctl/internal/protocol/binary"
	"github.com/danmuck/fibctl/internal/protocol/session"
	"github.com/danmuck/fibctl/internal/protocol/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("agent: address required")
	ErrClosed          = errors.New("agent: client closed")
)

type Config struct {
	Address         string
	ClientID        int16
	MaxIdle         int
	MaxDialAttempts int
	// Framed selects the length-prefixed frame transport.
	Framed       bool
	MaxFrameSize int
	Session      session.Config
	Protocol     binary.Options
}

func DefaultConfig() Config {
	return Config{
		Address:         "127.0.0.1:5909",
		ClientID:        DefaultClientID,
		MaxIdle:         2,
		MaxDialAttempts: 3,
		MaxFrameSize:    transport.DefaultMaxFrameSize,
		Session:         session.DefaultConfig(),
		Protocol:        binary.DefaultOptions(),
	}
}

// DialFunc opens one transport to addr.
type DialFunc func(ctx context.Context, addr string, timeouts transport.Timeouts) (*transport.Conn, error)

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithDialFunc(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// Client issues agent RPCs over a bounded pool of idle connections. It is
// safe for concurrent use; each call holds its connection exclusively.
type Client struct {
	cfg    Config
	logger zerolog.Logger
	dial   DialFunc

	mu     sync.Mutex
	idle   []*conn
	closed bool
	rng    *rand.Rand
}

type conn struct {
	tc   *transport.Conn
	sess *session.Client
}

func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, ErrAddressRequired
	}
	if cfg.ClientID == 0 {
		cfg.ClientID = DefaultClientID
	}
	if cfg.MaxIdle < 0 {
		cfg.MaxIdle = 0
	}
	if cfg.Protocol == (binary.Options{}) {
		cfg.Protocol = binary.DefaultOptions()
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:    cfg,
		logger: log.Logger,
		dial:   transport.Dial,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("addr", cfg.Address).Logger()
	return c, nil
}

func (c *Client) Address() string { return c.cfg.Address }

// Call invokes method with empty arguments and returns the whole reply struct.
func (c *Client) Call(ctx context.Context, method string) (protocol.Value, error) {
	var out protocol.Value
	maxDepth := c.cfg.Protocol.MaxDepth
	if maxDepth <= 0 {
		maxDepth = protocol.DefaultMaxDepth
	}
	result := protocol.StructReaderFunc(func(p protocol.Protocol) error {
		v, err := protocol.ReadValue(p, protocol.Struct, maxDepth)
		out = v
		return err
	})
	if err := c.do(ctx, method, nil, result); err != nil {
		return protocol.Value{}, err
	}
	return out, nil
}

// Close closes every idle connection. Calls in flight close their own
// connection when they finish.
func (c *Client) Close() error {
	c.mu.Lock()
	idle := c.idle
	c.idle = nil
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, cn := range idle {
		if err := cn.tc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Idle reports the number of pooled connections.
func (c *Client) Idle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle)
}

func (c *Client) do(ctx context.Context, method string, args protocol.StructWriter, result protocol.StructReader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	err := c.exchange(ctx, method, args, result)
	elapsed := time.Since(start)
	outcome := outcomeOf(err)
	observability.RecordRPC(method, outcome, elapsed)

	event := c.logger.Debug()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.Str("method", method).Str("outcome", outcome).Dur("duration", elapsed).Msg("agent.call")
	return err
}

func (c *Client) exchange(ctx context.Context, method string, args protocol.StructWriter, result protocol.StructReader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cn, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	cn.tc.Bind(ctx)
	err = cn.sess.Call(method, args, result)
	cn.tc.Bind(context.Background())
	if err != nil {
		_ = cn.tc.Close()
		return err
	}
	c.release(cn)
	return nil
}

func (c *Client) acquire(ctx context.Context) (*conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(c.idle); n > 0 {
		cn := c.idle[n-1]
		c.idle = c.idle[:n-1]
		c.mu.Unlock()
		return cn, nil
	}
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Client) release(cn *conn) {
	c.mu.Lock()
	if c.closed || cn.sess.Broken() || len(c.idle) >= c.cfg.MaxIdle {
		c.mu.Unlock()
		_ = cn.tc.Close()
		return
	}
	c.idle = append(c.idle, cn)
	c.mu.Unlock()
}

// connect dials with exponential backoff until MaxDialAttempts is reached.
// Zero attempts retries until ctx ends.
func (c *Client) connect(ctx context.Context) (*conn, error) {
	timeouts := c.cfg.Session.Timeouts()
	var attempt int
	for {
		attempt++
		tc, err := c.dial(ctx, c.cfg.Address, timeouts)
		observability.RecordDial(err == nil)
		if err == nil {
			var t protocol.Transport = tc
			if c.cfg.Framed {
				t = transport.NewFramed(tc, c.cfg.MaxFrameSize)
			}
			proto := binary.New(t, binary.WithOptions(c.cfg.Protocol))
			sess := session.NewClient(proto, c.cfg.Session, session.WithLogger(c.logger))
			return &conn{tc: tc, sess: sess}, nil
		}
		c.logger.Warn().Int("attempt", attempt).Err(err).Msg("agent.dial")
		if !c.shouldRetry(attempt) {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxDialAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxDialAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	c.mu.Lock()
	delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
	c.mu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case IsRemote(err):
		return observability.OutcomeRemote
	case protocol.IsProtocol(err):
		return observability.OutcomeProtocol
	case protocol.IsTransport(err):
		return observability.OutcomeTransport
	default:
		return observability.OutcomeError
	}
}
