package session

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/danmuck/fibctl/internal/protocol/transport"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// NonReplyPolicy selects how a Call reacts to a response that is not a Reply.
type NonReplyPolicy string

const (
	// NonReplyError surfaces exceptions as *protocol.ApplicationException and
	// any other kind as protocol.ErrUnexpectedMessage.
	NonReplyError NonReplyPolicy = "error"
	// NonReplyEmpty logs the response, leaves the result untouched and
	// reports success. The client is marked broken because the reply body is
	// left unread.
	NonReplyEmpty NonReplyPolicy = "empty"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-connection timeouts and reply handling.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	VerifySequence bool
	NonReplyPolicy NonReplyPolicy
	InitialSeqID   int32
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		VerifySequence: true,
		NonReplyPolicy: NonReplyError,
		InitialSeqID:   1,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if strings.TrimSpace(string(c.NonReplyPolicy)) == "" {
		c.NonReplyPolicy = def.NonReplyPolicy
	}
	if c.InitialSeqID <= 0 {
		c.InitialSeqID = def.InitialSeqID
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	switch NonReplyPolicy(strings.ToLower(strings.TrimSpace(string(c.NonReplyPolicy)))) {
	case NonReplyError, NonReplyEmpty:
	default:
		return fmt.Errorf("%w: non_reply_policy %q", ErrInvalidConfig, c.NonReplyPolicy)
	}
	if c.ConnectTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.InitialSeqID < 0 || c.InitialSeqID == math.MaxInt32 {
		return fmt.Errorf("%w: initial_seq_id %d", ErrInvalidConfig, c.InitialSeqID)
	}
	if c.Backoff.Multiplier < 0 || c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: negative backoff", ErrInvalidConfig)
	}
	return nil
}

func (c Config) Timeouts() transport.Timeouts {
	return transport.Timeouts{
		Connect: c.ConnectTimeout,
		Read:    c.ReadTimeout,
		Write:   c.WriteTimeout,
	}
}
