package config

import (
	"time"

	"github.com/danmuck/fibctl/internal/agent"
	"github.com/danmuck/fibctl/internal/protocol/binary"
	"github.com/danmuck/fibctl/internal/protocol/session"
)

// AgentClient converts the file layout into agent client settings. cfg must
// have passed Validate.
func (c Config) AgentClient() (agent.Config, error) {
	out := agent.DefaultConfig()
	out.Address = c.Agent.Address
	out.ClientID = c.Agent.ClientID
	out.MaxIdle = c.Agent.MaxIdle
	out.MaxDialAttempts = c.Agent.MaxDialAttempts
	out.Framed = c.Protocol.Framed
	if c.Protocol.MaxFrameSize > 0 {
		out.MaxFrameSize = c.Protocol.MaxFrameSize
	}

	sess, err := c.SessionClient()
	if err != nil {
		return agent.Config{}, err
	}
	out.Session = sess

	out.Protocol = binary.DefaultOptions()
	out.Protocol.StrictWrite = c.Protocol.StrictWrite
	out.Protocol.StrictRead = c.Protocol.StrictRead
	out.Protocol.StringLimit = c.Protocol.StringLimit
	out.Protocol.ContainerLimit = c.Protocol.ContainerLimit
	return out, nil
}

func (c Config) SessionClient() (session.Config, error) {
	out := session.DefaultConfig()
	var err error
	if out.ConnectTimeout, err = orDefault(c.Session.ConnectTimeout, out.ConnectTimeout); err != nil {
		return session.Config{}, err
	}
	if out.ReadTimeout, err = orDefault(c.Session.ReadTimeout, out.ReadTimeout); err != nil {
		return session.Config{}, err
	}
	if out.WriteTimeout, err = orDefault(c.Session.WriteTimeout, out.WriteTimeout); err != nil {
		return session.Config{}, err
	}
	out.VerifySequence = c.Session.VerifySequence
	if c.Session.NonReplyPolicy != "" {
		out.NonReplyPolicy = session.NonReplyPolicy(c.Session.NonReplyPolicy)
	}

	if out.Backoff.InitialDelay, err = orDefault(c.Backoff.InitialDelay, out.Backoff.InitialDelay); err != nil {
		return session.Config{}, err
	}
	if out.Backoff.MaxDelay, err = orDefault(c.Backoff.MaxDelay, out.Backoff.MaxDelay); err != nil {
		return session.Config{}, err
	}
	if c.Backoff.Multiplier != 0 {
		out.Backoff.Multiplier = c.Backoff.Multiplier
	}
	out.Backoff.Jitter = c.Backoff.Jitter
	return out, out.Validate()
}

func orDefault(raw string, def time.Duration) (time.Duration, error) {
	d, err := parseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// GatewayTimeout is the per-request agent call bound; zero disables it.
func (c Config) GatewayTimeout() (time.Duration, error) {
	return parseDuration(c.Gateway.RequestTimeout)
}
