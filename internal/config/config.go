package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the fibctl file layout. Durations are Go duration strings.
type Config struct {
	Agent    AgentConfig    `toml:"agent"`
	Session  SessionConfig  `toml:"session"`
	Protocol ProtocolConfig `toml:"protocol"`
	Backoff  BackoffConfig  `toml:"backoff"`
	Gateway  GatewayConfig  `toml:"gateway"`
}

type AgentConfig struct {
	Address         string `toml:"address"`
	ClientID        int16  `toml:"client_id"`
	MaxIdle         int    `toml:"max_idle"`
	MaxDialAttempts int    `toml:"max_dial_attempts"`
}

type SessionConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	VerifySequence bool   `toml:"verify_sequence"`
	NonReplyPolicy string `toml:"non_reply_policy"`
}

type ProtocolConfig struct {
	StrictWrite    bool `toml:"strict_write"`
	StrictRead     bool `toml:"strict_read"`
	StringLimit    int  `toml:"string_limit"`
	ContainerLimit int  `toml:"container_limit"`
	Framed         bool `toml:"framed"`
	MaxFrameSize   int  `toml:"max_frame_size"`
}

type BackoffConfig struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type GatewayConfig struct {
	Listen         string   `toml:"listen"`
	Name           string   `toml:"name"`
	CorsOrigins    []string `toml:"cors_origins"`
	RequestTimeout string   `toml:"request_timeout"`
}

func Default() Config {
	return Config{
		Agent: AgentConfig{
			Address:         "127.0.0.1:5909",
			ClientID:        1,
			MaxIdle:         2,
			MaxDialAttempts: 3,
		},
		Session: SessionConfig{
			ConnectTimeout: "5s",
			ReadTimeout:    "15s",
			WriteTimeout:   "15s",
			VerifySequence: true,
			NonReplyPolicy: "error",
		},
		Protocol: ProtocolConfig{
			StrictWrite:    true,
			StrictRead:     false,
			StringLimit:    16 * 1024 * 1024,
			ContainerLimit: 1 << 20,
			Framed:         false,
			MaxFrameSize:   16 * 1024 * 1024,
		},
		Backoff: BackoffConfig{
			InitialDelay: "250ms",
			Multiplier:   2.0,
			MaxDelay:     "5s",
			Jitter:       true,
		},
		Gateway: GatewayConfig{
			Listen:         ":9300",
			Name:           "fibctl",
			CorsOrigins:    []string{"http://localhost:3000"},
			RequestTimeout: "30s",
		},
	}
}

// Load decodes path over Default, so keys absent from the file keep their
// default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("agent", "client_id") && cfg.Agent.ClientID <= 0 {
		return Config{}, fmt.Errorf("%w: agent.client_id must be positive", ErrInvalid)
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Agent.Address = strings.TrimSpace(c.Agent.Address)
	c.Session.NonReplyPolicy = strings.ToLower(strings.TrimSpace(c.Session.NonReplyPolicy))
	c.Gateway.Listen = strings.TrimSpace(c.Gateway.Listen)
	c.Gateway.Name = strings.TrimSpace(c.Gateway.Name)
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Agent.Address) == "" {
		return fmt.Errorf("%w: agent.address is required", ErrInvalid)
	}
	if cfg.Agent.ClientID <= 0 {
		return fmt.Errorf("%w: agent.client_id must be positive", ErrInvalid)
	}
	if cfg.Agent.MaxIdle < 0 {
		return fmt.Errorf("%w: agent.max_idle must not be negative", ErrInvalid)
	}
	if cfg.Agent.MaxDialAttempts < 0 {
		return fmt.Errorf("%w: agent.max_dial_attempts must not be negative", ErrInvalid)
	}
	durations := map[string]string{
		"session.connect_timeout": cfg.Session.ConnectTimeout,
		"session.read_timeout":    cfg.Session.ReadTimeout,
		"session.write_timeout":   cfg.Session.WriteTimeout,
		"backoff.initial_delay":   cfg.Backoff.InitialDelay,
		"backoff.max_delay":       cfg.Backoff.MaxDelay,
		"gateway.request_timeout": cfg.Gateway.RequestTimeout,
	}
	for key, raw := range durations {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Session.NonReplyPolicy)) {
	case "error", "empty":
	default:
		return fmt.Errorf("%w: session.non_reply_policy %q (want error|empty)", ErrInvalid, cfg.Session.NonReplyPolicy)
	}
	if cfg.Protocol.StringLimit < 0 || cfg.Protocol.ContainerLimit < 0 || cfg.Protocol.MaxFrameSize < 0 {
		return fmt.Errorf("%w: protocol limits must not be negative", ErrInvalid)
	}
	if cfg.Backoff.Multiplier != 0 && cfg.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: backoff.multiplier must be >= 1", ErrInvalid)
	}
	if strings.TrimSpace(cfg.Gateway.Listen) == "" {
		return fmt.Errorf("%w: gateway.listen is required", ErrInvalid)
	}
	return nil
}

// parseDuration treats an empty string as zero, which selects the default.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}
