package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Render encodes cfg as TOML, e.g. to show the effective configuration.
func Render(cfg Config) ([]byte, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config render failed: %w", err)
	}
	return out, nil
}
