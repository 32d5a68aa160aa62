package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter file. Kinds: "fibctl" (every key) and "minimal".
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "fibctl":
		return fullTemplate, nil
	case "minimal":
		return minimalTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const fullTemplate = `[agent]
address = "127.0.0.1:5909"
client_id = 1
max_idle = 2
max_dial_attempts = 3

[session]
connect_timeout = "5s"
read_timeout = "15s"
write_timeout = "15s"
verify_sequence = true
# "error" fails calls answered with anything but a reply; "empty" logs and
# returns an empty result.
non_reply_policy = "error"

[protocol]
strict_write = true
strict_read = false
string_limit = 16777216
container_limit = 1048576
# length-prefix each message for agents behind a framed server transport
framed = false
max_frame_size = 16777216

[backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true

[gateway]
listen = ":9300"
name = "fibctl"
cors_origins = ["http://localhost:3000"]
request_timeout = "30s"
`

const minimalTemplate = `[agent]
address = "127.0.0.1:5909"
`
