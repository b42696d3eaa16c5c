package config

import (
	"fmt"
	"log/slog"
	"strings"

	"watsoniot-bridge/go-backend/internal/operations"
)

const (
	AuthBluemix = "bluemix"
	AuthAPI     = "api"
)

// FieldError names the offending config path.
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

// Validate checks the config and normalizes node families in place.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return &FieldError{Path: "server.addr", Reason: "must not be empty"}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return &FieldError{Path: "log.level", Reason: err.Error()}
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return &FieldError{Path: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	if c.Transport != TransportSimulator {
		return &FieldError{Path: "transport", Reason: fmt.Sprintf("unsupported transport %q", c.Transport)}
	}
	if c.Status.ClearDelay < 0 {
		return &FieldError{Path: "status.clear_delay", Reason: "must not be negative"}
	}

	seen := make(map[string]struct{}, len(c.Nodes))
	for i := range c.Nodes {
		n := &c.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)
		n.ID = strings.TrimSpace(n.ID)
		if n.ID == "" {
			return &FieldError{Path: path + ".id", Reason: "must not be empty"}
		}
		if _, dup := seen[n.ID]; dup {
			return &FieldError{Path: path + ".id", Reason: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		seen[n.ID] = struct{}{}

		family, ok := operations.ParseFamily(string(n.Family))
		if !ok {
			return &FieldError{Path: path + ".family", Reason: fmt.Sprintf("unknown family %q", n.Family)}
		}
		n.Family = family

		switch n.Auth {
		case "", AuthBluemix:
		case AuthAPI:
			if strings.TrimSpace(n.APIKey) == "" {
				return &FieldError{Path: path + ".apiKey", Reason: "required when auth is api"}
			}
		default:
			return &FieldError{Path: path + ".auth", Reason: fmt.Sprintf("unknown auth %q", n.Auth)}
		}
	}
	return nil
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
