package telemetry

import (
	"fmt"

	"github.com/nats-io/nats.go"

	cfgpkg "github.com/taoyao-code/gt06-gateway/internal/config"
)

// Dial connects to the telemetry bus per cfg. It returns (nil, nil)
// when the bus is disabled, so callers can pass the result straight
// into New — a nil Publisher degrades every Emit call to a no-op.
func Dial(cfg cfgpkg.NATSConfig) (*nats.Conn, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.URL, nats.Timeout(cfg.ConnectTimeout), nats.Name("gt06-gateway"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// TopicsFromConfig builds a Topics set from configuration, falling
// back to DefaultTopics for any unset field.
func TopicsFromConfig(cfg cfgpkg.NATSConfig) Topics {
	t := DefaultTopics()
	if cfg.SessionsTopic != "" {
		t.Sessions = cfg.SessionsTopic
	}
	if cfg.LocationTopic != "" {
		t.Location = cfg.LocationTopic
	}
	if cfg.StatusTopic != "" {
		t.Status = cfg.StatusTopic
	}
	return t
}
