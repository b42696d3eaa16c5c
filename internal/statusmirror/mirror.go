// Package statusmirror copies node status changes into Redis so external
// dashboards can read the latest state or follow changes over pub/sub.
package statusmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"watsoniot-bridge/go-backend/internal/status"
)

const (
	DefaultPrefix  = "wiotp:status:"
	DefaultChannel = "wiotp:status"
	DefaultTTL     = 24 * time.Hour
)

// Commands is the subset of redis.Cmdable the mirror uses.
type Commands interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Options struct {
	Prefix  string
	Channel string
	TTL     time.Duration
	Timeout time.Duration
	Logger  *slog.Logger
}

// Record is what the mirror stores and publishes.
type Record struct {
	NodeID string        `json:"nodeId"`
	Status status.Status `json:"status"`
}

type Mirror struct {
	cmds    Commands
	prefix  string
	channel string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

func New(cmds Commands, opts Options) *Mirror {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Mirror{
		cmds:    cmds,
		prefix:  opts.Prefix,
		channel: opts.Channel,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		logger:  opts.Logger.With("component", "statusmirror"),
	}
}

// Connect parses url, builds a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func (m *Mirror) key(nodeID string) string { return m.prefix + nodeID }

// Publish satisfies status.Publisher. Failures are logged and dropped.
func (m *Mirror) Publish(nodeID string, s status.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.Write(ctx, nodeID, s); err != nil {
		m.logger.Warn("status mirror write failed", "node_id", nodeID, "state", string(s.State), "error", err.Error())
	}
}

// Write stores the status under the node key and announces it.
func (m *Mirror) Write(ctx context.Context, nodeID string, s status.Status) error {
	raw, err := json.Marshal(Record{NodeID: nodeID, Status: s})
	if err != nil {
		return err
	}
	if err := m.cmds.Set(ctx, m.key(nodeID), raw, m.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", m.key(nodeID), err)
	}
	if err := m.cmds.Publish(ctx, m.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", m.channel, err)
	}
	return nil
}
