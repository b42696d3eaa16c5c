// Package nodes hosts the node instances of both handler families. It owns
// one session per family, wires every node's dispatcher to it and keeps the
// shared status board and outbox.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"watsoniot-bridge/go-backend/internal/apikeys"
	"watsoniot-bridge/go-backend/internal/config"
	"watsoniot-bridge/go-backend/internal/dispatch"
	"watsoniot-bridge/go-backend/internal/operations"
	"watsoniot-bridge/go-backend/internal/outbox"
	"watsoniot-bridge/go-backend/internal/session"
	"watsoniot-bridge/go-backend/internal/status"
	"watsoniot-bridge/go-backend/internal/wiotp"
)

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrUnknownFamily = errors.New("unknown family")
)

// Recorder receives host-wide metrics. *metrics.Collector satisfies it.
type Recorder interface {
	dispatch.Observer
	status.Publisher
	SessionConnected(family, source string)
	SessionConnectFailed(family string)
}

type Options struct {
	Factory     wiotp.Factory
	Credentials apikeys.Store
	Getenv      func(string) string
	ClearDelay  time.Duration
	OutboxLimit int
	// Publisher receives every status change in addition to the board.
	Publisher status.Publisher
	Recorder  Recorder
	Logger    *slog.Logger
	AfterFunc status.AfterFunc
}

type Host struct {
	sessions    map[operations.Family]*session.Manager
	credentials apikeys.Store
	board       *status.Board
	outbox      *outbox.Hub
	publisher   status.Publisher
	recorder    Recorder
	clearDelay  time.Duration
	afterFunc   status.AfterFunc
	logger      *slog.Logger

	mu    sync.RWMutex
	nodes map[string]*dispatch.Dispatcher
}

func New(opts Options) *Host {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Credentials == nil {
		opts.Credentials = apikeys.Static{}
	}
	h := &Host{
		sessions:    make(map[operations.Family]*session.Manager, 2),
		credentials: opts.Credentials,
		board:       status.NewBoard(),
		outbox:      outbox.NewHub(opts.OutboxLimit),
		recorder:    opts.Recorder,
		clearDelay:  opts.ClearDelay,
		afterFunc:   opts.AfterFunc,
		logger:      opts.Logger.With("component", "nodes"),
		nodes:       make(map[string]*dispatch.Dispatcher),
	}
	pubs := status.Multi{h.board, opts.Publisher}
	if opts.Recorder != nil {
		pubs = append(pubs, opts.Recorder)
	}
	h.publisher = pubs

	for _, family := range operations.Families() {
		h.sessions[family] = session.New(session.Options{
			Family:    string(family),
			Factory:   opts.Factory,
			Getenv:    opts.Getenv,
			Logger:    opts.Logger,
			OnConnect: h.onConnect,
		})
	}
	return h
}

func (h *Host) onConnect(family, source string) {
	if h.recorder != nil {
		h.recorder.SessionConnected(family, source)
	}
}

// Start connects every family from the environment binding when one is
// present. A missing binding is not an error.
func (h *Host) Start() {
	for _, family := range operations.Families() {
		err := h.sessions[family].ConnectFromEnvironment()
		switch {
		case err == nil:
		case errors.Is(err, session.ErrNoServiceBinding):
			h.logger.Info("no service binding; waiting for api key", "family", string(family))
		default:
			h.connectFailed(family, err)
		}
	}
}

func (h *Host) connectFailed(family operations.Family, err error) {
	if h.recorder != nil {
		h.recorder.SessionConnectFailed(string(family))
	}
	h.logger.Warn("session connect failed", "family", string(family), "error", err.Error())
}

// Session returns the session of a family.
func (h *Host) Session(family operations.Family) (*session.Manager, bool) {
	m, ok := h.sessions[family]
	return m, ok
}

func (h *Host) Outbox() *outbox.Hub { return h.outbox }

// ConnectFromEnvironment reconnects one family from the service binding.
func (h *Host) ConnectFromEnvironment(family operations.Family) error {
	m, ok := h.sessions[family]
	if !ok {
		return ErrUnknownFamily
	}
	if err := m.ConnectFromEnvironment(); err != nil {
		h.connectFailed(family, err)
		return err
	}
	return nil
}

// ConnectWithAPIKey replaces the session of a family with an explicit key.
func (h *Host) ConnectWithAPIKey(family operations.Family, key session.APIKey) error {
	m, ok := h.sessions[family]
	if !ok {
		return ErrUnknownFamily
	}
	if err := m.ConnectWithAPIKey(key); err != nil {
		h.connectFailed(family, err)
		return err
	}
	return nil
}

// ConnectWithCredential resolves a stored credential id and connects with it.
func (h *Host) ConnectWithCredential(family operations.Family, id string) error {
	key, err := h.credentials.Lookup(id)
	if err != nil {
		return fmt.Errorf("credential %q: %w", id, err)
	}
	return h.ConnectWithAPIKey(family, key)
}

// AddNode registers a node and applies its auth setting to the family
// session. The node stays registered even when connecting fails.
func (h *Host) AddNode(cfg dispatch.NodeConfig) error {
	m, ok := h.sessions[cfg.Family]
	if !ok {
		return fmt.Errorf("node %s: %w %q", cfg.ID, ErrUnknownFamily, cfg.Family)
	}
	reporter := status.NewReporter(cfg.ID, status.Options{
		ClearDelay: h.clearDelay,
		Publisher:  h.publisher,
		AfterFunc:  h.afterFunc,
	})
	var observer dispatch.Observer
	if h.recorder != nil {
		observer = h.recorder
	}
	d, err := dispatch.New(dispatch.Options{
		Node:     cfg,
		Sessions: m,
		Status:   reporter,
		Output:   h.outbox,
		Observer: observer,
		Logger:   h.logger,
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	if _, dup := h.nodes[cfg.ID]; dup {
		h.mu.Unlock()
		return fmt.Errorf("node %s: %w", cfg.ID, ErrDuplicateNode)
	}
	h.nodes[cfg.ID] = d
	h.board.Publish(cfg.ID, reporter.Current())
	h.mu.Unlock()

	switch cfg.Auth {
	case config.AuthBluemix:
		if err := h.ConnectFromEnvironment(cfg.Family); err != nil {
			return fmt.Errorf("node %s: %w", cfg.ID, err)
		}
	case config.AuthAPI:
		if err := h.ConnectWithCredential(cfg.Family, cfg.APIKey); err != nil {
			return fmt.Errorf("node %s: %w", cfg.ID, err)
		}
	}
	return nil
}

func (h *Host) node(id string) (*dispatch.Dispatcher, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.nodes[id]
	return d, ok
}

// Nodes lists the configured nodes sorted by id.
func (h *Host) Nodes() []dispatch.NodeConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]dispatch.NodeConfig, 0, len(h.nodes))
	for _, d := range h.nodes {
		out = append(out, d.Node())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deliver hands an inbound message to a node.
func (h *Host) Deliver(ctx context.Context, nodeID string, msg dispatch.Message) (string, error) {
	d, ok := h.node(nodeID)
	if !ok {
		return "", ErrUnknownNode
	}
	return d.Handle(ctx, msg)
}

// Status returns the last status published for a node.
func (h *Host) Status(nodeID string) (status.Status, bool) {
	if _, ok := h.node(nodeID); !ok {
		return status.Status{}, false
	}
	return h.board.Get(nodeID)
}

// Close drains every node and releases both sessions.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	nodes := make([]*dispatch.Dispatcher, 0, len(h.nodes))
	for _, d := range h.nodes {
		nodes = append(nodes, d)
	}
	h.mu.Unlock()

	var errs []error
	for _, d := range nodes {
		if err := d.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", d.Node().ID, err))
		}
	}
	for _, family := range operations.Families() {
		if err := h.sessions[family].Close(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", family, err))
		}
	}
	return errors.Join(errs...)
}
