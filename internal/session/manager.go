// Package session owns the authenticated platform session of one handler
// family: the current credentials and the client handle built from them.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mr-tron/base58/base58"

	"watsoniot-bridge/go-backend/internal/wiotp"
)

// Connection sources, reported to OnConnect.
const (
	SourceEnvironment = "environment"
	SourceAPIKey      = "apikey"
)

type Options struct {
	Family  string
	Factory wiotp.Factory
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// NewID defaults to GenerateClientID.
	NewID  func() string
	Logger *slog.Logger
	// OnConnect is called after every successful replacement.
	OnConnect func(family, source string)
}

// Manager holds one live session at a time. Replacing the session retires
// the previous client handle once the new one has been built; a retired
// handle is closed as soon as no leased call holds it.
type Manager struct {
	family    string
	factory   wiotp.Factory
	getenv    func(string) string
	newID     func() string
	logger    *slog.Logger
	onConnect func(family, source string)

	mu      sync.RWMutex
	creds   *wiotp.Credentials
	current *handle
}

type handle struct {
	client  wiotp.Client
	leases  int
	retired bool
}

func New(opts Options) *Manager {
	m := &Manager{
		family:    opts.Family,
		factory:   opts.Factory,
		getenv:    opts.Getenv,
		newID:     opts.NewID,
		logger:    opts.Logger,
		onConnect: opts.OnConnect,
	}
	if m.getenv == nil {
		m.getenv = os.Getenv
	}
	if m.newID == nil {
		m.newID = GenerateClientID
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Family returns the handler family this session belongs to.
func (m *Manager) Family() string { return m.family }

// ConnectFromEnvironment replaces the session with one built from the
// environment-bound service descriptor. Without a binding it returns
// ErrNoServiceBinding and keeps the current session.
func (m *Manager) ConnectFromEnvironment() error {
	binding, err := LookupServiceBinding(m.getenv)
	if err != nil {
		return err
	}
	return m.replace(wiotp.Credentials{
		Org:       binding.Org,
		ID:        m.newID(),
		AuthKey:   binding.APIKey,
		AuthToken: binding.APIToken,
	}, SourceEnvironment)
}

// ConnectWithAPIKey replaces the session with one built from an API key pair.
func (m *Manager) ConnectWithAPIKey(key APIKey) error {
	org, err := ParseOrg(key.User)
	if err != nil {
		return err
	}
	return m.replace(wiotp.Credentials{
		Org:       org,
		ID:        m.newID(),
		AuthKey:   key.User,
		AuthToken: key.Password,
	}, SourceAPIKey)
}

func (m *Manager) replace(creds wiotp.Credentials, source string) error {
	if m.factory == nil {
		return errors.New("session: no client factory configured")
	}
	client, err := m.factory(creds)
	if err != nil {
		return fmt.Errorf("session %s: build client: %w", m.family, err)
	}

	m.mu.Lock()
	prev := m.current
	m.creds = &creds
	m.current = &handle{client: client}
	closePrev := prev != nil && prev.retire()
	m.mu.Unlock()

	if closePrev {
		if err := prev.client.Close(); err != nil {
			m.logger.Warn("previous client close failed", "component", "session", "family", m.family, "error", err.Error())
		}
	}
	m.logger.Info("session connected",
		"component", "session",
		"family", m.family,
		"source", source,
		"org", creds.Org,
		"auth_key", creds.AuthKey,
	)
	if m.onConnect != nil {
		m.onConnect(m.family, source)
	}
	return nil
}

// OrgID returns the org of the current credentials; ok is false before the
// first connection.
func (m *Manager) OrgID() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return "", false
	}
	return m.creds.Org, true
}

// Acquire leases the current client. The handle stays open until release is
// called, even if the session is replaced meanwhile. release is idempotent.
func (m *Manager) Acquire() (wiotp.Client, func(), error) {
	m.mu.Lock()
	h := m.current
	if h == nil {
		m.mu.Unlock()
		return nil, nil, ErrUninitialized
	}
	h.leases++
	m.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { m.release(h) })
	}
	return h.client, release, nil
}

func (m *Manager) release(h *handle) {
	m.mu.Lock()
	h.leases--
	closeNow := h.retired && h.leases == 0
	m.mu.Unlock()
	if closeNow {
		if err := h.client.Close(); err != nil {
			m.logger.Warn("retired client close failed", "component", "session", "family", m.family, "error", err.Error())
		}
	}
}

// retire marks h as replaced and reports whether it can be closed now.
// Callers hold m.mu.
func (h *handle) retire() bool {
	h.retired = true
	return h.leases == 0
}

// Close retires the current client; it is closed once outstanding leases
// are released. The credentials stay readable.
func (m *Manager) Close() error {
	m.mu.Lock()
	h := m.current
	m.current = nil
	closeNow := h != nil && h.retire()
	m.mu.Unlock()
	if !closeNow {
		return nil
	}
	return h.client.Close()
}

// GenerateClientID returns a fresh application client id: a millisecond
// timestamp plus random bytes, base58 encoded.
func GenerateClientID() string {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[:8], uint64(time.Now().UnixMilli()))
	_, _ = rand.Read(buf[8:])
	return base58.Encode(buf)
}
