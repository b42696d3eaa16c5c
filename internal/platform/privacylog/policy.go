// Package privacylog wraps an slog.Handler so credentials never reach the
// log sink. Secret-bearing keys are redacted; identifiers that are useful
// for correlation but should not appear in plain text are replaced with a
// per-boot salted fingerprint.
package privacylog

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

var bootNonce = randomNonce()

// Policy decides what happens to an attribute by its lowercased key.
// Fingerprint entries are exact key matches and win over Redact, whose
// entries match any key containing them.
type Policy struct {
	Redact      []string
	Fingerprint []string
}

// DefaultPolicy covers the credential fields of the platform client.
var DefaultPolicy = Policy{
	Redact:      []string{"token", "secret", "password", "passphrase", "authorization"},
	Fingerprint: []string{"auth_key", "api_key", "apikey", "device_id", "user"},
}

type action int

const (
	keep action = iota
	redact
	fingerprint
)

func (p Policy) classify(key string) action {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, k := range p.Fingerprint {
		if key == k {
			return fingerprint
		}
	}
	for _, part := range p.Redact {
		if strings.Contains(key, part) {
			return redact
		}
	}
	return keep
}

// Attr applies the policy to one attribute, descending into groups.
func (p Policy) Attr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	switch p.classify(key) {
	case redact:
		return slog.String(key, redactedValue)
	case fingerprint:
		return slog.String(fingerprintKeyName(key), FingerprintID(valueString(attr.Value.Resolve())))
	}
	if attr.Value.Kind() == slog.KindGroup {
		group := attr.Value.Group()
		out := make([]any, 0, len(group))
		for _, a := range group {
			out = append(out, p.Attr(a))
		}
		return slog.Group(key, out...)
	}
	return attr
}

// FingerprintID hashes value with the boot nonce. Stable within one process.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func fingerprintKeyName(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format("2006-01-02T15:04:05.000000000Z")
	default:
		return v.String()
	}
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
