// Package apikeys resolves stored API key pairs by credential id. Nodes and
// the admin newapikey endpoint reference credentials by id instead of
// carrying the secret themselves.
package apikeys

import (
	"errors"
	"sort"
	"strings"

	"watsoniot-bridge/go-backend/internal/session"
)

var ErrNotFound = errors.New("api key not found")

type Store interface {
	Lookup(id string) (session.APIKey, error)
}

// Static serves keys declared inline in the configuration.
type Static map[string]session.APIKey

func (s Static) Lookup(id string) (session.APIKey, error) {
	key, ok := s[strings.TrimSpace(id)]
	if !ok || key.User == "" {
		return session.APIKey{}, ErrNotFound
	}
	return key, nil
}

func (s Static) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Chain consults stores in order and returns the first hit. Errors other
// than ErrNotFound stop the search.
type Chain []Store

func (c Chain) Lookup(id string) (session.APIKey, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		key, err := s.Lookup(id)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return session.APIKey{}, err
		}
	}
	return session.APIKey{}, ErrNotFound
}
