package apikeys

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"watsoniot-bridge/go-backend/internal/securestore"
	"watsoniot-bridge/go-backend/internal/session"
)

const vaultLabel = "wiotp-apikeys"

var (
	ErrInvalidID  = errors.New("api key id must not be empty")
	ErrEmptyToken = errors.New("api token must not be empty")
)

type vaultFile struct {
	Keys      map[string]session.APIKey `json:"keys"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Vault is an encrypted key file. Every mutation rewrites the file.
type Vault struct {
	path       string
	passphrase string
	params     securestore.Params

	mu   sync.RWMutex
	keys map[string]session.APIKey
}

// OpenVault loads the vault at path; a missing file yields an empty vault.
func OpenVault(path, passphrase string, params securestore.Params) (*Vault, error) {
	v := &Vault{
		path:       strings.TrimSpace(path),
		passphrase: passphrase,
		params:     params,
		keys:       make(map[string]session.APIKey),
	}
	var file vaultFile
	err := securestore.ReadJSON(v.path, passphrase, vaultLabel, &file)
	switch {
	case err == nil:
		for id, key := range file.Keys {
			v.keys[id] = key
		}
	case securestore.IsMissing(err):
	default:
		return nil, err
	}
	return v, nil
}

func (v *Vault) Lookup(id string) (session.APIKey, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok := v.keys[strings.TrimSpace(id)]
	if !ok {
		return session.APIKey{}, ErrNotFound
	}
	return key, nil
}

func (v *Vault) Put(id string, key session.APIKey) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}
	if _, err := session.ParseOrg(key.User); err != nil {
		return err
	}
	if strings.TrimSpace(key.Password) == "" {
		return ErrEmptyToken
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	prev, had := v.keys[id]
	v.keys[id] = key
	if err := v.persistLocked(); err != nil {
		if had {
			v.keys[id] = prev
		} else {
			delete(v.keys, id)
		}
		return err
	}
	return nil
}

func (v *Vault) Delete(id string) error {
	id = strings.TrimSpace(id)
	v.mu.Lock()
	defer v.mu.Unlock()
	prev, ok := v.keys[id]
	if !ok {
		return ErrNotFound
	}
	delete(v.keys, id)
	if err := v.persistLocked(); err != nil {
		v.keys[id] = prev
		return err
	}
	return nil
}

// IDs lists stored credential ids, sorted.
func (v *Vault) IDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.keys))
	for id := range v.keys {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (v *Vault) persistLocked() error {
	return securestore.WriteJSON(v.path, v.passphrase, vaultLabel, vaultFile{
		Keys:      v.keys,
		UpdatedAt: time.Now().UTC(),
	}, v.params)
}
