package store

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"
)

// ErrHostKeyMismatch is returned when a router presents a key different from
// the one pinned on first connect.
var ErrHostKeyMismatch = errors.New("router host key changed")

// HostKeys persists router SSH host keys, trusted on first use.
type HostKeys struct {
	mu   sync.Mutex
	path string

	UpdatedAt time.Time     `yaml:"updated_at"`
	Hosts     []HostKeyInfo `yaml:"hosts"`
}

// HostKeyInfo is one pinned key.
type HostKeyInfo struct {
	Addr        string    `yaml:"addr"`
	Type        string    `yaml:"type"`
	Fingerprint string    `yaml:"fingerprint"`
	Key         string    `yaml:"key"`
	FirstSeenAt time.Time `yaml:"first_seen_at"`
}

// LoadHostKeys loads the file at path. A missing file yields an empty set.
func LoadHostKeys(path string) (*HostKeys, error) {
	hk := &HostKeys{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return hk, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, hk); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return hk, nil
}

// Save writes the set back to its file.
func (h *HostKeys) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saveLocked()
}

func (h *HostKeys) saveLocked() error {
	h.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(h)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(h.path, data, 0o600)
}

// Lookup returns the pinned entry for addr.
func (h *HostKeys) Lookup(addr string) (HostKeyInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.Hosts {
		if e.Addr == addr {
			return e, true
		}
	}
	return HostKeyInfo{}, false
}

// Callback verifies presented keys against the pinned set, pinning and
// persisting unknown hosts.
func (h *HostKeys) Callback() ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fp := ssh.FingerprintSHA256(key)

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, e := range h.Hosts {
			if e.Addr != hostname {
				continue
			}
			if e.Fingerprint != fp {
				return fmt.Errorf("%w: %s presented %s, pinned %s", ErrHostKeyMismatch, hostname, fp, e.Fingerprint)
			}
			return nil
		}

		h.Hosts = append(h.Hosts, HostKeyInfo{
			Addr:        hostname,
			Type:        key.Type(),
			Fingerprint: fp,
			Key:         string(ssh.MarshalAuthorizedKey(key)),
			FirstSeenAt: time.Now().UTC(),
		})
		return h.saveLocked()
	}
}
