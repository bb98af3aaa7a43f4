package store

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

func newKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}
	return key
}

func TestLoadHostKeys_MissingFile(t *testing.T) {
	t.Parallel()

	hk, err := LoadHostKeys(filepath.Join(t.TempDir(), "known_hosts.yaml"))
	if err != nil {
		t.Fatalf("LoadHostKeys: %v", err)
	}
	if len(hk.Hosts) != 0 {
		t.Fatalf("hosts=%d", len(hk.Hosts))
	}
}

func TestCallback_PinsOnFirstUseAndPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "known_hosts.yaml")
	hk, err := LoadHostKeys(path)
	if err != nil {
		t.Fatalf("LoadHostKeys: %v", err)
	}
	key := newKey(t)
	if err := hk.Callback()("192.168.8.1:22", nil, key); err != nil {
		t.Fatalf("first use: %v", err)
	}

	reloaded, err := LoadHostKeys(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	e, ok := reloaded.Lookup("192.168.8.1:22")
	if !ok {
		t.Fatal("expected pinned host")
	}
	if e.Fingerprint != ssh.FingerprintSHA256(key) {
		t.Fatalf("fingerprint=%q", e.Fingerprint)
	}
	if err := reloaded.Callback()("192.168.8.1:22", nil, key); err != nil {
		t.Fatalf("same key: %v", err)
	}
}

func TestCallback_RejectsChangedKey(t *testing.T) {
	t.Parallel()

	hk, err := LoadHostKeys(filepath.Join(t.TempDir(), "known_hosts.yaml"))
	if err != nil {
		t.Fatalf("LoadHostKeys: %v", err)
	}
	cb := hk.Callback()
	if err := cb("192.168.8.1:22", nil, newKey(t)); err != nil {
		t.Fatalf("first use: %v", err)
	}
	err = cb("192.168.8.1:22", nil, newKey(t))
	if !errors.Is(err, ErrHostKeyMismatch) {
		t.Fatalf("err=%v", err)
	}
}
