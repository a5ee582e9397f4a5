package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestMemoryStore(t *testing.T) {
	var s Store = NewMemory()

	if _, err := s.Get(KeyRefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}
	if err := s.Set(KeyRefreshToken, "r1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(KeyRefreshToken)
	if err != nil || got != "r1" {
		t.Fatalf("Get = %q, %v; want r1, nil", got, err)
	}
	if err := s.Delete(KeyRefreshToken); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(KeyRefreshToken); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestKeyringFileBackendRoundTrip(t *testing.T) {
	// Exercise the same config against the file backend only, which works
	// without a desktop session.
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      serviceName,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          t.TempDir(),
		FilePasswordFunc: keyring.FixedStringPrompt("test"),
	})
	if err != nil {
		t.Fatalf("opening file keyring: %v", err)
	}
	if err := ring.Set(keyring.Item{Key: KeyAnonKey, Data: []byte("anon")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	item, err := ring.Get(KeyAnonKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(item.Data) != "anon" {
		t.Errorf("Data = %q, want anon", item.Data)
	}
}
