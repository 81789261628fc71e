package copilot

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()
	logger := testLogger()

	if err := MigrateKeyToKeyring("sk-stored-key", logger); err != nil {
		t.Fatalf("storing key: %v", err)
	}
	if got := GetKeyring(keyringAPIKey); got != "sk-stored-key" {
		t.Errorf("expected the stored key back, got %q", got)
	}

	// The keyring value wins over whatever the config carries.
	cfg := DefaultConfig()
	cfg.API.APIKey = "sk-from-config"
	ResolveAPIKey(cfg, logger)
	if cfg.API.APIKey != "sk-stored-key" {
		t.Errorf("expected the keyring to take precedence, got %q", cfg.API.APIKey)
	}

	if err := ClearAPIKey(logger); err != nil {
		t.Fatalf("clearing key: %v", err)
	}
	if got := GetKeyring(keyringAPIKey); got != "" {
		t.Errorf("expected the key gone after clearing, got %q", got)
	}

	// With the keyring empty the config value stands.
	cfg.API.APIKey = "sk-from-config"
	ResolveAPIKey(cfg, logger)
	if cfg.API.APIKey != "sk-from-config" {
		t.Errorf("expected the config value kept, got %q", cfg.API.APIKey)
	}
}

func TestClearAPIKeyMissing(t *testing.T) {
	keyring.MockInit()

	if err := ClearAPIKey(testLogger()); err == nil {
		t.Fatal("expected an error when no key is stored")
	}
}
