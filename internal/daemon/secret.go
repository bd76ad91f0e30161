package daemon

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LedgerSecret returns the HMAC key for balance record digests. Precedence:
// the [ledger] secret config key, then <home>/ledger.key, else a fresh key
// is generated and persisted so digests survive restarts.
func (c *Config) LedgerSecret() ([]byte, error) {
	if c.Ledger.Secret != "" {
		return []byte(c.Ledger.Secret), nil
	}

	path := filepath.Join(HomeDir(), "ledger.key")
	if data, err := os.ReadFile(path); err == nil {
		key := strings.TrimSpace(string(data))
		if key != "" {
			return []byte(key), nil
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate ledger key: %w", err)
	}
	key := hex.EncodeToString(raw)

	if err := os.MkdirAll(HomeDir(), 0700); err != nil {
		return nil, fmt.Errorf("create home directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("persist ledger key: %w", err)
	}
	return []byte(key), nil
}
