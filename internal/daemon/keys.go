package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/plexsphere/plexvpn/internal/fsutil"
	"github.com/plexsphere/plexvpn/internal/wireguard"
)

const privateKeyFile = "private.key"

// LoadPrivateKey returns the client private key. It is taken from the
// config, then from PrivateKeyFile, then from the data directory, where
// a new key is generated on first use.
func LoadPrivateKey(cfg PeerConfig, dataDir string, logger *slog.Logger) ([]byte, error) {
	if cfg.PrivateKey != "" {
		return wireguard.ParseKey(cfg.PrivateKey)
	}
	if cfg.PrivateKeyFile != "" {
		return readKeyFile(cfg.PrivateKeyFile)
	}

	path := filepath.Join(dataDir, privateKeyFile)
	key, err := readKeyFile(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	kp, err := wireguard.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("daemon: generate private key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("daemon: create data dir: %w", err)
	}
	encoded := wireguard.EncodeKey(kp.PrivateKey) + "\n"
	if err := fsutil.WriteFileAtomic(dataDir, privateKeyFile, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("daemon: store private key: %w", err)
	}
	logger.Info("generated new private key",
		"path", path,
		"public_key", wireguard.EncodeKey(kp.PublicKey),
	)
	return kp.PrivateKey, nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("daemon: read private key: %w", err)
	}
	key, err := wireguard.ParseKey(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("daemon: private key %s: %w", path, err)
	}
	return key, nil
}
