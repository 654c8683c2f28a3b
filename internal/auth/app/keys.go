package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// LoadSigner builds the token signer for the configured algorithm.
//
// Supported algorithms:
//   - "HS256": shared secret from AUTH_SIGNING_SECRET. Every instance must
//     be given the same secret.
//   - "EdDSA": Ed25519 private key in PEM form at AUTH_SIGNING_KEY_FILE.
//     The key is generated on first start; instances must share the file.
//
// Only one key is active. Rotating it invalidates every outstanding token.
func LoadSigner(cfg Config, logger *slog.Logger) (jwtx.Signer, error) {
	switch cfg.Algorithm {
	case jwtx.AlgorithmHS256:
		s, err := jwtx.NewSignerHS256([]byte(cfg.SigningSecret))
		if err != nil {
			return nil, fmt.Errorf("failed to load HS256 secret: %w", err)
		}
		logger.Info("signing key loaded", "algorithm", s.Alg(), "kid", s.KID())
		return s, nil

	case jwtx.AlgorithmEdDSA:
		pemKey, created, err := loadOrCreateKeyFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load EdDSA key: %w", err)
		}
		s, err := jwtx.NewSignerEdDSA(pemKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EdDSA key %s: %w", cfg.SigningKeyFile, err)
		}
		if created {
			logger.Warn("generated new signing key", "path", cfg.SigningKeyFile, "kid", s.KID())
		}
		logger.Info("signing key loaded", "algorithm", s.Alg(), "kid", s.KID())
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
}

func loadOrCreateKeyFile(path string) ([]byte, bool, error) {
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	if err == nil {
		return data, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	pemKey, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(path, pemKey, 0o600); err != nil {
		return nil, false, err
	}
	return pemKey, true, nil
}
