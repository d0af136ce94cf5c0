package main

import (
	"encoding/binary"
	"fmt"

	simdsha "github.com/minio/sha256-simd"
	"golang.org/x/crypto/curve25519"
)

// accountIDFromSecret derives the numeric account id that owns secret:
// sha256(secret) is the Curve25519 private key, and the id is the first
// eight bytes (little endian) of sha256 of the public key.
func accountIDFromSecret(secret string) (uint64, error) {
	priv := simdsha.Sum256([]byte(secret))
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return 0, fmt.Errorf("derive public key: %w", err)
	}
	h := simdsha.Sum256(pub)
	return binary.LittleEndian.Uint64(h[:8]), nil
}

// resolveAccountID fills cfg.NumericID in solo mode and rejects a configured
// id that does not belong to the secret phrase.
func resolveAccountID(cfg *Config) error {
	if !cfg.soloMining() {
		if cfg.NumericID == 0 {
			return fmt.Errorf("numeric_id is required in pool mode")
		}
		return nil
	}
	id, err := accountIDFromSecret(cfg.SecretPhrase)
	if err != nil {
		return err
	}
	if cfg.NumericID != 0 && cfg.NumericID != id {
		return fmt.Errorf("numeric_id %d does not match the account of secret_phrase (%d)", cfg.NumericID, id)
	}
	cfg.NumericID = id
	return nil
}
