package wireguard

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeyLen is the length of WireGuard keys in bytes.
const KeyLen = 32

// Keypair holds a Curve25519 keypair for WireGuard.
type Keypair struct {
	PrivateKey []byte // 32 bytes, never logged
	PublicKey  []byte // 32 bytes
}

// GenerateKeypair generates a new Curve25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	privateKey := make([]byte, KeyLen)
	if _, err := rand.Read(privateKey); err != nil {
		return nil, fmt.Errorf("wireguard: generate keypair: %w", err)
	}

	// Clamp the private key per Curve25519.
	privateKey[0] &^= 0x07
	privateKey[31] &^= 0x80
	privateKey[31] |= 0x40

	publicKey, err := PublicKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("wireguard: generate keypair: %w", err)
	}
	return &Keypair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

// PublicKey derives the public key for privateKey.
func PublicKey(privateKey []byte) ([]byte, error) {
	if len(privateKey) != KeyLen {
		return nil, fmt.Errorf("wireguard: private key must be %d bytes, got %d", KeyLen, len(privateKey))
	}
	pub, err := curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("wireguard: derive public key: %w", err)
	}
	return pub, nil
}

// ParseKey decodes a standard base64 WireGuard key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("wireguard: decode key: %w", err)
	}
	if len(key) != KeyLen {
		return nil, fmt.Errorf("wireguard: key must be %d bytes, got %d", KeyLen, len(key))
	}
	return key, nil
}

// EncodeKey returns the standard base64 encoding of key.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
