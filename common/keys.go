package common

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// EncodeBytesToBase58 encodes bytes directly to base58
func EncodeBytesToBase58(bytes []byte) string {
	return base58.Encode(bytes)
}

// DecodeBase58ToBytes decodes base58 string to bytes
func DecodeBase58ToBytes(base58Str string) ([]byte, error) {
	bytes, err := base58.Decode(base58Str)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 string: %w", err)
	}
	return bytes, nil
}

// AddressFromPublicKey returns the textual account address (and leader id)
// of an ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// PublicKeyFromAddress is the inverse of AddressFromPublicKey.
func PublicKeyFromAddress(addr string) (ed25519.PublicKey, error) {
	raw, err := DecodeBase58ToBytes(addr)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length %d for address %s", len(raw), addr)
	}
	return ed25519.PublicKey(raw), nil
}

// IsValidAddress checks if a string decodes to an ed25519 public key
func IsValidAddress(addr string) bool {
	_, err := PublicKeyFromAddress(addr)
	return err == nil
}
