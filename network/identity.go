package network

import (
	"crypto/ed25519"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/mvnode/intercom"
)

// NodeIDFromKey derives the libp2p peer id of an ed25519 node key.
func NodeIDFromKey(priv ed25519.PrivateKey) (intercom.NodeID, error) {
	key, err := crypto.UnmarshalEd25519PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("invalid node key: %w", err)
	}
	id, err := peer.IDFromPrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("cannot derive peer id: %w", err)
	}
	return id, nil
}
