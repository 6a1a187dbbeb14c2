package block

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"
	"github.com/mezonai/mvnode/common"
)

var ErrInvalidFragmentSignature = errors.New("invalid fragment signature")

// Fragment is a value transfer carried in block contents.
type Fragment struct {
	Sender    string       `json:"sender"`
	Recipient string       `json:"recipient"`
	Amount    *uint256.Int `json:"amount"`
	Nonce     uint64       `json:"nonce"`
	Signature []byte       `json:"signature"`
}

func NewFragment(sender, recipient string, amount *uint256.Int, nonce uint64) *Fragment {
	return &Fragment{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Nonce:     nonce,
	}
}

func (f *Fragment) signingBytes() []byte {
	buf := make([]byte, 0, len(f.Sender)+len(f.Recipient)+32+8)
	buf = append(buf, f.Sender...)
	buf = append(buf, f.Recipient...)
	var amount [32]byte
	if f.Amount != nil {
		amount = f.Amount.Bytes32()
	}
	buf = append(buf, amount[:]...)
	buf = binary.BigEndian.AppendUint64(buf, f.Nonce)
	return buf
}

// ID is the fragment identifier (transaction id). The signature is part of
// the identity so two differently signed copies never collide.
func (f *Fragment) ID() FragmentID {
	return FragmentID(digest(f.signingBytes(), f.Signature))
}

func (f *Fragment) Sign(priv ed25519.PrivateKey) {
	f.Signature = ed25519.Sign(priv, f.signingBytes())
}

// Verify checks the signature against the sender address.
func (f *Fragment) Verify() error {
	pub, err := common.PublicKeyFromAddress(f.Sender)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, f.signingBytes(), f.Signature) {
		return ErrInvalidFragmentSignature
	}
	return nil
}
