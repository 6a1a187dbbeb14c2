package block

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	"github.com/mezonai/mvnode/common"
)

const HeaderVersion uint16 = 1

var ErrInvalidHeaderSignature = errors.New("invalid header signature")

// Header is the compact part of a block exchanged before the full block.
type Header struct {
	Version     uint16      `json:"version"`
	ParentHash  HeaderHash  `json:"parent_hash"`
	ChainLength ChainLength `json:"chain_length"`
	Date        BlockDate   `json:"date"`
	ContentHash [32]byte    `json:"content_hash"`
	Leader      string      `json:"leader"`    // base58 public key of the producing leader
	Signature   []byte      `json:"signature"` // leader signature over Hash()
}

func (h *Header) signingBytes() []byte {
	buf := make([]byte, 0, 2+32+4+8+32+len(h.Leader))
	buf = binary.BigEndian.AppendUint16(buf, h.Version)
	buf = append(buf, h.ParentHash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.ChainLength))
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.Date.Epoch))
	buf = binary.BigEndian.AppendUint32(buf, h.Date.Slot)
	buf = append(buf, h.ContentHash[:]...)
	buf = append(buf, h.Leader...)
	return buf
}

// Hash of the header, the signature excluded.
func (h *Header) Hash() HeaderHash {
	return HeaderHash(digest(h.signingBytes()))
}

func (h *Header) Sign(priv ed25519.PrivateKey) {
	hash := h.Hash()
	h.Signature = ed25519.Sign(priv, hash[:])
}

func (h *Header) VerifySignature() error {
	pub, err := common.PublicKeyFromAddress(h.Leader)
	if err != nil {
		return err
	}
	hash := h.Hash()
	if !ed25519.Verify(pub, hash[:], h.Signature) {
		return ErrInvalidHeaderSignature
	}
	return nil
}

type Block struct {
	Header   Header      `json:"header"`
	Contents []*Fragment `json:"contents"`
}

// Hash returns the header hash of the block.
func (b *Block) Hash() HeaderHash {
	return b.Header.Hash()
}

func (b *Block) ParentHash() HeaderHash {
	return b.Header.ParentHash
}

func (b *Block) ChainLength() ChainLength {
	return b.Header.ChainLength
}

// ComputeContentHash digests the fragment ids in order.
func ComputeContentHash(contents []*Fragment) [32]byte {
	parts := make([][]byte, 0, len(contents))
	for _, f := range contents {
		id := f.ID()
		parts = append(parts, id[:])
	}
	return digest(parts...)
}

// ContentMatchesHeader reports whether the contents are the ones committed
// to by the header.
func (b *Block) ContentMatchesHeader() bool {
	return ComputeContentHash(b.Contents) == b.Header.ContentHash
}

// AssembleBlock builds an unsigned block extending parent.
func AssembleBlock(parent *Header, date BlockDate, leaderID string, contents []*Fragment) *Block {
	return &Block{
		Header: Header{
			Version:     HeaderVersion,
			ParentHash:  parent.Hash(),
			ChainLength: parent.ChainLength.Next(),
			Date:        date,
			ContentHash: ComputeContentHash(contents),
			Leader:      leaderID,
		},
		Contents: contents,
	}
}

// Genesis builds block0: chain length 0 and a zero parent hash.
func Genesis(date BlockDate, contents []*Fragment) *Block {
	return &Block{
		Header: Header{
			Version:     HeaderVersion,
			ChainLength: 0,
			Date:        date,
			ContentHash: ComputeContentHash(contents),
		},
		Contents: contents,
	}
}

func (b *Block) Sign(privKey ed25519.PrivateKey) {
	b.Header.Sign(privKey)
}
