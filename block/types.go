package block

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HeaderHash identifies a block by the blake2b-256 digest of its header.
type HeaderHash [32]byte

// ZeroHash is the parent hash carried by block0.
var ZeroHash HeaderHash

func (h HeaderHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h HeaderHash) IsZero() bool {
	return h == ZeroHash
}

func (h HeaderHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HeaderHash) UnmarshalText(text []byte) error {
	parsed, err := ParseHeaderHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHeaderHash decodes a hex encoded header hash.
func ParseHeaderHash(s string) (HeaderHash, error) {
	var h HeaderHash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid header hash %q: %w", s, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid header hash length: %d", len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// FragmentID uniquely identifies a block content element.
type FragmentID [32]byte

func (id FragmentID) String() string {
	return hex.EncodeToString(id[:])
}

func (id FragmentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *FragmentID) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid fragment id %q: %w", text, err)
	}
	if len(raw) != len(id) {
		return fmt.Errorf("invalid fragment id length: %d", len(raw))
	}
	copy(id[:], raw)
	return nil
}

// ChainLength is the number of ancestors of a block, block0 has length 0.
type ChainLength uint32

func (c ChainLength) Next() ChainLength {
	return c + 1
}

// Epoch is a fixed-size window of slots governed by one leader schedule.
type Epoch uint32

// BlockDate locates a block in time as (epoch, slot within epoch).
type BlockDate struct {
	Epoch Epoch  `json:"epoch"`
	Slot  uint32 `json:"slot"`
}

func (d BlockDate) String() string {
	return fmt.Sprintf("%d.%d", d.Epoch, d.Slot)
}

// Before reports whether d is strictly earlier than other.
func (d BlockDate) Before(other BlockDate) bool {
	if d.Epoch != other.Epoch {
		return d.Epoch < other.Epoch
	}
	return d.Slot < other.Slot
}

// Next returns the following slot, rolling over to a new epoch after
// slotsPerEpoch slots.
func (d BlockDate) Next(slotsPerEpoch uint32) BlockDate {
	if d.Slot+1 >= slotsPerEpoch {
		return BlockDate{Epoch: d.Epoch + 1, Slot: 0}
	}
	return BlockDate{Epoch: d.Epoch, Slot: d.Slot + 1}
}

// AbsoluteSlot flattens the date into a slot counter starting at block0.
func (d BlockDate) AbsoluteSlot(slotsPerEpoch uint32) uint64 {
	return uint64(d.Epoch)*uint64(slotsPerEpoch) + uint64(d.Slot)
}

func digest(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
