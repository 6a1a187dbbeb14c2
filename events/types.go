package events

import (
	"time"

	"github.com/mezonai/mvnode/block"
)

// EventType is an enum-like string type for blockchain events
type EventType string

const (
	EventTipUpdated       EventType = "TipUpdated"
	EventBlockApplied     EventType = "BlockApplied"
	EventBlockRejected    EventType = "BlockRejected"
	EventFragmentIncluded EventType = "FragmentIncluded"
)

// Source tells where a block came from.
type Source string

const (
	SourceLeadership Source = "leadership"
	SourceNetwork    Source = "network"
)

// BlockchainEvent represents any event that occurs in the blockchain
type BlockchainEvent interface {
	Type() EventType
	Timestamp() time.Time
	BlockHash() block.HeaderHash
}

type base struct {
	hash      block.HeaderHash
	timestamp time.Time
}

func (b base) Timestamp() time.Time {
	return b.timestamp
}

func (b base) BlockHash() block.HeaderHash {
	return b.hash
}

// TipUpdated event when the main branch moves to a new tip
type TipUpdated struct {
	base
	chainLength block.ChainLength
	previous    block.HeaderHash
}

func NewTipUpdated(hash block.HeaderHash, length block.ChainLength, previous block.HeaderHash) *TipUpdated {
	return &TipUpdated{
		base:        base{hash: hash, timestamp: time.Now()},
		chainLength: length,
		previous:    previous,
	}
}

func (e *TipUpdated) Type() EventType {
	return EventTipUpdated
}

func (e *TipUpdated) ChainLength() block.ChainLength {
	return e.chainLength
}

func (e *TipUpdated) Previous() block.HeaderHash {
	return e.previous
}

// BlockApplied event when a block was validated and stored
type BlockApplied struct {
	base
	chainLength block.ChainLength
	source      Source
	fragments   int
}

func NewBlockApplied(hash block.HeaderHash, length block.ChainLength, source Source, fragments int) *BlockApplied {
	return &BlockApplied{
		base:        base{hash: hash, timestamp: time.Now()},
		chainLength: length,
		source:      source,
		fragments:   fragments,
	}
}

func (e *BlockApplied) Type() EventType {
	return EventBlockApplied
}

func (e *BlockApplied) ChainLength() block.ChainLength {
	return e.chainLength
}

func (e *BlockApplied) Source() Source {
	return e.source
}

func (e *BlockApplied) Fragments() int {
	return e.fragments
}

// BlockRejected event when a header or block failed validation
type BlockRejected struct {
	base
	source Source
	reason string
}

func NewBlockRejected(hash block.HeaderHash, source Source, reason string) *BlockRejected {
	return &BlockRejected{
		base:   base{hash: hash, timestamp: time.Now()},
		source: source,
		reason: reason,
	}
}

func (e *BlockRejected) Type() EventType {
	return EventBlockRejected
}

func (e *BlockRejected) Source() Source {
	return e.source
}

func (e *BlockRejected) Reason() string {
	return e.reason
}

// FragmentIncluded event for every fragment of an applied block
type FragmentIncluded struct {
	base
	fragment block.FragmentID
}

func NewFragmentIncluded(id block.FragmentID, hash block.HeaderHash) *FragmentIncluded {
	return &FragmentIncluded{
		base:     base{hash: hash, timestamp: time.Now()},
		fragment: id,
	}
}

func (e *FragmentIncluded) Type() EventType {
	return EventFragmentIncluded
}

func (e *FragmentIncluded) FragmentID() block.FragmentID {
	return e.fragment
}
