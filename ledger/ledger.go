package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/mvnode/block"
	"github.com/mezonai/mvnode/common"
)

var (
	ErrZeroAmount          = errors.New("zero amount transfers are not allowed")
	ErrUnknownSender       = errors.New("sender account does not exist")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidNonce        = errors.New("invalid nonce")
	ErrInvalidBlock0       = errors.New("invalid block0")
)

type Account struct {
	Balance *uint256.Int `json:"balance"`
	Nonce   uint64       `json:"nonce"`
}

func (a *Account) clone() *Account {
	return &Account{Balance: new(uint256.Int).Set(a.Balance), Nonce: a.Nonce}
}

// Ledger is the state resulting from applying a chain of blocks. It is never
// mutated once built: Apply returns a new Ledger and leaves the receiver
// untouched, so many Refs on different branches can share ancestors' states.
type Ledger struct {
	accounts    map[string]*Account
	settings    *Settings
	date        block.BlockDate
	chainLength block.ChainLength
}

// FromGenesis builds the initial ledger. Block0 contents are unsigned mint
// fragments with an empty sender; anything else makes block0 inconsistent.
func FromGenesis(block0 *block.Block, settings Settings) (*Ledger, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlock0, err)
	}
	if block0.Header.ChainLength != 0 || !block0.Header.ParentHash.IsZero() {
		return nil, fmt.Errorf("%w: block0 must have chain length 0 and no parent", ErrInvalidBlock0)
	}
	if !block0.ContentMatchesHeader() {
		return nil, fmt.Errorf("%w: content hash mismatch", ErrInvalidBlock0)
	}

	accounts := make(map[string]*Account, len(block0.Contents))
	for _, f := range block0.Contents {
		if f.Sender != "" {
			return nil, fmt.Errorf("%w: initial fragment %s has a sender", ErrInvalidBlock0, f.ID())
		}
		if !common.IsValidAddress(f.Recipient) {
			return nil, fmt.Errorf("%w: invalid initial address %q", ErrInvalidBlock0, f.Recipient)
		}
		if f.Amount == nil || f.Amount.IsZero() {
			return nil, fmt.Errorf("%w: initial account %s has no funds", ErrInvalidBlock0, f.Recipient)
		}
		if _, exists := accounts[f.Recipient]; exists {
			return nil, fmt.Errorf("%w: duplicate initial account %s", ErrInvalidBlock0, f.Recipient)
		}
		accounts[f.Recipient] = &Account{Balance: new(uint256.Int).Set(f.Amount)}
	}

	return &Ledger{
		accounts: accounts,
		settings: settings.clone(),
		date:     block0.Header.Date,
	}, nil
}

// Apply validates and applies block contents on top of the ledger. Any
// invalid fragment rejects the whole block.
func (l *Ledger) Apply(header *block.Header, contents []*block.Fragment) (*Ledger, error) {
	next := &Ledger{
		accounts:    make(map[string]*Account, len(l.accounts)),
		settings:    l.settings,
		date:        header.Date,
		chainLength: header.ChainLength,
	}
	for k, v := range l.accounts {
		next.accounts[k] = v
	}

	// accounts already cloned while applying this block
	touched := make(map[string]bool)
	load := func(addr string) *Account {
		acc, ok := next.accounts[addr]
		if !ok {
			acc = &Account{Balance: uint256.NewInt(0)}
			next.accounts[addr] = acc
			touched[addr] = true
			return acc
		}
		if !touched[addr] {
			acc = acc.clone()
			next.accounts[addr] = acc
			touched[addr] = true
		}
		return acc
	}

	for _, f := range contents {
		if err := f.Verify(); err != nil {
			return nil, fmt.Errorf("fragment %s: %w", f.ID(), err)
		}
		if f.Amount == nil || f.Amount.IsZero() {
			return nil, fmt.Errorf("fragment %s: %w", f.ID(), ErrZeroAmount)
		}
		if _, ok := next.accounts[f.Sender]; !ok {
			return nil, fmt.Errorf("fragment %s: %w: %s", f.ID(), ErrUnknownSender, f.Sender)
		}
		sender := load(f.Sender)
		if sender.Balance.Cmp(f.Amount) < 0 {
			return nil, fmt.Errorf("fragment %s: %w", f.ID(), ErrInsufficientBalance)
		}
		if f.Nonce != sender.Nonce+1 {
			return nil, fmt.Errorf("fragment %s: %w: expected %d, got %d", f.ID(), ErrInvalidNonce, sender.Nonce+1, f.Nonce)
		}
		recipient := load(f.Recipient)
		sender.Balance.Sub(sender.Balance, f.Amount)
		recipient.Balance.Add(recipient.Balance, f.Amount)
		sender.Nonce = f.Nonce
	}
	return next, nil
}

// Account returns a copy of the account state, or nil if unknown.
func (l *Ledger) Account(addr string) *Account {
	acc, ok := l.accounts[addr]
	if !ok {
		return nil
	}
	return acc.clone()
}

func (l *Ledger) AccountCount() int {
	return len(l.accounts)
}

func (l *Ledger) Settings() Settings {
	return *l.settings.clone()
}

// Date of the last block applied.
func (l *Ledger) Date() block.BlockDate {
	return l.date
}

func (l *Ledger) ChainLength() block.ChainLength {
	return l.chainLength
}
