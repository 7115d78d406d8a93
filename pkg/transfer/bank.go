package transfer

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// TokenBank is an in-memory Engine for tests and single-process deployments.
// It tracks per-account balances plus one pooled custody balance, guarded by
// a single mutex so every transfer is atomic.
type TokenBank struct {
	mu       sync.Mutex
	accounts map[common.Address]uint64
	custody  uint64
}

// NewTokenBank creates an empty bank.
func NewTokenBank() *TokenBank {
	return &TokenBank{
		accounts: make(map[common.Address]uint64),
	}
}

// Mint credits an account out of thin air. Test/setup helper.
func (b *TokenBank) Mint(account common.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[account] += amount
}

// MintCustody credits the pooled custody balance directly. Used when a
// process restarts over a durable campaign ledger: the distributor's
// recorded custody has to be backed by tokens the fresh bank actually
// holds.
func (b *TokenBank) MintCustody(amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.custody += amount
}

// BalanceOf returns an account's balance.
func (b *TokenBank) BalanceOf(account common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[account]
}

// CustodyBalance returns the pooled custody balance.
func (b *TokenBank) CustodyBalance() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody
}

// In moves amount from the funder's account into custody.
func (b *TokenBank) In(ctx context.Context, from common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accounts[from] < amount {
		return errors.Errorf("insufficient balance in %s: have %d, need %d", from.Hex(), b.accounts[from], amount)
	}

	b.accounts[from] -= amount
	b.custody += amount
	return nil
}

// Out moves amount from custody to the recipient's account.
func (b *TokenBank) Out(ctx context.Context, to common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.custody < amount {
		return errors.Errorf("insufficient custody balance: have %d, need %d", b.custody, amount)
	}

	b.custody -= amount
	b.accounts[to] += amount
	return nil
}

var _ Engine = (*TokenBank)(nil)
