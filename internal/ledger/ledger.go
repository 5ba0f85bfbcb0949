// Package ledger keeps per-identity balances. Every mutation of one identity
// is serialised behind that identity's own lock, so operations on different
// identities never contend with each other.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// DefaultBalance is credited to an identity the first time it is referenced.
const DefaultBalance int64 = 1000

var (
	// ErrInsufficientFunds is returned when a debit would drive a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNegativeAmount is returned for debits, credits or balances below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrOverflow is returned when a credit or adjustment would exceed the
	// largest representable balance.
	ErrOverflow = errors.New("balance overflow")
)

type account struct {
	mu      sync.Mutex
	balance int64
}

// Ledger stores balances keyed by identity key.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	initial  int64
}

// New creates an empty ledger. Unseen identities start with initial, or
// DefaultBalance when initial is not positive.
func New(initial int64) *Ledger {
	if initial <= 0 {
		initial = DefaultBalance
	}
	return &Ledger{
		accounts: make(map[string]*account),
		initial:  initial,
	}
}

// account returns the entry for key, creating it with the initial balance.
func (l *Ledger) account(key string) *account {
	l.mu.RLock()
	acct, ok := l.accounts[key]
	l.mu.RUnlock()
	if ok {
		return acct
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok = l.accounts[key]; ok {
		return acct
	}
	acct = &account{balance: l.initial}
	l.accounts[key] = acct
	return acct
}

// Balance returns the current balance of key.
func (l *Ledger) Balance(key string) int64 {
	acct := l.account(key)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance
}

// Debit subtracts amount from key if the balance covers it. On failure the
// balance is left untouched.
func (l *Ledger) Debit(key string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	acct := l.account(key)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.balance < amount {
		return acct.balance, fmt.Errorf("debit %d from %s: %w", amount, key, ErrInsufficientFunds)
	}
	acct.balance -= amount
	return acct.balance, nil
}

// Credit adds amount to key and returns the new balance. A credit that would
// overflow is refused and the balance is left untouched.
func (l *Ledger) Credit(key string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	acct := l.account(key)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.balance > math.MaxInt64-amount {
		return acct.balance, fmt.Errorf("credit %d to %s: %w", amount, key, ErrOverflow)
	}
	acct.balance += amount
	return acct.balance, nil
}

// Set overwrites the balance of key. Used by owner resets.
func (l *Ledger) Set(key string, amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	acct := l.account(key)
	acct.mu.Lock()
	acct.balance = amount
	acct.mu.Unlock()
	return nil
}

// Delta applies a signed adjustment. A negative delta that would overdraw the
// account, or a positive one that would overflow it, is refused and the
// balance is returned unchanged.
func (l *Ledger) Delta(key string, delta int64) (int64, error) {
	acct := l.account(key)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	if delta > 0 && acct.balance > math.MaxInt64-delta {
		return acct.balance, fmt.Errorf("adjust %s by %d: %w", key, delta, ErrOverflow)
	}
	next := acct.balance + delta
	if next < 0 {
		return acct.balance, fmt.Errorf("adjust %s by %d: %w", key, delta, ErrInsufficientFunds)
	}
	acct.balance = next
	return next, nil
}

// Snapshot copies every known balance. Each entry is read under its own lock;
// the result is not a single consistent cut across identities.
func (l *Ledger) Snapshot() map[string]int64 {
	l.mu.RLock()
	accounts := make(map[string]*account, len(l.accounts))
	for k, v := range l.accounts {
		accounts[k] = v
	}
	l.mu.RUnlock()

	out := make(map[string]int64, len(accounts))
	for k, acct := range accounts {
		acct.mu.Lock()
		out[k] = acct.balance
		acct.mu.Unlock()
	}
	return out
}

// Restore seeds balances loaded from storage. Negative values are skipped.
func (l *Ledger) Restore(balances map[string]int64) int {
	restored := 0
	for k, v := range balances {
		if v < 0 {
			continue
		}
		if err := l.Set(k, v); err == nil {
			restored++
		}
	}
	return restored
}

// Len returns the number of identities the ledger has seen.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}
