// Package treasury models the external liquidity partner that backs flash
// loans with off-pool capital. The core only needs one capability: reserve
// N units of an asset for a loan, then settle (return capital plus
// repayment) or cancel (return capital unchanged). Everything is a
// synchronous call returning success or failure — waiting, custody, and
// exchange integration live outside the engine.
package treasury

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientCapital is returned when a reservation exceeds the
	// treasury's unreserved balance for the asset.
	ErrInsufficientCapital = errors.New("treasury: insufficient capital")

	// ErrUnknownReservation is returned when settling a reservation that
	// does not exist.
	ErrUnknownReservation = errors.New("treasury: unknown reservation")
)

// Treasury is the capability surface the engine depends on.
type Treasury interface {
	// Available returns the unreserved balance for an asset.
	Available(asset string) decimal.Decimal

	// Reserve earmarks capital for a loan. Fails if the unreserved
	// balance is insufficient.
	Reserve(loanID, asset string, amount decimal.Decimal) error

	// Settle releases a reservation, crediting the repaid amount back to
	// the treasury (the fee portion is the treasury's revenue).
	Settle(loanID string, repaid decimal.Decimal) error

	// Cancel releases a reservation unchanged. Unknown ids are a no-op.
	Cancel(loanID string)
}

type reservation struct {
	asset  string
	amount decimal.Decimal
}

// Memory is an in-process treasury with fixed seeded balances, standing in
// for the partner's custody API.
type Memory struct {
	mu           sync.Mutex
	balances     map[string]decimal.Decimal
	reservations map[string]reservation
}

// NewMemory creates a treasury seeded with the given balances.
func NewMemory(balances map[string]decimal.Decimal) *Memory {
	b := make(map[string]decimal.Decimal, len(balances))
	for asset, amount := range balances {
		b[asset] = amount
	}
	return &Memory{
		balances:     b,
		reservations: make(map[string]reservation),
	}
}

func (m *Memory) Available(asset string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[asset]
}

func (m *Memory) Reserve(loanID, asset string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	available := m.balances[asset]
	if amount.GreaterThan(available) {
		return fmt.Errorf("%w: need %s %s, have %s",
			ErrInsufficientCapital, amount, asset, available)
	}

	m.balances[asset] = available.Sub(amount)
	m.reservations[loanID] = reservation{asset: asset, amount: amount}
	return nil
}

func (m *Memory) Settle(loanID string, repaid decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[loanID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, loanID)
	}

	delete(m.reservations, loanID)
	m.balances[res.asset] = m.balances[res.asset].Add(repaid)
	return nil
}

func (m *Memory) Cancel(loanID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[loanID]
	if !ok {
		return
	}
	delete(m.reservations, loanID)
	m.balances[res.asset] = m.balances[res.asset].Add(res.amount)
}
