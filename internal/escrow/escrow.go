// Package escrow tracks outstanding flash loans issued by the pool.
//
// A flash loan reserves borrowing capacity against the pool's reserves; the
// escrow owns each loan record from issuance until it is terminated exactly
// once, by Settle (success) or Cancel (removal with no other effect). Loan
// identifiers are generated here, so uniqueness never depends on an
// external collaborator.
package escrow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lqx/pool-engine/internal/model"
)

var (
	// ErrUnknownLoan is returned when the loan id is not outstanding.
	// Settling a loan twice always yields this on the second call.
	ErrUnknownLoan = errors.New("escrow: unknown loan")

	// ErrInsufficientRepayment is returned when the repaid amount is less
	// than principal plus fee.
	ErrInsufficientRepayment = errors.New("escrow: insufficient repayment")

	// ErrInvalidLoan is returned when the requested terms would violate
	// repay > principal > 0.
	ErrInvalidLoan = errors.New("escrow: loan terms must satisfy repay > principal > 0")
)

// Escrow is the outstanding-loan set. Safe for concurrent use.
type Escrow struct {
	mu    sync.Mutex
	loans map[string]model.FlashLoan
}

// New creates an empty escrow.
func New() *Escrow {
	return &Escrow{loans: make(map[string]model.FlashLoan)}
}

// Open records a new loan with a fresh unique identifier and returns it.
// Terms must satisfy repay > principal > 0, which holds whenever the fee
// is positive.
func (e *Escrow) Open(asset string, principal, fee decimal.Decimal) (model.FlashLoan, error) {
	if !principal.IsPositive() || !fee.IsPositive() {
		return model.FlashLoan{}, fmt.Errorf("%w: principal=%s fee=%s",
			ErrInvalidLoan, principal, fee)
	}

	loan := model.FlashLoan{
		ID:          uuid.New().String(),
		Asset:       asset,
		Principal:   principal,
		Fee:         fee,
		RepayAmount: principal.Add(fee),
		CreatedAt:   time.Now().UTC(),
	}

	e.mu.Lock()
	e.loans[loan.ID] = loan
	e.mu.Unlock()
	return loan, nil
}

// Settle terminates the loan and returns its record. The loan is removed
// only on success; an underpaying caller can retry with the full amount.
// A second settle of the same id fails with ErrUnknownLoan — loans are
// single-use, there is no replay.
func (e *Escrow) Settle(id string, repaid decimal.Decimal) (model.FlashLoan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	loan, ok := e.loans[id]
	if !ok {
		return model.FlashLoan{}, fmt.Errorf("%w: %s", ErrUnknownLoan, id)
	}
	if repaid.LessThan(loan.RepayAmount) {
		return model.FlashLoan{}, fmt.Errorf("%w: repaid %s < required %s",
			ErrInsufficientRepayment, repaid, loan.RepayAmount)
	}

	delete(e.loans, id)
	return loan, nil
}

// Cancel removes the loan record if present. Cancelling an absent loan is
// a no-op, not an error: cancellation races with settlement under
// concurrent access and must not crash the caller.
func (e *Escrow) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.loans[id]; !ok {
		return false
	}
	delete(e.loans, id)
	return true
}

// Get returns the outstanding loan with the given id.
func (e *Escrow) Get(id string) (model.FlashLoan, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	loan, ok := e.loans[id]
	return loan, ok
}

// Outstanding returns a copy of all outstanding loans.
func (e *Escrow) Outstanding() []model.FlashLoan {
	e.mu.Lock()
	defer e.mu.Unlock()

	loans := make([]model.FlashLoan, 0, len(e.loans))
	for _, loan := range e.loans {
		loans = append(loans, loan)
	}
	return loans
}

// Len returns the number of outstanding loans.
func (e *Escrow) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.loans)
}
