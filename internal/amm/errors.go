package amm

import "errors"

var (
	// ErrInvalidAmount is returned when a non-positive quantity is supplied
	// where a positive quantity is required.
	ErrInvalidAmount = errors.New("amm: amount must be positive")

	// ErrUnknownAsset is returned when an asset symbol is neither of the
	// pool's two configured assets.
	ErrUnknownAsset = errors.New("amm: unknown asset")

	// ErrEmptyPool is returned when a swap is attempted while either
	// reserve is zero.
	ErrEmptyPool = errors.New("amm: pool has zero reserves")

	// ErrZeroOutput is returned when the computed output rounds to zero.
	ErrZeroOutput = errors.New("amm: output amount rounds to zero")

	// ErrInsufficientReserve is returned when a withdrawal, debt decrease,
	// or loan exceeds the available reserve.
	ErrInsufficientReserve = errors.New("amm: insufficient reserve")

	// ErrInvalidShare is returned when an LP token amount is non-positive
	// or exceeds outstanding supply.
	ErrInvalidShare = errors.New("amm: invalid LP token amount")

	// ErrCovenantViolation is returned when an operation would push the
	// debt ratio outside the safety band. The mutation is fully reverted.
	ErrCovenantViolation = errors.New("amm: debt ratio outside safety band")

	// ErrInvariantBroken indicates the constant-product invariant decreased
	// after a swap. This is an arithmetic defect, not a user error; the
	// pool panics with it rather than continuing on corrupted state.
	ErrInvariantBroken = errors.New("amm: constant-product invariant decreased")
)
