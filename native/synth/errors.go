package synth

import "errors"

var (
	ErrNilState               = errors.New("synth engine: state not configured")
	ErrInvalidAmount          = errors.New("synth engine: amount must be positive")
	ErrNotAllowedToken        = errors.New("synth engine: collateral asset not registered")
	ErrLengthMismatch         = errors.New("synth engine: collateral asset and price feed lists must match")
	ErrInsufficientBalance    = errors.New("synth engine: insufficient collateral balance")
	ErrInsufficientDebt       = errors.New("synth engine: burn amount exceeds outstanding debt")
	ErrHealthCheckFailed      = errors.New("synth engine: health factor below 1")
	ErrHealthFactorOk         = errors.New("synth engine: position not eligible for liquidation")
	ErrInsufficientCollateral = errors.New("synth engine: collateral cannot cover seizure target")
	ErrInvalidPrice           = errors.New("synth engine: oracle price must be positive")
	ErrStalePrice             = errors.New("synth engine: oracle quote too old")
	ErrTransferFailed         = errors.New("synth engine: token transfer failed")
	ErrReentrancy             = errors.New("synth engine: reentrant call rejected")
)
