package domain

import "errors"

// ErrorKind classifies a failure so transports can map it without knowing
// every sentinel.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindState         ErrorKind = "state"
	KindResource      ErrorKind = "resource"
	KindNotFound      ErrorKind = "not_found"
	KindInternal      ErrorKind = "internal"
)

// Error is a categorized sentinel error. Sentinels are compared by identity,
// so wrapping them with fmt.Errorf("%w") keeps errors.Is working.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the kind of the first categorized error in err's chain, or
// KindInternal when none is present.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Validation errors.
var (
	ErrEmptyItems       = newError(KindValidation, "inputs and outputs must not be empty")
	ErrZeroAmount       = newError(KindValidation, "amount must be positive")
	ErrUnknownAsset     = newError(KindValidation, "unknown asset type")
	ErrInvalidItem      = newError(KindValidation, "invalid proposal item")
	ErrInvalidCondition = newError(KindValidation, "invalid condition")
	ErrDuplicateBundle  = newError(KindValidation, "bundle referenced more than once")
	ErrZeroShares       = newError(KindValidation, "computed share amount is zero")
	ErrInvalidAccount   = newError(KindValidation, "invalid account")
	ErrNoPuzzle         = newError(KindValidation, "proposal has no puzzle condition")
)

// Authorization errors.
var (
	ErrNotProposer  = newError(KindAuthorization, "caller is not the proposer")
	ErrNotOwner     = newError(KindAuthorization, "caller is not the bundle owner")
	ErrUnauthorized = newError(KindAuthorization, "unauthorized")
)

// State errors.
var (
	ErrAlreadySettled  = newError(KindState, "proposal is not open")
	ErrConditionNotMet = newError(KindState, "condition not met")
	ErrAlreadySolved   = newError(KindState, "puzzle already solved")
	ErrWrongSolution   = newError(KindState, "solution does not match challenge")
	ErrBundleLocked    = newError(KindState, "bundle is referenced by an open proposal")
	ErrPaused          = newError(KindState, "exchange is paused")
	ErrLockHeld        = newError(KindState, "lock already held")
)

// Resource errors.
var (
	ErrInsufficientBalance       = newError(KindResource, "insufficient balance")
	ErrInsufficientPoolLiquidity = newError(KindResource, "insufficient pool liquidity")
	ErrInsufficientShares        = newError(KindResource, "insufficient shares")
	ErrOverflow                  = newError(KindResource, "amount overflow")
	ErrRateLimited               = newError(KindResource, "rate limited")
)

// Not-found errors.
var (
	ErrNotFound         = newError(KindNotFound, "not found")
	ErrProposalNotFound = newError(KindNotFound, "proposal not found")
	ErrBundleNotFound   = newError(KindNotFound, "bundle not found")
)
