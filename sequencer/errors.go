package sequencer

import "errors"

// Domain errors returned by the queue and callback phases. Queue errors leave
// the state untouched; callback errors are recorded on the computation.
var (
	ErrProtocolPaused          = errors.New("protocol is paused")
	ErrUnauthorized            = errors.New("caller is not authorized")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidAssetID          = errors.New("invalid asset id")
	ErrInvalidPairID           = errors.New("invalid pair id")
	ErrInvalidDirection        = errors.New("invalid direction")
	ErrFeeTooHigh              = errors.New("execution fee too high")
	ErrPendingOrderExists      = errors.New("user already has a pending order")
	ErrNoPendingOrder          = errors.New("user has no pending order to settle")
	ErrPendingOperation        = errors.New("user has an operation in flight")
	ErrNothingPending          = errors.New("user has nothing in flight")
	ErrBalanceBusy             = errors.New("balance is being read by another computation")
	ErrBatchNotReady           = errors.New("batch is not ready for execution")
	ErrBatchBusy               = errors.New("batch has computations in flight")
	ErrBatchNotInitialized     = errors.New("batch state is not initialized")
	ErrBatchIDMismatch         = errors.New("batch id mismatch")
	ErrBatchLogNotFound        = errors.New("batch log not found")
	ErrSwapsAlreadyExecuted    = errors.New("swaps already executed for this batch")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrAmountMismatch          = errors.New("encrypted amount does not match the deposit")
	ErrAbortedComputation      = errors.New("aborted computation")
	ErrInvalidClusterSignature = errors.New("invalid cluster signature")
	ErrUserExists              = errors.New("user account already exists")
	ErrUserNotFound            = errors.New("user account not found")
	ErrRecipientNotFound       = errors.New("recipient account not found")
	ErrSelfTransfer            = errors.New("cannot transfer to self")
	ErrFaucetLimitExceeded     = errors.New("faucet limit exceeded")
	ErrAlreadyInitialized      = errors.New("already initialized")
	ErrNotInitialized          = errors.New("protocol is not initialized")
)

// committedError is returned by a transition that recorded its outcome and
// still fails: its writes are committed and the wrapped error is reported.
type committedError struct {
	err error
}

func (e *committedError) Error() string { return e.err.Error() }

func (e *committedError) Unwrap() error { return e.err }

func failAfterCommit(err error) error {
	return &committedError{err: err}
}
