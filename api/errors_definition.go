//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400 or 404 (or even 204), whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// The initial list of errors were more or less grouped by topic, but the list grows with time in a random fashion.
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 4010, 4011 and 4013 exist, 4012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status,
// for example the fact that Code 4045 returns HTTP Status 404 Not Found is just a coincidence
//
// Do note that HTTPstatus 204 No Content implies the response body will be empty,
// so the Code and Message will actually be discarded, never sent to the client
var (
	ErrResourceNotFound        = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody           = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidSignature        = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid signature")}
	ErrMalformedParam          = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed URL parameter")}
	ErrStaleRequest            = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("request timestamp out of range")}
	ErrUserNotFound            = Error{Code: 40010, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("user account not found")}
	ErrUserExists              = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("user account already exists")}
	ErrRecipientNotFound       = Error{Code: 40012, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("recipient account not found")}
	ErrComputationNotFound     = Error{Code: 40013, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("computation not found")}
	ErrBatchLogNotFound        = Error{Code: 40014, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("batch log not found")}
	ErrUnauthorized            = Error{Code: 40015, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("caller is not authorized")}
	ErrProtocolPaused          = Error{Code: 40016, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("protocol is paused")}
	ErrInvalidAmount           = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid amount")}
	ErrInvalidAssetID          = Error{Code: 40018, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid asset id")}
	ErrInvalidPairID           = Error{Code: 40019, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid pair id")}
	ErrInvalidDirection        = Error{Code: 40020, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid direction")}
	ErrPendingOrderExists      = Error{Code: 40021, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("user already has a pending order")}
	ErrNoPendingOrder          = Error{Code: 40022, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("user has no pending order to settle")}
	ErrPendingOperation        = Error{Code: 40023, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("user has an operation in flight")}
	ErrBalanceBusy             = Error{Code: 40024, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("balance is being read by another computation")}
	ErrInsufficientTokens      = Error{Code: 40025, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("insufficient token balance")}
	ErrFaucetLimitExceeded     = Error{Code: 40026, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("faucet limit exceeded")}
	ErrSelfTransfer            = Error{Code: 40027, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("cannot transfer to self")}
	ErrBatchNotReady           = Error{Code: 40028, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("batch is not ready for execution")}
	ErrBatchBusy               = Error{Code: 40029, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("batch has computations in flight")}
	ErrBatchNotInitialized     = Error{Code: 40030, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("batch state is not initialized")}
	ErrBatchIDMismatch         = Error{Code: 40031, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("batch id mismatch")}
	ErrSwapsAlreadyExecuted    = Error{Code: 40032, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("swaps already executed for this batch")}
	ErrNothingPending          = Error{Code: 40033, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("user has nothing in flight")}
	ErrAlreadyInitialized      = Error{Code: 40034, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("already initialized")}
	ErrFeeTooHigh              = Error{Code: 40035, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("execution fee too high")}
	ErrInvalidPriceUpdate      = Error{Code: 40036, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid price update")}
	ErrInsufficientBalance     = Error{Code: 40037, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("insufficient balance")}
	ErrAbortedComputation      = Error{Code: 40038, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("aborted computation")}
	ErrInvalidClusterSignature = Error{Code: 40039, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid cluster signature")}
	ErrAmountMismatch          = Error{Code: 40040, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("encrypted amount does not match the deposit")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrNotInitialized             = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("protocol is not initialized")}
	ErrPriceFeedReadOnly          = Error{Code: 50004, HTTPstatus: http.StatusNotImplemented, Err: fmt.Errorf("price feed does not accept updates")}
)
