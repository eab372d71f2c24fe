package core

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidDestination is returned when a transfer is built for a destination
	// that is not a resolved account.
	ErrInvalidDestination = errors.New("destination is not a resolved account")
	// ErrRelayUnavailable means a dependency of a relay strategy is missing:
	// the sponsor is disabled, there is no proof token or no excesses address.
	ErrRelayUnavailable = errors.New("relay unavailable")
	// ErrEstimationFailed is returned when no relay strategy produced a fee.
	ErrEstimationFailed     = errors.New("fee estimation failed")
	ErrWalletNotSpendable   = errors.New("wallet can't sign transfers")
	ErrAuthenticationFailed = errors.New("user presence confirmation declined")
	// ErrCancelled is returned when a submission is interrupted by the caller.
	// It never means the message was rejected by the network.
	ErrCancelled             = errors.New("cancelled")
	ErrEncryptionUnavailable = errors.New("comment encryption requires destination public key")
)

var (
	// ErrStaleInput is returned when the input changed while a result was computed.
	ErrStaleInput = errors.New("input changed")
	// ErrQuoteInvalidated is returned when a quote no longer matches the current attempt.
	ErrQuoteInvalidated = errors.New("quote invalidated")
	// ErrNearExhaustion asks the user to confirm sending almost the whole balance.
	ErrNearExhaustion      = errors.New("amount is close to the whole balance")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// BroadcastRejectedError is returned when the network answered a broadcast
// with anything but AcceptanceSuccess.
type BroadcastRejectedError struct {
	State AcceptanceState
}

func (e *BroadcastRejectedError) Error() string {
	return fmt.Sprintf("broadcast rejected: %v", e.State)
}

// IsRetryable reports whether the caller may restart the flow after err.
func IsRetryable(err error) bool {
	var rejected *BroadcastRejectedError
	switch {
	case errors.Is(err, ErrEstimationFailed), errors.As(err, &rejected):
		return true
	}
	return false
}
