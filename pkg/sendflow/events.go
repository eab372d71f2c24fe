package sendflow

import (
	"github.com/shopspring/decimal"

	"github.com/arnac-io/tonsend/pkg/core"
)

// Event is delivered on Session.Events.
type Event interface {
	event()
}

// DestinationResolved is sent when the destination of the latest address is known.
type DestinationResolved struct {
	Address     string
	Destination core.Destination
	// EncryptedCommentAvailable reports whether the comment can be encrypted for this destination.
	EncryptedCommentAvailable bool
}

// FeeQuoted is sent for every computed quote.
type FeeQuoted struct {
	Quote Quote
}

// NearExhaustionWarning asks the user to confirm sending almost the whole balance.
type NearExhaustionWarning struct {
	Amount  decimal.Decimal
	Balance decimal.Decimal
	Symbol  string
}

// NearExhaustionError carries the warning Next stopped at.
// errors.Is(err, core.ErrNearExhaustion) holds for it.
type NearExhaustionError struct {
	Warning NearExhaustionWarning
}

func (e *NearExhaustionError) Error() string {
	return core.ErrNearExhaustion.Error()
}

func (e *NearExhaustionError) Unwrap() error {
	return core.ErrNearExhaustion
}

func (DestinationResolved) event()   {}
func (FeeQuoted) event()             {}
func (NearExhaustionWarning) event() {}
