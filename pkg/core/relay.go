package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo/ton"
)

type RelayKind int

const (
	// RelayDefault sends an external message directly, the fee is paid in TON by the wallet.
	RelayDefault RelayKind = iota
	// RelayBattery sends through the sponsor, the fee is settled against a prepaid balance.
	RelayBattery
	// RelayGasless sends through the relay contract, the fee is paid in the transferred token.
	RelayGasless
)

func (k RelayKind) String() string {
	switch k {
	case RelayDefault:
		return "default"
	case RelayBattery:
		return "battery"
	case RelayGasless:
		return "gasless"
	}
	return fmt.Sprintf("relay(%d)", int(k))
}

// RelayStrategy is the relay chosen for a send attempt.
// ExcessesAddress is set for RelayBattery and RelayGasless, GaslessFee only for RelayGasless.
type RelayStrategy struct {
	Kind            RelayKind
	ExcessesAddress ton.AccountID
	GaslessFee      *big.Int
}

func DefaultStrategy() RelayStrategy {
	return RelayStrategy{Kind: RelayDefault}
}

func BatteryStrategy(excesses ton.AccountID) RelayStrategy {
	return RelayStrategy{Kind: RelayBattery, ExcessesAddress: excesses}
}

func GaslessStrategy(excesses ton.AccountID, fee *big.Int) RelayStrategy {
	return RelayStrategy{Kind: RelayGasless, ExcessesAddress: excesses, GaslessFee: fee}
}

// ViaSponsor reports whether the message is broadcast through the sponsor service.
func (s RelayStrategy) ViaSponsor() bool {
	return s.Kind == RelayBattery || s.Kind == RelayGasless
}

// Estimate is the result of fee resolution.
type Estimate struct {
	// Fee is in indivisible units of FeeToken.
	Fee      *big.Int
	FeeToken Token
	Strategy RelayStrategy
	// GaslessEligible reports whether the gasless relay could be used for this transfer
	// regardless of the user preference.
	GaslessEligible bool
}

// FeeQuote is an Estimate prepared for presentation.
type FeeQuote struct {
	Estimate
	Amount            decimal.Decimal
	Display           string
	ShowGaslessToggle bool
	Sponsored         bool
	Gasless           bool
}

// FeeBreakdown is what an emulator reports about a message.
type FeeBreakdown struct {
	// TotalFees is the sum of fees of every transaction in the emulated trace, in nanoTON.
	TotalFees int64
}
