package core

import (
	"math/big"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo/ton"
)

const TonDecimals = 9

// Token describes a fungible asset. Address is nil for the native coin.
type Token struct {
	Address  *ton.AccountID
	Symbol   string
	Decimals int32
}

var TON = Token{Symbol: "TON", Decimals: TonDecimals}

func (t Token) IsNative() bool {
	return t.Address == nil
}

func (t Token) Equal(other Token) bool {
	if t.IsNative() || other.IsNative() {
		return t.IsNative() == other.IsNative()
	}
	return *t.Address == *other.Address
}

// ToUnits converts a human amount into indivisible units of the token.
func (t Token) ToUnits(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, errors.New("negative amount")
	}
	units := amount.Shift(t.Decimals)
	if !units.Equal(units.Truncate(0)) {
		return nil, errors.Errorf("amount %v has more than %d fractional digits", amount, t.Decimals)
	}
	return units.BigInt(), nil
}

// FromUnits converts indivisible units into a human amount.
func (t Token) FromUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -t.Decimals)
}

// TokenBalance is a balance snapshot of a token owned by a wallet.
type TokenBalance struct {
	Token   Token
	Balance decimal.Decimal
	// WalletAddress is the owner's jetton wallet, set for non-native tokens.
	WalletAddress *ton.AccountID
}

func (b TokenBalance) IsNative() bool {
	return b.Token.IsNative()
}
