package core

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo/ton"
)

// AccountLookup provides information about destination accounts.
type AccountLookup interface {
	// ResolveAccount returns the account behind the address. It may resolve domain names.
	ResolveAccount(ctx context.Context, address string, testnet bool) (*AccountInfo, error)
	// GetPublicKey returns the public key of a wallet. Not deployed accounts have no key.
	GetPublicKey(ctx context.Context, address string, testnet bool) (ed25519.PublicKey, error)
}

// SponsorConfig is the sponsor (battery) configuration for a network.
type SponsorConfig struct {
	ExcessesAddress *ton.AccountID
	// GaslessTokens lists jetton masters the relay accepts as fee currency.
	GaslessTokens []ton.AccountID
	// Disabled turns off battery sponsoring only.
	Disabled bool
}

// SupportsGasless reports whether the relay accepts the token as fee currency.
func (c SponsorConfig) SupportsGasless(token Token) bool {
	if token.IsNative() {
		return false
	}
	for _, master := range c.GaslessTokens {
		if master == *token.Address {
			return true
		}
	}
	return false
}

// SponsorService is the battery relay that fronts network fees.
type SponsorService interface {
	Config(ctx context.Context, testnet bool) (SponsorConfig, error)
	// EmulateWithSponsor emulates a message as if it was relayed by the sponsor.
	EmulateWithSponsor(ctx context.Context, proofToken string, publicKey ed25519.PublicKey, testnet bool, msg []byte) (FeeBreakdown, error)
	// EstimateGaslessCost returns the relay commission in units of the token.
	EstimateGaslessCost(ctx context.Context, proofToken string, tokenMaster ton.AccountID, msg []byte, testnet bool) (*big.Int, error)
}

// Emulator runs a message against the current state of the blockchain.
type Emulator interface {
	Emulate(ctx context.Context, msg []byte, testnet bool) (FeeBreakdown, error)
}

// Broadcaster delivers signed messages to the network.
type Broadcaster interface {
	Submit(ctx context.Context, msg []byte, testnet bool) AcceptanceState
	SubmitViaSponsor(ctx context.Context, msg []byte, proofToken string, testnet bool) AcceptanceState
}

// KeyHolder owns wallet secrets.
type KeyHolder interface {
	// RequestProofToken returns a credential proving the wallet ownership to relays.
	RequestProofToken(ctx context.Context, w Wallet) (string, bool)
	// ConfirmUserPresence asks the user for a passcode or biometry that opens the wallet.
	ConfirmUserPresence(ctx context.Context, walletID string) bool
	// PrivateKey is only called after ConfirmUserPresence succeeded.
	PrivateKey(ctx context.Context, walletID string) (ed25519.PrivateKey, error)
}

type NftCostParams struct {
	Nft         ton.AccountID
	Wallet      Wallet
	Seqno       uint32
	Destination ton.AccountID
	ValidUntil  time.Time
	Comment     string
}

// NftCostCalculator computes how much TON must be attached to an NFT transfer.
type NftCostCalculator interface {
	TotalAmount(ctx context.Context, params NftCostParams) (*big.Int, error)
}

// MetadataSource provides the wallet state a message depends on.
type MetadataSource interface {
	Seqno(ctx context.Context, w Wallet) (uint32, error)
	ValidUntil(ctx context.Context, testnet bool) (time.Time, error)
}

// Preferences keeps user choices related to relays.
type Preferences interface {
	BatteryEnabled(account ton.AccountID, category BatteryTransaction) bool
	PreferGasless(testnet bool) bool
	SetPreferGasless(testnet bool, prefer bool)
}

// RateConverter converts amounts between a token and the user's fiat currency.
type RateConverter interface {
	FromFiat(ctx context.Context, token Token, amount decimal.Decimal) (decimal.Decimal, error)
	ToFiat(ctx context.Context, token Token, amount decimal.Decimal) (decimal.Decimal, error)
}
