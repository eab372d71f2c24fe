package core

import (
	"math/big"
	"time"

	"github.com/tonkeeper/tongo/ton"
)

// SendMetadata holds the wallet state a signed message depends on.
type SendMetadata struct {
	Seqno      uint32
	ValidUntil time.Time
}

// Transfer is an unsigned transfer descriptor. It is never mutated after
// it has been built; any change of input produces a new Transfer.
type Transfer struct {
	Wallet           Wallet
	Destination      DestinationAccount
	Token            TokenBalance
	Comment          string
	CommentEncrypted bool
	// Amount is in indivisible units of Token, or the TON attached to an NFT transfer.
	Amount     *big.Int
	Max        bool
	Bounceable bool
	Seqno      uint32
	ValidUntil time.Time
	QueryID    uint64
	// NftAddress is set for single NFT transfers.
	NftAddress *ton.AccountID
}

func (t *Transfer) IsNft() bool {
	return t.NftAddress != nil
}

// IsNative reports whether the transfer moves the native coin.
func (t *Transfer) IsNative() bool {
	return !t.IsNft() && t.Token.IsNative()
}

func (t *Transfer) Testnet() bool {
	return t.Wallet.Testnet
}

// BatteryTransaction is the category a sponsor can be enabled for.
type BatteryTransaction int

const (
	BatteryJetton BatteryTransaction = iota
	BatteryNft
)

func (t *Transfer) BatteryCategory() BatteryTransaction {
	if t.IsNft() {
		return BatteryNft
	}
	return BatteryJetton
}
