package core

import (
	"crypto/ed25519"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"
)

type WalletType int

const (
	WalletDefault WalletType = iota
	WalletTestnet
	WalletLockup
	WalletWatch
	WalletSigner
	WalletLedger
	WalletKeystone
)

func (t WalletType) String() string {
	switch t {
	case WalletDefault:
		return "default"
	case WalletTestnet:
		return "testnet"
	case WalletLockup:
		return "lockup"
	case WalletWatch:
		return "watch"
	case WalletSigner:
		return "signer"
	case WalletLedger:
		return "ledger"
	case WalletKeystone:
		return "keystone"
	}
	return "unknown"
}

// Wallet is a point-in-time snapshot of the wallet that owns a transfer.
type Wallet struct {
	// ID identifies the wallet in the key holder.
	ID        string
	Address   ton.AccountID
	PublicKey ed25519.PublicKey
	Version   wallet.Version
	Type      WalletType
	Testnet   bool
	// StateInit is attached to the first outgoing message of an undeployed wallet.
	StateInit *boc.Cell
}

// HasPrivateKey reports whether the key holder keeps a private key for this wallet.
func (w Wallet) HasPrivateKey() bool {
	return w.Type == WalletDefault || w.Type == WalletTestnet || w.Type == WalletLockup
}

// IsExternal reports whether signing happens outside the app (hardware or signer app).
func (w Wallet) IsExternal() bool {
	return w.Type == WalletSigner || w.Type == WalletLedger || w.Type == WalletKeystone
}

func (w Wallet) IsWatchOnly() bool {
	return w.Type == WalletWatch
}

// SupportsGasless reports whether the wallet contract can sign internal
// messages, which is what gasless relays require.
func (w Wallet) SupportsGasless() bool {
	return w.Version == wallet.V5R1 && w.HasPrivateKey()
}

// SupportsInternalSigning reports whether the wallet contract accepts signed internal messages.
func (w Wallet) SupportsInternalSigning() bool {
	return w.Version == wallet.V5R1
}

// FriendlyAddress returns the user-friendly form used as the comment encryption salt.
func (w Wallet) FriendlyAddress() string {
	return w.Address.ToHuman(true, w.Testnet)
}
