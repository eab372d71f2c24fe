package core

import (
	"crypto/ed25519"

	"github.com/tonkeeper/tongo/ton"
)

// Destination is the classified result of resolving a user-supplied address.
// It is one of DestinationEmpty, DestinationNotFound or *DestinationAccount.
type Destination interface {
	destination()
}

type destinationEmpty struct{}

type destinationNotFound struct{}

func (destinationEmpty) destination()    {}
func (destinationNotFound) destination() {}

var (
	// DestinationEmpty means no address was typed yet.
	DestinationEmpty Destination = destinationEmpty{}
	// DestinationNotFound means the address could not be resolved to an account.
	DestinationNotFound Destination = destinationNotFound{}
)

// DestinationAccount is a resolved destination account.
type DestinationAccount struct {
	Address ton.AccountID
	// Raw is the address exactly as it was typed by the user.
	Raw string
	// PublicKey is nil for accounts without a known public key (not deployed or not a wallet).
	PublicKey    ed25519.PublicKey
	Existing     bool
	MemoRequired bool
	Bounceable   bool
}

func (*DestinationAccount) destination() {}

// AccountInfo is the result of an account lookup.
type AccountInfo struct {
	Address      ton.AccountID
	Status       string
	IsWallet     bool
	MemoRequired bool
	Balance      int64
}

// Account statuses as reported by the account lookup service.
const (
	AccountActive   = "active"
	AccountUninit   = "uninit"
	AccountNonexist = "nonexist"
	AccountFrozen   = "frozen"
)
