package transfer

import (
	"crypto/ed25519"
	"math/big"

	"github.com/tonkeeper/tongo"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

var (
	// BaseForwardAmount is the TON attached to jetton transfers to pay for their processing.
	BaseForwardAmount = big.NewInt(64_000_000)
	// NotifyForwardAmount is forwarded to the recipient so that it gets a transfer notification.
	NotifyForwardAmount = big.NewInt(1)
)

// MessageOptions selects how a transfer is packed.
type MessageOptions struct {
	// Internal signs the body for delivery by a relay. It only applies to
	// wallets that accept signed internal messages.
	Internal bool
	// Excesses receives the TON left after a relayed transfer.
	Excesses *ton.AccountID
	// RelayFee is paid in the transferred jetton to Excesses within the same message.
	RelayFee *big.Int
}

// OptionsFor returns the message options of a relay strategy.
func OptionsFor(s core.RelayStrategy) MessageOptions {
	switch s.Kind {
	case core.RelayBattery:
		excesses := s.ExcessesAddress
		return MessageOptions{Internal: true, Excesses: &excesses}
	case core.RelayGasless:
		excesses := s.ExcessesAddress
		return MessageOptions{Internal: true, Excesses: &excesses, RelayFee: s.GaslessFee}
	}
	return MessageOptions{}
}

func (o MessageOptions) responseDestination(t *core.Transfer) ton.AccountID {
	if o.Excesses != nil {
		return *o.Excesses
	}
	return t.Wallet.Address
}

// Sign packs the transfer into a signed wallet message.
// key also encrypts the comment when it is marked as encrypted.
func Sign(t *core.Transfer, key ed25519.PrivateKey, opts MessageOptions) (*wallet.Signed, error) {
	msgs, err := Messages(t, key, opts)
	if err != nil {
		return nil, err
	}
	return wallet.Sign(key, envelope(t, opts), msgs)
}

// Prepare packs the transfer into an unsigned wallet body for an external signer.
// Encrypted comments are not available without the private key.
func Prepare(t *core.Transfer, opts MessageOptions) (*wallet.Unsigned, error) {
	msgs, err := Messages(t, nil, opts)
	if err != nil {
		return nil, err
	}
	return wallet.Prepare(envelope(t, opts), msgs)
}

func envelope(t *core.Transfer, opts MessageOptions) wallet.Envelope {
	return wallet.Envelope{
		Version:    t.Wallet.Version,
		Address:    t.Wallet.Address,
		Seqno:      t.Seqno,
		ValidUntil: t.ValidUntil,
		Testnet:    t.Testnet(),
		StateInit:  t.Wallet.StateInit,
		Internal:   opts.Internal && t.Wallet.SupportsInternalSigning(),
	}
}

func payload(t *core.Transfer, key ed25519.PrivateKey) (*boc.Cell, error) {
	if t.Comment == "" {
		return nil, nil
	}
	if !t.CommentEncrypted {
		return wallet.TextComment(t.Comment)
	}
	if len(t.Destination.PublicKey) == 0 || len(key) == 0 {
		return nil, core.ErrEncryptionUnavailable
	}
	return wallet.EncryptedComment(t.Comment, key, t.Destination.PublicKey, t.Wallet.FriendlyAddress())
}

// Messages returns the internal messages the wallet sends for the transfer.
func Messages(t *core.Transfer, key ed25519.PrivateKey, opts MessageOptions) ([]wallet.Message, error) {
	comment, err := payload(t, key)
	if err != nil {
		return nil, err
	}
	switch {
	case t.IsNft():
		body, err := wallet.NftTransfer{
			QueryID:             t.QueryID,
			NewOwner:            t.Destination.Address,
			ResponseDestination: opts.responseDestination(t),
			ForwardAmount:       NotifyForwardAmount,
			ForwardPayload:      comment,
		}.Body()
		if err != nil {
			return nil, err
		}
		return []wallet.Message{{
			Destination: *t.NftAddress,
			Amount:      t.Amount,
			Bounce:      true,
			Body:        body,
			Mode:        wallet.DefaultSendMode,
		}}, nil
	case t.Token.IsNative():
		mode := wallet.DefaultSendMode
		if t.Max {
			mode = wallet.SendAllMode
		}
		return []wallet.Message{{
			Destination: t.Destination.Address,
			Amount:      t.Amount,
			Bounce:      t.Bounceable,
			Body:        comment,
			Mode:        mode,
		}}, nil
	}
	jettonWallet := *t.Token.WalletAddress
	body, err := wallet.JettonTransfer{
		QueryID:             t.QueryID,
		Amount:              t.Amount,
		Destination:         t.Destination.Address,
		ResponseDestination: opts.responseDestination(t),
		ForwardAmount:       NotifyForwardAmount,
		ForwardPayload:      comment,
	}.Body()
	if err != nil {
		return nil, err
	}
	msgs := []wallet.Message{{
		Destination: jettonWallet,
		Amount:      BaseForwardAmount,
		Bounce:      true,
		Body:        body,
		Mode:        wallet.DefaultSendMode,
	}}
	if opts.RelayFee != nil && opts.Excesses != nil {
		fee, err := wallet.JettonTransfer{
			QueryID:             t.QueryID,
			Amount:              opts.RelayFee,
			Destination:         *opts.Excesses,
			ResponseDestination: *opts.Excesses,
			ForwardAmount:       NotifyForwardAmount,
		}.Body()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, wallet.Message{
			Destination: jettonWallet,
			Amount:      BaseForwardAmount,
			Bounce:      true,
			Body:        fee,
			Mode:        wallet.DefaultSendMode,
		})
	}
	return msgs, nil
}

// Limits returns the most the signed messages of t are allowed to move.
func Limits(t *core.Transfer, opts MessageOptions) wallet.Limits {
	limits := wallet.Limits{Jettons: map[tongo.AccountID]big.Int{}}
	switch {
	case t.IsNft():
		limits.Ton = t.Amount.Uint64()
		limits.Nfts = []tongo.AccountID{*t.NftAddress}
	case t.Token.IsNative():
		limits.Ton = t.Amount.Uint64()
		limits.SendAll = t.Max
	default:
		total := new(big.Int).Set(t.Amount)
		limits.Ton = BaseForwardAmount.Uint64()
		if opts.RelayFee != nil && opts.Excesses != nil {
			total.Add(total, opts.RelayFee)
			limits.Ton *= 2
		}
		limits.Jettons[*t.Token.WalletAddress] = *total
	}
	return limits
}
