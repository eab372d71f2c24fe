package wallet

import (
	"crypto/ed25519"
	"math"
	"math/big"
	"time"

	"github.com/go-faster/errors"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	tongoWallet "github.com/tonkeeper/tongo/wallet"
)

const (
	// DefaultSendMode pays forward fees separately and ignores action errors.
	DefaultSendMode uint8 = 3
	// SendAllMode attaches the whole remaining balance.
	SendAllMode uint8 = 128 | 2

	maxMessagesV4 = 4
	maxMessagesV5 = 255
)

var ErrUnsupportedVersion = errors.New("unsupported wallet version")

// Message is an outgoing internal message.
type Message struct {
	Destination ton.AccountID
	Amount      *big.Int
	Bounce      bool
	Body        *boc.Cell
	Mode        uint8
}

func (m Message) toTongo() (tongoWallet.Message, error) {
	var grams tlb.Grams
	if m.Amount != nil {
		if m.Amount.Sign() < 0 || !m.Amount.IsUint64() {
			return tongoWallet.Message{}, errors.Errorf("invalid amount %v", m.Amount)
		}
		grams = tlb.Grams(m.Amount.Uint64())
	}
	return tongoWallet.Message{
		Amount:  grams,
		Address: m.Destination,
		Body:    m.Body,
		Bounce:  m.Bounce,
		Mode:    m.Mode,
	}, nil
}

// Envelope carries the wallet state needed to sign a batch of messages.
type Envelope struct {
	Version    tongoWallet.Version
	Address    ton.AccountID
	Seqno      uint32
	ValidUntil time.Time
	Testnet    bool
	// StateInit is attached to the external message when the wallet is not deployed yet.
	StateInit *boc.Cell
	// Internal produces a body signed for delivery by a relay in an internal message.
	Internal bool
}

func (env Envelope) check(msgs []Message) error {
	if len(msgs) == 0 {
		return errors.New("no messages")
	}
	limit := maxMessagesV4
	switch env.Version {
	case tongoWallet.V3R1, tongoWallet.V3R2, tongoWallet.V4R1, tongoWallet.V4R2:
		if env.Internal {
			return errors.Wrapf(ErrUnsupportedVersion, "%v can't sign internal messages", env.Version)
		}
	case tongoWallet.V5R1:
		limit = maxMessagesV5
	default:
		return errors.Wrapf(ErrUnsupportedVersion, "%v", env.Version)
	}
	if len(msgs) > limit {
		return errors.Errorf("too many messages: %d", len(msgs))
	}
	return nil
}

func (env Envelope) validUntil() time.Time {
	if env.Seqno == 0 || env.ValidUntil.IsZero() {
		return time.Unix(math.MaxUint32, 0)
	}
	return env.ValidUntil
}

func (env Envelope) msgType() tongoWallet.V5MsgType {
	if env.Internal {
		return tongoWallet.V5MsgTypeSignedInternal
	}
	return tongoWallet.V5MsgTypeSignedExternal
}

func globalID(testnet bool) int32 {
	if testnet {
		return tongoWallet.TestnetGlobalID
	}
	return tongoWallet.MainnetGlobalID
}

// Signed is a signed wallet message.
type Signed struct {
	// Body is the signed wallet body as expected by the wallet contract.
	Body *boc.Cell
	// External wraps Body into an external-in message. It is nil for internal bodies.
	External *boc.Cell
}

// Boc returns the serialized message to send: the external message, or the body
// for internal signing.
func (s *Signed) Boc() ([]byte, error) {
	if s.External != nil {
		return s.External.ToBoc()
	}
	return s.Body.ToBoc()
}

// Sign builds and signs a wallet body carrying msgs.
func Sign(key ed25519.PrivateKey, env Envelope, msgs []Message) (*Signed, error) {
	if err := env.check(msgs); err != nil {
		return nil, err
	}
	w, err := tongoWallet.New(key, env.Version, nil,
		tongoWallet.WithWorkchain(int(env.Address.Workchain)),
		tongoWallet.WithNetworkGlobalID(globalID(env.Testnet)))
	if err != nil {
		return nil, errors.Wrap(err, "init wallet")
	}
	sendable := make([]tongoWallet.Sendable, 0, len(msgs))
	for _, m := range msgs {
		tm, err := m.toTongo()
		if err != nil {
			return nil, err
		}
		sendable = append(sendable, tm)
	}
	body, err := w.CreateMessageBody(tongoWallet.MessageConfig{
		Seqno:      env.Seqno,
		ValidUntil: env.validUntil(),
		V5MsgType:  env.msgType(),
	}, sendable...)
	if err != nil {
		return nil, errors.Wrap(err, "create message body")
	}
	return seal(env, body)
}

// seal wraps a signed body into an external message unless it is relayed.
func seal(env Envelope, body *boc.Cell) (*Signed, error) {
	signed := &Signed{Body: body}
	if env.Internal {
		return signed, nil
	}
	var init *tlb.StateInit
	if env.StateInit != nil {
		env.StateInit.ResetCounters()
		init = new(tlb.StateInit)
		if err := tlb.Unmarshal(env.StateInit, init); err != nil {
			return nil, errors.Wrap(err, "decode state init")
		}
	}
	ext, err := ton.CreateExternalMessage(env.Address, body, init, tlb.VarUInteger16{})
	if err != nil {
		return nil, errors.Wrap(err, "create external message")
	}
	signed.External = boc.NewCell()
	if err := tlb.Marshal(signed.External, ext); err != nil {
		return nil, errors.Wrap(err, "marshal external message")
	}
	return signed, nil
}

// v5WalletID is the wallet_id of a v5r1 wallet with subwallet number 0.
func v5WalletID(workchain int32, testnet bool) uint32 {
	context := uint32(1)<<31 | (uint32(workchain)&0xff)<<23
	return uint32(globalID(testnet)) ^ context
}

// v5Body is the v5r1 request layout between the message type and the signature.
type v5Body struct {
	WalletID        uint32
	ValidUntil      uint32
	Seqno           uint32
	Actions         *tongoWallet.W5Actions         `tlb:"maybe^"`
	ExtendedActions *tongoWallet.W5ExtendedActions `tlb:"maybe"`
}

// Unsigned is a wallet body waiting for a signature from an external signer.
type Unsigned struct {
	env  Envelope
	cell *boc.Cell
}

// Prepare builds the wallet body for msgs without signing it.
func Prepare(env Envelope, msgs []Message) (*Unsigned, error) {
	if err := env.check(msgs); err != nil {
		return nil, err
	}
	raw := make([]tongoWallet.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		tm, err := m.toTongo()
		if err != nil {
			return nil, err
		}
		internal, mode, err := tm.ToInternal()
		if err != nil {
			return nil, err
		}
		c := boc.NewCell()
		if err := tlb.Marshal(c, internal); err != nil {
			return nil, errors.Wrap(err, "marshal internal message")
		}
		raw = append(raw, tongoWallet.RawMessage{Message: c, Mode: mode})
	}
	validUntil := uint32(env.validUntil().Unix())
	cell := boc.NewCell()
	var err error
	switch env.Version {
	case tongoWallet.V3R1, tongoWallet.V3R2:
		err = tlb.Marshal(cell, tongoWallet.MessageV3{
			SubWalletId: uint32(tongoWallet.DefaultSubWallet + int(env.Address.Workchain)),
			ValidUntil:  validUntil,
			Seqno:       env.Seqno,
			RawMessages: raw,
		})
	case tongoWallet.V4R1, tongoWallet.V4R2:
		err = tlb.Marshal(cell, tongoWallet.MessageV4{
			SubWalletId: uint32(tongoWallet.DefaultSubWallet + int(env.Address.Workchain)),
			ValidUntil:  validUntil,
			Seqno:       env.Seqno,
			RawMessages: raw,
		})
	case tongoWallet.V5R1:
		actions := make(tongoWallet.W5Actions, 0, len(raw))
		for _, r := range raw {
			actions = append(actions, tongoWallet.W5SendMessageAction{Msg: r.Message, Mode: r.Mode})
		}
		if err = cell.WriteUint(uint64(env.msgType()), 32); err != nil {
			break
		}
		err = tlb.Marshal(cell, v5Body{
			WalletID:   v5WalletID(env.Address.Workchain, env.Testnet),
			ValidUntil: validUntil,
			Seqno:      env.Seqno,
			Actions:    &actions,
		})
	}
	if err != nil {
		return nil, errors.Wrap(err, "marshal wallet body")
	}
	return &Unsigned{env: env, cell: cell}, nil
}

// Hash is what the external signer signs.
func (u *Unsigned) Hash() ([]byte, error) {
	return u.cell.Hash()
}

func (u *Unsigned) Boc() ([]byte, error) {
	return u.cell.ToBoc()
}

// Attach verifies signature against pub and produces the signed message.
func (u *Unsigned) Attach(pub ed25519.PublicKey, signature []byte) (*Signed, error) {
	hash, err := u.Hash()
	if err != nil {
		return nil, err
	}
	if len(pub) != ed25519.PublicKeySize || !ed25519.Verify(pub, hash, signature) {
		return nil, tongoWallet.ErrBadSignature
	}
	var body *boc.Cell
	if u.env.Version == tongoWallet.V5R1 {
		u.cell.ResetCounters()
		body = u.cell.CopyRemaining()
		if err := body.WriteBytes(signature); err != nil {
			return nil, errors.Wrap(err, "append signature")
		}
	} else {
		var sign tlb.Bits512
		copy(sign[:], signature)
		body = boc.NewCell()
		if err := tlb.Marshal(body, tongoWallet.SignedMsgBody{Sign: sign, Message: tlb.Any(*u.cell)}); err != nil {
			return nil, errors.Wrap(err, "marshal signed body")
		}
	}
	return seal(u.env, body)
}
