package wallet

import (
	"crypto/ed25519"
	"math/big"

	"github.com/go-faster/errors"
	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/toncrypto"
	tongoWallet "github.com/tonkeeper/tongo/wallet"
)

const (
	TextCommentOpCode      = 0x00000000
	EncryptedCommentOpCode = abi.EncryptedTextCommentMsgOpCode
	JettonTransferOpCode   = abi.JettonTransferMsgOpCode
	NftTransferOpCode      = abi.NftTransferMsgOpCode
)

// TextComment builds a text comment payload.
func TextComment(text string) (*boc.Cell, error) {
	c := boc.NewCell()
	if err := tlb.Marshal(c, tongoWallet.TextComment(text)); err != nil {
		return nil, errors.Wrap(err, "marshal comment")
	}
	return c, nil
}

// EncryptedComment builds an encrypted comment payload that only the owner
// of recipient can read. salt is the sender's user-friendly address.
func EncryptedComment(text string, sender ed25519.PrivateKey, recipient ed25519.PublicKey, salt string) (*boc.Cell, error) {
	if len(recipient) != ed25519.PublicKeySize {
		return nil, errors.New("invalid recipient public key")
	}
	data, err := toncrypto.Encrypt(recipient, sender, []byte(text), []byte(salt))
	if err != nil {
		return nil, errors.Wrap(err, "encrypt comment")
	}
	return withOpCode(EncryptedCommentOpCode, abi.EncryptedTextCommentMsgBody{CipherText: data})
}

func withOpCode(op uint32, body any) (*boc.Cell, error) {
	c := boc.NewCell()
	if err := c.WriteUint(uint64(op), 32); err != nil {
		return nil, err
	}
	if err := tlb.Marshal(c, body); err != nil {
		return nil, errors.Wrapf(err, "marshal body %#x", op)
	}
	return c, nil
}

func coins(amount *big.Int) tlb.VarUInteger16 {
	if amount == nil {
		return tlb.VarUInteger16{}
	}
	return tlb.VarUInteger16(*amount)
}

// JettonTransfer describes a transfer#0f8a7ea5 body sent to the owner's jetton wallet.
type JettonTransfer struct {
	QueryID             uint64
	Amount              *big.Int
	Destination         ton.AccountID
	ResponseDestination ton.AccountID
	ForwardAmount       *big.Int
	ForwardPayload      *boc.Cell
}

func (t JettonTransfer) Body() (*boc.Cell, error) {
	body := abi.JettonTransferMsgBody{
		QueryId:             t.QueryID,
		Amount:              coins(t.Amount),
		Destination:         t.Destination.ToMsgAddress(),
		ResponseDestination: t.ResponseDestination.ToMsgAddress(),
		ForwardTonAmount:    coins(t.ForwardAmount),
	}
	if t.ForwardPayload != nil {
		body.ForwardPayload.IsRight = true
		body.ForwardPayload.Value = abi.JettonPayload{SumType: abi.UnknownJettonOp, Value: tlb.Any(*t.ForwardPayload)}
	}
	return withOpCode(JettonTransferOpCode, body)
}

// NftTransfer describes a transfer#5fcc3d14 body sent to an NFT item.
type NftTransfer struct {
	QueryID             uint64
	NewOwner            ton.AccountID
	ResponseDestination ton.AccountID
	ForwardAmount       *big.Int
	ForwardPayload      *boc.Cell
}

func (t NftTransfer) Body() (*boc.Cell, error) {
	body := abi.NftTransferMsgBody{
		QueryId:             t.QueryID,
		NewOwner:            t.NewOwner.ToMsgAddress(),
		ResponseDestination: t.ResponseDestination.ToMsgAddress(),
		ForwardAmount:       coins(t.ForwardAmount),
	}
	if t.ForwardPayload != nil {
		body.ForwardPayload.IsRight = true
		body.ForwardPayload.Value = abi.NFTPayload{SumType: abi.UnknownNFTOp, Value: tlb.Any(*t.ForwardPayload)}
	}
	return withOpCode(NftTransferOpCode, body)
}
