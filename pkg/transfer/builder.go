package transfer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/arnac-io/tonsend/pkg/core"
)

// BuildParams is everything a transfer is built from.
// Input.Amount is expected in token units, fiat input is converted before.
type BuildParams struct {
	Wallet      core.Wallet
	Destination core.Destination
	Input       UserInput
	Metadata    core.SendMetadata
	QueryID     uint64
	// TonBalance is the wallet's TON balance, NFT transfers are paid from it.
	TonBalance decimal.Decimal
}

// Builder assembles unsigned transfers.
type Builder struct {
	nftCost core.NftCostCalculator
}

func NewBuilder(nftCost core.NftCostCalculator) *Builder {
	return &Builder{nftCost: nftCost}
}

// Build returns a transfer for the resolved destination.
// NFT transfers are always bounceable and their amount comes from the NFT cost calculator.
// Max is only kept when the amount equals the live balance of the token.
func (b *Builder) Build(ctx context.Context, p BuildParams) (*core.Transfer, error) {
	dest, ok := p.Destination.(*core.DestinationAccount)
	if !ok || dest == nil {
		return nil, core.ErrInvalidDestination
	}
	in := p.Input
	encrypted := in.EncryptedComment && in.Comment != ""
	if encrypted && len(dest.PublicKey) == 0 {
		return nil, core.ErrEncryptionUnavailable
	}
	t := &core.Transfer{
		Wallet:           p.Wallet,
		Destination:      *dest,
		Comment:          in.Comment,
		CommentEncrypted: encrypted,
		Seqno:            p.Metadata.Seqno,
		ValidUntil:       p.Metadata.ValidUntil,
		QueryID:          p.QueryID,
	}
	if in.Nft != nil {
		if b.nftCost == nil {
			return nil, errors.New("nft cost calculator is not configured")
		}
		nft := *in.Nft
		amount, err := b.nftCost.TotalAmount(ctx, core.NftCostParams{
			Nft:         nft,
			Wallet:      p.Wallet,
			Seqno:       p.Metadata.Seqno,
			Destination: dest.Address,
			ValidUntil:  p.Metadata.ValidUntil,
			Comment:     in.Comment,
		})
		if err != nil {
			return nil, errors.Wrap(err, "nft transfer amount")
		}
		t.NftAddress = &nft
		t.Token = core.TokenBalance{Token: core.TON, Balance: p.TonBalance}
		t.Amount = amount
		t.Bounceable = true
		return t, nil
	}
	amount, err := in.Token.Token.ToUnits(in.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "amount")
	}
	if !in.Token.IsNative() && in.Token.WalletAddress == nil {
		return nil, errors.Errorf("no jetton wallet for %v", in.Token.Token.Symbol)
	}
	t.Token = in.Token
	t.Amount = amount
	t.Max = in.Max && in.Amount.Equal(in.Token.Balance)
	t.Bounceable = dest.Bounceable
	return t, nil
}
