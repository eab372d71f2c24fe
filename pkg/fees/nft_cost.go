package fees

import (
	"context"
	"math/big"

	"github.com/go-faster/errors"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/transfer"
)

var (
	nftEmulationAmount = big.NewInt(1_000_000_000)
	nftMinAmount       = big.NewInt(50_000_000)
	nftMargin          = big.NewInt(10_000_000)
)

// NftCostCalculator estimates the TON attached to an NFT transfer by
// emulating it with a generous amount.
type NftCostCalculator struct {
	emulator core.Emulator
}

func NewNftCostCalculator(emulator core.Emulator) *NftCostCalculator {
	return &NftCostCalculator{emulator: emulator}
}

// TotalAmount returns max(0.05 TON, fees + 0.01 TON + forward amount).
func (c *NftCostCalculator) TotalAmount(ctx context.Context, p core.NftCostParams) (*big.Int, error) {
	nft := p.Nft
	emulated := &core.Transfer{
		Wallet:      p.Wallet,
		Destination: core.DestinationAccount{Address: p.Destination},
		Token:       core.TokenBalance{Token: core.TON},
		Comment:     p.Comment,
		Amount:      nftEmulationAmount,
		Bounceable:  true,
		Seqno:       p.Seqno,
		ValidUntil:  p.ValidUntil,
		NftAddress:  &nft,
	}
	msg, err := emulationMessage(emulated, placeholderKey, transfer.MessageOptions{})
	if err != nil {
		return nil, err
	}
	fees, err := c.emulator.Emulate(ctx, msg, p.Wallet.Testnet)
	if err != nil {
		return nil, errors.Wrap(err, "emulate nft transfer")
	}
	amount := big.NewInt(fees.TotalFees)
	amount.Add(amount, nftMargin)
	amount.Add(amount, transfer.NotifyForwardAmount)
	if amount.Cmp(nftMinAmount) < 0 {
		return new(big.Int).Set(nftMinAmount), nil
	}
	return amount, nil
}
