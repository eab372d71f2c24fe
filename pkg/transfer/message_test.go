package transfer

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo"
	tongoWallet "github.com/tonkeeper/tongo/wallet"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

var testKey = ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))

func TestMessages(t *testing.T) {
	excesses := tongo.MustParseAccountID("0:0000000000000000000000000000000000000000000000000000000000000001")
	tests := []struct {
		name     string
		transfer core.Transfer
		opts     MessageOptions
		wantMsgs int
		wantMode uint8
		wantDest tongo.AccountID
	}{
		{
			name:     "ton",
			transfer: core.Transfer{Wallet: testWallet, Destination: *testDestination(false, nil), Token: core.TokenBalance{Token: core.TON}, Amount: big.NewInt(1)},
			wantMsgs: 1,
			wantMode: wallet.DefaultSendMode,
			wantDest: testTarget,
		},
		{
			name:     "ton max",
			transfer: core.Transfer{Wallet: testWallet, Destination: *testDestination(false, nil), Token: core.TokenBalance{Token: core.TON}, Amount: big.NewInt(1), Max: true},
			wantMsgs: 1,
			wantMode: wallet.SendAllMode,
			wantDest: testTarget,
		},
		{
			name:     "jetton",
			transfer: core.Transfer{Wallet: testWallet, Destination: *testDestination(false, nil), Token: core.TokenBalance{Token: testUSDT, WalletAddress: &testJWal}, Amount: big.NewInt(1), Comment: "hi"},
			wantMsgs: 1,
			wantMode: wallet.DefaultSendMode,
			wantDest: testJWal,
		},
		{
			name:     "jetton with relay fee",
			transfer: core.Transfer{Wallet: testWallet, Destination: *testDestination(false, nil), Token: core.TokenBalance{Token: testUSDT, WalletAddress: &testJWal}, Amount: big.NewInt(1)},
			opts:     MessageOptions{Internal: true, Excesses: &excesses, RelayFee: big.NewInt(1)},
			wantMsgs: 2,
			wantMode: wallet.DefaultSendMode,
			wantDest: testJWal,
		},
		{
			name:     "nft",
			transfer: core.Transfer{Wallet: testWallet, Destination: *testDestination(false, nil), Token: core.TokenBalance{Token: core.TON}, Amount: big.NewInt(50_000_000), NftAddress: &testNft},
			wantMsgs: 1,
			wantMode: wallet.DefaultSendMode,
			wantDest: testNft,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := Messages(&tt.transfer, testKey, tt.opts)
			require.Nil(t, err)
			require.Len(t, msgs, tt.wantMsgs)
			require.Equal(t, tt.wantMode, msgs[0].Mode)
			require.Equal(t, tt.wantDest, msgs[0].Destination)
		})
	}
}

func TestSign_WithinLimits(t *testing.T) {
	tests := []struct {
		name     string
		transfer core.Transfer
	}{
		{
			name:     "ton",
			transfer: core.Transfer{Wallet: testWallet, Destination: *testDestination(true, nil), Token: core.TokenBalance{Token: core.TON}, Amount: big.NewInt(3_000_000_000), Seqno: 1},
		},
		{
			name:     "jetton",
			transfer: core.Transfer{Wallet: testWallet, Destination: *testDestination(false, nil), Token: core.TokenBalance{Token: testUSDT, WalletAddress: &testJWal}, Amount: big.NewInt(1_000_000), Seqno: 1, Comment: "invoice 7"},
		},
		{
			name:     "nft",
			transfer: core.Transfer{Wallet: testWallet, Destination: *testDestination(false, nil), Token: core.TokenBalance{Token: core.TON}, Amount: big.NewInt(50_000_000), NftAddress: &testNft, Seqno: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := Sign(&tt.transfer, testKey, MessageOptions{})
			require.Nil(t, err)
			risk, err := wallet.ExtractRisk(tongoWallet.V4R2, signed.Body)
			require.Nil(t, err)
			require.Nil(t, risk.Within(Limits(&tt.transfer, MessageOptions{})))
		})
	}
}

func TestSign_EncryptedCommentNeedsKey(t *testing.T) {
	tr := core.Transfer{
		Wallet:           testWallet,
		Destination:      *testDestination(false, nil),
		Token:            core.TokenBalance{Token: core.TON},
		Amount:           big.NewInt(1),
		Comment:          "secret",
		CommentEncrypted: true,
	}
	_, err := Sign(&tr, testKey, MessageOptions{})
	require.ErrorIs(t, err, core.ErrEncryptionUnavailable)
}

func TestPrepare_ExternalSigner(t *testing.T) {
	ledger := testWallet
	ledger.Type = core.WalletLedger
	tr := core.Transfer{Wallet: ledger, Destination: *testDestination(false, nil), Token: core.TokenBalance{Token: testUSDT, WalletAddress: &testJWal}, Amount: big.NewInt(1_000_000), Seqno: 3, Comment: "invoice 8"}

	unsigned, err := Prepare(&tr, MessageOptions{})
	require.Nil(t, err)
	hash, err := unsigned.Hash()
	require.Nil(t, err)
	signed, err := unsigned.Attach(testKey.Public().(ed25519.PublicKey), ed25519.Sign(testKey, hash))
	require.Nil(t, err)
	require.NotNil(t, signed.External)

	want, err := Sign(&tr, testKey, MessageOptions{})
	require.Nil(t, err)
	wantHash, err := want.External.Hash()
	require.Nil(t, err)
	gotHash, err := signed.External.Hash()
	require.Nil(t, err)
	require.Equal(t, wantHash, gotHash)

	recipient, _, err := ed25519.GenerateKey(nil)
	require.Nil(t, err)
	tr.Destination = *testDestination(false, recipient)
	tr.CommentEncrypted = true
	_, err = Prepare(&tr, MessageOptions{})
	require.ErrorIs(t, err, core.ErrEncryptionUnavailable)
}

func TestOptionsFor(t *testing.T) {
	excesses := tongo.MustParseAccountID("0:0000000000000000000000000000000000000000000000000000000000000001")
	require.Equal(t, MessageOptions{}, OptionsFor(core.DefaultStrategy()))
	battery := OptionsFor(core.BatteryStrategy(excesses))
	require.True(t, battery.Internal)
	require.Equal(t, excesses, *battery.Excesses)
	require.Nil(t, battery.RelayFee)
	gasless := OptionsFor(core.GaslessStrategy(excesses, big.NewInt(7)))
	require.Equal(t, big.NewInt(7), gasless.RelayFee)
}
