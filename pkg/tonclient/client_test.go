package tonclient

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo/ton"
	tongoWallet "github.com/tonkeeper/tongo/wallet"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

type fakeIndexer struct {
	jettons     []tonapi.JettonBalance
	account     *tonapi.Account
	rawAccount  *tonapi.BlockchainRawAccount
	accountErrs []error
	publicKey   string
	trace       tonapi.Trace
	sendErr     error
	sent        []string
	calls       int
}

func (f *fakeIndexer) GetAccount(ctx context.Context, params tonapi.GetAccountParams) (*tonapi.Account, error) {
	f.calls++
	if len(f.accountErrs) > 0 {
		err := f.accountErrs[0]
		f.accountErrs = f.accountErrs[1:]
		return nil, err
	}
	return f.account, nil
}

func (f *fakeIndexer) GetAccountPublicKey(ctx context.Context, params tonapi.GetAccountPublicKeyParams) (*tonapi.GetAccountPublicKeyOK, error) {
	return &tonapi.GetAccountPublicKeyOK{PublicKey: f.publicKey}, nil
}

func (f *fakeIndexer) GetBlockchainRawAccount(ctx context.Context, params tonapi.GetBlockchainRawAccountParams) (*tonapi.BlockchainRawAccount, error) {
	if f.rawAccount == nil {
		return nil, &tonapi.ErrorStatusCode{StatusCode: 404}
	}
	return f.rawAccount, nil
}

func (f *fakeIndexer) EmulateMessageToWallet(ctx context.Context, request *tonapi.EmulateMessageToWalletReq, params tonapi.EmulateMessageToWalletParams) (*tonapi.MessageConsequences, error) {
	return &tonapi.MessageConsequences{Trace: f.trace}, nil
}

func (f *fakeIndexer) SendBlockchainMessage(ctx context.Context, request *tonapi.SendBlockchainMessageReq) error {
	f.sent = append(f.sent, request.Boc.Value)
	return f.sendErr
}

func (f *fakeIndexer) GetAccountJettonsBalances(ctx context.Context, params tonapi.GetAccountJettonsBalancesParams) (*tonapi.JettonsBalances, error) {
	return &tonapi.JettonsBalances{Balances: f.jettons}, nil
}

type fakeChain struct {
	seqno   uint32
	time    uint32
	timeErr error
}

func (f *fakeChain) GetSeqno(ctx context.Context, account ton.AccountID) (uint32, error) {
	return f.seqno, nil
}

func (f *fakeChain) GetTime(ctx context.Context) (uint32, error) {
	return f.time, f.timeErr
}

const rawAddress = "0:6ccd325a858c379693fae2bcaab1c2906831a4e10a6c3bb44ee8b615bca1d220"

func TestResolveAccount(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "found",
			wantCalls: 1,
		},
		{
			name:      "retries server errors",
			errs:      []error{&tonapi.ErrorStatusCode{StatusCode: 502}},
			wantCalls: 2,
		},
		{
			name:      "does not retry client errors",
			errs:      []error{&tonapi.ErrorStatusCode{StatusCode: 404}},
			wantErr:   true,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &tonapi.Account{
				Address:  rawAddress,
				Status:   "active",
				IsWallet: true,
				Balance:  1_000_000_000,
			}
			account.MemoRequired.SetTo(true)
			idx := &fakeIndexer{account: account, accountErrs: tt.errs}
			c := newClient(network{indexer: idx}, network{}, nil)
			info, err := c.ResolveAccount(context.Background(), "foo.ton", false)
			require.Equal(t, tt.wantCalls, idx.calls)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, ton.MustParseAccountID(rawAddress), info.Address)
			require.Equal(t, core.AccountActive, info.Status)
			require.True(t, info.IsWallet)
			require.True(t, info.MemoRequired)
			require.Equal(t, int64(1_000_000_000), info.Balance)
		})
	}
}

func TestGetPublicKey(t *testing.T) {
	key, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "valid", value: hex.EncodeToString(key)},
		{name: "short", value: "abcd", wantErr: true},
		{name: "not hex", value: "zz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(network{}, network{indexer: &fakeIndexer{publicKey: tt.value}}, nil)
			got, err := c.GetPublicKey(context.Background(), rawAddress, true)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, key, got)
		})
	}
}

func TestWalletVersion(t *testing.T) {
	code, err := tongoWallet.GetCodeByVer(tongoWallet.V4R2).ToBoc()
	require.NoError(t, err)
	tests := []struct {
		name    string
		raw     *tonapi.BlockchainRawAccount
		want    tongoWallet.Version
		wantErr error
	}{
		{
			name: "v4r2",
			raw:  &tonapi.BlockchainRawAccount{Code: tonapi.NewOptString(hex.EncodeToString(code))},
			want: tongoWallet.V4R2,
		},
		{name: "uninit", raw: &tonapi.BlockchainRawAccount{}, wantErr: wallet.ErrNoCode},
		{name: "nonexist", wantErr: wallet.ErrNoCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(network{indexer: &fakeIndexer{rawAccount: tt.raw}}, network{}, nil)
			got, err := c.WalletVersion(context.Background(), ton.MustParseAccountID(rawAddress), false)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEmulateSumsTrace(t *testing.T) {
	trace := tonapi.Trace{
		Transaction: tonapi.Transaction{TotalFees: 100},
		Children: []tonapi.Trace{
			{Transaction: tonapi.Transaction{TotalFees: 20}},
			{
				Transaction: tonapi.Transaction{TotalFees: 3},
				Children:    []tonapi.Trace{{Transaction: tonapi.Transaction{TotalFees: 4}}},
			},
		},
	}
	c := newClient(network{indexer: &fakeIndexer{trace: trace}}, network{}, nil)
	fees, err := c.Emulate(context.Background(), []byte{1, 2, 3}, false)
	require.NoError(t, err)
	require.Equal(t, int64(127), fees.TotalFees)
}

func TestMetadata(t *testing.T) {
	chainTime := uint32(1_700_000_000)
	c := newClient(network{chain: &fakeChain{seqno: 7, time: chainTime}}, network{chain: &fakeChain{timeErr: errors.New("down")}}, nil)

	seqno, err := c.Seqno(context.Background(), core.Wallet{})
	require.NoError(t, err)
	require.Equal(t, uint32(7), seqno)

	validUntil, err := c.ValidUntil(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, time.Unix(int64(chainTime), 0).Add(ValidityWindow), validUntil)

	_, err = c.ValidUntil(context.Background(), true)
	require.ErrorContains(t, err, "down")
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.AcceptanceState
	}{
		{name: "accepted", want: core.AcceptanceSuccess},
		{name: "rejected", err: &tonapi.ErrorStatusCode{StatusCode: 400}, want: core.AcceptanceStatusError},
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: core.AcceptanceUnknownError},
		{name: "timeout", err: context.DeadlineExceeded, want: core.AcceptanceUnknownError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fakeIndexer{sendErr: tt.err}
			c := newClient(network{indexer: idx}, network{}, nil)
			require.Equal(t, tt.want, c.Submit(context.Background(), []byte{0xb5, 0xee}, false))
			require.Equal(t, []string{"te4="}, idx.sent)
		})
	}
}

func TestJettonBalance(t *testing.T) {
	const (
		usdt       = "0:b113a994b5024a16719f69139328eb759596c38a25f59028b146fecdc3621dfe"
		usdtWallet = "0:2f956143c461769579baef2e32cc2d7bc18283f40d20bb03e432cd603ac33ffc"
	)
	idx := &fakeIndexer{jettons: []tonapi.JettonBalance{
		{
			Balance:       "12500000",
			WalletAddress: tonapi.AccountAddress{Address: usdtWallet},
			Jetton:        tonapi.JettonPreview{Address: usdt, Symbol: "USD₮", Decimals: 6},
		},
	}}
	c := newClient(network{indexer: idx}, network{}, nil)

	balance, err := c.JettonBalance(context.Background(), ton.MustParseAccountID(rawAddress), ton.MustParseAccountID(usdt), false)
	require.NoError(t, err)
	require.Equal(t, "12.5", balance.Balance.String())
	require.Equal(t, "USD₮", balance.Token.Symbol)
	require.Equal(t, int32(6), balance.Token.Decimals)
	require.Equal(t, ton.MustParseAccountID(usdtWallet), *balance.WalletAddress)

	_, err = c.JettonBalance(context.Background(), ton.MustParseAccountID(rawAddress), ton.MustParseAccountID(rawAddress), false)
	require.ErrorIs(t, err, ErrJettonNotFound)
}
