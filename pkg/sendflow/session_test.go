package sendflow

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/ton"
	tongoWallet "github.com/tonkeeper/tongo/wallet"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/sender"
	"github.com/arnac-io/tonsend/pkg/transfer"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

var (
	testOwner    = ton.MustParseAccountID("0:6ccd325a858c379693fae2bcaab1c290683193d42a6c3bb44ee8b615bca1d220")
	testTarget   = ton.MustParseAccountID("0:533f30de5722157b8471f5503b9fc5800c8d8397e7975f7ed6b11e609adae69f")
	testExcesses = ton.MustParseAccountID("0:0000000000000000000000000000000000000000000000000000000000000001")
	testWallet   = core.Wallet{ID: "w", Address: testOwner, Version: tongoWallet.V5R1, Type: core.WalletDefault}
	tonBalance   = core.TokenBalance{Token: core.TON, Balance: decimal.NewFromInt(100)}
)

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, address string, testnet bool) core.Destination {
	if address == "" {
		return core.DestinationEmpty
	}
	return &core.DestinationAccount{Address: testTarget, Raw: address, Existing: true}
}

type fakeMetadata struct {
	seqnoErr error
}

func (f *fakeMetadata) Seqno(ctx context.Context, w core.Wallet) (uint32, error) {
	return 7, f.seqnoErr
}

func (f *fakeMetadata) ValidUntil(ctx context.Context, testnet bool) (time.Time, error) {
	return time.Unix(1_700_000_300, 0), nil
}

type fakeFees struct {
	mu        sync.Mutex
	calls     int
	transfers []*core.Transfer
	prefs     core.Preferences
	// block makes Estimate wait for ctx cancellation.
	block   bool
	started chan struct{}
	err     error
}

func (f *fakeFees) Estimate(ctx context.Context, t *core.Transfer) (core.Estimate, error) {
	f.mu.Lock()
	f.calls++
	f.transfers = append(f.transfers, t)
	block := f.block
	f.mu.Unlock()
	if block {
		close(f.started)
		<-ctx.Done()
		return core.Estimate{}, ctx.Err()
	}
	if f.err != nil {
		return core.Estimate{}, f.err
	}
	if f.prefs != nil && f.prefs.PreferGasless(false) {
		return core.Estimate{
			Fee: big.NewInt(120_000), FeeToken: core.Token{Symbol: "USDT", Decimals: 6},
			Strategy: core.GaslessStrategy(testExcesses, big.NewInt(120_000)), GaslessEligible: true,
		}, nil
	}
	return core.Estimate{Fee: big.NewInt(6_143_945), FeeToken: core.TON, Strategy: core.DefaultStrategy(), GaslessEligible: true}, nil
}

func (f *fakeFees) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSubmitter struct {
	transfer  *core.Transfer
	strategy  core.RelayStrategy
	prepared  *core.Transfer
	signature []byte
}

func (f *fakeSubmitter) Submit(ctx context.Context, t *core.Transfer, strategy core.RelayStrategy) (sender.Result, error) {
	f.transfer, f.strategy = t, strategy
	return sender.Result{Hash: "abc", Strategy: strategy}, nil
}

func (f *fakeSubmitter) Prepare(t *core.Transfer, strategy core.RelayStrategy) (*wallet.Unsigned, error) {
	f.prepared = t
	return transfer.Prepare(t, transfer.OptionsFor(strategy))
}

func (f *fakeSubmitter) SubmitSigned(ctx context.Context, t *core.Transfer, strategy core.RelayStrategy, signature []byte) (sender.Result, error) {
	f.transfer, f.strategy, f.signature = t, strategy, signature
	return sender.Result{Hash: "signed", Strategy: strategy}, nil
}

type fakeRates struct{}

func (fakeRates) FromFiat(ctx context.Context, token core.Token, amount decimal.Decimal) (decimal.Decimal, error) {
	return amount.Div(decimal.NewFromInt(4)), nil
}

func (fakeRates) ToFiat(ctx context.Context, token core.Token, amount decimal.Decimal) (decimal.Decimal, error) {
	return amount.Mul(decimal.NewFromInt(4)), nil
}

type fixture struct {
	session   *Session
	fees      *fakeFees
	submitter *fakeSubmitter
	prefs     *MemoryPreferences
}

func newFixture(t *testing.T, metadata *fakeMetadata) *fixture {
	prefs := NewMemoryPreferences()
	fees := &fakeFees{prefs: prefs}
	submitter := &fakeSubmitter{}
	if metadata == nil {
		metadata = &fakeMetadata{}
	}
	s := NewSession(context.Background(), Config{
		Wallet:      testWallet,
		Token:       tonBalance,
		TonBalance:  tonBalance.Balance,
		Resolver:    fakeResolver{},
		Builder:     transfer.NewBuilder(nil),
		Fees:        fees,
		Submitter:   submitter,
		Metadata:    metadata,
		Preferences: prefs,
		Rates:       fakeRates{},
		Debounce:    5 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	return &fixture{session: s, fees: fees, submitter: submitter, prefs: prefs}
}

func waitDestination(t *testing.T, s *Session) DestinationResolved {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case e := <-s.Events():
			if d, ok := e.(DestinationResolved); ok {
				return d
			}
		case <-timeout:
			t.Fatal("destination was not resolved")
		}
	}
}

func TestSession_QuoteAndSubmit(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	resolved := waitDestination(t, f.session)
	require.Equal(t, testTarget.ToRaw(), resolved.Address)
	f.session.SetAmount(decimal.RequireFromString("1.5"))

	q, err := f.session.Quote(context.Background())
	require.Nil(t, err)
	require.Equal(t, "0.00614 TON", q.Display)
	require.True(t, q.ShowGaslessToggle)
	require.False(t, q.Sponsored)
	require.Equal(t, big.NewInt(1_500_000_000), q.Transfer.Amount)
	require.Equal(t, uint32(7), q.Transfer.Seqno)

	again, err := f.session.Quote(context.Background())
	require.Nil(t, err)
	require.Equal(t, q.attemptID, again.attemptID)
	require.Equal(t, 1, f.fees.count())

	result, err := f.session.Submit(context.Background(), q)
	require.Nil(t, err)
	require.Equal(t, "abc", result.Hash)
	require.Same(t, q.Transfer, f.submitter.transfer)
	require.Equal(t, q.Strategy, f.submitter.strategy)
}

func TestSession_EditInvalidatesQuote(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	waitDestination(t, f.session)
	f.session.SetAmount(decimal.NewFromInt(1))
	q, err := f.session.Quote(context.Background())
	require.Nil(t, err)

	f.session.SetComment("changed")
	_, err = f.session.Submit(context.Background(), q)
	require.ErrorIs(t, err, core.ErrQuoteInvalidated)
	require.Nil(t, f.submitter.transfer)

	fresh, err := f.session.Quote(context.Background())
	require.Nil(t, err)
	require.NotEqual(t, q.Transfer.QueryID, fresh.Transfer.QueryID)
	require.Equal(t, "changed", fresh.Transfer.Comment)
}

func TestSession_NoOpEditKeepsQuote(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	waitDestination(t, f.session)
	f.session.SetAmount(decimal.NewFromInt(1))
	q, err := f.session.Quote(context.Background())
	require.Nil(t, err)

	f.session.SetAmount(decimal.RequireFromString("1.00"))
	_, err = f.session.Submit(context.Background(), q)
	require.Nil(t, err)
}

func TestSession_Next(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	waitDestination(t, f.session)

	f.session.SetAmount(decimal.NewFromInt(101))
	_, err := f.session.Next(context.Background())
	require.ErrorIs(t, err, core.ErrInsufficientBalance)

	f.session.SetAmount(decimal.NewFromInt(96))
	_, err = f.session.Next(context.Background())
	require.ErrorIs(t, err, core.ErrNearExhaustion)
	var near *NearExhaustionError
	require.ErrorAs(t, err, &near)
	require.Equal(t, "TON", near.Warning.Symbol)
	require.True(t, near.Warning.Amount.Equal(decimal.NewFromInt(96)))
	require.True(t, near.Warning.Balance.Equal(decimal.NewFromInt(100)))
	select {
	case e := <-f.session.Events():
		warning, ok := e.(NearExhaustionWarning)
		require.True(t, ok)
		require.Equal(t, "TON", warning.Symbol)
	case <-time.After(time.Second):
		t.Fatal("no warning")
	}

	f.session.ConfirmNearExhaustion()
	q, err := f.session.Next(context.Background())
	require.Nil(t, err)
	require.Equal(t, big.NewInt(96_000_000_000), q.Transfer.Amount)

	f.session.SetAmount(decimal.NewFromInt(97))
	_, err = f.session.Next(context.Background())
	require.ErrorIs(t, err, core.ErrNearExhaustion)
}

func TestSession_FiatInput(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	waitDestination(t, f.session)
	f.session.SetAmountInFiat(true)
	f.session.SetAmount(decimal.NewFromInt(10))
	q, err := f.session.Quote(context.Background())
	require.Nil(t, err)
	require.Equal(t, big.NewInt(2_500_000_000), q.Transfer.Amount)
}

func TestSession_ToggleGasless(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	waitDestination(t, f.session)
	f.session.SetAmount(decimal.NewFromInt(1))
	q, err := f.session.Quote(context.Background())
	require.Nil(t, err)
	require.False(t, q.Gasless)

	toggled, err := f.session.ToggleGasless(context.Background())
	require.Nil(t, err)
	require.True(t, f.prefs.PreferGasless(false))
	require.True(t, toggled.Gasless)
	require.Equal(t, "0.12 USDT", toggled.Display)
	require.Equal(t, q.Transfer.QueryID, toggled.Transfer.QueryID)
	require.Equal(t, 2, f.fees.count())

	_, err = f.session.Submit(context.Background(), q)
	require.ErrorIs(t, err, core.ErrQuoteInvalidated)
	_, err = f.session.Submit(context.Background(), toggled)
	require.Nil(t, err)
	require.Equal(t, core.RelayGasless, f.submitter.strategy.Kind)
}

func TestSession_ToggleGaslessWithoutPreferences(t *testing.T) {
	f := newFixture(t, nil)
	f.session.cfg.Preferences = nil
	_, err := f.session.ToggleGasless(context.Background())
	require.ErrorIs(t, err, core.ErrRelayUnavailable)
	require.Equal(t, 0, f.fees.count())
}

func TestSession_ExternalSigner(t *testing.T) {
	key := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	waitDestination(t, f.session)
	f.session.SetAmount(decimal.NewFromInt(1))
	q, err := f.session.Quote(context.Background())
	require.Nil(t, err)

	unsigned, err := f.session.UnsignedBody(q)
	require.Nil(t, err)
	require.Same(t, q.Transfer, f.submitter.prepared)
	hash, err := unsigned.Hash()
	require.Nil(t, err)
	signature := ed25519.Sign(key, hash)

	result, err := f.session.SubmitSigned(context.Background(), q, signature)
	require.Nil(t, err)
	require.Equal(t, "signed", result.Hash)
	require.Same(t, q.Transfer, f.submitter.transfer)
	require.Equal(t, q.Strategy, f.submitter.strategy)
	require.Equal(t, signature, f.submitter.signature)

	// a submitted quote can't be sent again
	_, err = f.session.SubmitSigned(context.Background(), q, signature)
	require.ErrorIs(t, err, core.ErrQuoteInvalidated)

	fresh, err := f.session.Quote(context.Background())
	require.Nil(t, err)
	f.session.SetComment("edited")
	_, err = f.session.UnsignedBody(fresh)
	require.ErrorIs(t, err, core.ErrQuoteInvalidated)
	_, err = f.session.SubmitSigned(context.Background(), fresh, signature)
	require.ErrorIs(t, err, core.ErrQuoteInvalidated)
}

func TestSession_SwapAmountCurrency(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAmount(decimal.RequireFromString("2.5"))
	require.Nil(t, f.session.SwapAmountCurrency(context.Background()))
	in := f.session.Input().Input
	require.True(t, in.AmountInFiat)
	require.True(t, in.Amount.Equal(decimal.NewFromInt(10)), in.Amount.String())

	require.Nil(t, f.session.SwapAmountCurrency(context.Background()))
	in = f.session.Input().Input
	require.False(t, in.AmountInFiat)
	require.True(t, in.Amount.Equal(decimal.RequireFromString("2.5")), in.Amount.String())

	f.session.cfg.Rates = nil
	require.Error(t, f.session.SwapAmountCurrency(context.Background()))
}

func TestSession_StaleEstimate(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	waitDestination(t, f.session)
	f.session.SetAmount(decimal.NewFromInt(1))
	f.fees.mu.Lock()
	f.fees.block = true
	f.fees.started = make(chan struct{})
	f.fees.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		_, err := f.session.Quote(context.Background())
		errCh <- err
	}()
	<-f.fees.started
	f.session.SetAmount(decimal.NewFromInt(2))
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, core.ErrStaleInput)
	case <-time.After(time.Second):
		t.Fatal("estimate was not cancelled")
	}
}

func TestSession_InvalidDestination(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAmount(decimal.NewFromInt(1))
	_, err := f.session.Quote(context.Background())
	require.ErrorIs(t, err, core.ErrInvalidDestination)
	require.Equal(t, 0, f.fees.count())
}

func TestSession_MetadataFailure(t *testing.T) {
	f := newFixture(t, &fakeMetadata{seqnoErr: errors.New("liteserver down")})
	f.session.SetAddress(testTarget.ToRaw())
	waitDestination(t, f.session)
	_, err := f.session.Quote(context.Background())
	require.ErrorContains(t, err, "liteserver down")
	require.Equal(t, 0, f.fees.count())
}

func TestSession_Close(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetAddress(testTarget.ToRaw())
	f.session.Close()
	f.session.Close()
	for range f.session.Events() {
	}
	_, err := f.session.Quote(context.Background())
	require.ErrorIs(t, err, core.ErrCancelled)
}

func TestEncryptedCommentAvailable(t *testing.T) {
	key, _, err := ed25519.GenerateKey(nil)
	require.Nil(t, err)
	watch := testWallet
	watch.Type = core.WalletWatch
	tests := []struct {
		name   string
		wallet core.Wallet
		dest   core.Destination
		want   bool
	}{
		{name: "ok", wallet: testWallet, dest: &core.DestinationAccount{Existing: true, PublicKey: key}, want: true},
		{name: "empty", wallet: testWallet, dest: core.DestinationEmpty},
		{name: "not found", wallet: testWallet, dest: core.DestinationNotFound},
		{name: "not deployed", wallet: testWallet, dest: &core.DestinationAccount{PublicKey: key}},
		{name: "memo required", wallet: testWallet, dest: &core.DestinationAccount{Existing: true, MemoRequired: true, PublicKey: key}},
		{name: "no key", wallet: testWallet, dest: &core.DestinationAccount{Existing: true}},
		{name: "watch only", wallet: watch, dest: &core.DestinationAccount{Existing: true, PublicKey: key}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, encryptedCommentAvailable(tt.wallet, tt.dest))
		})
	}
}

func TestMemoryPreferences(t *testing.T) {
	p := NewMemoryPreferences(core.BatteryJetton)
	require.True(t, p.BatteryEnabled(testOwner, core.BatteryJetton))
	require.False(t, p.BatteryEnabled(testOwner, core.BatteryNft))
	p.DisableBattery(testOwner)
	require.False(t, p.BatteryEnabled(testOwner, core.BatteryJetton))
	require.True(t, p.BatteryEnabled(testTarget, core.BatteryJetton))

	require.False(t, p.PreferGasless(true))
	p.SetPreferGasless(true, true)
	require.True(t, p.PreferGasless(true))
	require.False(t, p.PreferGasless(false))
}
