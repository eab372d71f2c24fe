// Package sendflow drives a single send attempt: it keeps the user input,
// resolves the destination, quotes the fee and submits the transfer the fee was quoted for.
package sendflow

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/destination"
	"github.com/arnac-io/tonsend/pkg/guard"
	"github.com/arnac-io/tonsend/pkg/i18n"
	"github.com/arnac-io/tonsend/pkg/sender"
	"github.com/arnac-io/tonsend/pkg/transfer"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

type TransferBuilder interface {
	Build(ctx context.Context, p transfer.BuildParams) (*core.Transfer, error)
}

type FeeEstimator interface {
	Estimate(ctx context.Context, t *core.Transfer) (core.Estimate, error)
}

type TransferSubmitter interface {
	Submit(ctx context.Context, t *core.Transfer, strategy core.RelayStrategy) (sender.Result, error)
	Prepare(t *core.Transfer, strategy core.RelayStrategy) (*wallet.Unsigned, error)
	SubmitSigned(ctx context.Context, t *core.Transfer, strategy core.RelayStrategy, signature []byte) (sender.Result, error)
}

type Config struct {
	Wallet core.Wallet
	// Token is preselected on the send screen.
	Token      core.TokenBalance
	TonBalance decimal.Decimal

	Resolver    destination.DestinationResolver
	Builder     TransferBuilder
	Fees        FeeEstimator
	Submitter   TransferSubmitter
	Metadata    core.MetadataSource
	Preferences core.Preferences
	// Rates is only required for fiat input.
	Rates core.RateConverter

	Debounce time.Duration
	Logger   *zap.Logger
}

// Quote is a fee quote bound to the attempt it was computed for.
type Quote struct {
	core.FeeQuote
	Transfer  *core.Transfer
	attemptID uint64
}

// attempt is the transfer built for one input version together with its estimate.
type attempt struct {
	id       uint64
	version  uint64
	destGen  uint64
	transfer *core.Transfer
	estimate core.Estimate
}

// Session is one send flow. Results computed for an input that changed
// meanwhile are never delivered.
type Session struct {
	cfg     Config
	logger  *zap.Logger
	input   *transfer.InputState
	tracker *destination.Tracker

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	closed    bool
	seen      uint64
	dest      core.Destination
	destGen   uint64
	attempt   *attempt
	attempts  uint64
	inflight  context.CancelFunc
	confirmed *uint64
}

func NewSession(ctx context.Context, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		cfg:     cfg,
		logger:  logger,
		input:   transfer.NewInputState(cfg.Token),
		tracker: destination.NewTracker(ctx, cfg.Resolver, cfg.Wallet.Testnet, cfg.Debounce, logger),
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
		dest:    core.DestinationEmpty,
	}
	go s.consume()
	return s
}

// Events delivers destination resolutions, quotes and warnings. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		s.logger.Debug("event dropped, nobody is listening")
	}
}

func (s *Session) consume() {
	defer close(s.done)
	for res := range s.tracker.Results() {
		s.mu.Lock()
		if res.Generation != s.tracker.Generation() {
			s.mu.Unlock()
			continue
		}
		s.dest = res.Destination
		s.destGen = res.Generation
		s.invalidateLocked()
		available := encryptedCommentAvailable(s.cfg.Wallet, s.dest)
		s.mu.Unlock()
		s.emit(DestinationResolved{Address: res.Address, Destination: res.Destination, EncryptedCommentAvailable: available})
	}
}

func (s *Session) invalidateLocked() {
	s.attempt = nil
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
}

// changed drops the current attempt if snap is a new version.
func (s *Session) changed(snap transfer.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Version == s.seen {
		return false
	}
	s.seen = snap.Version
	s.invalidateLocked()
	return true
}

func (s *Session) SetAddress(address string) {
	if snap := s.input.SetAddress(address); s.changed(snap) {
		s.tracker.Update(snap.Input.Address)
	}
}

func (s *Session) SetAmount(amount decimal.Decimal) { s.changed(s.input.SetAmount(amount)) }

func (s *Session) SetToken(token core.TokenBalance) { s.changed(s.input.SetToken(token)) }

func (s *Session) SetComment(comment string) { s.changed(s.input.SetComment(comment)) }

func (s *Session) SetEncryptedComment(encrypted bool) {
	s.changed(s.input.SetEncryptedComment(encrypted))
}

func (s *Session) SetMax(max bool) { s.changed(s.input.SetMax(max)) }

func (s *Session) SetNft(nft *ton.AccountID) { s.changed(s.input.SetNft(nft)) }

func (s *Session) SetAmountInFiat(fiat bool) { s.changed(s.input.SetAmountInFiat(fiat)) }

// SwapAmountCurrency switches the amount between token units and fiat,
// converting it at the current rate.
func (s *Session) SwapAmountCurrency(ctx context.Context) error {
	if err := s.closedErr(); err != nil {
		return err
	}
	if s.cfg.Rates == nil {
		return errors.New("amount swap without rates")
	}
	snap := s.input.Snapshot()
	in := snap.Input
	if in.Nft != nil {
		return errors.New("nft transfers have no amount")
	}
	var (
		converted decimal.Decimal
		err       error
	)
	if in.AmountInFiat {
		converted, err = s.cfg.Rates.FromFiat(ctx, in.Token.Token, in.Amount)
		converted = converted.Truncate(in.Token.Token.Decimals)
	} else {
		converted, err = s.cfg.Rates.ToFiat(ctx, in.Token.Token, in.Amount)
	}
	if err != nil {
		return errors.Wrap(err, "convert amount")
	}
	next, ok := s.input.SwapAmountCurrency(snap.Version, converted)
	if !ok {
		return core.ErrStaleInput
	}
	s.changed(next)
	return nil
}

// Input returns the current user input.
func (s *Session) Input() transfer.Snapshot {
	return s.input.Snapshot()
}

// Destination returns the latest applied destination.
func (s *Session) Destination() core.Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dest
}

// EncryptedCommentAvailable reports whether a comment to the current destination can be encrypted.
func (s *Session) EncryptedCommentAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return encryptedCommentAvailable(s.cfg.Wallet, s.dest)
}

func encryptedCommentAvailable(w core.Wallet, dest core.Destination) bool {
	account, ok := dest.(*core.DestinationAccount)
	if !ok {
		return false
	}
	return account.Existing && !account.MemoRequired && w.HasPrivateKey() && len(account.PublicKey) > 0
}

// ConfirmNearExhaustion lets Next proceed for the current input although the
// amount is close to the whole balance.
func (s *Session) ConfirmNearExhaustion() {
	version := s.input.Snapshot().Version
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = &version
}

func (s *Session) nearExhaustionConfirmed(version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed != nil && *s.confirmed == version
}

// bind returns a context cancelled by ctx or by closing the session.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) currentLocked(version, destGen uint64) bool {
	return s.input.Current(version) && s.destGen == destGen
}

func (s *Session) closedErr() error {
	if s.ctx.Err() != nil {
		return errors.Wrap(core.ErrCancelled, "session closed")
	}
	return nil
}

// failure maps err of a computation for version and destGen.
func (s *Session) failure(version, destGen uint64, err error) error {
	if err := s.closedErr(); err != nil {
		return err
	}
	s.mu.Lock()
	current := s.currentLocked(version, destGen)
	s.mu.Unlock()
	if !current {
		return core.ErrStaleInput
	}
	return err
}

// tokenInput converts fiat input into token units.
func (s *Session) tokenInput(ctx context.Context, in transfer.UserInput) (transfer.UserInput, error) {
	if !in.AmountInFiat || in.Nft != nil {
		return in, nil
	}
	if s.cfg.Rates == nil {
		return in, errors.New("fiat input without rates")
	}
	amount, err := s.cfg.Rates.FromFiat(ctx, in.Token.Token, in.Amount)
	if err != nil {
		return in, errors.Wrap(err, "convert fiat amount")
	}
	in.Amount = amount.Truncate(in.Token.Token.Decimals)
	in.AmountInFiat = false
	return in, nil
}

func (s *Session) metadata(ctx context.Context) (core.SendMetadata, error) {
	var meta core.SendMetadata
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		seqno, err := s.cfg.Metadata.Seqno(ctx, s.cfg.Wallet)
		if err != nil {
			return errors.Wrap(err, "seqno")
		}
		meta.Seqno = seqno
		return nil
	})
	p.Go(func(ctx context.Context) error {
		validUntil, err := s.cfg.Metadata.ValidUntil(ctx, s.cfg.Wallet.Testnet)
		if err != nil {
			return errors.Wrap(err, "valid until")
		}
		meta.ValidUntil = validUntil
		return nil
	})
	if err := p.Wait(); err != nil {
		return core.SendMetadata{}, errors.Wrap(err, "send metadata")
	}
	return meta, nil
}

// Next checks the amount against the balance and quotes the fee.
// A *NearExhaustionError is returned until ConfirmNearExhaustion is called for the current input.
func (s *Session) Next(ctx context.Context) (Quote, error) {
	if err := s.closedErr(); err != nil {
		return Quote{}, err
	}
	snap := s.input.Snapshot()
	if snap.Input.Nft == nil {
		in, err := s.tokenInput(ctx, snap.Input)
		if err != nil {
			return Quote{}, err
		}
		balance := in.Token.Balance
		if guard.NearExhaustion(in.Amount, balance) && !s.nearExhaustionConfirmed(snap.Version) {
			warning := NearExhaustionWarning{Amount: in.Amount, Balance: balance, Symbol: in.Token.Token.Symbol}
			s.emit(warning)
			return Quote{}, &NearExhaustionError{Warning: warning}
		}
		if guard.Insufficient(in.Amount, balance) {
			return Quote{}, core.ErrInsufficientBalance
		}
	}
	return s.Quote(ctx)
}

// Quote builds a transfer for the current input and estimates its fee.
// The quote is reused while neither the input nor the destination change.
func (s *Session) Quote(ctx context.Context) (Quote, error) {
	if err := s.closedErr(); err != nil {
		return Quote{}, err
	}
	ctx, release := s.bind(ctx)
	defer release()

	snap := s.input.Snapshot()
	s.mu.Lock()
	if att := s.attempt; att != nil && s.currentLocked(att.version, att.destGen) {
		q := s.quoteLocked(att)
		s.mu.Unlock()
		return q, nil
	}
	dest, destGen := s.dest, s.destGen
	if s.inflight != nil {
		s.inflight()
	}
	s.inflight = release
	s.mu.Unlock()

	if s.tracker.Generation() != destGen {
		return Quote{}, errors.Wrap(core.ErrStaleInput, "destination is being resolved")
	}
	meta, err := s.metadata(ctx)
	if err != nil {
		return Quote{}, s.failure(snap.Version, destGen, err)
	}
	in, err := s.tokenInput(ctx, snap.Input)
	if err != nil {
		return Quote{}, s.failure(snap.Version, destGen, err)
	}
	t, err := s.cfg.Builder.Build(ctx, transfer.BuildParams{
		Wallet:      s.cfg.Wallet,
		Destination: dest,
		Input:       in,
		Metadata:    meta,
		QueryID:     transfer.NewQueryID(),
		TonBalance:  s.cfg.TonBalance,
	})
	if err != nil {
		return Quote{}, s.failure(snap.Version, destGen, err)
	}
	estimate, err := s.cfg.Fees.Estimate(ctx, t)
	if err != nil {
		return Quote{}, s.failure(snap.Version, destGen, err)
	}

	s.mu.Lock()
	if !s.currentLocked(snap.Version, destGen) {
		s.mu.Unlock()
		return Quote{}, core.ErrStaleInput
	}
	s.attempts++
	att := &attempt{id: s.attempts, version: snap.Version, destGen: destGen, transfer: t, estimate: estimate}
	s.attempt = att
	q := s.quoteLocked(att)
	s.mu.Unlock()

	s.logger.Debug("fee quoted",
		zap.Stringer("relay", estimate.Strategy.Kind),
		zap.String("fee", q.Display),
		zap.Uint64("query_id", t.QueryID))
	s.emit(FeeQuoted{Quote: q})
	return q, nil
}

func (s *Session) quoteLocked(att *attempt) Quote {
	estimate := att.estimate
	minTon := core.TON.FromUnits(transfer.BaseForwardAmount)
	return Quote{
		FeeQuote: core.FeeQuote{
			Estimate:          estimate,
			Amount:            estimate.FeeToken.FromUnits(estimate.Fee),
			Display:           i18n.FormatTokens(estimate.Fee, estimate.FeeToken.Decimals, estimate.FeeToken.Symbol),
			ShowGaslessToggle: estimate.GaslessEligible && s.cfg.TonBalance.GreaterThanOrEqual(minTon),
			Sponsored:         estimate.Strategy.Kind == core.RelayBattery,
			Gasless:           estimate.Strategy.Kind == core.RelayGasless,
		},
		Transfer:  att.transfer,
		attemptID: att.id,
	}
}

// ToggleGasless flips the gasless preference and estimates the current transfer again.
// The transfer keeps its query id, previous quotes become invalid.
func (s *Session) ToggleGasless(ctx context.Context) (Quote, error) {
	if err := s.closedErr(); err != nil {
		return Quote{}, err
	}
	if s.cfg.Preferences == nil {
		return Quote{}, errors.Wrap(core.ErrRelayUnavailable, "no relay preferences")
	}
	testnet := s.cfg.Wallet.Testnet
	s.cfg.Preferences.SetPreferGasless(testnet, !s.cfg.Preferences.PreferGasless(testnet))

	s.mu.Lock()
	att := s.attempt
	if att == nil || !s.currentLocked(att.version, att.destGen) {
		s.mu.Unlock()
		return s.Quote(ctx)
	}
	s.mu.Unlock()

	ctx, release := s.bind(ctx)
	defer release()
	estimate, err := s.cfg.Fees.Estimate(ctx, att.transfer)
	if err != nil {
		return Quote{}, s.failure(att.version, att.destGen, err)
	}
	s.mu.Lock()
	if s.attempt != att || !s.currentLocked(att.version, att.destGen) {
		s.mu.Unlock()
		return Quote{}, core.ErrStaleInput
	}
	s.attempts++
	next := &attempt{id: s.attempts, version: att.version, destGen: att.destGen, transfer: att.transfer, estimate: estimate}
	s.attempt = next
	q := s.quoteLocked(next)
	s.mu.Unlock()
	s.emit(FeeQuoted{Quote: q})
	return q, nil
}

// quoted returns the attempt q was computed for while it is still current.
func (s *Session) quoted(q Quote) (*attempt, error) {
	if err := s.closedErr(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	att := s.attempt
	if att == nil || att.id != q.attemptID || !s.currentLocked(att.version, att.destGen) {
		return nil, core.ErrQuoteInvalidated
	}
	return att, nil
}

func (s *Session) submitted(att *attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == att {
		s.attempt = nil
	}
}

// Submit sends the transfer of q with the relay its fee was quoted for.
func (s *Session) Submit(ctx context.Context, q Quote) (sender.Result, error) {
	att, err := s.quoted(q)
	if err != nil {
		return sender.Result{}, err
	}
	ctx, release := s.bind(ctx)
	defer release()
	result, err := s.cfg.Submitter.Submit(ctx, att.transfer, att.estimate.Strategy)
	if err != nil {
		return sender.Result{}, err
	}
	s.submitted(att)
	return result, nil
}

// UnsignedBody returns the wallet body an external signer has to sign for q.
func (s *Session) UnsignedBody(q Quote) (*wallet.Unsigned, error) {
	att, err := s.quoted(q)
	if err != nil {
		return nil, err
	}
	return s.cfg.Submitter.Prepare(att.transfer, att.estimate.Strategy)
}

// SubmitSigned broadcasts the transfer of q with a signature of its UnsignedBody.
func (s *Session) SubmitSigned(ctx context.Context, q Quote, signature []byte) (sender.Result, error) {
	att, err := s.quoted(q)
	if err != nil {
		return sender.Result{}, err
	}
	ctx, release := s.bind(ctx)
	defer release()
	result, err := s.cfg.Submitter.SubmitSigned(ctx, att.transfer, att.estimate.Strategy, signature)
	if err != nil {
		return sender.Result{}, err
	}
	s.submitted(att)
	return result, nil
}

// Close cancels every pending resolution, estimate and submission.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.tracker.Close()
		<-s.done
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
}
