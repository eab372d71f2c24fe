// Package fees resolves the network fee of a transfer by trying the battery
// sponsor, the gasless relay and the direct route in this order.
package fees

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/transfer"
)

// placeholderKey signs messages built only for emulation;
// a wallet never accepts them.
var placeholderKey = ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))

// gaslessPlaceholderFee is the relay fee put into a gasless emulation before the real commission is known.
var gaslessPlaceholderFee = big.NewInt(1)

// Engine estimates fees. It is safe for concurrent use.
type Engine struct {
	sponsor  core.SponsorService
	emulator core.Emulator
	keys     core.KeyHolder
	prefs    core.Preferences
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewEngine returns an engine. sponsor may be nil, then only the direct route is used.
func NewEngine(sponsor core.SponsorService, emulator core.Emulator, keys core.KeyHolder, prefs core.Preferences, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		sponsor:  sponsor,
		emulator: emulator,
		keys:     keys,
		prefs:    prefs,
		logger:   logger,
		tracer:   otel.Tracer("github.com/arnac-io/tonsend/pkg/fees"),
	}
}

// relayInputs is what both relay branches need, loaded once per estimate.
type relayInputs struct {
	config     core.SponsorConfig
	proofToken string
	err        error
}

func (r relayInputs) check() error {
	switch {
	case r.err != nil:
		return r.err
	case r.proofToken == "":
		return errors.Wrap(core.ErrRelayUnavailable, "no proof token")
	case r.config.ExcessesAddress == nil:
		return errors.Wrap(core.ErrRelayUnavailable, "no excesses address")
	}
	return nil
}

func (e *Engine) loadRelay(ctx context.Context, t *core.Transfer) relayInputs {
	if e.sponsor == nil {
		return relayInputs{err: errors.Wrap(core.ErrRelayUnavailable, "sponsor is not configured")}
	}
	if t.IsNative() || t.Wallet.IsExternal() || t.Wallet.IsWatchOnly() {
		return relayInputs{err: errNotEligible}
	}
	cfg, err := e.sponsor.Config(ctx, t.Testnet())
	if err != nil {
		return relayInputs{err: errors.Wrap(err, "sponsor config")}
	}
	var token string
	if e.keys != nil {
		token, _ = e.keys.RequestProofToken(ctx, t.Wallet)
	}
	return relayInputs{config: cfg, proofToken: token}
}

func gaslessEligible(t *core.Transfer, relay relayInputs) bool {
	return !t.IsNative() && !t.IsNft() &&
		t.Wallet.SupportsGasless() &&
		relay.check() == nil &&
		relay.config.SupportsGasless(t.Token.Token)
}

// Estimate resolves the fee of t. The returned strategy must be used to submit t.
// When every branch fails the error wraps core.ErrEstimationFailed and each branch error.
func (e *Engine) Estimate(ctx context.Context, t *core.Transfer) (core.Estimate, error) {
	estimate, _, err := e.estimate(ctx, t)
	return estimate, err
}

// estimate also returns the branches in the order they were evaluated.
func (e *Engine) estimate(ctx context.Context, t *core.Transfer) (core.Estimate, []branch, error) {
	ctx, span := e.tracer.Start(ctx, "fees.Estimate", trace.WithAttributes(
		attribute.String("wallet", t.Wallet.Address.ToRaw()),
		attribute.Bool("nft", t.IsNft()),
		attribute.Bool("native", t.IsNative()),
	))
	defer span.End()
	started := time.Now()

	key, err := emulationKey(t)
	if err != nil {
		return core.Estimate{}, nil, err
	}
	relay := e.loadRelay(ctx, t)
	eligible := gaslessEligible(t, relay)

	var c cascade
	for {
		b, ok := c.next()
		if !ok {
			err := multierr.Combine(core.ErrEstimationFailed, c.err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "all branches failed")
			return core.Estimate{}, c.attempts, err
		}
		c.attempt(b)
		estimate, err := e.run(ctx, b, t, key, relay)
		if err == nil {
			estimate.GaslessEligible = eligible
			estimateDuration.With(map[string]string{"relay": estimate.Strategy.Kind.String()}).Observe(time.Since(started).Seconds())
			span.SetAttributes(attribute.String("relay", estimate.Strategy.Kind.String()))
			e.logger.Debug("fee resolved",
				zap.String("wallet", t.Wallet.Address.ToRaw()),
				zap.Stringer("relay", estimate.Strategy.Kind),
				zap.Int("branches", len(c.attempts)))
			return estimate, c.attempts, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.Estimate{}, c.attempts, errors.Wrap(ctxErr, "estimate fee")
		}
		if !errors.Is(err, errNotEligible) {
			e.logger.Debug("fee branch failed, falling back",
				zap.Stringer("branch", b),
				zap.String("wallet", t.Wallet.Address.ToRaw()),
				zap.Error(err))
		}
		c.fail(b, err)
	}
}

func (e *Engine) run(ctx context.Context, b branch, t *core.Transfer, key ed25519.PrivateKey, relay relayInputs) (core.Estimate, error) {
	ctx, span := e.tracer.Start(ctx, "fees.branch", trace.WithAttributes(attribute.String("branch", b.String())))
	defer span.End()

	var (
		estimate core.Estimate
		err      error
	)
	switch b {
	case branchBattery:
		estimate, err = e.battery(ctx, t, key, relay)
	case branchGasless:
		estimate, err = e.gasless(ctx, t, key, relay)
	default:
		estimate, err = e.direct(ctx, t, key)
	}
	switch {
	case err == nil:
		observeBranch(b, "ok")
	case errors.Is(err, errNotEligible):
		observeBranch(b, "skipped")
	default:
		observeBranch(b, "failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return estimate, err
}

func (e *Engine) battery(ctx context.Context, t *core.Transfer, key ed25519.PrivateKey, relay relayInputs) (core.Estimate, error) {
	if t.IsNative() || t.Wallet.IsExternal() || t.Wallet.IsWatchOnly() {
		return core.Estimate{}, errNotEligible
	}
	if e.prefs == nil || !e.prefs.BatteryEnabled(t.Wallet.Address, t.BatteryCategory()) {
		return core.Estimate{}, errNotEligible
	}
	if err := relay.check(); err != nil {
		return core.Estimate{}, err
	}
	if relay.config.Disabled {
		return core.Estimate{}, errors.Wrap(core.ErrRelayUnavailable, "battery is disabled")
	}
	strategy := core.BatteryStrategy(*relay.config.ExcessesAddress)
	msg, err := emulationMessage(t, key, transfer.OptionsFor(strategy))
	if err != nil {
		return core.Estimate{}, err
	}
	fees, err := e.sponsor.EmulateWithSponsor(ctx, relay.proofToken, t.Wallet.PublicKey, t.Testnet(), msg)
	if err != nil {
		return core.Estimate{}, errors.Wrap(err, "emulate with sponsor")
	}
	return core.Estimate{Fee: big.NewInt(fees.TotalFees), FeeToken: core.TON, Strategy: strategy}, nil
}

func (e *Engine) gasless(ctx context.Context, t *core.Transfer, key ed25519.PrivateKey, relay relayInputs) (core.Estimate, error) {
	if t.IsNft() || t.Token.IsNative() || !t.Wallet.SupportsGasless() {
		return core.Estimate{}, errNotEligible
	}
	if e.prefs == nil || !e.prefs.PreferGasless(t.Testnet()) {
		return core.Estimate{}, errNotEligible
	}
	if err := relay.check(); err != nil {
		return core.Estimate{}, err
	}
	if !relay.config.SupportsGasless(t.Token.Token) {
		return core.Estimate{}, errNotEligible
	}
	excesses := *relay.config.ExcessesAddress
	msg, err := emulationMessage(t, key, transfer.OptionsFor(core.GaslessStrategy(excesses, gaslessPlaceholderFee)))
	if err != nil {
		return core.Estimate{}, err
	}
	fee, err := e.sponsor.EstimateGaslessCost(ctx, relay.proofToken, *t.Token.Token.Address, msg, t.Testnet())
	if err != nil {
		return core.Estimate{}, errors.Wrap(err, "estimate gasless cost")
	}
	if fee == nil || fee.Sign() < 0 {
		return core.Estimate{}, errors.New("invalid gasless commission")
	}
	return core.Estimate{Fee: fee, FeeToken: t.Token.Token, Strategy: core.GaslessStrategy(excesses, fee)}, nil
}

func (e *Engine) direct(ctx context.Context, t *core.Transfer, key ed25519.PrivateKey) (core.Estimate, error) {
	msg, err := emulationMessage(t, key, transfer.MessageOptions{})
	if err != nil {
		return core.Estimate{}, err
	}
	fees, err := e.emulator.Emulate(ctx, msg, t.Testnet())
	if err != nil {
		return core.Estimate{}, errors.Wrap(err, "emulate")
	}
	return core.Estimate{Fee: big.NewInt(fees.TotalFees), FeeToken: core.TON, Strategy: core.DefaultStrategy()}, nil
}

// emulationKey returns the placeholder key, or a fresh one when the comment is encrypted
// so that the emulated message carries an encrypted payload of the same shape.
func emulationKey(t *core.Transfer) (ed25519.PrivateKey, error) {
	if !t.CommentEncrypted {
		return placeholderKey, nil
	}
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate emulation key")
	}
	return key, nil
}

func emulationMessage(t *core.Transfer, key ed25519.PrivateKey, opts transfer.MessageOptions) ([]byte, error) {
	signed, err := transfer.Sign(t, key, opts)
	if err != nil {
		return nil, errors.Wrap(err, "sign emulation message")
	}
	return signed.Boc()
}
