// Package sender signs transfers with the user's key and broadcasts them.
package sender

import (
	"context"
	"encoding/base64"
	"encoding/hex"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/sentry"
	"github.com/arnac-io/tonsend/pkg/transfer"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

// Result describes an accepted message.
type Result struct {
	// Hash is the hex hash of the broadcast message.
	Hash string
	// Boc is the base64 encoded message.
	Boc      string
	Strategy core.RelayStrategy
}

// Submitter signs and broadcasts a transfer exactly once.
type Submitter struct {
	keys        core.KeyHolder
	broadcaster core.Broadcaster
	logger      *zap.Logger
}

func NewSubmitter(keys core.KeyHolder, broadcaster core.Broadcaster, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{keys: keys, broadcaster: broadcaster, logger: logger}
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(core.ErrCancelled, err.Error())
	}
	return nil
}

// Submit signs t according to strategy, which must be the one its fee was estimated with,
// and broadcasts it. Anything but core.AcceptanceSuccess is a *core.BroadcastRejectedError.
func (s *Submitter) Submit(ctx context.Context, t *core.Transfer, strategy core.RelayStrategy) (Result, error) {
	if !t.Wallet.HasPrivateKey() {
		return Result{}, errors.Wrapf(core.ErrWalletNotSpendable, "%v wallet", t.Wallet.Type)
	}
	if err := cancelled(ctx); err != nil {
		return Result{}, err
	}
	if !s.keys.ConfirmUserPresence(ctx, t.Wallet.ID) {
		if err := cancelled(ctx); err != nil {
			return Result{}, err
		}
		return Result{}, core.ErrAuthenticationFailed
	}
	key, err := s.keys.PrivateKey(ctx, t.Wallet.ID)
	if err != nil {
		if err := cancelled(ctx); err != nil {
			return Result{}, err
		}
		return Result{}, errors.Wrap(err, "private key")
	}
	var proofToken string
	if strategy.ViaSponsor() {
		if strategy.Kind == core.RelayGasless && !t.Wallet.SupportsGasless() {
			return Result{}, errors.Wrap(core.ErrRelayUnavailable, "wallet can't send gasless transfers")
		}
		token, ok := s.keys.RequestProofToken(ctx, t.Wallet)
		if !ok || token == "" {
			return Result{}, errors.Wrap(core.ErrRelayUnavailable, "no proof token")
		}
		proofToken = token
	}

	opts := transfer.OptionsFor(strategy)
	signed, err := transfer.Sign(t, key, opts)
	if err != nil {
		return Result{}, errors.Wrap(err, "sign transfer")
	}
	return s.broadcast(ctx, t, strategy, opts, signed, proofToken)
}

// Prepare returns the unsigned wallet body of t for an external signer.
// External signers only send directly, without relays.
func (s *Submitter) Prepare(t *core.Transfer, strategy core.RelayStrategy) (*wallet.Unsigned, error) {
	if !t.Wallet.IsExternal() {
		return nil, errors.Wrapf(core.ErrWalletNotSpendable, "%v wallet has no external signer", t.Wallet.Type)
	}
	if strategy.ViaSponsor() {
		return nil, errors.Wrapf(core.ErrRelayUnavailable, "%v wallet can't use relays", t.Wallet.Type)
	}
	unsigned, err := transfer.Prepare(t, transfer.OptionsFor(strategy))
	if err != nil {
		return nil, errors.Wrap(err, "prepare transfer")
	}
	return unsigned, nil
}

// SubmitSigned attaches a signature produced by an external signer for the body
// returned by Prepare and broadcasts the message.
func (s *Submitter) SubmitSigned(ctx context.Context, t *core.Transfer, strategy core.RelayStrategy, signature []byte) (Result, error) {
	if err := cancelled(ctx); err != nil {
		return Result{}, err
	}
	unsigned, err := s.Prepare(t, strategy)
	if err != nil {
		return Result{}, err
	}
	signed, err := unsigned.Attach(t.Wallet.PublicKey, signature)
	if err != nil {
		return Result{}, errors.Wrap(core.ErrAuthenticationFailed, err.Error())
	}
	return s.broadcast(ctx, t, strategy, transfer.OptionsFor(strategy), signed, "")
}

func (s *Submitter) broadcast(ctx context.Context, t *core.Transfer, strategy core.RelayStrategy, opts transfer.MessageOptions, signed *wallet.Signed, proofToken string) (Result, error) {
	if err := s.checkRisk(t, opts, signed); err != nil {
		return Result{}, err
	}
	result, raw, err := describe(signed, strategy)
	if err != nil {
		return Result{}, err
	}
	if err := cancelled(ctx); err != nil {
		return Result{}, err
	}

	var state core.AcceptanceState
	if strategy.ViaSponsor() {
		state = s.broadcaster.SubmitViaSponsor(ctx, raw, proofToken, t.Testnet())
	} else {
		state = s.broadcaster.Submit(ctx, raw, t.Testnet())
	}
	if state == core.AcceptanceSuccess {
		s.logger.Info("transfer sent",
			zap.String("wallet", t.Wallet.Address.ToRaw()),
			zap.Stringer("relay", strategy.Kind),
			zap.String("hash", result.Hash))
		return result, nil
	}
	if err := cancelled(ctx); err != nil {
		return Result{}, err
	}
	s.logger.Warn("broadcast rejected",
		zap.String("wallet", t.Wallet.Address.ToRaw()),
		zap.Stringer("state", state),
		zap.Stringer("relay", strategy.Kind))
	sentry.Send("broadcast rejected", sentry.SentryInfoData{
		"wallet": t.Wallet.Address.ToRaw(),
		"state":  state.String(),
		"relay":  strategy.Kind.String(),
		"hash":   result.Hash,
	}, sentry.LevelWarning)
	return Result{}, &core.BroadcastRejectedError{State: state}
}

// checkRisk refuses messages that move more than the transfer describes.
// Wallet versions the decoder doesn't know are only logged.
func (s *Submitter) checkRisk(t *core.Transfer, opts transfer.MessageOptions, signed *wallet.Signed) error {
	risk, err := wallet.ExtractRisk(t.Wallet.Version, signed.Body)
	if err != nil {
		s.logger.Debug("can't extract message risk", zap.Error(err))
		return nil
	}
	return risk.Within(transfer.Limits(t, opts))
}

func describe(signed *wallet.Signed, strategy core.RelayStrategy) (Result, []byte, error) {
	root := signed.External
	if root == nil {
		root = signed.Body
	}
	hash, err := root.Hash()
	if err != nil {
		return Result{}, nil, errors.Wrap(err, "message hash")
	}
	raw, err := signed.Boc()
	if err != nil {
		return Result{}, nil, errors.Wrap(err, "serialize message")
	}
	return Result{
		Hash:     hex.EncodeToString(hash),
		Boc:      base64.StdEncoding.EncodeToString(raw),
		Strategy: strategy,
	}, raw, nil
}
