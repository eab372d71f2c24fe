// Package destination turns user-typed addresses into classified destinations.
package destination

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/pkg/core"
)

const (
	bounceableTag = 0x11
	testnetFlag   = 0x80
)

// Resolver classifies an address by looking up the account and its public key.
type Resolver struct {
	lookup core.AccountLookup
	logger *zap.Logger
}

func NewResolver(lookup core.AccountLookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{lookup: lookup, logger: logger}
}

// Resolve never fails: lookup errors resolve to core.DestinationNotFound.
// A blank address is core.DestinationEmpty and does no I/O.
func (r *Resolver) Resolve(ctx context.Context, address string, testnet bool) core.Destination {
	address = strings.TrimSpace(address)
	if address == "" {
		return core.DestinationEmpty
	}
	var (
		wg         conc.WaitGroup
		account    *core.AccountInfo
		accountErr error
		publicKey  ed25519.PublicKey
	)
	wg.Go(func() {
		account, accountErr = r.lookup.ResolveAccount(ctx, address, testnet)
	})
	wg.Go(func() {
		key, err := r.lookup.GetPublicKey(ctx, address, testnet)
		if err != nil {
			r.logger.Debug("public key lookup failed", zap.String("address", address), zap.Error(err))
			return
		}
		publicKey = key
	})
	wg.Wait()
	if accountErr != nil || account == nil {
		r.logger.Debug("account lookup failed", zap.String("address", address), zap.Error(accountErr))
		return core.DestinationNotFound
	}
	existing := account.Status == core.AccountActive
	return &core.DestinationAccount{
		Address:      account.Address,
		Raw:          address,
		PublicKey:    publicKey,
		Existing:     existing,
		MemoRequired: account.MemoRequired,
		Bounceable:   existing && (!account.IsWallet || typedBounceable(address)),
	}
}

// typedBounceable reports whether the user typed a bounceable user-friendly address.
// Raw addresses and domain names are not.
func typedBounceable(address string) bool {
	if len(address) != 48 {
		return false
	}
	raw, err := base64.URLEncoding.DecodeString(address)
	if err != nil {
		if raw, err = base64.StdEncoding.DecodeString(address); err != nil {
			return false
		}
	}
	if len(raw) != 36 {
		return false
	}
	return raw[0]&^testnetFlag == bounceableTag
}
