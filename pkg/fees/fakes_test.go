package fees

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"sync"

	"github.com/tonkeeper/tongo/ton"

	"github.com/arnac-io/tonsend/pkg/core"
)

// callLog records calls of every fake in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeSponsor struct {
	log        *callLog
	config     core.SponsorConfig
	configErr  error
	fees       core.FeeBreakdown
	emulateErr error
	gasless    *big.Int
	gaslessErr error
	lastMsg    []byte
}

func (f *fakeSponsor) Config(ctx context.Context, testnet bool) (core.SponsorConfig, error) {
	f.log.add("config")
	return f.config, f.configErr
}

func (f *fakeSponsor) EmulateWithSponsor(ctx context.Context, proofToken string, publicKey ed25519.PublicKey, testnet bool, msg []byte) (core.FeeBreakdown, error) {
	f.log.add("battery")
	f.lastMsg = msg
	return f.fees, f.emulateErr
}

func (f *fakeSponsor) EstimateGaslessCost(ctx context.Context, proofToken string, tokenMaster ton.AccountID, msg []byte, testnet bool) (*big.Int, error) {
	f.log.add("gasless")
	f.lastMsg = msg
	return f.gasless, f.gaslessErr
}

type fakeEmulator struct {
	log  *callLog
	fees core.FeeBreakdown
	err  error
}

func (f *fakeEmulator) Emulate(ctx context.Context, msg []byte, testnet bool) (core.FeeBreakdown, error) {
	f.log.add("emulate")
	return f.fees, f.err
}

type fakeKeys struct {
	token string
}

func (f *fakeKeys) RequestProofToken(ctx context.Context, w core.Wallet) (string, bool) {
	return f.token, f.token != ""
}

func (f *fakeKeys) ConfirmUserPresence(ctx context.Context, walletID string) bool { return true }

func (f *fakeKeys) PrivateKey(ctx context.Context, walletID string) (ed25519.PrivateKey, error) {
	return nil, nil
}

type fakePrefs struct {
	battery map[core.BatteryTransaction]bool
	gasless bool
}

func (f *fakePrefs) BatteryEnabled(account ton.AccountID, category core.BatteryTransaction) bool {
	return f.battery[category]
}

func (f *fakePrefs) PreferGasless(testnet bool) bool { return f.gasless }

func (f *fakePrefs) SetPreferGasless(testnet bool, prefer bool) { f.gasless = prefer }
