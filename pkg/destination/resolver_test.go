package destination

import (
	"context"
	"crypto/ed25519"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/ton"

	"github.com/arnac-io/tonsend/pkg/core"
)

var testAccount = ton.MustParseAccountID("0:533f30de5722157b8471f5503b9fc5800c8d8397e7975f7ed6b11e609adae69f")

type fakeLookup struct {
	info    *core.AccountInfo
	infoErr error
	key     ed25519.PublicKey
	keyErr  error
	calls   atomic.Int32
	// rendezvous makes each lookup wait until the other one started.
	rendezvous bool
}

func (f *fakeLookup) wait() {
	if !f.rendezvous {
		return
	}
	deadline := time.Now().Add(time.Second)
	for f.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeLookup) ResolveAccount(ctx context.Context, address string, testnet bool) (*core.AccountInfo, error) {
	f.calls.Add(1)
	f.wait()
	return f.info, f.infoErr
}

func (f *fakeLookup) GetPublicKey(ctx context.Context, address string, testnet bool) (ed25519.PublicKey, error) {
	f.calls.Add(1)
	f.wait()
	return f.key, f.keyErr
}

func TestResolver_Resolve(t *testing.T) {
	key, _, err := ed25519.GenerateKey(nil)
	require.Nil(t, err)
	bounceable := testAccount.ToHuman(true, false)
	nonBounceable := testAccount.ToHuman(false, false)

	tests := []struct {
		name    string
		address string
		lookup  *fakeLookup
		want    core.Destination
		calls   int32
	}{
		{
			name:    "blank",
			address: "  ",
			lookup:  &fakeLookup{},
			want:    core.DestinationEmpty,
		},
		{
			name:    "account lookup fails",
			address: bounceable,
			lookup:  &fakeLookup{infoErr: errors.New("boom"), key: key},
			want:    core.DestinationNotFound,
			calls:   2,
		},
		{
			name:    "active wallet typed as raw",
			address: testAccount.ToRaw(),
			lookup:  &fakeLookup{info: &core.AccountInfo{Address: testAccount, Status: core.AccountActive, IsWallet: true}, key: key},
			want: &core.DestinationAccount{
				Address: testAccount, Raw: testAccount.ToRaw(), PublicKey: key, Existing: true,
			},
			calls: 2,
		},
		{
			name:    "active wallet typed bounceable",
			address: bounceable,
			lookup:  &fakeLookup{info: &core.AccountInfo{Address: testAccount, Status: core.AccountActive, IsWallet: true}, key: key},
			want: &core.DestinationAccount{
				Address: testAccount, Raw: bounceable, PublicKey: key, Existing: true, Bounceable: true,
			},
			calls: 2,
		},
		{
			name:    "active wallet typed non-bounceable",
			address: nonBounceable,
			lookup:  &fakeLookup{info: &core.AccountInfo{Address: testAccount, Status: core.AccountActive, IsWallet: true}, key: key},
			want: &core.DestinationAccount{
				Address: testAccount, Raw: nonBounceable, PublicKey: key, Existing: true,
			},
			calls: 2,
		},
		{
			name:    "contract is bounceable",
			address: nonBounceable,
			lookup:  &fakeLookup{info: &core.AccountInfo{Address: testAccount, Status: core.AccountActive}, keyErr: errors.New("no key")},
			want: &core.DestinationAccount{
				Address: testAccount, Raw: nonBounceable, Existing: true, Bounceable: true,
			},
			calls: 2,
		},
		{
			name:    "uninit is never bounceable",
			address: bounceable,
			lookup:  &fakeLookup{info: &core.AccountInfo{Address: testAccount, Status: core.AccountUninit}, keyErr: errors.New("no key")},
			want: &core.DestinationAccount{
				Address: testAccount, Raw: bounceable,
			},
			calls: 2,
		},
		{
			name:    "memo required",
			address: "exchange.ton",
			lookup:  &fakeLookup{info: &core.AccountInfo{Address: testAccount, Status: core.AccountActive, IsWallet: true, MemoRequired: true}},
			want: &core.DestinationAccount{
				Address: testAccount, Raw: "exchange.ton", Existing: true, MemoRequired: true,
			},
			calls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.lookup, nil)
			got := r.Resolve(context.Background(), tt.address, false)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.calls, tt.lookup.calls.Load())
		})
	}
}

func TestResolver_LookupsRunConcurrently(t *testing.T) {
	lookup := &fakeLookup{
		info:       &core.AccountInfo{Address: testAccount, Status: core.AccountActive},
		rendezvous: true,
	}
	done := make(chan core.Destination)
	go func() {
		done <- NewResolver(lookup, nil).Resolve(context.Background(), testAccount.ToRaw(), false)
	}()
	select {
	case dest := <-done:
		_, ok := dest.(*core.DestinationAccount)
		require.True(t, ok)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("lookups were not started concurrently")
	}
}
