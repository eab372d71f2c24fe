package destination

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arnac-io/tonsend/pkg/core"
)

type recordingResolver struct {
	mu        sync.Mutex
	addresses []string
	cancelled []string
	block     map[string]bool
}

func (r *recordingResolver) Resolve(ctx context.Context, address string, testnet bool) core.Destination {
	r.mu.Lock()
	r.addresses = append(r.addresses, address)
	block := r.block[address]
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		r.mu.Lock()
		r.cancelled = append(r.cancelled, address)
		r.mu.Unlock()
		return core.DestinationNotFound
	}
	return &core.DestinationAccount{Raw: address}
}

func (r *recordingResolver) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.addresses...)
}

func receive(t *testing.T, tr *Tracker) Resolution {
	t.Helper()
	select {
	case res := <-tr.Results():
		return res
	case <-time.After(time.Second):
		t.Fatal("no resolution delivered")
	}
	return Resolution{}
}

func TestTracker_Debounce(t *testing.T) {
	resolver := &recordingResolver{}
	tr := NewTracker(context.Background(), resolver, false, 30*time.Millisecond, nil)
	defer tr.Close()

	tr.Update("a")
	tr.Update("ab")
	gen := tr.Update("abc")

	res := receive(t, tr)
	require.Equal(t, gen, res.Generation)
	require.Equal(t, "abc", res.Address)
	require.Equal(t, &core.DestinationAccount{Raw: "abc"}, res.Destination)
	require.Equal(t, []string{"abc"}, resolver.calls())
}

func TestTracker_EmptyBypassesDebounce(t *testing.T) {
	resolver := &recordingResolver{}
	tr := NewTracker(context.Background(), resolver, false, time.Hour, nil)
	defer tr.Close()

	tr.Update("abc")
	gen := tr.Update(" ")
	res := receive(t, tr)
	require.Equal(t, gen, res.Generation)
	require.Equal(t, core.DestinationEmpty, res.Destination)
	require.Empty(t, resolver.calls())
}

func TestTracker_SupersededLookupIsCancelled(t *testing.T) {
	resolver := &recordingResolver{block: map[string]bool{"slow": true}}
	tr := NewTracker(context.Background(), resolver, false, 10*time.Millisecond, nil)
	defer tr.Close()

	tr.Update("slow")
	require.Eventually(t, func() bool { return len(resolver.calls()) == 1 }, time.Second, 5*time.Millisecond)
	gen := tr.Update("fast")

	res := receive(t, tr)
	require.Equal(t, gen, res.Generation)
	require.Equal(t, "fast", res.Address)
	require.Eventually(t, func() bool {
		resolver.mu.Lock()
		defer resolver.mu.Unlock()
		return len(resolver.cancelled) == 1
	}, time.Second, 5*time.Millisecond)
	select {
	case res := <-tr.Results():
		t.Fatalf("unexpected resolution %v", res.Address)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTracker_Close(t *testing.T) {
	resolver := &recordingResolver{}
	tr := NewTracker(context.Background(), resolver, false, 10*time.Millisecond, nil)
	tr.Update("abc")
	tr.Close()
	tr.Close()
	_, ok := <-tr.Results()
	require.False(t, ok)
	require.Equal(t, uint64(1), tr.Update("later"))
}
