package destination

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/pkg/core"
)

const DefaultDebounce = 600 * time.Millisecond

// DestinationResolver is implemented by Resolver.
type DestinationResolver interface {
	Resolve(ctx context.Context, address string, testnet bool) core.Destination
}

// Resolution is a destination resolved for the address of a given generation.
type Resolution struct {
	Address     string
	Generation  uint64
	Destination core.Destination
}

// Tracker resolves the latest typed address after a quiet period.
// Only the resolution of the latest Update is ever delivered;
// lookups for superseded addresses are cancelled.
type Tracker struct {
	resolver DestinationResolver
	testnet  bool
	debounce time.Duration
	logger   *zap.Logger

	ctx context.Context
	out chan Resolution

	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	inflight context.CancelFunc
	closed   bool
}

func NewTracker(ctx context.Context, resolver DestinationResolver, testnet bool, debounce time.Duration, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{
		resolver: resolver,
		testnet:  testnet,
		debounce: debounce,
		logger:   logger,
		ctx:      ctx,
		out:      make(chan Resolution, 1),
	}
}

// Results delivers resolutions. The channel holds only the latest one
// and is closed by Close.
func (t *Tracker) Results() <-chan Resolution {
	return t.out
}

// Generation returns the generation of the latest Update.
func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Update schedules resolution of address and returns its generation.
// An empty address resolves to core.DestinationEmpty immediately.
func (t *Tracker) Update(address string) uint64 {
	address = strings.TrimSpace(address)
	t.mu.Lock()
	if t.closed {
		gen := t.gen
		t.mu.Unlock()
		return gen
	}
	t.gen++
	gen := t.gen
	t.stopLocked()
	if address == "" {
		t.sendLocked(Resolution{Address: address, Generation: gen, Destination: core.DestinationEmpty})
		t.mu.Unlock()
		return gen
	}
	t.timer = time.AfterFunc(t.debounce, func() {
		t.resolve(gen, address)
	})
	t.mu.Unlock()
	return gen
}

func (t *Tracker) resolve(gen uint64, address string) {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.inflight = cancel
	t.mu.Unlock()

	dest := t.resolver.Resolve(ctx, address, t.testnet)
	if ctx.Err() != nil {
		t.logger.Debug("destination resolution cancelled", zap.String("address", address))
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || gen != t.gen {
		return
	}
	t.inflight = nil
	t.sendLocked(Resolution{Address: address, Generation: gen, Destination: dest})
}

// sendLocked replaces an undelivered resolution with res.
func (t *Tracker) sendLocked(res Resolution) {
	select {
	case <-t.out:
	default:
	}
	t.out <- res
}

func (t *Tracker) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.inflight != nil {
		t.inflight()
		t.inflight = nil
	}
}

// Close cancels pending work and closes the results channel.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.stopLocked()
	close(t.out)
}
