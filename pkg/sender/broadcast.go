package sender

import (
	"context"

	"github.com/arnac-io/tonsend/pkg/core"
)

type directBroadcaster interface {
	Submit(ctx context.Context, msg []byte, testnet bool) core.AcceptanceState
}

type relayBroadcaster interface {
	SubmitViaSponsor(ctx context.Context, msg []byte, proofToken string, testnet bool) core.AcceptanceState
}

// Broadcast routes direct messages to the network and sponsored ones to the relay.
type Broadcast struct {
	direct directBroadcaster
	relay  relayBroadcaster
}

var _ core.Broadcaster = (*Broadcast)(nil)

func NewBroadcast(direct directBroadcaster, relay relayBroadcaster) *Broadcast {
	return &Broadcast{direct: direct, relay: relay}
}

func (b *Broadcast) Submit(ctx context.Context, msg []byte, testnet bool) core.AcceptanceState {
	return b.direct.Submit(ctx, msg, testnet)
}

func (b *Broadcast) SubmitViaSponsor(ctx context.Context, msg []byte, proofToken string, testnet bool) core.AcceptanceState {
	return b.relay.SubmitViaSponsor(ctx, msg, proofToken, testnet)
}
