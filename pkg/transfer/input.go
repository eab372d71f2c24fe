package transfer

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo/ton"

	"github.com/arnac-io/tonsend/pkg/core"
)

// UserInput is what the user typed on the send screen.
type UserInput struct {
	Address string
	// Amount is in token units, or in fiat when AmountInFiat is set.
	Amount           decimal.Decimal
	Token            core.TokenBalance
	Comment          string
	EncryptedComment bool
	// Nft switches the transfer to a single NFT; Amount and Token are ignored then.
	Nft          *ton.AccountID
	Max          bool
	AmountInFiat bool
}

// Snapshot is an immutable copy of the input tagged with its version.
type Snapshot struct {
	Version uint64
	Input   UserInput
}

// InputState stores the user input. Every mutation that changes a field
// bumps the version, so results computed from an older snapshot can be detected.
type InputState struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewInputState(token core.TokenBalance) *InputState {
	return &InputState{snap: Snapshot{Input: UserInput{Token: token}}}
}

func (s *InputState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Current reports whether version is the latest one.
func (s *InputState) Current(version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Version == version
}

func (s *InputState) update(fn func(in *UserInput) bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := s.snap.Input
	if fn(&in) {
		s.snap = Snapshot{Version: s.snap.Version + 1, Input: in}
	}
	return s.snap
}

func (s *InputState) SetAddress(address string) Snapshot {
	address = strings.TrimSpace(address)
	return s.update(func(in *UserInput) bool {
		if in.Address == address {
			return false
		}
		in.Address = address
		return true
	})
}

// SetAmount rejects negative amounts by clamping them to zero.
func (s *InputState) SetAmount(amount decimal.Decimal) Snapshot {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return s.update(func(in *UserInput) bool {
		if in.Amount.Equal(amount) {
			return false
		}
		in.Amount = amount
		return true
	})
}

func (s *InputState) SetToken(token core.TokenBalance) Snapshot {
	return s.update(func(in *UserInput) bool {
		if in.Token.Token.Equal(token.Token) && in.Token.Balance.Equal(token.Balance) {
			return false
		}
		in.Token = token
		in.Max = false
		return true
	})
}

func (s *InputState) SetComment(comment string) Snapshot {
	comment = strings.TrimSpace(comment)
	return s.update(func(in *UserInput) bool {
		if in.Comment == comment {
			return false
		}
		in.Comment = comment
		return true
	})
}

func (s *InputState) SetEncryptedComment(encrypted bool) Snapshot {
	return s.update(func(in *UserInput) bool {
		if in.EncryptedComment == encrypted {
			return false
		}
		in.EncryptedComment = encrypted
		return true
	})
}

func (s *InputState) SetNft(nft *ton.AccountID) Snapshot {
	return s.update(func(in *UserInput) bool {
		switch {
		case in.Nft == nil && nft == nil:
			return false
		case in.Nft != nil && nft != nil && *in.Nft == *nft:
			return false
		}
		if nft != nil {
			n := *nft
			nft = &n
		}
		in.Nft = nft
		return true
	})
}

func (s *InputState) SetMax(max bool) Snapshot {
	return s.update(func(in *UserInput) bool {
		if in.Max == max {
			return false
		}
		in.Max = max
		return true
	})
}

func (s *InputState) SetAmountInFiat(fiat bool) Snapshot {
	return s.update(func(in *UserInput) bool {
		if in.AmountInFiat == fiat {
			return false
		}
		in.AmountInFiat = fiat
		return true
	})
}

// SwapAmountCurrency flips between fiat and token input, replacing the amount
// with its value in the other currency. converted must have been computed from
// the snapshot with version, otherwise nothing changes and ok is false.
func (s *InputState) SwapAmountCurrency(version uint64, converted decimal.Decimal) (snap Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Version != version {
		return s.snap, false
	}
	in := s.snap.Input
	in.AmountInFiat = !in.AmountInFiat
	in.Amount = converted
	s.snap = Snapshot{Version: version + 1, Input: in}
	return s.snap, true
}
