package wallet

import (
	"math/big"

	"github.com/go-faster/errors"
	"github.com/tonkeeper/tongo"
	"github.com/tonkeeper/tongo/abi"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	tongoWallet "github.com/tonkeeper/tongo/wallet"
)

// Risk is what a signed message puts at stake once broadcast.
// The submitter compares it against the transfer before anything leaves the wallet.
type Risk struct {
	TransferAllRemainingBalance bool
	Ton                         uint64
	// Jettons are raw units keyed by the sender's jetton wallet.
	Jettons map[tongo.AccountID]big.Int
	Nfts    []tongo.AccountID
}

// ErrRiskExceeded is returned by Risk.Within when a message moves more than allowed.
var ErrRiskExceeded = errors.New("message risk exceeds the transfer")

// Limits is the most a signed message is allowed to put at stake.
type Limits struct {
	Ton     uint64
	SendAll bool
	// Jettons are keyed by the sender's jetton wallet.
	Jettons map[tongo.AccountID]big.Int
	Nfts    []tongo.AccountID
}

// Within reports ErrRiskExceeded if r moves assets that l does not allow.
func (r *Risk) Within(l Limits) error {
	if r.TransferAllRemainingBalance && !l.SendAll {
		return errors.Wrap(ErrRiskExceeded, "message sends the whole balance")
	}
	if !r.TransferAllRemainingBalance && r.Ton > l.Ton {
		return errors.Wrapf(ErrRiskExceeded, "ton %d > %d", r.Ton, l.Ton)
	}
	for jettonWallet, amount := range r.Jettons {
		limit, ok := l.Jettons[jettonWallet]
		if !ok || amount.Cmp(&limit) > 0 {
			return errors.Wrapf(ErrRiskExceeded, "jetton wallet %v", jettonWallet.ToRaw())
		}
	}
	for _, nft := range r.Nfts {
		allowed := false
		for _, x := range l.Nfts {
			if x == nft {
				allowed = true
				break
			}
		}
		if !allowed {
			return errors.Wrapf(ErrRiskExceeded, "nft %v", nft.ToRaw())
		}
	}
	return nil
}

// ExtractRisk walks the outgoing messages of a signed wallet body.
func ExtractRisk(version tongoWallet.Version, body *boc.Cell) (*Risk, error) {
	messages, err := rawMessages(version, body)
	if err != nil {
		return nil, errors.Wrap(err, "extract raw messages")
	}
	risk := &Risk{Jettons: map[tongo.AccountID]big.Int{}}
	for i, m := range messages {
		if err := risk.add(m); err != nil {
			return nil, errors.Wrapf(err, "message %d", i)
		}
	}
	return risk, nil
}

func rawMessages(version tongoWallet.Version, body *boc.Cell) ([]tongoWallet.RawMessage, error) {
	body.ResetCounters()
	switch version {
	case tongoWallet.V3R1, tongoWallet.V3R2, tongoWallet.V4R1, tongoWallet.V4R2:
		var signed tongoWallet.SignedMsgBody
		if err := tlb.Unmarshal(body, &signed); err != nil {
			return nil, err
		}
		payload := boc.Cell(signed.Message)
		if version == tongoWallet.V3R1 || version == tongoWallet.V3R2 {
			var m tongoWallet.MessageV3
			if err := tlb.Unmarshal(&payload, &m); err != nil {
				return nil, err
			}
			return m.RawMessages, nil
		}
		var m tongoWallet.MessageV4
		if err := tlb.Unmarshal(&payload, &m); err != nil {
			return nil, err
		}
		return m.RawMessages, nil
	case tongoWallet.V5R1:
		var m tongoWallet.MessageV5
		if err := tlb.Unmarshal(body, &m); err != nil {
			return nil, err
		}
		return m.RawMessages(), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedVersion, "%v", version)
}

func (r *Risk) add(raw tongoWallet.RawMessage) error {
	if tongoWallet.IsMessageModeSet(int(raw.Mode), tongoWallet.AttachAllRemainingBalance) {
		r.TransferAllRemainingBalance = true
	}
	// raw messages may share a cell
	raw.Message.ResetCounters()
	var m abi.MessageRelaxed
	if err := tlb.Unmarshal(raw.Message, &m); err != nil {
		return err
	}
	r.Ton += uint64(m.MessageInternal.Value.Grams)
	dest, err := ton.AccountIDFromTlb(m.MessageInternal.Dest)
	if err != nil || dest == nil {
		return err
	}
	switch body := m.MessageInternal.Body.Value.Value.(type) {
	case abi.NftTransferMsgBody:
		// dest is the nft item
		r.Nfts = append(r.Nfts, *dest)
	case abi.JettonTransferMsgBody:
		r.addJetton(*dest, big.Int(body.Amount))
	case abi.JettonBurnMsgBody:
		r.addJetton(*dest, big.Int(body.Amount))
	}
	return nil
}

// addJetton accumulates amounts per sender jetton wallet.
func (r *Risk) addJetton(jettonWallet tongo.AccountID, amount big.Int) {
	current := r.Jettons[jettonWallet]
	var total big.Int
	r.Jettons[jettonWallet] = *total.Add(&current, &amount)
}
