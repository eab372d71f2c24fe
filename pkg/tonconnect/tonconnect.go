package tonconnect

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
)

const (
	tonProofPrefix   = "ton-proof-item-v2/"
	tonConnectPrefix = "ton-connect"
)

type MessageInfo struct {
	Timestamp int64  `json:"timestamp"`
	Domain    Domain `json:"domain"`
	Signature string `json:"signature"`
	Payload   string `json:"payload"`
	StateInit string `json:"state_init,omitempty"`
}

// TonProof proves to a relay that the caller owns the wallet.
type TonProof struct {
	Address string      `json:"address"`
	Proof   MessageInfo `json:"proof"`
}

type Domain struct {
	LengthBytes uint32 `json:"length_bytes"`
	Value       string `json:"value"`
}

func NewDomain(value string) Domain {
	return Domain{LengthBytes: uint32(len(value)), Value: value}
}

// CreateMessage returns the hash a wallet signs for a ton_proof.
func CreateMessage(address ton.AccountID, domain Domain, ts int64, payload string) []byte {
	wc := make([]byte, 4)
	binary.BigEndian.PutUint32(wc, uint32(address.Workchain))

	tsBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBytes, uint64(ts))

	dl := make([]byte, 4)
	binary.LittleEndian.PutUint32(dl, domain.LengthBytes)

	m := []byte(tonProofPrefix)
	m = append(m, wc...)
	m = append(m, address.Address[:]...)
	m = append(m, dl...)
	m = append(m, []byte(domain.Value)...)
	m = append(m, tsBytes...)
	m = append(m, []byte(payload)...)

	messageHash := sha256.Sum256(m)
	fullMes := []byte{0xff, 0xff}
	fullMes = append(fullMes, []byte(tonConnectPrefix)...)
	fullMes = append(fullMes, messageHash[:]...)

	res := sha256.Sum256(fullMes)
	return res[:]
}

// Sign creates a ton_proof for the payload issued by the relay.
// stateInit is attached for wallets that are not deployed yet.
func Sign(key ed25519.PrivateKey, address ton.AccountID, domain Domain, payload string, stateInit *boc.Cell, now time.Time) (*TonProof, error) {
	ts := now.Unix()
	signature := ed25519.Sign(key, CreateMessage(address, domain, ts, payload))
	proof := &TonProof{
		Address: address.ToRaw(),
		Proof: MessageInfo{
			Timestamp: ts,
			Domain:    domain,
			Signature: base64.StdEncoding.EncodeToString(signature),
			Payload:   payload,
		},
	}
	if stateInit != nil {
		s, err := stateInit.ToBocBase64()
		if err != nil {
			return nil, err
		}
		proof.Proof.StateInit = s
	}
	return proof, nil
}

// Verify checks the signature of a proof against the wallet public key.
func Verify(proof *TonProof, publicKey ed25519.PublicKey) (bool, error) {
	address, err := ton.ParseAccountID(proof.Address)
	if err != nil {
		return false, err
	}
	signature, err := base64.StdEncoding.DecodeString(proof.Proof.Signature)
	if err != nil {
		return false, err
	}
	msg := CreateMessage(address, proof.Proof.Domain, proof.Proof.Timestamp, proof.Proof.Payload)
	return ed25519.Verify(publicKey, msg, signature), nil
}
