package battery

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/tonconnect"
)

// ProofToken exchanges a ton_proof signed by the wallet key for a relay credential.
func (c *Client) ProofToken(ctx context.Context, w core.Wallet, key ed25519.PrivateKey) (string, error) {
	base := c.baseURL(w.Testnet)
	body, err := c.read(ctx, http.MethodGet, base+"/tonconnect/payload", "", nil)
	if err != nil {
		return "", errors.Wrap(err, "get proof payload")
	}
	payload, err := decodeField(body, "payload")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	proof, err := tonconnect.Sign(key, w.Address, tonconnect.NewDomain(u.Hostname()), payload, w.StateInit, time.Now())
	if err != nil {
		return "", errors.Wrap(err, "sign proof")
	}
	request, err := json.Marshal(proof)
	if err != nil {
		return "", err
	}
	body, err = c.do(ctx, http.MethodPost, base+"/tonconnect/proof", "", request)
	if err != nil {
		return "", errors.Wrap(err, "check proof")
	}
	return decodeField(body, "token")
}

func decodeField(data []byte, field string) (string, error) {
	var value string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != field {
			return d.Skip()
		}
		v, err := d.Str()
		value = v
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "decode %v", field)
	}
	if value == "" {
		return "", errors.Errorf("response without %v", field)
	}
	return value, nil
}
