package battery

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"math/big"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/tonkeeper/tongo/ton"
)

type config struct {
	ExcessAccount string
}

type rechargeMethod struct {
	Type           string
	JettonMaster   string
	SupportGasless bool
}

type estimate struct {
	RelayAddress string
	Commission   *big.Int
}

func encodeBoc(msg []byte, publicKey ed25519.PublicKey) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("boc")
	e.Str(base64.StdEncoding.EncodeToString(msg))
	if len(publicKey) > 0 {
		e.FieldStart("wallet_public_key")
		e.Str(hex.EncodeToString(publicKey))
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeEstimate(wallet *ton.AccountID, msg []byte) []byte {
	var e jx.Encoder
	e.ObjStart()
	if wallet != nil {
		e.FieldStart("wallet_address")
		e.Str(wallet.ToRaw())
	}
	e.FieldStart("messages")
	e.ArrStart()
	e.ObjStart()
	e.FieldStart("boc")
	e.Str(base64.StdEncoding.EncodeToString(msg))
	e.ObjEnd()
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func decodeConfig(data []byte) (config, error) {
	var c config
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "excess_account":
			v, err := d.Str()
			c.ExcessAccount = v
			return err
		default:
			return d.Skip()
		}
	})
	return c, errors.Wrap(err, "decode config")
}

func decodeRechargeMethods(data []byte) ([]rechargeMethod, error) {
	var methods []rechargeMethod
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "methods" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var m rechargeMethod
			err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "type":
					m.Type, err = d.Str()
				case "jetton_master":
					m.JettonMaster, err = d.Str()
				case "support_gasless":
					m.SupportGasless, err = d.Bool()
				default:
					err = d.Skip()
				}
				return err
			})
			methods = append(methods, m)
			return err
		})
	})
	return methods, errors.Wrap(err, "decode recharge methods")
}

func decodeEstimate(data []byte) (estimate, error) {
	var est estimate
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "relay_address":
			est.RelayAddress, err = d.Str()
		case "commission":
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			commission, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return errors.Errorf("invalid commission %q", s)
			}
			est.Commission = commission
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return estimate{}, errors.Wrap(err, "decode estimate")
	}
	if est.Commission == nil {
		return estimate{}, errors.New("estimate without commission")
	}
	return est, nil
}

// decodeTotalFees sums total_fees over every transaction of the emulated trace.
func decodeTotalFees(data []byte) (int64, error) {
	var total int64
	found := false
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "trace" {
			return d.Skip()
		}
		found = true
		return decodeTrace(d, &total)
	})
	if err != nil {
		return 0, errors.Wrap(err, "decode emulation")
	}
	if !found {
		return 0, errors.New("emulation without trace")
	}
	return total, nil
}

func decodeTrace(d *jx.Decoder, total *int64) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "transaction":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "total_fees" {
					return d.Skip()
				}
				fees, err := d.Int64()
				*total += fees
				return err
			})
		case "children":
			return d.Arr(func(d *jx.Decoder) error {
				return decodeTrace(d, total)
			})
		default:
			return d.Skip()
		}
	})
}
