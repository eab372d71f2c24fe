package wallet

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/wallet"
)

var versionNames = map[string]wallet.Version{
	"v3r1": wallet.V3R1,
	"v3r2": wallet.V3R2,
	"v4r1": wallet.V4R1,
	"v4r2": wallet.V4R2,
	"v5r1": wallet.V5R1,
}

// ParseVersion converts names like "v4r2" or "V5R1" to a wallet version.
func ParseVersion(name string) (wallet.Version, error) {
	v, ok := versionNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedVersion, "%q", name)
	}
	return v, nil
}

// VersionName is the inverse of ParseVersion.
func VersionName(v wallet.Version) string {
	for name, version := range versionNames {
		if version == v {
			return name
		}
	}
	return "unknown"
}

// ErrNoCode is returned for accounts that have no contract deployed yet.
var ErrNoCode = errors.New("can't work with a wallet without code")

func GetVersionByCode(code []byte) (wallet.Version, error) {
	if len(code) == 0 {
		return 0, ErrNoCode
	}
	cells, err := boc.DeserializeBoc(code)
	if err != nil {
		return 0, err
	}
	if len(cells) != 1 {
		return 0, errors.New("can't get wallet version because its code contains multiple root cells")
	}
	hash, err := cells[0].Hash()
	if err != nil {
		return 0, errors.Wrap(err, "calculate code hash")
	}
	walletVersion, ok := wallet.GetVerByCodeHash(tlb.Bits256(hash))
	if !ok {
		return 0, errors.New("not a wallet")
	}
	return walletVersion, nil
}
