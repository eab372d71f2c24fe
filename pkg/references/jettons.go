package references

import (
	"strings"

	"github.com/tonkeeper/tongo/ton"
)

var (
	USDT = ton.MustParseAccountID("EQCxE6mUtQJKFnGfaROTKOt1lZbDiiX1kCixRv7Nw2Id_sDs")
	NOT  = ton.MustParseAccountID("0:2f956143c461769579baef2e32cc2d7bc18283f40d20bb03e432cd603ac33ffc")
)

// mainnet jetton masters by ticker
var jettons = map[string]ton.AccountID{
	"usdt": USDT,
	"not":  NOT,
}

// Jetton returns the jetton master for a ticker like "USDT" or a master address.
func Jetton(s string) (ton.AccountID, error) {
	if master, ok := jettons[strings.ToLower(strings.TrimSpace(s))]; ok {
		return master, nil
	}
	return ton.ParseAccountID(s)
}
