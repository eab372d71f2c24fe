package rates

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/pkg/cache"
	"github.com/arnac-io/tonsend/pkg/core"
)

var ErrNoRate = errors.New("no rate for token")

const refreshInterval = 5 * time.Minute

// Rates converts fiat amounts into token amounts using tonapi prices.
// It implements core.RateConverter. Prices are cached for five minutes.
type Rates struct {
	http     *http.Client
	url      string
	token    string
	currency string
	prices   *cache.Cache[string, decimal.Decimal]
	logger   *zap.Logger
}

var _ core.RateConverter = (*Rates)(nil)

// New creates a converter for the fiat currency, e.g. "USD".
func New(tonapiURL, token, currency string, logger *zap.Logger) *Rates {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rates{
		http:     &http.Client{Timeout: 10 * time.Second},
		url:      strings.TrimRight(tonapiURL, "/"),
		token:    token,
		currency: strings.ToUpper(currency),
		prices:   cache.NewLRUCache[string, decimal.Decimal](256, refreshInterval, "rates"),
		logger:   logger,
	}
}

const fiatDecimals = 2

func tokenKey(t core.Token) string {
	if t.IsNative() {
		return "TON"
	}
	return t.Address.ToRaw()
}

func (r *Rates) FromFiat(ctx context.Context, token core.Token, amount decimal.Decimal) (decimal.Decimal, error) {
	price, err := r.price(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.DivRound(price, token.Decimals), nil
}

// ToFiat converts token units into the configured currency, rounded to cents.
func (r *Rates) ToFiat(ctx context.Context, token core.Token, amount decimal.Decimal) (decimal.Decimal, error) {
	price, err := r.price(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(price).Round(fiatDecimals), nil
}

func (r *Rates) price(ctx context.Context, token core.Token) (decimal.Decimal, error) {
	key := tokenKey(token)
	if price, ok := r.prices.Get(key); ok {
		return price, nil
	}
	prices, err := r.fetch(ctx, key)
	if err != nil {
		errorsCounter.With(map[string]string{"source": "tonapi"}).Inc()
		return decimal.Zero, err
	}
	price, ok := prices[strings.ToUpper(key)]
	if !ok || !price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrNoRate, "%v in %v", token.Symbol, r.currency)
	}
	r.prices.Set(key, price)
	return price, nil
}

func (r *Rates) fetch(ctx context.Context, token string) (map[string]decimal.Decimal, error) {
	query := url.Values{"tokens": {token}, "currencies": {r.currency}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v2/rates?%s", r.url, query.Encode()), nil)
	if err != nil {
		return nil, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch rates")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("failed to fetch rates: status %d", resp.StatusCode)
	}
	return decodeRates(body, r.currency)
}

// decodeRates reads {"rates": {"<token>": {"prices": {"<currency>": price}}}}.
func decodeRates(data []byte, currency string) (map[string]decimal.Decimal, error) {
	prices := map[string]decimal.Decimal{}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "rates" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, token string) error {
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "prices" {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, cur string) error {
					num, err := d.Num()
					if err != nil {
						return err
					}
					if !strings.EqualFold(cur, currency) {
						return nil
					}
					price, err := decimal.NewFromString(num.String())
					if err != nil {
						return err
					}
					prices[strings.ToUpper(token)] = price
					return nil
				})
			})
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode rates")
	}
	return prices, nil
}
