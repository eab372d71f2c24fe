package battery

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-faster/errors"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/arnac-io/tonsend/pkg/cache"
	"github.com/arnac-io/tonsend/pkg/core"
)

const (
	MainnetURL = "https://battery.tonkeeper.com"
	TestnetURL = "https://testnet-battery.tonkeeper.com"

	authHeader = "X-TonConnect-Auth"
	configTTL  = 5 * time.Minute
)

// StatusError is returned when the battery answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("battery: status %d: %s", e.Code, e.Body)
}

type Options struct {
	MainnetURL string
	TestnetURL string
	// Disabled turns the battery off on every network. The gasless relay stays available.
	Disabled   bool
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the battery service. It implements core.SponsorService
// and the relayed half of core.Broadcaster.
type Client struct {
	http       *http.Client
	mainnetURL string
	testnetURL string
	disabled   bool
	configs    *cache.Cache[bool, core.SponsorConfig]
	logger     *zap.Logger
}

var _ core.SponsorService = (*Client)(nil)

func New(opts Options) *Client {
	c := &Client{
		http:       opts.HTTPClient,
		mainnetURL: opts.MainnetURL,
		testnetURL: opts.TestnetURL,
		disabled:   opts.Disabled,
		configs:    cache.NewLRUCache[bool, core.SponsorConfig](2, configTTL, "battery_config"),
		logger:     opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.mainnetURL == "" {
		c.mainnetURL = MainnetURL
	}
	if c.testnetURL == "" {
		c.testnetURL = TestnetURL
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

func (c *Client) baseURL(testnet bool) string {
	if testnet {
		return c.testnetURL
	}
	return c.mainnetURL
}

// Config returns the sponsor configuration of a network. Results are cached for five minutes.
// A disabled battery still reports the relay configuration so gasless transfers keep working.
func (c *Client) Config(ctx context.Context, testnet bool) (core.SponsorConfig, error) {
	if cfg, ok := c.configs.Get(testnet); ok {
		return cfg, nil
	}
	body, err := c.read(ctx, http.MethodGet, c.baseURL(testnet)+"/config", "", nil)
	if err != nil {
		return core.SponsorConfig{}, errors.Wrap(err, "get battery config")
	}
	raw, err := decodeConfig(body)
	if err != nil {
		return core.SponsorConfig{}, err
	}
	body, err = c.read(ctx, http.MethodGet, c.baseURL(testnet)+"/recharge-methods?include_recharge_only=false", "", nil)
	if err != nil {
		return core.SponsorConfig{}, errors.Wrap(err, "get recharge methods")
	}
	methods, err := decodeRechargeMethods(body)
	if err != nil {
		return core.SponsorConfig{}, err
	}
	cfg := core.SponsorConfig{GaslessTokens: gaslessTokens(methods, c.logger), Disabled: c.disabled}
	if raw.ExcessAccount != "" {
		excesses, err := ton.ParseAccountID(raw.ExcessAccount)
		if err != nil {
			return core.SponsorConfig{}, errors.Wrapf(err, "parse excess account %q", raw.ExcessAccount)
		}
		cfg.ExcessesAddress = &excesses
	}
	c.configs.Set(testnet, cfg)
	return cfg, nil
}

func gaslessTokens(methods []rechargeMethod, logger *zap.Logger) []ton.AccountID {
	var tokens []ton.AccountID
	for _, m := range methods {
		if m.Type != "jetton" || !m.SupportGasless {
			continue
		}
		master, err := ton.ParseAccountID(m.JettonMaster)
		if err != nil {
			logger.Warn("skip recharge method", zap.String("master", m.JettonMaster), zap.Error(err))
			continue
		}
		tokens = append(tokens, master)
	}
	slices.SortFunc(tokens, func(a, b ton.AccountID) int {
		if a.Workchain != b.Workchain {
			return int(a.Workchain) - int(b.Workchain)
		}
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return slices.Compact(tokens)
}

func (c *Client) EmulateWithSponsor(ctx context.Context, proofToken string, publicKey ed25519.PublicKey, testnet bool, msg []byte) (core.FeeBreakdown, error) {
	body, err := c.read(ctx, http.MethodPost, c.baseURL(testnet)+"/wallet/emulate", proofToken, encodeBoc(msg, publicKey))
	if err != nil {
		return core.FeeBreakdown{}, errors.Wrap(err, "emulate with battery")
	}
	fees, err := decodeTotalFees(body)
	if err != nil {
		return core.FeeBreakdown{}, err
	}
	return core.FeeBreakdown{TotalFees: fees}, nil
}

func (c *Client) EstimateGaslessCost(ctx context.Context, proofToken string, tokenMaster ton.AccountID, msg []byte, testnet bool) (*big.Int, error) {
	url := fmt.Sprintf("%s/gasless/estimate/%s", c.baseURL(testnet), tokenMaster.ToRaw())
	body, err := c.read(ctx, http.MethodPost, url, proofToken, encodeEstimate(walletOf(msg), msg))
	if err != nil {
		return nil, errors.Wrap(err, "estimate gasless cost")
	}
	est, err := decodeEstimate(body)
	if err != nil {
		return nil, err
	}
	return est.Commission, nil
}

// walletOf returns the wallet of an external message. Internal-signed bodies carry no address.
func walletOf(msg []byte) *ton.AccountID {
	cells, err := boc.DeserializeBoc(msg)
	if err != nil || len(cells) != 1 {
		return nil
	}
	var m tlb.Message
	if err := tlb.Unmarshal(cells[0], &m); err != nil || m.Info.SumType != "ExtInMsgInfo" {
		return nil
	}
	account, err := ton.AccountIDFromTlb(m.Info.ExtInMsgInfo.Dest)
	if err != nil {
		return nil
	}
	return account
}

// SubmitViaSponsor hands a signed message to the relay.
func (c *Client) SubmitViaSponsor(ctx context.Context, msg []byte, proofToken string, testnet bool) core.AcceptanceState {
	_, err := c.do(ctx, http.MethodPost, c.baseURL(testnet)+"/msg", proofToken, encodeBoc(msg, nil))
	state := classify(err)
	if state != core.AcceptanceSuccess {
		c.logger.Warn("battery rejected message", zap.Stringer("state", state), zap.Error(err))
	}
	return state
}

func classify(err error) core.AcceptanceState {
	if err == nil {
		return core.AcceptanceSuccess
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return core.AcceptanceStatusError
	}
	return core.AcceptanceUnknownError
}

// read retries a request that has no side effects.
func (c *Client) read(ctx context.Context, method, url, proofToken string, payload []byte) ([]byte, error) {
	var body []byte
	err := retry.Do(func() error {
		var err error
		body, err = c.do(ctx, method, url, proofToken, payload)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Code >= 500
			}
			return ctx.Err() == nil
		}),
	)
	return body, err
}

func (c *Client) do(ctx context.Context, method, url, proofToken string, payload []byte) ([]byte, error) {
	start := time.Now()
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if proofToken != "" {
		req.Header.Set(authHeader, proofToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		observe(req.URL.Path, start, err)
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		err = &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	observe(req.URL.Path, start, err)
	return body, err
}
