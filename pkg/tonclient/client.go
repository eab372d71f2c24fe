package tonclient

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"net"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo/config"
	"github.com/tonkeeper/tongo/liteapi"
	"github.com/tonkeeper/tongo/ton"
	tongoWallet "github.com/tonkeeper/tongo/wallet"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

var ErrJettonNotFound = errors.New("jetton not found")

// ValidityWindow is added to the chain time to get the valid-until of a message.
const ValidityWindow = 5 * time.Minute

// indexer is the part of the tonapi client used here.
type indexer interface {
	GetAccount(ctx context.Context, params tonapi.GetAccountParams) (*tonapi.Account, error)
	GetAccountPublicKey(ctx context.Context, params tonapi.GetAccountPublicKeyParams) (*tonapi.GetAccountPublicKeyOK, error)
	GetBlockchainRawAccount(ctx context.Context, params tonapi.GetBlockchainRawAccountParams) (*tonapi.BlockchainRawAccount, error)
	EmulateMessageToWallet(ctx context.Context, request *tonapi.EmulateMessageToWalletReq, params tonapi.EmulateMessageToWalletParams) (*tonapi.MessageConsequences, error)
	SendBlockchainMessage(ctx context.Context, request *tonapi.SendBlockchainMessageReq) error
	GetAccountJettonsBalances(ctx context.Context, params tonapi.GetAccountJettonsBalancesParams) (*tonapi.JettonsBalances, error)
}

// chain is the part of the lite client used here.
type chain interface {
	GetSeqno(ctx context.Context, account ton.AccountID) (uint32, error)
	GetTime(ctx context.Context) (uint32, error)
}

type network struct {
	indexer indexer
	chain   chain
}

// Client talks to tonapi and lite servers of both networks.
// It implements core.AccountLookup, core.Emulator, core.MetadataSource and
// the direct part of core.Broadcaster.
type Client struct {
	mainnet network
	testnet network
	logger  *zap.Logger
}

type Options struct {
	Token       string
	MainnetURL  string
	TestnetURL  string
	LiteServers []config.LiteServer
	Logger      *zap.Logger
}

// New connects to the mainnet and testnet endpoints.
func New(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var clientOpts []tonapi.ClientOption
	if opts.Token != "" {
		clientOpts = append(clientOpts, tonapi.WithToken(opts.Token))
	}
	mainnetURL, testnetURL := opts.MainnetURL, opts.TestnetURL
	if mainnetURL == "" {
		mainnetURL = tonapi.TonApiURL
	}
	if testnetURL == "" {
		testnetURL = tonapi.TestnetTonApiURL
	}
	mainnetAPI, err := tonapi.NewClient(mainnetURL, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "tonapi mainnet")
	}
	testnetAPI, err := tonapi.NewClient(testnetURL, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "tonapi testnet")
	}
	var mainnetLite *liteapi.Client
	if len(opts.LiteServers) == 0 {
		logger.Warn("using public lite servers config")
		mainnetLite, err = liteapi.NewClientWithDefaultMainnet()
	} else {
		mainnetLite, err = liteapi.NewClient(liteapi.WithLiteServers(opts.LiteServers))
	}
	if err != nil {
		return nil, errors.Wrap(err, "liteapi mainnet")
	}
	testnetLite, err := liteapi.NewClientWithDefaultTestnet()
	if err != nil {
		return nil, errors.Wrap(err, "liteapi testnet")
	}
	return newClient(
		network{indexer: mainnetAPI, chain: mainnetLite},
		network{indexer: testnetAPI, chain: testnetLite},
		logger,
	), nil
}

func newClient(mainnet, testnet network, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{mainnet: mainnet, testnet: testnet, logger: logger}
}

func (c *Client) network(testnet bool) network {
	if testnet {
		return c.testnet
	}
	return c.mainnet
}

var (
	_ core.AccountLookup  = (*Client)(nil)
	_ core.Emulator       = (*Client)(nil)
	_ core.MetadataSource = (*Client)(nil)
)

// read retries an idempotent request unless the context is done.
func read[T any](ctx context.Context, method string, fn func() (T, error)) (T, error) {
	start := time.Now()
	var result T
	err := retry.Do(func() error {
		var err error
		result, err = fn()
		return err
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	observe(method, start, err)
	return result, err
}

func retryable(err error) bool {
	var statusErr *tonapi.ErrorStatusCode
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) ResolveAccount(ctx context.Context, address string, testnet bool) (*core.AccountInfo, error) {
	account, err := read(ctx, "get_account", func() (*tonapi.Account, error) {
		return c.network(testnet).indexer.GetAccount(ctx, tonapi.GetAccountParams{AccountID: address})
	})
	if err != nil {
		return nil, errors.Wrap(err, "get account")
	}
	id, err := ton.ParseAccountID(account.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "parse account address %q", account.Address)
	}
	return &core.AccountInfo{
		Address:      id,
		Status:       string(account.Status),
		IsWallet:     account.IsWallet,
		MemoRequired: account.MemoRequired.Value,
		Balance:      account.Balance,
	}, nil
}

func (c *Client) GetPublicKey(ctx context.Context, address string, testnet bool) (ed25519.PublicKey, error) {
	res, err := read(ctx, "get_public_key", func() (*tonapi.GetAccountPublicKeyOK, error) {
		return c.network(testnet).indexer.GetAccountPublicKey(ctx, tonapi.GetAccountPublicKeyParams{AccountID: address})
	})
	if err != nil {
		return nil, errors.Wrap(err, "get public key")
	}
	key, err := hex.DecodeString(res.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode public key")
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, errors.Errorf("public key has %d bytes", len(key))
	}
	return key, nil
}

// WalletVersion detects the wallet contract version by its code.
func (c *Client) WalletVersion(ctx context.Context, account ton.AccountID, testnet bool) (tongoWallet.Version, error) {
	raw, err := read(ctx, "get_raw_account", func() (*tonapi.BlockchainRawAccount, error) {
		return c.network(testnet).indexer.GetBlockchainRawAccount(ctx, tonapi.GetBlockchainRawAccountParams{AccountID: account.ToRaw()})
	})
	var status *tonapi.ErrorStatusCode
	if errors.As(err, &status) && status.StatusCode == 404 {
		return 0, wallet.ErrNoCode
	}
	if err != nil {
		return 0, errors.Wrap(err, "get raw account")
	}
	code, err := hex.DecodeString(raw.Code.Value)
	if err != nil {
		return 0, errors.Wrap(err, "decode code")
	}
	return wallet.GetVersionByCode(code)
}

// TonBalance returns the TON balance of an account.
func (c *Client) TonBalance(ctx context.Context, account ton.AccountID, testnet bool) (core.TokenBalance, error) {
	info, err := c.ResolveAccount(ctx, account.ToRaw(), testnet)
	if err != nil {
		return core.TokenBalance{}, err
	}
	return core.TokenBalance{
		Token:   core.TON,
		Balance: decimal.New(info.Balance, -core.TonDecimals),
	}, nil
}

// JettonBalance returns the balance of the jetton owned by account.
// ErrJettonNotFound is returned when the account never held it.
func (c *Client) JettonBalance(ctx context.Context, account ton.AccountID, master ton.AccountID, testnet bool) (core.TokenBalance, error) {
	balances, err := read(ctx, "jetton_balances", func() (*tonapi.JettonsBalances, error) {
		return c.network(testnet).indexer.GetAccountJettonsBalances(ctx, tonapi.GetAccountJettonsBalancesParams{AccountID: account.ToRaw()})
	})
	if err != nil {
		return core.TokenBalance{}, errors.Wrap(err, "get jetton balances")
	}
	for _, b := range balances.Balances {
		id, err := ton.ParseAccountID(b.Jetton.Address)
		if err != nil || id != master {
			continue
		}
		walletAddress, err := ton.ParseAccountID(b.WalletAddress.Address)
		if err != nil {
			return core.TokenBalance{}, errors.Wrap(err, "parse jetton wallet")
		}
		units, ok := new(big.Int).SetString(b.Balance, 10)
		if !ok {
			return core.TokenBalance{}, errors.Errorf("invalid jetton balance %q", b.Balance)
		}
		token := core.Token{Address: &id, Symbol: b.Jetton.Symbol, Decimals: int32(b.Jetton.Decimals)}
		return core.TokenBalance{
			Token:         token,
			Balance:       token.FromUnits(units),
			WalletAddress: &walletAddress,
		}, nil
	}
	return core.TokenBalance{}, errors.Wrapf(ErrJettonNotFound, "%v", master.ToRaw())
}

func (c *Client) Emulate(ctx context.Context, msg []byte, testnet bool) (core.FeeBreakdown, error) {
	req := tonapi.EmulateMessageToWalletReq{Boc: base64.StdEncoding.EncodeToString(msg)}
	consequences, err := read(ctx, "emulate", func() (*tonapi.MessageConsequences, error) {
		return c.network(testnet).indexer.EmulateMessageToWallet(ctx, &req, tonapi.EmulateMessageToWalletParams{})
	})
	if err != nil {
		return core.FeeBreakdown{}, errors.Wrap(err, "emulate message")
	}
	return core.FeeBreakdown{TotalFees: totalFees(consequences.Trace)}, nil
}

func totalFees(trace tonapi.Trace) int64 {
	fees := trace.Transaction.TotalFees
	for _, child := range trace.Children {
		fees += totalFees(child)
	}
	return fees
}

func (c *Client) Seqno(ctx context.Context, w core.Wallet) (uint32, error) {
	seqno, err := read(ctx, "seqno", func() (uint32, error) {
		return c.network(w.Testnet).chain.GetSeqno(ctx, w.Address)
	})
	if err != nil {
		return 0, errors.Wrap(err, "get seqno")
	}
	return seqno, nil
}

// ValidUntil is the chain time plus ValidityWindow. The local clock is never used.
func (c *Client) ValidUntil(ctx context.Context, testnet bool) (time.Time, error) {
	now, err := read(ctx, "time", func() (uint32, error) {
		return c.network(testnet).chain.GetTime(ctx)
	})
	if err != nil {
		return time.Time{}, errors.Wrap(err, "get chain time")
	}
	return time.Unix(int64(now), 0).Add(ValidityWindow), nil
}

// Submit sends a signed external message directly to the network.
func (c *Client) Submit(ctx context.Context, msg []byte, testnet bool) core.AcceptanceState {
	var req tonapi.SendBlockchainMessageReq
	req.Boc.SetTo(base64.StdEncoding.EncodeToString(msg))
	start := time.Now()
	err := c.network(testnet).indexer.SendBlockchainMessage(ctx, &req)
	observe("send", start, err)
	state := Classify(err)
	if state != core.AcceptanceSuccess {
		c.logger.Warn("message rejected", zap.Stringer("state", state), zap.Error(err))
	}
	return state
}

// Classify converts a broadcast error into an acceptance state.
func Classify(err error) core.AcceptanceState {
	if err == nil {
		return core.AcceptanceSuccess
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.AcceptanceUnknownError
	}
	return core.AcceptanceStatusError
}
