package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"github.com/tonkeeper/tongo/ton"
	tongoWallet "github.com/tonkeeper/tongo/wallet"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/arnac-io/tonsend/pkg/battery"
	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/wallet"
)

func newImportCmd(e *env) *cobra.Command {
	var (
		id      string
		address string
		ver     string
		testnet bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a wallet mnemonic into the keystore",
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := ton.ParseAccountID(address)
			if err != nil {
				return errors.Wrap(err, "address")
			}
			v, err := wallet.ParseVersion(ver)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("version") {
				if v, err = e.detectVersion(cmd.Context(), account, testnet, v); err != nil {
					return err
				}
			}
			fmt.Fprint(os.Stderr, "Mnemonic: ")
			mnemonic, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && mnemonic == "" {
				return errors.Wrap(err, "read mnemonic")
			}
			passcode, err := readNewPasscode()
			if err != nil {
				return err
			}
			if err := e.keys.Import(id, strings.TrimSpace(mnemonic), passcode, account, v, testnet); err != nil {
				return err
			}
			e.log.Info("wallet imported")
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "main", "wallet id in the keystore")
	cmd.Flags().StringVar(&address, "address", "", "wallet address")
	cmd.Flags().StringVar(&ver, "version", "v5r1", "wallet contract version, detected from the chain when omitted")
	cmd.Flags().BoolVar(&testnet, "testnet", false, "testnet wallet")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

// detectVersion reads the wallet version from the deployed contract code.
// Undeployed wallets keep the fallback version.
func (e *env) detectVersion(ctx context.Context, account ton.AccountID, testnet bool, fallback tongoWallet.Version) (tongoWallet.Version, error) {
	client, err := e.client()
	if err != nil {
		return 0, err
	}
	v, err := client.WalletVersion(ctx, account, testnet)
	if errors.Is(err, wallet.ErrNoCode) {
		e.log.Warn("wallet is not deployed, using default version", zap.String("version", wallet.VersionName(fallback)))
		return fallback, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "detect wallet version, pass --version to skip")
	}
	e.log.Info("wallet version detected", zap.String("version", wallet.VersionName(v)))
	return v, nil
}

func readNewPasscode() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	fmt.Fprint(os.Stderr, "New passcode: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, errors.Wrap(err, "read passcode")
	}
	fmt.Fprint(os.Stderr, "Repeat passcode: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, errors.Wrap(err, "read passcode")
	}
	if len(first) == 0 || string(first) != string(second) {
		return nil, errors.New("passcodes do not match")
	}
	return first, nil
}

func newProofTokenCmd(e *env) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "proof-token [TOKEN]",
		Short: "Store the battery proof token of a wallet, requesting a new one when TOKEN is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return e.keys.SetProofToken(id, args[0])
			}
			ctx := cmd.Context()
			w, err := e.keys.Wallet(id)
			if err != nil {
				return err
			}
			if !e.keys.ConfirmUserPresence(ctx, id) {
				return core.ErrAuthenticationFailed
			}
			key, err := e.keys.PrivateKey(ctx, id)
			if err != nil {
				return err
			}
			relay := battery.New(battery.Options{
				MainnetURL: e.cfg.Battery.URL,
				TestnetURL: e.cfg.Battery.TestnetURL,
				Logger:     e.log,
			})
			token, err := relay.ProofToken(ctx, w, key)
			if err != nil {
				return err
			}
			return e.keys.SetProofToken(id, token)
		},
	}
	cmd.Flags().StringVar(&id, "id", "main", "wallet id in the keystore")
	return cmd
}
