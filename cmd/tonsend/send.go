package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/internal/g"
	"github.com/arnac-io/tonsend/pkg/battery"
	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/destination"
	"github.com/arnac-io/tonsend/pkg/fees"
	"github.com/arnac-io/tonsend/pkg/i18n"
	"github.com/arnac-io/tonsend/pkg/rates"
	"github.com/arnac-io/tonsend/pkg/references"
	"github.com/arnac-io/tonsend/pkg/sender"
	"github.com/arnac-io/tonsend/pkg/sendflow"
	"github.com/arnac-io/tonsend/pkg/transfer"
)

const resolveTimeout = 30 * time.Second

type sendFlags struct {
	id        string
	to        string
	amount    string
	jetton    string
	nft       string
	comment   string
	encrypt   bool
	max       bool
	gasless   bool
	noBattery bool
	yes       bool
	fiat      string
}

func newQuoteCmd(e *env, submit bool) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Show the fee of a transfer",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := e.run(cmd.Context(), f, submit)
			if err != nil {
				fmt.Fprintln(os.Stderr, errorText(e.lang, err))
			}
			return err
		},
	}
	if submit {
		cmd.Use = "send"
		cmd.Short = "Send a transfer"
		cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "do not ask to confirm sending the whole balance")
	}
	cmd.Flags().StringVar(&f.id, "id", "main", "wallet id in the keystore")
	cmd.Flags().StringVar(&f.to, "to", "", "recipient address or domain")
	cmd.Flags().StringVar(&f.amount, "amount", "0", "amount in token units, e.g. 1.5")
	cmd.Flags().StringVar(&f.jetton, "jetton", "", "jetton master address or ticker (usdt, not), TON when empty")
	cmd.Flags().StringVar(&f.nft, "nft", "", "NFT item address")
	cmd.Flags().StringVar(&f.comment, "comment", "", "comment attached to the transfer")
	cmd.Flags().BoolVar(&f.encrypt, "encrypt", false, "encrypt the comment")
	cmd.Flags().BoolVar(&f.max, "max", false, "send the whole balance")
	cmd.Flags().BoolVar(&f.gasless, "gasless", false, "prefer paying the fee in the jetton")
	cmd.Flags().StringVar(&f.fiat, "fiat", "", "amount is in this fiat currency, e.g. USD")
	cmd.Flags().BoolVar(&f.noBattery, "no-battery", false, "do not use the battery")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (e *env) run(ctx context.Context, f sendFlags, submit bool) error {
	w, err := e.keys.Wallet(f.id)
	if err != nil {
		return err
	}
	client, err := e.client()
	if err != nil {
		return err
	}
	relay := battery.New(battery.Options{
		MainnetURL: e.cfg.Battery.URL,
		TestnetURL: e.cfg.Battery.TestnetURL,
		Disabled:   e.cfg.Battery.Disabled,
		Logger:     e.log,
	})
	tonBalance, err := client.TonBalance(ctx, w.Address, w.Testnet)
	if err != nil {
		return err
	}
	token := tonBalance
	if f.jetton != "" {
		master, err := references.Jetton(f.jetton)
		if err != nil {
			return errors.Wrap(err, "jetton")
		}
		if token, err = client.JettonBalance(ctx, w.Address, master, w.Testnet); err != nil {
			return err
		}
	}

	var categories []core.BatteryTransaction
	if !f.noBattery {
		categories = []core.BatteryTransaction{core.BatteryJetton, core.BatteryNft}
	}
	prefs := sendflow.NewMemoryPreferences(categories...)
	prefs.SetPreferGasless(w.Testnet, f.gasless)

	tonapiURL := e.cfg.TonAPI.URL
	if w.Testnet {
		tonapiURL = e.cfg.TonAPI.TestnetURL
	}
	session := sendflow.NewSession(ctx, sendflow.Config{
		Wallet:      w,
		Token:       token,
		TonBalance:  tonBalance.Balance,
		Resolver:    destination.NewResolver(client, e.log),
		Builder:     transfer.NewBuilder(fees.NewNftCostCalculator(client)),
		Fees:        fees.NewEngine(relay, client, e.keys, prefs, e.log),
		Submitter:   sender.NewSubmitter(e.keys, sender.NewBroadcast(client, relay), e.log),
		Metadata:    client,
		Preferences: prefs,
		Rates:       rates.New(tonapiURL, e.cfg.TonAPI.Token, f.fiat, e.log),
		Debounce:    e.cfg.App.Debounce,
		Logger:      e.log,
	})
	defer session.Close()

	session.SetAddress(f.to)
	if err := waitDestination(ctx, session, f.to); err != nil {
		return err
	}
	if err := fill(session, f, token); err != nil {
		return err
	}

	q, err := session.Next(ctx)
	var near *sendflow.NearExhaustionError
	if errors.As(err, &near) {
		if !submit {
			// estimating does not need a confirmation
			q, err = session.Quote(ctx)
		} else if f.yes || confirm(e.lang, near.Warning, os.Stdin, os.Stderr) {
			session.ConfirmNearExhaustion()
			q, err = session.Next(ctx)
		} else {
			return core.ErrCancelled
		}
	}
	if err != nil {
		return err
	}
	fmt.Println(quoteText(e.lang, q))
	if q.ShowGaslessToggle && !q.Gasless {
		fmt.Println(i18n.T(e.lang, i18n.C{MessageID: "GaslessAvailable", TemplateData: i18n.Template{"Symbol": token.Token.Symbol}}))
	}
	if !submit {
		return nil
	}
	res, err := session.Submit(ctx, q)
	if err != nil {
		return err
	}
	e.log.Info("transfer sent", zap.String("hash", res.Hash), zap.Stringer("relay", res.Strategy.Kind))
	fmt.Println(i18n.T(e.lang, i18n.C{MessageID: "Sent", TemplateData: i18n.Template{"Hash": res.Hash}}))
	return nil
}

func fill(session *sendflow.Session, f sendFlags, token core.TokenBalance) error {
	if f.nft != "" {
		nft, err := ton.ParseAccountID(f.nft)
		if err != nil {
			return errors.Wrap(err, "nft")
		}
		session.SetNft(g.Pointer(nft))
	} else if f.max {
		session.SetAmount(token.Balance)
		session.SetMax(true)
	} else {
		amount, err := decimal.NewFromString(f.amount)
		if err != nil {
			return errors.Wrap(err, "amount")
		}
		session.SetAmount(amount)
		session.SetAmountInFiat(f.fiat != "")
	}
	session.SetComment(f.comment)
	if f.encrypt {
		if !session.EncryptedCommentAvailable() {
			return core.ErrEncryptionUnavailable
		}
		session.SetEncryptedComment(true)
	}
	return nil
}

// waitDestination blocks until the address typed last is resolved.
func waitDestination(ctx context.Context, session *sendflow.Session, address string) error {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "resolve destination")
		case ev, ok := <-session.Events():
			if !ok {
				return core.ErrCancelled
			}
			resolved, isResolution := ev.(sendflow.DestinationResolved)
			if !isResolution || resolved.Address != strings.TrimSpace(address) {
				continue
			}
			if _, ok := resolved.Destination.(*core.DestinationAccount); !ok {
				return core.ErrInvalidDestination
			}
			return nil
		}
	}
}

// confirm asks whether to send almost the whole balance.
func confirm(lang string, w sendflow.NearExhaustionWarning, in io.Reader, out io.Writer) bool {
	fmt.Fprintln(out, nearExhaustionText(lang, w))
	fmt.Fprint(out, "[y/N] ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
