package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arnac-io/tonsend/internal/config"
	"github.com/arnac-io/tonsend/pkg/app"
	"github.com/arnac-io/tonsend/pkg/keyholder"
	"github.com/arnac-io/tonsend/pkg/sentry"
	"github.com/arnac-io/tonsend/pkg/tonclient"
)

// env is shared by every command.
type env struct {
	cfg    config.Config
	log    *zap.Logger
	keys   *keyholder.Keystore
	lang   string
	cancel context.CancelFunc
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "tonsend",
		Short:         "Send TON, jettons and NFTs with the cheapest available fee",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	root.PersistentFlags().StringVar(&e.lang, "lang", "en", "language of the messages")
	root.AddCommand(
		newImportCmd(e),
		newProofTokenCmd(e),
		newQuoteCmd(e, false),
		newQuoteCmd(e, true),
	)
	return root
}

func (e *env) init(cmd *cobra.Command) error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log = app.Logger(cfg.App.LogLevel)
	if err := sentry.Init(cfg.App.SentryDSN, version); err != nil {
		e.log.Warn("sentry init", zap.Error(err))
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	e.cancel = cancel
	cmd.SetContext(ctx)
	app.ServeMetrics(ctx, cfg.App.MetricsPort, e.log)
	e.keys, err = keyholder.Open(cfg.App.KeystorePath, keyholder.NewTerminalPrompt(), keyholder.WithLogger(e.log))
	return err
}

func (e *env) client() (*tonclient.Client, error) {
	return tonclient.New(tonclient.Options{
		Token:       e.cfg.TonAPI.Token,
		MainnetURL:  e.cfg.TonAPI.URL,
		TestnetURL:  e.cfg.TonAPI.TestnetURL,
		LiteServers: e.cfg.LiteServers,
		Logger:      e.log,
	})
}

func (e *env) close() {
	if e.cancel != nil {
		e.cancel()
	}
	sentry.Flush()
	if e.log != nil {
		_ = e.log.Sync()
	}
}
