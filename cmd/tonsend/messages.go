package main

import (
	"github.com/go-faster/errors"

	"github.com/arnac-io/tonsend/pkg/core"
	"github.com/arnac-io/tonsend/pkg/i18n"
	"github.com/arnac-io/tonsend/pkg/sendflow"
)

var errorMessages = []struct {
	err error
	id  string
}{
	{core.ErrInvalidDestination, "InvalidDestination"},
	{core.ErrInsufficientBalance, "InsufficientBalance"},
	{core.ErrEstimationFailed, "EstimationFailed"},
	{core.ErrWalletNotSpendable, "WalletNotSpendable"},
	{core.ErrAuthenticationFailed, "AuthenticationFailed"},
	{core.ErrEncryptionUnavailable, "EncryptionUnavailable"},
	{core.ErrCancelled, "Cancelled"},
}

// errorText localizes errors the user can act on. Other errors are printed as is.
func errorText(lang string, err error) string {
	var rejected *core.BroadcastRejectedError
	if errors.As(err, &rejected) {
		return i18n.T(lang, i18n.C{
			MessageID:    "BroadcastRejected",
			TemplateData: i18n.Template{"State": rejected.State.String()},
		})
	}
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return i18n.T(lang, i18n.C{MessageID: m.id})
		}
	}
	return err.Error()
}

func quoteText(lang string, q sendflow.Quote) string {
	id := "FeeQuote"
	switch {
	case q.Sponsored:
		id = "FeeSponsored"
	case q.Gasless:
		id = "FeeGasless"
	}
	return i18n.T(lang, i18n.C{
		MessageID:    id,
		TemplateData: i18n.Template{"Fee": q.Display, "Symbol": q.FeeToken.Symbol},
	})
}

func nearExhaustionText(lang string, w sendflow.NearExhaustionWarning) string {
	return i18n.T(lang, i18n.C{
		MessageID: "NearExhaustion",
		TemplateData: i18n.Template{
			"Amount":  i18n.FormatAmount(w.Amount, w.Symbol),
			"Balance": i18n.FormatAmount(w.Balance, w.Symbol),
		},
	})
}
