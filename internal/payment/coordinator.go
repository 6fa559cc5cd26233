// Package payment gates deferred fulfillment behind a purchase: it issues
// invoices for credit packages, approves pre-checkout and, on a confirmed
// payment, tops up the ledger and resumes the stored pending request.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mosaicbots/postcardbot/internal/ledger"
	"github.com/mosaicbots/postcardbot/internal/models"
	"github.com/mosaicbots/postcardbot/internal/pipeline"
)

var (
	// ErrNoPending means a package was selected without a stored request; the
	// selection is stale and must be rejected.
	ErrNoPending      = errors.New("payment: no pending request")
	ErrUnknownPackage = errors.New("payment: unknown package")
	// ErrPayloadMismatch means money moved but the invoice payload could not
	// be matched to a known package. Credits are not granted; the case is
	// logged for manual reconciliation.
	ErrPayloadMismatch = errors.New("payment: invoice payload could not be matched")
)

// Runner resumes a pending request after a successful purchase.
type Runner interface {
	Run(ctx context.Context, userID int64, req models.PostcardRequest) (*pipeline.Result, error)
}

// Recorder persists payment rows for reporting.
type Recorder interface {
	Create(ctx context.Context, payment *models.Payment) error
}

// Requester answers Telegram API calls that expect no message result.
type Requester interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Coordinator struct {
	log           *slog.Logger
	credits       *ledger.Ledger
	runner        Runner
	records       Recorder // optional
	providerToken string
	currency      string
}

func NewCoordinator(log *slog.Logger, credits *ledger.Ledger, runner Runner, records Recorder, providerToken, currency string) *Coordinator {
	return &Coordinator{
		log:           log,
		credits:       credits,
		runner:        runner,
		records:       records,
		providerToken: providerToken,
		currency:      currency,
	}
}

// PrepareInvoice validates a package selection and builds the invoice for
// it. A selection without a pending request is rejected as stale: purchases
// are only ever initiated in response to insufficient balance.
func (c *Coordinator) PrepareInvoice(ctx context.Context, userID, chatID int64, size int) (tgbotapi.InvoiceConfig, error) {
	pkg, ok := models.Packages[size]
	if !ok {
		return tgbotapi.InvoiceConfig{}, ErrUnknownPackage
	}
	pending, err := c.credits.HasPending(ctx, userID)
	if err != nil {
		return tgbotapi.InvoiceConfig{}, err
	}
	if !pending {
		return tgbotapi.InvoiceConfig{}, ErrNoPending
	}

	prices := []tgbotapi.LabeledPrice{
		{Label: pkg.Label, Amount: pkg.PriceMinorUnits},
	}
	invoice := tgbotapi.NewInvoice(chatID,
		pkg.Label,
		fmt.Sprintf("Покупка %d кредитов на генерацию открыток.", pkg.Size),
		encodePayload(size, userID),
		c.providerToken,
		"topup",
		c.currency,
		prices,
	)
	return invoice, nil
}

// HandlePreCheckout always approves: there is no inventory or fraud check in
// scope, the payment backend just needs a synchronous yes.
func (c *Coordinator) HandlePreCheckout(api Requester, query *tgbotapi.PreCheckoutQuery) error {
	response := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}
	if _, err := api.Request(response); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return nil
}

// Outcome describes what a confirmed payment produced.
type Outcome struct {
	Package    models.Package
	NewBalance int
	// Result is set when a pending request was resumed and rendered; RunErr
	// is set when the resume ran but failed.
	Result *pipeline.Result
	RunErr error
}

// HandleSuccessfulPayment settles a confirmed purchase: it parses the
// payload, credits the ledger, records the purchase and resumes the pending
// request if one exists. A payload that cannot be matched returns
// ErrPayloadMismatch after logging the reconciliation gap; the balance is
// never changed in that case.
func (c *Coordinator) HandleSuccessfulPayment(ctx context.Context, userID int64, sp *tgbotapi.SuccessfulPayment) (*Outcome, error) {
	size, payloadUserID, err := decodePayload(sp.InvoicePayload)
	pkg, known := models.Packages[size]
	if err != nil || !known || payloadUserID != userID {
		// Funds already moved; surface distinctly for manual reconciliation.
		c.log.Error("payment_reconciliation_gap",
			"user", userID,
			"payload", sp.InvoicePayload,
			"amount", sp.TotalAmount,
			"currency", sp.Currency,
			"charge_id", sp.ProviderPaymentChargeID,
		)
		c.record(ctx, userID, 0, sp, "unmatched")
		return nil, ErrPayloadMismatch
	}

	balance, err := c.credits.AddCredits(ctx, userID, pkg.Size)
	if err != nil {
		return nil, fmt.Errorf("credit purchase: %w", err)
	}
	if err := c.credits.RecordPurchase(ctx, userID, sp.TotalAmount); err != nil {
		c.log.Error("record purchase counters", "user", userID, "err", err)
	}
	c.record(ctx, userID, pkg.Size, sp, "paid")

	outcome := &Outcome{Package: pkg, NewBalance: balance}

	pending, err := c.credits.PopPending(ctx, userID)
	if err != nil {
		c.log.Error("pop pending request", "user", userID, "err", err)
		return outcome, nil
	}
	if pending == nil {
		return outcome, nil
	}

	// The pending slot is already empty: the request runs exactly once,
	// whether or not the pipeline succeeds.
	result, runErr := c.runner.Run(ctx, userID, *pending)
	outcome.Result = result
	outcome.RunErr = runErr
	return outcome, nil
}

func (c *Coordinator) record(ctx context.Context, userID int64, size int, sp *tgbotapi.SuccessfulPayment, status string) {
	if c.records == nil {
		return
	}
	entry := &models.Payment{
		UserID:         userID,
		PackageSize:    size,
		Provider:       "telegram",
		ProviderCharge: sp.ProviderPaymentChargeID,
		Currency:       sp.Currency,
		Amount:         sp.TotalAmount,
		Status:         status,
		RawPayload:     sp.InvoicePayload,
	}
	if err := c.records.Create(ctx, entry); err != nil {
		c.log.Error("record payment", "user", userID, "err", err)
	}
}

func encodePayload(size int, userID int64) string {
	return fmt.Sprintf("pkg:%d:%d", size, userID)
}

func decodePayload(payload string) (size int, userID int64, err error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 || parts[0] != "pkg" {
		return 0, 0, fmt.Errorf("malformed invoice payload")
	}
	size, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed package id: %w", err)
	}
	userID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed user id: %w", err)
	}
	return size, userID, nil
}
