package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/events"
	"github.com/noah-isme/backend-klinik/internal/obs"
	"github.com/noah-isme/backend-klinik/internal/resilience"
)

// SaleFromEvent converts a bill.finalized payload into a Sale.
func SaleFromEvent(ev events.BillFinalized) (Sale, error) {
	domain, err := billing.ParseDomain(ev.Domain)
	if err != nil {
		return Sale{}, fmt.Errorf("%w: %w", ErrInvalidSale, err)
	}
	mode, err := billing.ParsePaymentMode(ev.PaymentMode)
	if err != nil {
		return Sale{}, fmt.Errorf("%w: %w", ErrInvalidSale, err)
	}
	return Sale{
		Domain:      domain,
		BillID:      ev.BillID,
		Reference:   ev.InvoiceNumber,
		Date:        ev.FinalizedAt,
		NetAmount:   ev.NetAmount,
		TaxAmount:   ev.TaxAmount,
		CostOfGoods: ev.CostOfGoods,
		PaymentMode: mode,
	}, nil
}

// TaskHandler posts bill.finalized tasks to the ledger.
type TaskHandler struct {
	Poster  Poster
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// Register binds the handler to its task type.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(events.TaskType(events.TopicBillFinalized), h)
}

// ProcessTask implements asynq.Handler. Malformed payloads skip retry; an open breaker
// or a failed post returns an error so asynq retries later.
func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ev, err := events.DecodeBillFinalized(t.Payload())
	if err != nil {
		obs.RecordLedgerPost("invalid")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	sale, err := SaleFromEvent(ev)
	if err != nil {
		obs.RecordLedgerPost("invalid")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if h.Breaker != nil && !h.Breaker.Allow(ctx) {
		obs.RecordLedgerPost("breaker_open")
		return resilience.ErrOpenCircuit
	}

	started := time.Now()
	err = h.Poster.RecordSale(ctx, sale)
	switch {
	case err == nil:
		h.report(ctx, true)
		obs.RecordLedgerPost("ok")
		h.Logger.Info().Str("reference", sale.Reference).Dur("took", time.Since(started)).Msg("sale posted to ledger")
		return nil
	case errors.Is(err, ErrAlreadyPosted):
		h.report(ctx, true)
		obs.RecordLedgerPost("duplicate")
		return nil
	case errors.Is(err, ErrInvalidSale), errors.Is(err, ErrUnbalanced):
		// The ledger answered, so the call counts as healthy for the breaker.
		h.report(ctx, true)
		obs.RecordLedgerPost("invalid")
		h.Logger.Error().Err(err).Str("reference", sale.Reference).Msg("sale rejected by ledger")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		h.report(ctx, false)
		obs.RecordLedgerPost("error")
		h.Logger.Warn().Err(err).Str("reference", sale.Reference).Msg("ledger post failed")
		return err
	}
}

func (h *TaskHandler) report(ctx context.Context, ok bool) {
	if h.Breaker != nil {
		h.Breaker.Report(ctx, ok)
	}
}
