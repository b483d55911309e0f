package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/cart"
	"github.com/noah-isme/backend-klinik/internal/events"
	"github.com/noah-isme/backend-klinik/internal/incentive"
	"github.com/noah-isme/backend-klinik/internal/invoice"
	"github.com/noah-isme/backend-klinik/internal/lock"
	"github.com/noah-isme/backend-klinik/internal/obs"
	"github.com/noah-isme/backend-klinik/internal/pricing"
	"github.com/noah-isme/backend-klinik/internal/store"
)

var (
	// ErrEmptyCart is returned when finalizing a cart without billable items.
	ErrEmptyCart = errors.New("no items in bill")
	// ErrDoctorRequired is returned when an ultrasound bill has no referring doctor.
	ErrDoctorRequired = errors.New("referring doctor is required")
	// ErrDoctorNotFound is returned for an unknown or inactive referring doctor.
	ErrDoctorNotFound = errors.New("referring doctor not found")
	// ErrInsufficientStock is returned when a stock lot ran short between cart and finalize.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrFinalizeFailed wraps any other persistence failure.
	ErrFinalizeFailed = errors.New("failed to generate bill")
	// ErrBillNotFound is returned when looking up an unknown invoice.
	ErrBillNotFound = errors.New("bill not found")
	// ErrInvalidInput is returned for malformed finalize requests.
	ErrInvalidInput = errors.New("invalid input")
)

// Locker serialises finalize calls for one cart.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Publisher dispatches committed outbox events.
type Publisher interface {
	Publish(ctx context.Context, ev store.DomainEvent) error
}

// FinalizeInput identifies the cart to settle and how it was paid.
type FinalizeInput struct {
	Domain            billing.Domain
	VisitID           int64
	PaymentMode       string
	ReferringDoctorID *int64
}

// Service turns carts into persisted bills.
type Service struct {
	Tx         TxRunner
	Reader     Reader
	Carts      cart.Store
	Locker     Locker
	Events     Publisher
	Logger     zerolog.Logger
	Now        func() time.Time
	MaxRetries int
	LockTTL    time.Duration
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) maxRetries() int {
	if s.MaxRetries <= 0 {
		return 3
	}
	return s.MaxRetries
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 30 * time.Second
	}
	return s.LockTTL
}

// LockKey names the Redis lock guarding finalize of one cart.
func LockKey(domain billing.Domain, visitID int64) string {
	return "lock:finalize:" + string(domain) + ":" + strconv.FormatInt(visitID, 10)
}

// Finalize validates the cart, writes the bill and its side effects in one transaction, then
// publishes the outbox event and clears the cart.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (Bill, error) {
	if s == nil || s.Tx == nil || s.Carts == nil {
		return Bill{}, errors.New("settlement service not configured")
	}
	if !in.Domain.Valid() {
		return Bill{}, fmt.Errorf("%w: %v", ErrInvalidInput, billing.ErrUnknownDomain)
	}
	if in.VisitID <= 0 {
		return Bill{}, fmt.Errorf("%w: visit id must be positive", ErrInvalidInput)
	}
	mode, err := billing.ParsePaymentMode(in.PaymentMode)
	if err != nil {
		return Bill{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var bill Bill
	run := func(ctx context.Context) error {
		var err error
		bill, err = s.finalize(ctx, in, mode)
		return err
	}
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, LockKey(in.Domain, in.VisitID), s.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		obs.RecordBillFinalized(string(in.Domain), resultLabel(err), 0)
		return Bill{}, err
	}
	obs.RecordBillFinalized(string(in.Domain), "ok", bill.DiscountedTotal)
	return bill, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrDoctorRequired), errors.Is(err, ErrDoctorNotFound):
		return "doctor"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, lock.ErrLockTimeout):
		return "locked"
	default:
		return "error"
	}
}

// committed carries what the transaction wrote.
type committed struct {
	bill  Bill
	event store.DomainEvent
}

func (s *Service) finalize(ctx context.Context, in FinalizeInput, mode billing.PaymentMode) (Bill, error) {
	c, err := s.Carts.Load(ctx, in.Domain, in.VisitID)
	if err != nil {
		return Bill{}, fmt.Errorf("%w: load cart: %w", ErrFinalizeFailed, err)
	}
	if c.IsEmpty() {
		return Bill{}, ErrEmptyCart
	}

	var doctor *store.ReferringDoctor
	if in.Domain.RequiresReferringDoctor() {
		if in.ReferringDoctorID == nil || *in.ReferringDoctorID <= 0 {
			return Bill{}, ErrDoctorRequired
		}
		if s.Reader == nil {
			return Bill{}, errors.New("settlement reader not configured")
		}
		d, err := s.Reader.GetReferringDoctor(ctx, *in.ReferringDoctorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Bill{}, ErrDoctorNotFound
			}
			return Bill{}, fmt.Errorf("%w: load doctor: %w", ErrFinalizeFailed, err)
		}
		if !d.Active {
			return Bill{}, ErrDoctorNotFound
		}
		doctor = &d
	}

	summary := c.Quote()
	var out committed
	for attempt := 0; ; attempt++ {
		err = s.Tx.InTx(ctx, func(q Querier) error {
			var txErr error
			out, txErr = s.commit(ctx, q, c, summary, mode, doctor)
			return txErr
		})
		if err == nil {
			break
		}
		collision := store.IsUniqueViolation(err, store.InvoiceConstraint(in.Domain)) ||
			store.IsUniqueViolation(err, store.FormFConstraint)
		if !collision || attempt >= s.maxRetries() {
			break
		}
		obs.RecordInvoiceRetry(string(in.Domain))
		s.Logger.Warn().Str("domain", string(in.Domain)).Int64("visit_id", in.VisitID).Int("attempt", attempt+1).
			Msg("invoice number taken, retrying")
	}
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return Bill{}, err
		}
		s.Logger.Error().Err(err).Str("domain", string(in.Domain)).Int64("visit_id", in.VisitID).Msg("finalize failed")
		return Bill{}, fmt.Errorf("%w: %w", ErrFinalizeFailed, err)
	}

	if s.Events != nil {
		if err := s.Events.Publish(ctx, out.event); err != nil {
			s.Logger.Warn().Err(err).Int64("event_id", out.event.ID).Msg("publish bill event failed, left for relay")
		}
	}
	if err := s.Carts.Delete(ctx, in.Domain, in.VisitID); err != nil {
		s.Logger.Warn().Err(err).Str("domain", string(in.Domain)).Int64("visit_id", in.VisitID).Msg("clear cart after finalize failed")
	}
	s.Logger.Info().Str("domain", string(in.Domain)).Str("invoice", out.bill.InvoiceNumber).
		Int64("total", out.bill.DiscountedTotal).Msg("bill finalized")
	return out.bill, nil
}

func discountColumns(c *cart.Cart) (string, int64) {
	if c.WholeDiscount != nil && !c.WholeDiscount.IsZero() {
		return string(c.WholeDiscount.Kind), c.WholeDiscount.Value
	}
	if len(c.ItemDiscounts) > 0 {
		return "item", 0
	}
	return "", 0
}

func (s *Service) commit(ctx context.Context, q Querier, c *cart.Cart, summary pricing.Summary, mode billing.PaymentMode, doctor *store.ReferringDoctor) (committed, error) {
	domain := c.Domain
	seq := invoice.Sequencer{Q: q}
	number, err := seq.Next(ctx, domain)
	if err != nil {
		return committed{}, err
	}

	discountType, discountValue := discountColumns(c)
	params := store.InsertBillParams{
		InvoiceNumber:      number,
		VisitID:            c.VisitID,
		Subtotal:           summary.Subtotal,
		DiscountType:       discountType,
		DiscountValue:      discountValue,
		ItemDiscountTotal:  summary.ItemDiscountTotal,
		CartDiscountAmount: summary.CartDiscount,
		DiscountedTotal:    summary.DiscountedTotal,
		TaxTotal:           summary.TaxTotal,
		PaymentMode:        string(mode),
	}
	if doctor != nil {
		params.ReferringDoctorID = pgtype.Int8{Int64: doctor.ID, Valid: true}
	}
	row, err := q.InsertBill(ctx, domain, params)
	if err != nil {
		return committed{}, fmt.Errorf("insert bill: %w", err)
	}
	bill := billFromRow(domain, row)

	resolved := make(map[int64]pricing.Line, len(summary.Lines))
	for _, l := range summary.Lines {
		resolved[l.ItemID] = l
	}
	var costOfGoods int64
	for _, line := range c.Items {
		if line.Quantity <= 0 {
			continue
		}
		l := resolved[line.ItemID]
		itemParams := store.InsertBillItemParams{
			BillID:       row.ID,
			ItemID:       line.ItemID,
			Name:         line.Name,
			Quantity:     int32(line.Quantity),
			UnitPrice:    line.UnitPrice,
			ItemDiscount: l.ItemDiscount,
			CartDiscount: l.CartDiscount,
			NetAmount:    l.Net,
			BaseAmount:   l.Base,
			GstBps:       l.GSTBps,
			GstAmount:    l.GST,
			BatchNo:      line.BatchNo,
		}
		if line.ExpiryDate != "" {
			if exp, perr := time.Parse("2006-01-02", line.ExpiryDate); perr == nil {
				itemParams.ExpiryDate = pgtype.Date{Time: exp, Valid: true}
			}
		}
		itemRow, err := q.InsertBillItem(ctx, domain, itemParams)
		if err != nil {
			return committed{}, fmt.Errorf("insert bill item %d: %w", line.ItemID, err)
		}
		bill.Items = append(bill.Items, itemFromRow(itemRow))

		if domain.TracksStock() {
			n, err := q.DecrementStock(ctx, line.ItemID, int32(line.Quantity))
			if err != nil {
				return committed{}, fmt.Errorf("decrement stock %d: %w", line.ItemID, err)
			}
			if n == 0 {
				return committed{}, fmt.Errorf("%w: %s (batch %s)", ErrInsufficientStock, line.Name, line.BatchNo)
			}
			if err := q.InsertStockLog(ctx, store.InsertStockLogParams{
				StockID:   line.ItemID,
				Change:    -int32(line.Quantity),
				Reason:    "sale",
				Reference: number,
			}); err != nil {
				return committed{}, fmt.Errorf("stock log %d: %w", line.ItemID, err)
			}
			costOfGoods += line.CostPrice * int64(line.Quantity)
		}
	}

	if doctor != nil && doctor.IncentiveBps > 0 {
		amount := incentive.Compute(summary.DiscountedTotal, doctor.IncentiveBps)
		if _, err := q.InsertDoctorIncentive(ctx, store.InsertDoctorIncentiveParams{
			ReferringDoctorID: doctor.ID,
			BillID:            row.ID,
			InvoiceNumber:     number,
			BillTotal:         summary.DiscountedTotal,
			IncentiveBps:      doctor.IncentiveBps,
			Amount:            amount,
		}); err != nil {
			return committed{}, fmt.Errorf("insert incentive: %w", err)
		}
		bill.IncentiveAmount = amount
	}

	if domain == billing.DomainUltrasound && c.HasFormFItems() {
		formNumber, err := seq.NextFormF(ctx, s.now())
		if err != nil {
			return committed{}, err
		}
		if _, err := q.InsertFormFRecord(ctx, store.InsertFormFRecordParams{
			FormNumber: formNumber,
			BillID:     row.ID,
			VisitID:    c.VisitID,
		}); err != nil {
			return committed{}, fmt.Errorf("insert form f: %w", err)
		}
		bill.FormFNumber = formNumber
	}

	ev, err := events.Record(ctx, q, events.TopicBillFinalized, number, events.BillFinalized{
		Domain:        string(domain),
		BillID:        row.ID,
		InvoiceNumber: number,
		VisitID:       c.VisitID,
		NetAmount:     summary.DiscountedTotal,
		TaxAmount:     summary.TaxTotal,
		CostOfGoods:   costOfGoods,
		PaymentMode:   string(mode),
		FinalizedAt:   s.now(),
	})
	if err != nil {
		return committed{}, err
	}
	return committed{bill: bill, event: ev}, nil
}

// GetBill returns a stored bill with its items. Figures are never recomputed.
func (s *Service) GetBill(ctx context.Context, domain billing.Domain, invoiceNumber string) (Bill, error) {
	if s == nil || s.Reader == nil {
		return Bill{}, errors.New("settlement reader not configured")
	}
	if !domain.Valid() {
		return Bill{}, fmt.Errorf("%w: %v", ErrInvalidInput, billing.ErrUnknownDomain)
	}
	row, err := s.Reader.GetBillByInvoice(ctx, domain, invoiceNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrBillNotFound
		}
		return Bill{}, err
	}
	bill := billFromRow(domain, row)
	items, err := s.Reader.ListBillItems(ctx, domain, row.ID)
	if err != nil {
		return Bill{}, err
	}
	for _, it := range items {
		bill.Items = append(bill.Items, itemFromRow(it))
	}
	if domain == billing.DomainUltrasound {
		f, err := s.Reader.GetFormFRecordByBill(ctx, row.ID)
		switch {
		case err == nil:
			bill.FormFNumber = f.FormNumber
		case !errors.Is(err, pgx.ErrNoRows):
			return Bill{}, err
		}
		inc, err := s.Reader.GetDoctorIncentiveByBill(ctx, row.ID)
		switch {
		case err == nil:
			bill.IncentiveAmount = inc.Amount
		case !errors.Is(err, pgx.ErrNoRows):
			return Bill{}, err
		}
	}
	return bill, nil
}

// ListBills returns the bills of a visit at one desk, newest first, without items.
func (s *Service) ListBills(ctx context.Context, domain billing.Domain, visitID int64) ([]Bill, error) {
	if s == nil || s.Reader == nil {
		return nil, errors.New("settlement reader not configured")
	}
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, billing.ErrUnknownDomain)
	}
	rows, err := s.Reader.ListBillsByVisit(ctx, domain, visitID)
	if err != nil {
		return nil, err
	}
	out := make([]Bill, 0, len(rows))
	for _, r := range rows {
		out = append(out, billFromRow(domain, r))
	}
	return out, nil
}
