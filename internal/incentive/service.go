package incentive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/pricing"
	"github.com/noah-isme/backend-klinik/internal/store"
)

var (
	// ErrNotFound is returned when the incentive does not exist.
	ErrNotFound = errors.New("incentive not found")
	// ErrAlreadyPaid is returned when paying an incentive twice.
	ErrAlreadyPaid = errors.New("incentive already paid")
	// ErrInvalidFilter is returned for an unknown status filter.
	ErrInvalidFilter = errors.New("invalid incentive filter")
	// ErrInvalidInput is returned for a malformed payment record.
	ErrInvalidInput = errors.New("invalid input")
)

// Status filters incentives by payment state.
type Status string

const (
	StatusAll     Status = ""
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Compute returns the incentive owed on a bill total, rounded half up to the nearest paisa.
func Compute(total int64, bps int32) int64 {
	if total <= 0 || bps <= 0 {
		return 0
	}
	return (total*int64(bps)*2 + pricing.BpsDenominator) / (2 * pricing.BpsDenominator)
}

// Querier is the store surface used by the service.
type Querier interface {
	ListReferringDoctors(ctx context.Context, activeOnly bool) ([]store.ReferringDoctor, error)
	ListDoctorIncentives(ctx context.Context, arg store.ListDoctorIncentivesParams) ([]store.DoctorIncentive, error)
	GetDoctorIncentive(ctx context.Context, id int64) (store.DoctorIncentive, error)
	MarkIncentivePaid(ctx context.Context, arg store.MarkIncentivePaidParams) (store.DoctorIncentive, error)
}

// Doctor is a referring doctor.
type Doctor struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	IncentiveBps int32  `json:"incentiveBps"`
	Active       bool   `json:"active"`
}

// Incentive is a commission owed for one referred ultrasound bill.
type Incentive struct {
	ID                int64     `json:"id"`
	ReferringDoctorID int64     `json:"referringDoctorId"`
	BillID            int64     `json:"billId"`
	InvoiceNumber     string    `json:"invoiceNumber"`
	BillTotal         int64     `json:"billTotal"`
	IncentiveBps      int32     `json:"incentiveBps"`
	Amount            int64     `json:"amount"`
	Paid              bool      `json:"paid"`
	PaidOn            *string   `json:"paidOn,omitempty"`
	PaymentMode       string    `json:"paymentMode,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Filter narrows ListIncentives.
type Filter struct {
	Status   Status
	DoctorID int64
	Limit    int
	Offset   int
}

// PayInput records how an incentive was settled.
type PayInput struct {
	PaidOn      time.Time
	PaymentMode string
	Notes       string
}

// Service manages referring doctors and their incentives.
type Service struct {
	Q   Querier
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ParseStatus validates a status filter value.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusAll:
		return StatusAll, nil
	case StatusPending:
		return StatusPending, nil
	case StatusPaid:
		return StatusPaid, nil
	default:
		return "", fmt.Errorf("%w: status %q", ErrInvalidFilter, value)
	}
}

// ListDoctors returns referring doctors, optionally only active ones.
func (s *Service) ListDoctors(ctx context.Context, activeOnly bool) ([]Doctor, error) {
	rows, err := s.Q.ListReferringDoctors(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]Doctor, 0, len(rows))
	for _, r := range rows {
		out = append(out, Doctor{ID: r.ID, Name: r.Name, IncentiveBps: r.IncentiveBps, Active: r.Active})
	}
	return out, nil
}

// ListIncentives returns incentives newest first.
func (s *Service) ListIncentives(ctx context.Context, f Filter) ([]Incentive, error) {
	params := store.ListDoctorIncentivesParams{Limit: int32(f.Limit), Offset: int32(f.Offset)}
	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	switch f.Status {
	case StatusPending:
		params.Paid = pgtype.Bool{Bool: false, Valid: true}
	case StatusPaid:
		params.Paid = pgtype.Bool{Bool: true, Valid: true}
	case StatusAll:
	default:
		return nil, fmt.Errorf("%w: status %q", ErrInvalidFilter, f.Status)
	}
	if f.DoctorID > 0 {
		params.ReferringDoctorID = pgtype.Int8{Int64: f.DoctorID, Valid: true}
	}
	rows, err := s.Q.ListDoctorIncentives(ctx, params)
	if err != nil {
		return nil, err
	}
	out := make([]Incentive, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// MarkPaid moves a pending incentive to paid. Paying twice returns ErrAlreadyPaid.
func (s *Service) MarkPaid(ctx context.Context, id int64, in PayInput) (Incentive, error) {
	mode, err := billing.ParsePaymentMode(in.PaymentMode)
	if err != nil {
		return Incentive{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	paidOn := in.PaidOn
	if paidOn.IsZero() {
		paidOn = s.now()
	}
	row, err := s.Q.MarkIncentivePaid(ctx, store.MarkIncentivePaidParams{
		ID:          id,
		PaidOn:      pgtype.Date{Time: time.Date(paidOn.Year(), paidOn.Month(), paidOn.Day(), 0, 0, 0, 0, time.UTC), Valid: true},
		PaymentMode: string(mode),
		Notes:       strings.TrimSpace(in.Notes),
	})
	if err == nil {
		return fromRow(row), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Incentive{}, err
	}
	if _, getErr := s.Q.GetDoctorIncentive(ctx, id); getErr != nil {
		if errors.Is(getErr, pgx.ErrNoRows) {
			return Incentive{}, ErrNotFound
		}
		return Incentive{}, getErr
	}
	return Incentive{}, ErrAlreadyPaid
}

func fromRow(r store.DoctorIncentive) Incentive {
	out := Incentive{
		ID:                r.ID,
		ReferringDoctorID: r.ReferringDoctorID,
		BillID:            r.BillID,
		InvoiceNumber:     r.InvoiceNumber,
		BillTotal:         r.BillTotal,
		IncentiveBps:      r.IncentiveBps,
		Amount:            r.Amount,
		Paid:              r.Paid,
		PaymentMode:       r.PaymentMode,
		Notes:             r.Notes,
		CreatedAt:         r.CreatedAt,
	}
	if r.PaidOn.Valid {
		d := r.PaidOn.Time.Format("2006-01-02")
		out.PaidOn = &d
	}
	return out
}
