package store

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type CatalogItem struct {
	ID             int64
	Name           string
	UnitPrice      int64
	GstBps         int32
	BatchNo        string
	ExpiryDate     pgtype.Date
	CostPrice      int64
	AvailableStock int32
	FormFRequired  bool
}

type Bill struct {
	ID                 int64
	InvoiceNumber      string
	VisitID            int64
	Subtotal           int64
	DiscountType       string
	DiscountValue      int64
	ItemDiscountTotal  int64
	CartDiscountAmount int64
	DiscountedTotal    int64
	TaxTotal           int64
	PaymentMode        string
	ReferringDoctorID  pgtype.Int8
	CreatedAt          time.Time
}

type BillItem struct {
	ID           int64
	BillID       int64
	ItemID       int64
	Name         string
	Quantity     int32
	UnitPrice    int64
	ItemDiscount int64
	CartDiscount int64
	NetAmount    int64
	BaseAmount   int64
	GstBps       int32
	GstAmount    int64
	BatchNo      string
	ExpiryDate   pgtype.Date
}

type ReferringDoctor struct {
	ID           int64
	Name         string
	IncentiveBps int32
	Active       bool
}

type DoctorIncentive struct {
	ID                int64
	ReferringDoctorID int64
	BillID            int64
	InvoiceNumber     string
	BillTotal         int64
	IncentiveBps      int32
	Amount            int64
	Paid              bool
	PaidOn            pgtype.Date
	PaymentMode       string
	Notes             string
	CreatedAt         time.Time
}

type FormFRecord struct {
	ID         int64
	FormNumber string
	BillID     int64
	VisitID    int64
	Status     string
	CreatedAt  time.Time
}

type DomainEvent struct {
	ID          int64
	Topic       string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
	PublishedAt pgtype.Timestamptz
}

type JournalEntry struct {
	ID           int64
	SourceDomain string
	SourceID     int64
	Reference    string
	EntryDate    time.Time
	Memo         string
}

type AccountBalanceRow struct {
	Code   string
	Name   string
	Kind   string
	Debit  int64
	Credit int64
}
