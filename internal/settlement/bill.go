package settlement

import (
	"time"

	"github.com/noah-isme/backend-klinik/internal/billing"
	"github.com/noah-isme/backend-klinik/internal/store"
)

// BillItem is one stored bill line.
type BillItem struct {
	ItemID       int64  `json:"itemId"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unitPrice"`
	ItemDiscount int64  `json:"itemDiscount"`
	CartDiscount int64  `json:"cartDiscount"`
	Net          int64  `json:"net"`
	TaxableValue int64  `json:"taxableValue"`
	GSTBps       int32  `json:"gstBps,omitempty"`
	GST          int64  `json:"gst"`
	BatchNo      string `json:"batchNo,omitempty"`
	ExpiryDate   string `json:"expiryDate,omitempty"`
}

// Bill is a finalized bill as stored.
type Bill struct {
	ID                int64          `json:"id"`
	Domain            billing.Domain `json:"domain"`
	InvoiceNumber     string         `json:"invoiceNumber"`
	VisitID           int64          `json:"visitId"`
	PaymentMode       string         `json:"paymentMode"`
	Subtotal          int64          `json:"subtotal"`
	DiscountType      string         `json:"discountType,omitempty"`
	DiscountValue     int64          `json:"discountValue,omitempty"`
	ItemDiscountTotal int64          `json:"itemDiscountTotal"`
	CartDiscount      int64          `json:"cartDiscount"`
	DiscountedTotal   int64          `json:"discountedTotal"`
	TaxTotal          int64          `json:"taxTotal"`
	ReferringDoctorID *int64         `json:"referringDoctorId,omitempty"`
	IncentiveAmount   int64          `json:"incentiveAmount,omitempty"`
	FormFNumber       string         `json:"formFNumber,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	Items             []BillItem     `json:"items,omitempty"`
}

func billFromRow(domain billing.Domain, row store.Bill) Bill {
	b := Bill{
		ID:                row.ID,
		Domain:            domain,
		InvoiceNumber:     row.InvoiceNumber,
		VisitID:           row.VisitID,
		PaymentMode:       row.PaymentMode,
		Subtotal:          row.Subtotal,
		DiscountType:      row.DiscountType,
		DiscountValue:     row.DiscountValue,
		ItemDiscountTotal: row.ItemDiscountTotal,
		CartDiscount:      row.CartDiscountAmount,
		DiscountedTotal:   row.DiscountedTotal,
		TaxTotal:          row.TaxTotal,
		CreatedAt:         row.CreatedAt,
	}
	if row.ReferringDoctorID.Valid {
		id := row.ReferringDoctorID.Int64
		b.ReferringDoctorID = &id
	}
	return b
}

func itemFromRow(row store.BillItem) BillItem {
	it := BillItem{
		ItemID:       row.ItemID,
		Name:         row.Name,
		Quantity:     int(row.Quantity),
		UnitPrice:    row.UnitPrice,
		ItemDiscount: row.ItemDiscount,
		CartDiscount: row.CartDiscount,
		Net:          row.NetAmount,
		TaxableValue: row.BaseAmount,
		GSTBps:       row.GstBps,
		GST:          row.GstAmount,
		BatchNo:      row.BatchNo,
	}
	if row.ExpiryDate.Valid {
		it.ExpiryDate = row.ExpiryDate.Time.Format("2006-01-02")
	}
	return it
}
