package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topic constants for domain events emitted by the billing desks.
const (
	TopicBillFinalized = "bill.finalized"
)

// TaskType returns the asynq task type carrying events of topic.
func TaskType(topic string) string {
	return "event:" + topic
}

// BillFinalized is the payload of TopicBillFinalized. Amounts are in paise.
type BillFinalized struct {
	Domain        string    `json:"domain"`
	BillID        int64     `json:"billId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	VisitID       int64     `json:"visitId"`
	NetAmount     int64     `json:"netAmount"`
	TaxAmount     int64     `json:"taxAmount"`
	CostOfGoods   int64     `json:"costOfGoods"`
	PaymentMode   string    `json:"paymentMode"`
	FinalizedAt   time.Time `json:"finalizedAt"`
}

// DecodeBillFinalized parses a TopicBillFinalized payload.
func DecodeBillFinalized(payload []byte) (BillFinalized, error) {
	var ev BillFinalized
	if err := json.Unmarshal(payload, &ev); err != nil {
		return BillFinalized{}, fmt.Errorf("events: decode %s: %w", TopicBillFinalized, err)
	}
	if ev.BillID <= 0 || ev.Domain == "" {
		return BillFinalized{}, fmt.Errorf("events: %s payload missing bill reference", TopicBillFinalized)
	}
	return ev, nil
}
