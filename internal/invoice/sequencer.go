package invoice

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-klinik/internal/billing"
)

const (
	// BillWidth is the zero padded width of bill invoice numbers (LAB-00001).
	BillWidth = 5
	// FormFWidth is the zero padded width of year scoped Form F numbers (FF-2026-0001).
	FormFWidth = 4
	// FormFPrefix prefixes Form F consent document numbers.
	FormFPrefix = "FF"
)

var suffixPattern = regexp.MustCompile(`([0-9]+)$`)

// Format renders PREFIX-000n.
func Format(prefix string, n int64, width int) string {
	return fmt.Sprintf("%s-%0*d", prefix, width, n)
}

// FormatYear renders PREFIX-YYYY-000n.
func FormatYear(prefix string, year int, n int64, width int) string {
	return fmt.Sprintf("%s-%04d-%0*d", prefix, year, width, n)
}

// ParseSuffix extracts the trailing sequence number. ok is false when there is none.
func ParseSuffix(number string) (n int64, ok bool) {
	m := suffixPattern.FindStringSubmatch(strings.TrimSpace(number))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Querier reads the highest sequence numbers issued so far.
type Querier interface {
	MaxInvoiceSuffix(ctx context.Context, domain billing.Domain, prefix, regexPrefix string) (int64, error)
	MaxFormFSuffix(ctx context.Context, prefix, regexPrefix string) (int64, error)
}

// Sequencer derives the next invoice numbers from what is already stored.
// It must run inside the transaction that inserts the numbered row; the unique
// constraint on the number column rejects a concurrent duplicate.
type Sequencer struct {
	Q Querier
}

// Next returns the next bill invoice number for the domain.
func (s Sequencer) Next(ctx context.Context, domain billing.Domain) (string, error) {
	prefix := domain.InvoicePrefix()
	if prefix == "" {
		return "", billing.ErrUnknownDomain
	}
	head := prefix + "-"
	last, err := s.Q.MaxInvoiceSuffix(ctx, domain, head, regexp.QuoteMeta(head))
	if err != nil {
		return "", fmt.Errorf("invoice: read last number: %w", err)
	}
	return Format(prefix, last+1, BillWidth), nil
}

// NextFormF returns the next Form F number for the year of now.
func (s Sequencer) NextFormF(ctx context.Context, now time.Time) (string, error) {
	year := now.Year()
	head := fmt.Sprintf("%s-%04d-", FormFPrefix, year)
	last, err := s.Q.MaxFormFSuffix(ctx, head, regexp.QuoteMeta(head))
	if err != nil {
		return "", fmt.Errorf("invoice: read last form f number: %w", err)
	}
	return FormatYear(FormFPrefix, year, last+1, FormFWidth), nil
}
