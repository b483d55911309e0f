package billing

import (
	"errors"
	"strings"
)

// Domain identifies one of the independent billing desks.
type Domain string

const (
	DomainLab        Domain = "lab"
	DomainPharmacy   Domain = "pharmacy"
	DomainUltrasound Domain = "ultrasound"
)

// ErrUnknownDomain is returned when a domain name cannot be parsed.
var ErrUnknownDomain = errors.New("unknown billing domain")

// Domains lists every supported billing domain.
func Domains() []Domain {
	return []Domain{DomainLab, DomainPharmacy, DomainUltrasound}
}

// ParseDomain normalises a user supplied domain name.
func ParseDomain(value string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(value)))
	if !d.Valid() {
		return "", ErrUnknownDomain
	}
	return d, nil
}

// Valid reports whether d is a supported domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainLab, DomainPharmacy, DomainUltrasound:
		return true
	default:
		return false
	}
}

// InvoicePrefix returns the human readable invoice prefix for the domain.
func (d Domain) InvoicePrefix() string {
	switch d {
	case DomainLab:
		return "LAB"
	case DomainPharmacy:
		return "PHR"
	case DomainUltrasound:
		return "USG"
	default:
		return ""
	}
}

// IncrementsOnAdd reports whether re-adding an item bumps its quantity instead of being rejected.
func (d Domain) IncrementsOnAdd() bool { return d == DomainPharmacy }

// TracksStock reports whether the domain sells from counted stock.
func (d Domain) TracksStock() bool { return d == DomainPharmacy }

// RequiresReferringDoctor reports whether finalize needs a referring doctor.
func (d Domain) RequiresReferringDoctor() bool { return d == DomainUltrasound }

// PaymentMode enumerates how a bill was settled.
type PaymentMode string

const (
	PaymentCash PaymentMode = "cash"
	PaymentCard PaymentMode = "card"
	PaymentUPI  PaymentMode = "upi"
)

// ParsePaymentMode defaults to cash when value is empty.
func ParsePaymentMode(value string) (PaymentMode, error) {
	switch PaymentMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", PaymentCash:
		return PaymentCash, nil
	case PaymentCard:
		return PaymentCard, nil
	case PaymentUPI:
		return PaymentUPI, nil
	default:
		return "", errors.New("unknown payment mode")
	}
}
