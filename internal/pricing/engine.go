package pricing

import "fmt"

// Money represents a monetary value stored in minor units (paise).
type Money = int64

// BpsDenominator is the basis-point scale used for percentages (10000 = 100%).
const BpsDenominator = 10000

// DiscountKind enumerates the supported discount shapes.
type DiscountKind string

const (
	// KindPercent discounts a share of the base expressed in basis points.
	KindPercent DiscountKind = "percent"
	// KindFixedAmount deducts a flat amount in minor units.
	KindFixedAmount DiscountKind = "fixed_amount"
)

// Valid reports whether k is a known discount kind.
func (k DiscountKind) Valid() bool {
	return k == KindPercent || k == KindFixedAmount
}

// Discount is either a percentage (Value in basis points) or a fixed amount (Value in minor units).
type Discount struct {
	Kind  DiscountKind `json:"kind"`
	Value int64        `json:"value"`
}

// Percent builds a percentage discount from basis points.
func Percent(bps int64) Discount { return Discount{Kind: KindPercent, Value: bps} }

// FixedAmount builds a flat discount in minor units.
func FixedAmount(amount Money) Discount { return Discount{Kind: KindFixedAmount, Value: amount} }

// IsZero reports whether the discount has no effect.
func (d Discount) IsZero() bool {
	return !d.Kind.Valid() || d.Value <= 0
}

// Validate rejects unknown kinds, negative values and percentages above 100%.
func (d Discount) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("pricing: unknown discount kind %q", d.Kind)
	}
	if d.Value < 0 {
		return fmt.Errorf("pricing: discount value must not be negative")
	}
	if d.Kind == KindPercent && d.Value > BpsDenominator {
		return fmt.Errorf("pricing: percent discount above 100%%")
	}
	return nil
}

// amountOn returns the deduction this discount produces on base, clamped to [0, base].
func (d Discount) amountOn(base Money) Money {
	if d.IsZero() || base <= 0 {
		return 0
	}
	var amount Money
	switch d.Kind {
	case KindPercent:
		amount = (base * d.Value) / BpsDenominator
	default:
		amount = d.Value
	}
	if amount > base {
		amount = base
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// Item describes a line item used for pricing calculation.
type Item struct {
	ItemID    int64
	Qty       int
	UnitPrice Money
	// GSTBps is the tax rate already included in UnitPrice. Zero means untaxed.
	GSTBps int32
}

// Line carries the resolved figures of one cart line.
type Line struct {
	ItemID       int64
	LineTotal    Money
	ItemDiscount Money
	CartDiscount Money
	Net          Money
	Base         Money
	GST          Money
	GSTBps       int32
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal          Money
	ItemDiscountTotal Money
	CartDiscount      Money
	DiscountedTotal   Money
	TaxTotal          Money
	// EffectiveDiscountPercent is the combined discount as a percentage of the subtotal.
	EffectiveDiscountPercent float64
	Lines                    []Line
}

// Resolve computes subtotal, discounts, per-line allocation and embedded GST for a cart.
// It never mutates its inputs and returns identical results for identical inputs.
func Resolve(items []Item, itemDiscounts map[int64]Discount, whole Discount) Summary {
	lines := make([]Line, 0, len(items))
	var subtotal, itemTotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		unit := it.UnitPrice
		if unit < 0 {
			unit = 0
		}
		lineTotal := Money(it.Qty) * unit
		d := itemDiscounts[it.ItemID].amountOn(lineTotal)
		lines = append(lines, Line{
			ItemID:       it.ItemID,
			LineTotal:    lineTotal,
			ItemDiscount: d,
			Net:          lineTotal - d,
			GSTBps:       it.GSTBps,
		})
		subtotal += lineTotal
		itemTotal += d
	}

	base := subtotal - itemTotal
	cartDiscount := whole.amountOn(base)
	allocate(lines, base, cartDiscount)

	var tax Money
	for i := range lines {
		lines[i].Base, lines[i].GST = ExtractGST(lines[i].Net, lines[i].GSTBps)
		tax += lines[i].GST
	}

	total := subtotal - itemTotal - cartDiscount
	if total < 0 {
		total = 0
	}
	var effective float64
	if subtotal > 0 {
		effective = float64(itemTotal+cartDiscount) / float64(subtotal) * 100
	}
	return Summary{
		Subtotal:                 subtotal,
		ItemDiscountTotal:        itemTotal,
		CartDiscount:             cartDiscount,
		DiscountedTotal:          total,
		TaxTotal:                 tax,
		EffectiveDiscountPercent: effective,
		Lines:                    lines,
	}
}

// allocate spreads the cart discount over lines by their share of the post-item-discount base.
// The integer remainder lands on the last line with a positive net so the shares sum exactly.
func allocate(lines []Line, base, cartDiscount Money) {
	if cartDiscount <= 0 || base <= 0 {
		return
	}
	last := -1
	var assigned Money
	for i := range lines {
		if lines[i].Net <= 0 {
			continue
		}
		share := (cartDiscount * lines[i].Net) / base
		lines[i].CartDiscount = share
		assigned += share
		last = i
	}
	if last >= 0 {
		lines[last].CartDiscount += cartDiscount - assigned
	}
	for i := range lines {
		lines[i].Net -= lines[i].CartDiscount
		if lines[i].Net < 0 {
			lines[i].Net = 0
		}
	}
}

// ExtractGST splits a GST-inclusive amount into its base and tax parts, rounding the base
// half-up. base + gst always equals gross.
func ExtractGST(gross Money, gstBps int32) (base Money, gst Money) {
	if gross <= 0 {
		return 0, 0
	}
	if gstBps <= 0 {
		return gross, 0
	}
	denom := Money(BpsDenominator) + Money(gstBps)
	base = (gross*BpsDenominator*2 + denom) / (denom * 2)
	return base, gross - base
}
