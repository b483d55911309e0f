package ledger

import "github.com/noah-isme/backend-klinik/internal/billing"

// Chart of accounts seeded by migration 000003.
const (
	AccountCash              = "1000"
	AccountBank              = "1010"
	AccountInventory         = "1200"
	AccountGSTPayable        = "2100"
	AccountLabRevenue        = "4000"
	AccountPharmacyRevenue   = "4010"
	AccountUltrasoundRevenue = "4020"
	AccountCOGS              = "5000"
)

// Account kinds as stored in ledger_accounts.kind.
const (
	KindAsset     = "asset"
	KindLiability = "liability"
	KindEquity    = "equity"
	KindIncome    = "income"
	KindExpense   = "expense"
)

// RevenueAccount returns the income account credited by sales of domain.
func RevenueAccount(d billing.Domain) (string, bool) {
	switch d {
	case billing.DomainLab:
		return AccountLabRevenue, true
	case billing.DomainPharmacy:
		return AccountPharmacyRevenue, true
	case billing.DomainUltrasound:
		return AccountUltrasoundRevenue, true
	default:
		return "", false
	}
}

// SettlementAccount returns the asset account debited for a payment mode.
// Card and UPI receipts land in the bank.
func SettlementAccount(mode billing.PaymentMode) string {
	if mode == billing.PaymentCash || mode == "" {
		return AccountCash
	}
	return AccountBank
}
