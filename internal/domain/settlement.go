// internal/domain/settlement.go
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus tracks a payout through export and confirmation.
type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusProcessing SettlementStatus = "processing"
	SettlementStatusProcessed  SettlementStatus = "processed"
	SettlementStatusFailed     SettlementStatus = "failed"
	SettlementStatusPaid       SettlementStatus = "paid"
)

// Settlement is one driver's payout line within a batch.
type Settlement struct {
	ID                  int64            `db:"id" json:"id"`
	DriverID            int64            `db:"driver_id" json:"driver_id"`
	WalletID            int64            `db:"wallet_id" json:"wallet_id"`
	BatchID             string           `db:"batch_id" json:"batch_id"`
	PeriodStart         time.Time        `db:"period_start" json:"period_start"`
	PeriodEnd           time.Time        `db:"period_end" json:"period_end"`
	GrossAmount         decimal.Decimal  `db:"gross_amount" json:"gross_amount"`
	Fees                decimal.Decimal  `db:"fees" json:"fees"`
	NetAmount           decimal.Decimal  `db:"net_amount" json:"net_amount"`
	Currency            string           `db:"currency" json:"currency"`
	Status              SettlementStatus `db:"status" json:"status"`
	BankDetailsSnapshot string           `db:"bank_details_snapshot" json:"-"` // ciphertext
	TransactionCount    int              `db:"transaction_count" json:"transaction_count"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// Period is a half-open [Start, End) settlement window.
type Period struct {
	Name  string
	Start time.Time
	End   time.Time
}

// ResolvePeriod turns a period keyword into the window that ends at the
// local midnight starting now's day.
func ResolvePeriod(name string, now time.Time, loc *time.Location) (Period, error) {
	end := StartOfDay(now, loc)
	var start time.Time
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "daily", "day":
		start, name = end.AddDate(0, 0, -1), "daily"
	case "weekly", "week", "":
		start, name = end.AddDate(0, 0, -7), "weekly"
	case "monthly", "month":
		start, name = end.AddDate(0, -1, 0), "monthly"
	default:
		return Period{}, fmt.Errorf("unknown settlement period %q", name)
	}
	return Period{Name: name, Start: start, End: end}, nil
}

// StartOfDay returns local midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
