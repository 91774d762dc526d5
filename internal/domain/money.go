// internal/domain/money.go
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every stored amount carries.
const MoneyScale = 2

// RoundMoney rounds half away from zero to MoneyScale places, which for the
// non-negative amounts the ledger handles is plain round-half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// FormatMoney renders an amount with exactly MoneyScale decimals, e.g. "5.00".
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

// FeeSchedule describes a percentage fee with an optional floor and ceiling.
type FeeSchedule struct {
	Rate decimal.Decimal     // fraction, e.g. 0.10 for 10%
	Min  decimal.Decimal     // floor applied after rounding, zero for none
	Max  decimal.NullDecimal // ceiling applied after rounding, invalid for none
}

// Validate checks the schedule is usable.
func (f FeeSchedule) Validate() error {
	if f.Rate.IsNegative() || f.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee rate must be within [0, 1], got %s", f.Rate)
	}
	if f.Min.IsNegative() {
		return fmt.Errorf("fee floor must not be negative, got %s", f.Min)
	}
	if f.Max.Valid && f.Max.Decimal.LessThan(f.Min) {
		return fmt.Errorf("fee ceiling %s is below floor %s", f.Max.Decimal, f.Min)
	}
	return nil
}

// Fee computes round(amount*rate, 2) clamped to [Min, Max]. The fee never
// exceeds the amount it is charged on.
func (f FeeSchedule) Fee(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	fee := RoundMoney(amount.Mul(f.Rate))
	if fee.LessThan(f.Min) {
		fee = f.Min
	}
	if f.Max.Valid && fee.GreaterThan(f.Max.Decimal) {
		fee = f.Max.Decimal
	}
	if fee.GreaterThan(amount) {
		fee = amount
	}
	return RoundMoney(fee)
}

// FlatRate is a FeeSchedule with only a rate.
func FlatRate(rate decimal.Decimal) FeeSchedule {
	return FeeSchedule{Rate: rate}
}
