// internal/export/settlement.go
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"ridewallet/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// PayoutRow is one driver's payout instruction with decrypted bank details.
// Rows only ever live in memory on their way to a file.
type PayoutRow struct {
	BatchID      string
	SettlementID int64
	DriverID     int64
	Account      domain.BankAccount
	Gross        decimal.Decimal
	Fees         decimal.Decimal
	Net          decimal.Decimal
	PeriodStart  time.Time
	PeriodEnd    time.Time
}

var header = []string{
	"batch_id", "settlement_id", "driver_id", "bank_name", "account_number", "account_holder",
	"branch_code", "country", "currency", "gross", "fees", "net", "period_start", "period_end",
}

func (r PayoutRow) record() []string {
	return []string{
		r.BatchID,
		strconv.FormatInt(r.SettlementID, 10),
		strconv.FormatInt(r.DriverID, 10),
		r.Account.BankName,
		r.Account.AccountNumber,
		r.Account.AccountHolderName,
		r.Account.BranchCode,
		r.Account.Country,
		r.Account.Currency,
		domain.FormatMoney(r.Gross),
		domain.FormatMoney(r.Fees),
		domain.FormatMoney(r.Net),
		r.PeriodStart.Format(time.RFC3339),
		r.PeriodEnd.Format(time.RFC3339),
	}
}

// CSV renders rows with a header line.
func CSV(rows []PayoutRow) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(r.record()); err != nil {
			return "", fmt.Errorf("write csv row for driver %d: %w", r.DriverID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.String(), nil
}

const sheetName = "Payouts"

// WriteXLSX renders rows as a single-sheet workbook with a totals line.
func WriteXLSX(out io.Writer, rows []PayoutRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	totalGross, totalFees, totalNet := decimal.Zero, decimal.Zero, decimal.Zero
	for i, r := range rows {
		line := i + 2
		rec := r.record()
		for col, v := range rec {
			cell, _ := excelize.CoordinatesToCellName(col+1, line)
			var value any = v
			switch col {
			case 9:
				value = r.Gross.InexactFloat64()
			case 10:
				value = r.Fees.InexactFloat64()
			case 11:
				value = r.Net.InexactFloat64()
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("write row for driver %d: %w", r.DriverID, err)
			}
		}
		totalGross = totalGross.Add(r.Gross)
		totalFees = totalFees.Add(r.Fees)
		totalNet = totalNet.Add(r.Net)
	}

	totalLine := len(rows) + 2
	totals := map[int]any{1: "TOTAL", 10: totalGross.InexactFloat64(), 11: totalFees.InexactFloat64(), 12: totalNet.InexactFloat64()}
	for col, v := range totals {
		cell, _ := excelize.CoordinatesToCellName(col, totalLine)
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("write totals: %w", err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "N", 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
