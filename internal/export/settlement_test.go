package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"ridewallet/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRows() []PayoutRow {
	start := time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC)
	return []PayoutRow{
		{
			BatchID:      "b-1",
			SettlementID: 4,
			DriverID:     12,
			Account:      domain.BankAccount{BankName: "CBZ", AccountNumber: "001", AccountHolderName: "Doe, J", BranchCode: "61", Country: "ZW", Currency: "USD"},
			Gross:        decimal.RequireFromString("100"),
			Fees:         decimal.RequireFromString("1.5"),
			Net:          decimal.RequireFromString("98.5"),
			PeriodStart:  start,
			PeriodEnd:    start.AddDate(0, 0, 7),
		},
	}
}

func TestCSV(t *testing.T) {
	out, err := CSV(sampleRows())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, header, records[0])
	assert.Equal(t, "Doe, J", records[1][5])
	assert.Equal(t, "100.00", records[1][9])
	assert.Equal(t, "1.50", records[1][10])
	assert.Equal(t, "98.50", records[1][11])

	empty, err := CSV(nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(header, ",")+"\n", empty)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "batch_id", rows[0][0])
	assert.Equal(t, "12", rows[1][2])
	assert.Equal(t, "TOTAL", rows[2][0])
}
