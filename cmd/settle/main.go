// cmd/settle/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	app "ridewallet/internal"
	"ridewallet/internal/export"
	"ridewallet/internal/service"
)

// settle runs one settlement batch from cron and writes the payout file.
func main() {
	var (
		period    = flag.String("period", "weekly", "settlement period: daily, weekly or monthly")
		driverID  = flag.Int64("driver", 0, "settle only this driver id")
		dryRun    = flag.Bool("dry-run", false, "compute the batch without writing")
		minPayout = flag.String("min-payout", "", "override SETTLEMENT_MIN_PAYOUT")
		feeRate   = flag.String("fee-rate", "", "override SETTLEMENT_FEE_RATE")
		outDir    = flag.String("out", ".", "directory for the payout file")
		format    = flag.String("format", "csv", "payout file format: csv or xlsx")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options{
		period:    *period,
		driverID:  *driverID,
		dryRun:    *dryRun,
		minPayout: *minPayout,
		feeRate:   *feeRate,
		outDir:    *outDir,
		format:    strings.ToLower(*format),
	}); err != nil {
		slog.Error("Settlement run failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	period    string
	driverID  int64
	dryRun    bool
	minPayout string
	feeRate   string
	outDir    string
	format    string
}

func optionalDecimal(flagName, raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("-%s: %w", flagName, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func run(ctx context.Context, opts options) error {
	if opts.format != "csv" && opts.format != "xlsx" {
		return fmt.Errorf("-format must be csv or xlsx, got %q", opts.format)
	}
	req := service.BatchRequest{Period: opts.period, DryRun: opts.dryRun}
	if opts.driverID > 0 {
		req.DriverID = &opts.driverID
	}
	var err error
	if req.MinPayout, err = optionalDecimal("min-payout", opts.minPayout); err != nil {
		return err
	}
	if req.FeeRate, err = optionalDecimal("fee-rate", opts.feeRate); err != nil {
		return err
	}

	application := app.NewApplication()
	if err := application.Initialize(ctx); err != nil {
		return err
	}
	defer func() { _ = application.Shutdown(context.Background()) }()

	res, err := application.SettlementService.RunBatch(ctx, req)
	if err != nil {
		return err
	}
	application.Logger.Info("Settlement batch finished",
		"batch_id", res.BatchID, "period", res.Period.Name, "dry_run", res.DryRun,
		"settled", len(res.Lines), "skipped", len(res.Skipped), "total_net", res.TotalNet.StringFixed(2))

	if len(res.Lines) == 0 {
		return nil
	}
	path := filepath.Join(opts.outDir, fmt.Sprintf("settlement-%s.%s", res.BatchID, opts.format))
	// Payout files carry decrypted account numbers.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create payout file: %w", err)
	}
	if err := writePayout(f, opts.format, res); err != nil {
		return err
	}
	application.Logger.Info("Payout file written", "path", path)
	return nil
}

// writePayout renders res into w and closes it. A failed close is reported.
func writePayout(w io.WriteCloser, format string, res *service.BatchResult) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close payout file: %w", cerr)
		}
	}()

	if format == "xlsx" {
		err = export.WriteXLSX(w, res.PayoutRows())
	} else {
		_, err = io.WriteString(w, res.CSV)
	}
	if err != nil {
		return fmt.Errorf("write payout file: %w", err)
	}
	return nil
}
