// internal/service/gateway.go
package service

import (
	"context"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/gateway"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the part of the gateway adapter the services use.
// *gateway.Client implements it.
type PaymentGateway interface {
	InitiateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error)
	PollStatus(ctx context.Context, pollURL string) (*gateway.StatusResult, error)
	VerifyWebhook(payload gateway.WebhookPayload) bool
}

// LedgerConfig carries the money rules shared by the services.
type LedgerConfig struct {
	Currency        string
	RideFee         domain.FeeSchedule
	TopupMin        decimal.Decimal
	TopupMax        decimal.Decimal
	Location        *time.Location // local midnight for daily limits and settlement periods
	PollConcurrency int
}

func (c LedgerConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

var _ PaymentGateway = (*gateway.Client)(nil)
