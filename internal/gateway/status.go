// internal/gateway/status.go
package gateway

import (
	"fmt"
	"strings"
)

// ExternalStatus is the payment status reported by the gateway.
type ExternalStatus string

const (
	StatusCreated          ExternalStatus = "Created"
	StatusSent             ExternalStatus = "Sent"
	StatusPaid             ExternalStatus = "Paid"
	StatusAwaitingDelivery ExternalStatus = "Awaiting Delivery"
	StatusDelivered        ExternalStatus = "Delivered"
	StatusCancelled        ExternalStatus = "Cancelled"
	StatusRefunded         ExternalStatus = "Refunded"
	StatusDisputed         ExternalStatus = "Disputed"
)

// ParseStatus maps the gateway's status text. "Failed" is reported as Cancelled.
func ParseStatus(s string) (ExternalStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created":
		return StatusCreated, nil
	case "sent":
		return StatusSent, nil
	case "paid":
		return StatusPaid, nil
	case "awaiting delivery":
		return StatusAwaitingDelivery, nil
	case "delivered":
		return StatusDelivered, nil
	case "cancelled", "canceled", "failed":
		return StatusCancelled, nil
	case "refunded":
		return StatusRefunded, nil
	case "disputed":
		return StatusDisputed, nil
	}
	return "", fmt.Errorf("unknown gateway status %q", s)
}

// FundsConfirmed reports whether the payer's money has reached the merchant.
func (s ExternalStatus) FundsConfirmed() bool {
	switch s {
	case StatusPaid, StatusAwaitingDelivery, StatusDelivered:
		return true
	}
	return false
}

// IsTerminalFailure reports whether the charge will never be paid.
func (s ExternalStatus) IsTerminalFailure() bool {
	return s == StatusCancelled || s == StatusRefunded
}
