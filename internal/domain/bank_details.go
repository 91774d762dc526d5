// internal/domain/bank_details.go
package domain

import "time"

// DriverBankDetails holds a driver's payout account. The four account fields
// are stored encrypted and only decrypted for settlement export.
type DriverBankDetails struct {
	DriverID          int64     `db:"driver_id" json:"driver_id"`
	BankName          string    `db:"bank_name" json:"-"`
	AccountNumber     string    `db:"account_number" json:"-"`
	AccountHolderName string    `db:"account_holder_name" json:"-"`
	BranchCode        string    `db:"branch_code" json:"-"`
	Country           string    `db:"country" json:"country"`
	Currency          string    `db:"currency" json:"currency"`
	IsVerified        bool      `db:"is_verified" json:"is_verified"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// BankAccount is the decrypted form used for payout export.
type BankAccount struct {
	BankName          string `json:"bank_name"`
	AccountNumber     string `json:"account_number"`
	AccountHolderName string `json:"account_holder_name"`
	BranchCode        string `json:"branch_code"`
	Country           string `json:"country"`
	Currency          string `json:"currency"`
}

// MaskedAccountNumber keeps the last four digits, for logs.
func (a BankAccount) MaskedAccountNumber() string {
	n := len(a.AccountNumber)
	if n <= 4 {
		return "****"
	}
	return "****" + a.AccountNumber[n-4:]
}

// DriverSession is a short-lived token a driver shows as a QR code so a rider
// can pay without ever handling the driver's id.
type DriverSession struct {
	Token     string    `db:"token" json:"token"`
	DriverID  int64     `db:"driver_id" json:"driver_id"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ActiveAt reports whether the session is still usable at t.
func (s *DriverSession) ActiveAt(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}
