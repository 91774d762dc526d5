// internal/secure/cipher.go
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"ridewallet/internal/domain"
	"ridewallet/internal/util"
)

// Cipher encrypts driver bank details at rest with AES-256-GCM.
// Ciphertexts are hex encoded with the nonce prefixed.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key given as 64 hex characters.
func NewCipher(keyHex string) (*Cipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex characters), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Every failure wraps
// util.ErrDecryptionFailure and never echoes the input.
func (c *Cipher) Decrypt(ciphertextHex string) (string, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid hex", util.ErrDecryptionFailure)
	}
	if len(raw) < c.gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext shorter than nonce", util.ErrDecryptionFailure)
	}
	nonce, body := raw[:c.gcm.NonceSize()], raw[c.gcm.NonceSize():]
	plain, err := c.gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrDecryptionFailure, err)
	}
	return string(plain), nil
}

// SealBankAccount encrypts the four sensitive fields of a payout account.
func (c *Cipher) SealBankAccount(driverID int64, a domain.BankAccount) (*domain.DriverBankDetails, error) {
	fields := []string{a.BankName, a.AccountNumber, a.AccountHolderName, a.BranchCode}
	sealed := make([]string, len(fields))
	for i, f := range fields {
		v, err := c.Encrypt(f)
		if err != nil {
			return nil, err
		}
		sealed[i] = v
	}
	return &domain.DriverBankDetails{
		DriverID:          driverID,
		BankName:          sealed[0],
		AccountNumber:     sealed[1],
		AccountHolderName: sealed[2],
		BranchCode:        sealed[3],
		Country:           a.Country,
		Currency:          a.Currency,
	}, nil
}

// OpenBankAccount decrypts stored bank details.
func (c *Cipher) OpenBankAccount(d *domain.DriverBankDetails) (domain.BankAccount, error) {
	out := domain.BankAccount{Country: d.Country, Currency: d.Currency}
	targets := []struct {
		dst *string
		src string
	}{
		{&out.BankName, d.BankName},
		{&out.AccountNumber, d.AccountNumber},
		{&out.AccountHolderName, d.AccountHolderName},
		{&out.BranchCode, d.BranchCode},
	}
	for _, t := range targets {
		v, err := c.Decrypt(t.src)
		if err != nil {
			return domain.BankAccount{}, fmt.Errorf("driver %d bank details: %w", d.DriverID, err)
		}
		*t.dst = v
	}
	return out, nil
}

// SealSnapshot encrypts the account as one JSON blob, as stored on a settlement row.
func (c *Cipher) SealSnapshot(a domain.BankAccount) (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal bank snapshot: %w", err)
	}
	return c.Encrypt(string(b))
}

// OpenSnapshot reverses SealSnapshot.
func (c *Cipher) OpenSnapshot(ciphertextHex string) (domain.BankAccount, error) {
	plain, err := c.Decrypt(ciphertextHex)
	if err != nil {
		return domain.BankAccount{}, err
	}
	var a domain.BankAccount
	if err := json.Unmarshal([]byte(plain), &a); err != nil {
		return domain.BankAccount{}, fmt.Errorf("%w: snapshot is not valid JSON", util.ErrDecryptionFailure)
	}
	return a, nil
}
