// internal/gateway/webhook.go
package gateway

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WebhookPayload is the status update the gateway posts to the result URL.
type WebhookPayload struct {
	Reference         string
	ExternalReference string
	Amount            string
	Status            string
	PollURL           string
	Hash              string
}

func (p WebhookPayload) signedValues() Values {
	return Values{
		{Key: "reference", Value: p.Reference},
		{Key: "paynowreference", Value: p.ExternalReference},
		{Key: "amount", Value: p.Amount},
		{Key: "status", Value: p.Status},
		{Key: "pollurl", Value: p.PollURL},
	}
}

// Values renders the payload in wire order, hash last.
func (p WebhookPayload) Values() Values {
	v := p.signedValues()
	v.Add(hashField, p.Hash)
	return v
}

// ParseWebhook decodes a form-encoded webhook body. It does not verify the
// signature; see VerifyWebhookSignature.
func ParseWebhook(body []byte) (WebhookPayload, error) {
	values, err := ParseValues(string(body))
	if err != nil {
		return WebhookPayload{}, err
	}
	p := WebhookPayload{
		Reference:         values.Get("reference"),
		ExternalReference: values.Get("paynowreference"),
		Amount:            values.Get("amount"),
		Status:            values.Get("status"),
		PollURL:           values.Get("pollurl"),
		Hash:              values.Get(hashField),
	}
	if p.Reference == "" {
		return WebhookPayload{}, fmt.Errorf("webhook is missing reference")
	}
	return p, nil
}

// ParsedAmount returns the amount as a decimal.
func (p WebhookPayload) ParsedAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(p.Amount)
}
