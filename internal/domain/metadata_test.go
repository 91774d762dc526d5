package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateMetadata(t *testing.T) {
	cases := []struct {
		name    string
		txType  TransactionType
		meta    Metadata
		wantErr string
	}{
		{"Top-up", TransactionTypeTopup, Metadata{"channel": "web", "method": "ecocash"}, ""},
		{"Top-up with charge mark", TransactionTypeTopup, Metadata{"channel": "web", MetadataCharging: true}, ""},
		{"Top-up without channel", TransactionTypeTopup, Metadata{"method": "ecocash"}, `missing "channel"`},
		{"Ride payment", TransactionTypeRidePayment, Metadata{"fare": "10.00", "tip": "0.00", "driver_id": int64(7)}, ""},
		{"Ride payment with nil driver", TransactionTypeRidePayment, Metadata{"fare": "10.00", "tip": "0.00", "driver_id": nil}, `missing "driver_id"`},
		{"Settlement", TransactionTypeSettlement, Metadata{"batch_id": "b", "settlement_id": int64(1)}, ""},
		{"No required keys", TransactionTypeAdjustment, Metadata{}, ""},
		{"Unsupported value", TransactionTypeAdjustment, Metadata{"at": time.Now()}, `key "at" has unsupported type`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMetadata(tc.txType, tc.meta)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestMetadata_MergeDoesNotAlias(t *testing.T) {
	base := Metadata{"channel": "web"}
	merged := base.Merge(Metadata{"reconciled_by": "poll"})

	assert.Equal(t, "poll", merged.String("reconciled_by"))
	assert.NotContains(t, base, "reconciled_by")
	assert.Equal(t, "", base.String("missing"))
}
