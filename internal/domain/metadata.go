// internal/domain/metadata.go
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is the free-form JSON bag attached to a transaction. Its shape
// varies by transaction type; ValidateMetadata checks the keys the engine
// itself relies on.
type Metadata map[string]any

// Value implements driver.Valuer. The JSON is returned as a string because
// lib/pq would send []byte as bytea, which a jsonb column rejects.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON/JSONB columns.
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported source type %T", src)
	}
	out := Metadata{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	*m = out
	return nil
}

// Merge returns a copy of m with other's keys applied on top.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	return m.Merge(nil)
}

// String returns the string stored under key, or "".
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// MetadataCharging marks a pending top-up whose gateway charge is in flight.
// It is cleared once the gateway answers.
const MetadataCharging = "charging"

// Required metadata keys per transaction type.
var requiredMetadata = map[TransactionType][]string{
	TransactionTypeTopup:       {"channel"},
	TransactionTypeRidePayment: {"fare", "tip", "driver_id"},
	TransactionTypeSettlement:  {"batch_id", "settlement_id"},
}

// ValidateMetadata checks the known sub-shape for a transaction type. Unknown
// extra keys are allowed.
func ValidateMetadata(txType TransactionType, m Metadata) error {
	for _, key := range requiredMetadata[txType] {
		v, ok := m[key]
		if !ok || v == nil {
			return fmt.Errorf("metadata for %s transaction is missing %q", txType, key)
		}
	}
	for k, v := range m {
		switch v.(type) {
		case nil, string, bool, float64, int, int64, json.Number, map[string]any, []any:
		default:
			return fmt.Errorf("metadata key %q has unsupported type %T", k, v)
		}
	}
	return nil
}
