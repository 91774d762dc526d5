// internal/gateway/codec.go
package gateway

import (
	"fmt"
	"net/url"
	"strings"
)

// Field is one key=value pair of the gateway's wire format.
type Field struct {
	Key   string
	Value string
}

// Values is an ordered field list. Order matters because the hash is
// computed over the values in the order they appear on the wire.
type Values []Field

// Add appends a field.
func (v *Values) Add(key, value string) {
	*v = append(*v, Field{Key: key, Value: value})
}

// Get returns the first value for key, matched case-insensitively.
func (v Values) Get(key string) string {
	for _, f := range v {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}

// Has reports whether key is present.
func (v Values) Has(key string) bool {
	for _, f := range v {
		if strings.EqualFold(f.Key, key) {
			return true
		}
	}
	return false
}

// Encode renders the fields as an &-joined, URL-escaped body.
func (v Values) Encode() string {
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}

// ParseValues decodes an &-joined key=value body, keeping field order.
// url.ParseQuery is not used because it returns an unordered map.
func ParseValues(body string) (Values, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("empty gateway message")
	}
	var out Values
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("malformed gateway field %q", pair)
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("malformed gateway field name %q: %w", rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("malformed value for gateway field %q: %w", key, err)
		}
		out.Add(strings.ToLower(key), value)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty gateway message")
	}
	return out, nil
}
