package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ExternalID is a provider product identifier. The bridge emits it as a string,
// but some providers send it as a JSON number (e.g. 482910.0); both forms are accepted.
type ExternalID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExternalID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("external id must be a string or number: %w", err)
		}
		*id = ExternalID(n.String())
	}
	return nil
}

// RawNutrition holds nutrition facts as reported by the provider, per 100 units
type RawNutrition struct {
	Energy        float64 `json:"energy"`
	Proteins      float64 `json:"proteins"`
	Carbohydrates float64 `json:"carbohydrates"`
	Fats          float64 `json:"fats"`
	Fiber         float64 `json:"fiber,omitempty"`
	Sodium        float64 `json:"sodium,omitempty"`
	Sugars        float64 `json:"sugars,omitempty"`
}

// RawRecord is a product as emitted by the bridge. It only lives during normalization.
type RawRecord struct {
	ID        ExternalID    `json:"id"`
	Name      string        `json:"name"`
	Brand     *string       `json:"brand,omitempty"`
	Category  string        `json:"category,omitempty"`
	UnitPrice *float64      `json:"unit_price,omitempty"`
	IsNew     bool          `json:"is_new,omitempty"`
	Nutrition *RawNutrition `json:"nutrition,omitempty"`
}

// BridgeEnvelope is the response wrapper returned by every bridge endpoint.
// Data is an array for listings and a single object for product details.
type BridgeEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Records splits a listing payload into its individual raw elements so that
// each one can be decoded, and rejected, on its own.
func (e *BridgeEnvelope) Records() ([]json.RawMessage, error) {
	if len(e.Data) == 0 || bytes.Equal(bytes.TrimSpace(e.Data), []byte("null")) {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(e.Data, &records); err != nil {
		return nil, fmt.Errorf("%w: data is not an array: %v", ErrMalformedPayload, err)
	}
	return records, nil
}
