package domain

// Nutrition holds nutrition facts per 100 units of product.
// Fiber, Sodium and Sugar are optional and omitted when zero.
type Nutrition struct {
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`       // grams
	Carbohydrates float64 `json:"carbohydrates"` // grams
	Fat           float64 `json:"fat"`           // grams
	Fiber         float64 `json:"fiber,omitempty"`
	Sodium        float64 `json:"sodium,omitempty"` // milligrams
	Sugar         float64 `json:"sugar,omitempty"`
}

// IsZero reports whether no nutrition fact is set.
func (n Nutrition) IsZero() bool {
	return n == Nutrition{}
}
