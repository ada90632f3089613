// README: Common money value object used across modules.
package types

import "fmt"

// Money is a fare amount as returned by the remote service. It is never recomputed client-side.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (m Money) String() string {
	if m.Currency == "" {
		return fmt.Sprintf("%.2f", m.Amount)
	}
	return fmt.Sprintf("%.2f %s", m.Amount, m.Currency)
}
