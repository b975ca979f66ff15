package routing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoVenuesAvailable means no eligible venue trades the order's symbol
	ErrNoVenuesAvailable = errors.New("no venues available for symbol")
	// ErrInvalidRouting means custom routing instructions are malformed
	ErrInvalidRouting = errors.New("invalid routing instructions")
)

// VenueAllocation is one leg of a routing decision: a venue, the quantity
// it may receive and the cost estimate that justified the choice
type VenueAllocation struct {
	Venue             string            `json:"venue"`
	Quantity          decimal.Decimal   `json:"quantity"`
	Percentage        decimal.Decimal   `json:"percentage"`
	EstimatedCost     decimal.Decimal   `json:"estimated_cost"`
	EstimatedSlippage decimal.Decimal   `json:"estimated_slippage"`
	Score             float64           `json:"score,omitempty"`
	OrderParams       map[string]string `json:"order_params,omitempty"`
}
