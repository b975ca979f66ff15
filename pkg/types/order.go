package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order types
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// SmartOrderStatus is the lifecycle state of a parent smart order
type SmartOrderStatus string

const (
	SmartOrderPending         SmartOrderStatus = "PENDING"
	SmartOrderInProgress      SmartOrderStatus = "IN_PROGRESS"
	SmartOrderPartiallyFilled SmartOrderStatus = "PARTIALLY_FILLED"
	SmartOrderCompleted       SmartOrderStatus = "COMPLETED"
	SmartOrderCanceled        SmartOrderStatus = "CANCELED"
	SmartOrderRejected        SmartOrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transitions are possible
func (s SmartOrderStatus) IsTerminal() bool {
	switch s {
	case SmartOrderCompleted, SmartOrderCanceled, SmartOrderRejected:
		return true
	}
	return false
}

// ChildOrderStatus mirrors the venue-reported status of a child order
type ChildOrderStatus string

const (
	ChildOrderNew             ChildOrderStatus = "NEW"
	ChildOrderPartiallyFilled ChildOrderStatus = "PARTIALLY_FILLED"
	ChildOrderFilled          ChildOrderStatus = "FILLED"
	ChildOrderCanceled        ChildOrderStatus = "CANCELED"
	ChildOrderRejected        ChildOrderStatus = "REJECTED"
)

// IsTerminal reports whether the venue can still fill this order
func (s ChildOrderStatus) IsTerminal() bool {
	switch s {
	case ChildOrderFilled, ChildOrderCanceled, ChildOrderRejected:
		return true
	}
	return false
}

// RoutingInstruction is one leg of a client-specified custom split
type RoutingInstruction struct {
	Venue       string            `json:"venue"`
	Percentage  float64           `json:"percentage"`
	OrderParams map[string]string `json:"order_params,omitempty"`
}

// SmartOrder is the parent order routed and tracked by the smart router.
// While active it is owned exclusively by the router; callers receive copies.
type SmartOrder struct {
	ID                  string               `json:"id"`
	ClientID            string               `json:"client_id"`
	Symbol              string               `json:"symbol"`
	Side                OrderSide            `json:"side"`
	Type                OrderType            `json:"type"`
	Quantity            decimal.Decimal      `json:"quantity"`
	Price               decimal.Decimal      `json:"price,omitempty"`
	Algorithm           string               `json:"algorithm"`
	Venues              []string             `json:"venues,omitempty"`
	RoutingInstructions []RoutingInstruction `json:"routing_instructions,omitempty"`

	Status           SmartOrderStatus `json:"status"`
	ChildOrders      []*ChildOrder    `json:"child_orders"`
	ExecutedQuantity decimal.Decimal  `json:"executed_quantity"`
	ExecutedPrice    decimal.Decimal  `json:"executed_price"`
	LastError        string           `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
}

// Clone returns a deep copy safe to hand outside the router
func (o *SmartOrder) Clone() *SmartOrder {
	clone := *o
	clone.Venues = append([]string(nil), o.Venues...)
	clone.RoutingInstructions = append([]RoutingInstruction(nil), o.RoutingInstructions...)
	clone.ChildOrders = make([]*ChildOrder, len(o.ChildOrders))
	for i, child := range o.ChildOrders {
		c := *child
		clone.ChildOrders[i] = &c
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		clone.CompletedAt = &t
	}
	if o.CanceledAt != nil {
		t := *o.CanceledAt
		clone.CanceledAt = &t
	}
	return &clone
}

// ChildOrder is one venue-targeted slice of a parent smart order
type ChildOrder struct {
	ID               string           `json:"id"`
	ParentID         string           `json:"parent_id"`
	VenueOrderID     string           `json:"venue_order_id,omitempty"`
	Venue            string           `json:"venue"`
	Symbol           string           `json:"symbol"`
	Side             OrderSide        `json:"side"`
	Type             OrderType        `json:"type"`
	Quantity         decimal.Decimal  `json:"quantity"`
	Price            decimal.Decimal  `json:"price,omitempty"`
	Status           ChildOrderStatus `json:"status"`
	ExecutedQuantity decimal.Decimal  `json:"executed_quantity"`
	ExecutedPrice    decimal.Decimal  `json:"executed_price"`
	CreatedAt        time.Time        `json:"created_at"`
}

// OrderUpdate is a venue-reported execution update for a child order,
// delivered asynchronously through the order update feed
type OrderUpdate struct {
	ID               string           `json:"id"`
	ParentID         string           `json:"parent_id,omitempty"`
	Venue            string           `json:"venue,omitempty"`
	Status           ChildOrderStatus `json:"status"`
	ExecutedQuantity decimal.Decimal  `json:"executed_quantity"`
	ExecutedPrice    decimal.Decimal  `json:"executed_price"`
	ResponseTime     time.Duration    `json:"response_time,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}
