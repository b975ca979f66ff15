package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/pkg/cache"
	"github.com/mExOms/sor/pkg/types"
)

// ErrRateLimited means the adapter is holding back to stay under the
// exchange request quota
var ErrRateLimited = errors.New("binance rate limit exceeded")

// Adapter submits, cancels and polls orders on Binance spot. Venue order
// ids are composed as "SYMBOL:orderID" because the Binance REST API
// needs the symbol on every order operation.
type Adapter struct {
	client  *binance.Client
	limiter *cache.RateLimiter
	logger  *logrus.Entry
}

// NewAdapter creates a Binance spot adapter; testnet routes to the
// public testnet endpoint
func NewAdapter(apiKey, secretKey string, testnet bool) *Adapter {
	client := binance.NewClient(apiKey, secretKey)
	if testnet {
		client.BaseURL = "https://testnet.binance.vision/api"
	}

	return &Adapter{
		client: client,
		// Binance allows 1200 request weight per minute
		limiter: cache.NewRateLimiter(1200, time.Minute),
		logger:  logrus.WithField("component", "binance-adapter"),
	}
}

// SubmitOrder places a child order and returns its venue order id
func (a *Adapter) SubmitOrder(ctx context.Context, order *types.ChildOrder) (string, error) {
	if !a.limiter.Allow("create_order") {
		return "", ErrRateLimited
	}

	svc := a.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(binance.SideType(order.Side)).
		Type(binance.OrderType(order.Type)).
		Quantity(order.Quantity.String())

	if order.Type == types.OrderTypeLimit {
		svc.TimeInForce(binance.TimeInForceTypeGTC).
			Price(order.Price.String())
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return "", fmt.Errorf("binance create order: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"symbol":   order.Symbol,
		"order_id": res.OrderID,
	}).Debug("order submitted")

	return composeVenueOrderID(order.Symbol, res.OrderID), nil
}

// CancelOrder cancels a live order by its venue order id
func (a *Adapter) CancelOrder(ctx context.Context, venueOrderID string) error {
	if !a.limiter.Allow("cancel_order") {
		return ErrRateLimited
	}

	symbol, orderID, err := splitVenueOrderID(venueOrderID)
	if err != nil {
		return err
	}

	_, err = a.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binance cancel order %s: %w", venueOrderID, err)
	}
	return nil
}

// GetOrder polls the order's current state and converts it into an
// execution update
func (a *Adapter) GetOrder(ctx context.Context, venueOrderID string) (*types.OrderUpdate, error) {
	if !a.limiter.Allow("get_order") {
		return nil, ErrRateLimited
	}

	symbol, orderID, err := splitVenueOrderID(venueOrderID)
	if err != nil {
		return nil, err
	}

	order, err := a.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance get order %s: %w", venueOrderID, err)
	}

	executed, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		return nil, fmt.Errorf("binance executed quantity %q: %w", order.ExecutedQuantity, err)
	}

	update := &types.OrderUpdate{
		ID:               venueOrderID,
		Venue:            "binance",
		Status:           convertStatus(order.Status),
		ExecutedQuantity: executed,
		Timestamp:        time.UnixMilli(order.UpdateTime),
	}

	if order.CummulativeQuoteQuantity != "" && executed.IsPositive() {
		quote, err := decimal.NewFromString(order.CummulativeQuoteQuantity)
		if err == nil && quote.IsPositive() {
			update.ExecutedPrice = quote.Div(executed)
		}
	}

	return update, nil
}

// FetchOrderBook pulls a depth snapshot for the market data service
func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string) (*types.OrderBook, error) {
	if !a.limiter.Allow("depth") {
		return nil, ErrRateLimited
	}

	depth, err := a.client.NewDepthService().
		Symbol(symbol).
		Limit(20).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance depth %s: %w", symbol, err)
	}

	book := &types.OrderBook{
		Venue:     "binance",
		Symbol:    symbol,
		Bids:      make([]types.PriceLevel, 0, len(depth.Bids)),
		Asks:      make([]types.PriceLevel, 0, len(depth.Asks)),
		Timestamp: time.Now(),
	}

	for _, bid := range depth.Bids {
		level, err := convertLevel(bid.Price, bid.Quantity)
		if err != nil {
			return nil, err
		}
		book.Bids = append(book.Bids, level)
	}
	for _, ask := range depth.Asks {
		level, err := convertLevel(ask.Price, ask.Quantity)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, level)
	}

	return book, nil
}

func convertLevel(price, quantity string) (types.PriceLevel, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return types.PriceLevel{}, fmt.Errorf("binance level price %q: %w", price, err)
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return types.PriceLevel{}, fmt.Errorf("binance level quantity %q: %w", quantity, err)
	}
	return types.PriceLevel{Price: p, Quantity: q}, nil
}

func convertStatus(status binance.OrderStatusType) types.ChildOrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return types.ChildOrderNew
	case binance.OrderStatusTypePartiallyFilled:
		return types.ChildOrderPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return types.ChildOrderFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return types.ChildOrderCanceled
	default:
		return types.ChildOrderRejected
	}
}

func composeVenueOrderID(symbol string, orderID int64) string {
	return fmt.Sprintf("%s:%d", symbol, orderID)
}

func splitVenueOrderID(venueOrderID string) (string, int64, error) {
	symbol, raw, ok := strings.Cut(venueOrderID, ":")
	if !ok {
		return "", 0, fmt.Errorf("invalid venue order id %q", venueOrderID)
	}
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid venue order id %q: %w", venueOrderID, err)
	}
	return symbol, orderID, nil
}
