package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

type OrderStatus string

type TimeInForce string

const (
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusError           OrderStatus = "ERROR"
)

const (
	// TimeInForceGTC keeps the order working at the venue until filled or
	// explicitly canceled.
	TimeInForceGTC TimeInForce = "GTC"
	// TimeInForceIOC fills what is immediately available and cancels the
	// remainder.
	TimeInForceIOC TimeInForce = "IOC"
)

// IsFinal reports whether the status terminates the order at the venue.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusError:
		return true
	case OrderStatusSubmitted, OrderStatusPartiallyFilled:
		return false
	default:
		return false
	}
}

// OrderRequest describes one order submission to a venue.
type OrderRequest struct {
	Symbol   Symbol    `yaml:"symbol" json:"symbol" validate:"required"`
	Currency string    `yaml:"currency" json:"currency"`
	Side     OrderSide `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Quantity float64   `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	// Price is the limit price. None means a market order.
	Price       optional.Option[float64] `yaml:"price" json:"price"`
	TimeInForce TimeInForce              `yaml:"time_in_force" json:"time_in_force" validate:"required,oneof=GTC IOC"`
}

// Validate validates the OrderRequest struct.
func (r *OrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order request", err)
	}

	if r.Price.IsSome() && r.Price.Unwrap() <= 0 {
		return errors.New(errors.ErrCodeInvalidOrder, "limit price must be positive")
	}

	return nil
}

// Fill is one execution reported by the venue for an order.
type Fill struct {
	Price    float64   `yaml:"price" json:"price"`
	Quantity float64   `yaml:"quantity" json:"quantity"`
	Time     time.Time `yaml:"time" json:"time"`
}

// OrderUpdate is one order-transaction event reported by the venue adapter.
// FilledQty/FillPrice describe the increment carried by this event, not the
// running total.
type OrderUpdate struct {
	OrderID      string
	Status       OrderStatus
	FilledQty    float64
	RemainingQty float64
	FillPrice    float64
	Time         time.Time
}

// OrderCheckError is a business-rule violation reported by a venue's order
// pre-check. Only the violated bounds are set.
type OrderCheckError struct {
	Qty    optional.Option[float64]
	Price  optional.Option[float64]
	Volume optional.Option[float64]
}

func (e OrderCheckError) String() string {
	msg := "order check failed:"
	if e.Qty.IsSome() {
		msg += fmt.Sprintf(" qty bound %v", e.Qty.Unwrap())
	}

	if e.Price.IsSome() {
		msg += fmt.Sprintf(" price bound %v", e.Price.Unwrap())
	}

	if e.Volume.IsSome() {
		msg += fmt.Sprintf(" volume bound %v", e.Volume.Unwrap())
	}

	return msg
}
