// Package trading defines the contract between the engine core and a trading
// venue. Concrete venue adapters (paper, Binance) implement TradingSystem; the
// position layer drives them and receives order-transaction events back
// through the callback attached to each submission.
package trading

import (
	"context"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/types"
)

// OrderCallback receives order-transaction events (submitted, filled,
// partially filled, canceled, rejected) for one order. The venue adapter may
// invoke it from its own goroutine; receivers serialize through their module
// lock.
type OrderCallback func(update types.OrderUpdate)

// OrderTransaction identifies one order accepted by a venue. It is the handle
// used to cancel the order later.
type OrderTransaction struct {
	id       string
	venue    string
	venueRef string
	request  types.OrderRequest
}

// NewOrderTransaction creates a transaction handle. venueRef is the venue's
// own order identifier, if it differs from the engine-assigned id.
func NewOrderTransaction(venue, venueRef string, request types.OrderRequest) *OrderTransaction {
	return &OrderTransaction{
		id:       uuid.NewString(),
		venue:    venue,
		venueRef: venueRef,
		request:  request,
	}
}

// ID returns the engine-assigned transaction id.
func (t *OrderTransaction) ID() string { return t.id }

// Venue returns the name of the venue that accepted the order.
func (t *OrderTransaction) Venue() string { return t.venue }

// VenueRef returns the venue's own order identifier.
func (t *OrderTransaction) VenueRef() string { return t.venueRef }

// Request returns the submitted order request.
func (t *OrderTransaction) Request() types.OrderRequest { return t.request }

// TradingSystem is the venue contract consumed by the core. Submission and
// cancellation are synchronous round-trips to the venue; callers must not
// hold locks other than their own module lock across these calls.
type TradingSystem interface {
	// Name returns the venue name.
	Name() string
	// SendOrderTransaction submits an order and attaches a callback for the
	// order's transaction events. Fails with ErrCodeCommunication on
	// transient I/O errors and ErrCodeInsufficientFunds or ErrCodeOrderCheck
	// on business-rule violations.
	SendOrderTransaction(ctx context.Context, sec *security.Security, request types.OrderRequest, callback OrderCallback) (*OrderTransaction, error)
	// SendCancelOrderTransaction requests cancellation of a previously
	// accepted order. Cancellation is a request, not an acknowledgement: the
	// result arrives through the order's callback. Fails with
	// ErrCodeOrderUnknown if the venue does not know the order.
	SendCancelOrderTransaction(ctx context.Context, transaction *OrderTransaction) error
	// CheckOrder verifies an order against the venue's min/max quantity,
	// price, and notional-volume constraints without submitting it. Returns
	// the violation, or None if the order is acceptable.
	CheckOrder(sec *security.Security, currency string, qty float64, price optional.Option[float64], side types.OrderSide) optional.Option[types.OrderCheckError]
	// Balances returns the venue's balances container. Read concurrently by
	// strategies; mutated only by the venue's own reconciliation.
	Balances() *BalancesContainer
}
