// Package paper implements an in-process trading venue that fills orders
// against the current top-of-book of each security. It keeps real balance
// accounting, rests non-crossing GTC limit orders, and matches them as
// level 1 updates arrive, so strategies run unchanged against it.
package paper

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// OrderLimits are per-symbol order constraints checked before acceptance.
// Zero values mean unbounded.
type OrderLimits struct {
	MinQty      float64 `yaml:"min_qty" json:"min_qty"`
	MaxQty      float64 `yaml:"max_qty" json:"max_qty"`
	MinPrice    float64 `yaml:"min_price" json:"min_price"`
	MaxPrice    float64 `yaml:"max_price" json:"max_price"`
	MinNotional float64 `yaml:"min_notional" json:"min_notional"`
}

// Config configures the paper venue.
type Config struct {
	// InitialBalances seeds the venue's available funds per currency.
	InitialBalances map[string]float64 `yaml:"initial_balances" json:"initial_balances"`
	// CommissionRate is charged on the quote notional of every fill.
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate" validate:"gte=0,lt=1"`
	// Limits holds per-symbol order constraints, keyed by venue symbol.
	Limits map[string]OrderLimits `yaml:"limits" json:"limits"`
}

// restingOrder is a non-crossing GTC limit order waiting in the venue's book.
type restingOrder struct {
	txn       *trading.OrderTransaction
	sec       *security.Security
	callback  trading.OrderCallback
	side      types.OrderSide
	limit     float64
	remaining float64

	lockedCurrency string
	lockedAmount   float64
}

type dispatchItem struct {
	callback trading.OrderCallback
	update   types.OrderUpdate
}

// Venue is the paper trading system.
type Venue struct {
	config   Config
	balances *trading.BalancesContainer
	log      *logger.Logger

	mu      sync.Mutex
	resting map[string]*restingOrder

	// The dispatch queue is unbounded so enqueue never blocks while v.mu is
	// held; the dispatcher's callbacks re-enter venue methods that take v.mu,
	// so a bounded queue could deadlock once full.
	queueMu  sync.Mutex
	queueCnd *sync.Cond
	queue    []dispatchItem
	closed   bool
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a paper venue with the configured starting balances and starts
// its callback dispatcher. Callers must Close it when done.
func New(config Config, log *logger.Logger) *Venue {
	v := &Venue{
		config:   config,
		balances: trading.NewBalancesContainer(log),
		log:      log.Named("paper"),
		resting:  make(map[string]*restingOrder),
		done:     make(chan struct{}),
	}
	v.queueCnd = sync.NewCond(&v.queueMu)

	for currency, available := range config.InitialBalances {
		v.balances.Set(currency, available, 0)
	}

	go v.dispatchLoop()

	return v
}

// Close stops the callback dispatcher after draining queued events.
func (v *Venue) Close() {
	v.stopOnce.Do(func() {
		v.queueMu.Lock()
		v.closed = true
		v.queueMu.Unlock()
		v.queueCnd.Broadcast()
	})
	<-v.done
}

func (v *Venue) dispatchLoop() {
	defer close(v.done)

	for {
		v.queueMu.Lock()
		for len(v.queue) == 0 && !v.closed {
			v.queueCnd.Wait()
		}

		if len(v.queue) == 0 {
			v.queueMu.Unlock()
			return
		}

		item := v.queue[0]
		v.queue = v.queue[1:]
		v.queueMu.Unlock()

		item.callback(item.update)
	}
}

// enqueue must be called with v.mu held so event order matches match order.
// It never blocks, so holding v.mu here cannot deadlock against a dispatcher
// callback that re-enters the venue.
func (v *Venue) enqueue(callback trading.OrderCallback, update types.OrderUpdate) {
	v.queueMu.Lock()
	v.queue = append(v.queue, dispatchItem{callback: callback, update: update})
	v.queueMu.Unlock()
	v.queueCnd.Signal()
}

func (v *Venue) Name() string { return "paper" }

func (v *Venue) Balances() *trading.BalancesContainer { return v.balances }

// CheckOrder verifies the request against the symbol's configured limits.
func (v *Venue) CheckOrder(
	sec *security.Security,
	currency string,
	qty float64,
	price optional.Option[float64],
	side types.OrderSide,
) optional.Option[types.OrderCheckError] {
	limits, ok := v.config.Limits[sec.Symbol().VenueSymbol()]
	if !ok {
		return optional.None[types.OrderCheckError]()
	}

	var violation types.OrderCheckError

	if limits.MinQty > 0 && qty < limits.MinQty {
		violation.Qty = optional.Some(limits.MinQty)
	}

	if limits.MaxQty > 0 && qty > limits.MaxQty {
		violation.Qty = optional.Some(limits.MaxQty)
	}

	if price.IsSome() {
		p := price.Unwrap()
		if limits.MinPrice > 0 && p < limits.MinPrice {
			violation.Price = optional.Some(limits.MinPrice)
		}

		if limits.MaxPrice > 0 && p > limits.MaxPrice {
			violation.Price = optional.Some(limits.MaxPrice)
		}

		if limits.MinNotional > 0 && qty*p < limits.MinNotional {
			violation.Volume = optional.Some(limits.MinNotional)
		}
	}

	if violation.Qty.IsSome() || violation.Price.IsSome() || violation.Volume.IsSome() {
		return optional.Some(violation)
	}

	return optional.None[types.OrderCheckError]()
}

// SendOrderTransaction accepts the order and matches it against the current
// top of book. Crossing quantity fills immediately; a GTC remainder rests in
// the venue book, an IOC remainder is canceled.
func (v *Venue) SendOrderTransaction(
	ctx context.Context,
	sec *security.Security,
	request types.OrderRequest,
	callback trading.OrderCallback,
) (*trading.OrderTransaction, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	if violation := v.CheckOrder(sec, request.Currency, request.Quantity, request.Price, request.Side); violation.IsSome() {
		return nil, errors.Newf(errors.ErrCodeOrderCheck, "%s", violation.Unwrap().String())
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	level1 := sec.Level1()

	touchPrice, touchQty := touch(level1, request.Side)
	isMarket := request.Price.IsNone()

	if isMarket && touchPrice == 0 {
		return nil, errors.Newf(errors.ErrCodeMarketDataMissing,
			"no market price for %s on %s side", sec.String(), request.Side)
	}

	fillQty, fillPrice := 0.0, 0.0
	if isMarket {
		// Market orders sweep the book at the touch price.
		fillQty, fillPrice = request.Quantity, touchPrice
	} else if crossing(request.Side, request.Price.Unwrap(), touchPrice) {
		fillQty, fillPrice = request.Quantity, touchPrice
		if touchQty > 0 && touchQty < fillQty {
			fillQty = touchQty
		}
	}

	// Reserve funds for the whole order up front so a partially filled GTC
	// remainder cannot be stranded without cover.
	reservePrice := fillPrice
	if !isMarket {
		reservePrice = request.Price.Unwrap()
	}

	if err := v.checkFunds(sec, request.Side, request.Quantity, reservePrice); err != nil {
		return nil, err
	}

	txn := trading.NewOrderTransaction(v.Name(), uuid.NewString(), request)

	v.enqueue(callback, types.OrderUpdate{
		OrderID:      txn.ID(),
		Status:       types.OrderStatusSubmitted,
		RemainingQty: request.Quantity,
		Time:         time.Now(),
	})

	remaining := request.Quantity
	if fillQty > 0 {
		v.settleFill(sec, request.Side, fillQty, fillPrice)
		remaining -= fillQty

		status := types.OrderStatusFilled
		if remaining > 0 {
			status = types.OrderStatusPartiallyFilled
		}

		v.enqueue(callback, types.OrderUpdate{
			OrderID:      txn.ID(),
			Status:       status,
			FilledQty:    fillQty,
			RemainingQty: remaining,
			FillPrice:    fillPrice,
			Time:         time.Now(),
		})
	}

	switch {
	case remaining == 0:
	case request.TimeInForce == types.TimeInForceIOC:
		v.enqueue(callback, types.OrderUpdate{
			OrderID:      txn.ID(),
			Status:       types.OrderStatusCancelled,
			RemainingQty: remaining,
			Time:         time.Now(),
		})
	default:
		order := &restingOrder{
			txn:       txn,
			sec:       sec,
			callback:  callback,
			side:      request.Side,
			limit:     request.Price.Unwrap(),
			remaining: remaining,
		}
		v.lockFunds(order)
		v.resting[txn.ID()] = order
	}

	v.log.Debug("order accepted",
		zap.String("order", txn.ID()),
		zap.String("security", sec.String()),
		zap.String("side", string(request.Side)),
		zap.Float64("qty", request.Quantity),
		zap.Float64("filled", fillQty),
		zap.Float64("resting", remaining))

	return txn, nil
}

// SendCancelOrderTransaction removes a resting order from the venue book. The
// cancellation is confirmed through the order's callback.
func (v *Venue) SendCancelOrderTransaction(ctx context.Context, transaction *trading.OrderTransaction) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	order, ok := v.resting[transaction.ID()]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderUnknown, "order %s is not resting at the paper venue", transaction.ID())
	}

	delete(v.resting, transaction.ID())
	v.unlockFunds(order)

	v.enqueue(order.callback, types.OrderUpdate{
		OrderID:      order.txn.ID(),
		Status:       types.OrderStatusCancelled,
		RemainingQty: order.remaining,
		Time:         time.Now(),
	})

	return nil
}

// OnLevel1Update matches resting orders on the updated security against the
// new top of book. The engine calls this on every level 1 event before the
// update fans out to strategies.
func (v *Venue) OnLevel1Update(sec *security.Security) {
	v.mu.Lock()
	defer v.mu.Unlock()

	level1 := sec.Level1()

	for id, order := range v.resting {
		if order.sec != sec {
			continue
		}

		touchPrice, touchQty := touch(level1, order.side)
		if !crossing(order.side, order.limit, touchPrice) {
			continue
		}

		fillQty := order.remaining
		if touchQty > 0 && touchQty < fillQty {
			fillQty = touchQty
		}

		v.unlockFillFunds(order, fillQty)
		v.settleFill(sec, order.side, fillQty, touchPrice)
		order.remaining -= fillQty

		status := types.OrderStatusFilled
		if order.remaining > 0 {
			status = types.OrderStatusPartiallyFilled
		} else {
			delete(v.resting, id)
		}

		v.enqueue(order.callback, types.OrderUpdate{
			OrderID:      order.txn.ID(),
			Status:       status,
			FilledQty:    fillQty,
			RemainingQty: order.remaining,
			FillPrice:    touchPrice,
			Time:         level1.Time,
		})
	}
}

// RestingOrderCount reports how many orders sit in the venue book.
func (v *Venue) RestingOrderCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.resting)
}

// touch returns the opposite-side best price and quantity for the order side.
func touch(level1 security.Level1, side types.OrderSide) (price, qty float64) {
	if side == types.OrderSideBuy {
		return level1.AskPrice, level1.AskQty
	}

	return level1.BidPrice, level1.BidQty
}

// crossing reports whether a limit order is marketable against the touch.
func crossing(side types.OrderSide, limit, touchPrice float64) bool {
	if touchPrice == 0 {
		return false
	}

	if side == types.OrderSideBuy {
		return limit >= touchPrice
	}

	return limit <= touchPrice
}

func (v *Venue) checkFunds(sec *security.Security, side types.OrderSide, qty, price float64) error {
	if side == types.OrderSideBuy {
		cost := qty * price * (1 + v.config.CommissionRate)
		quote := sec.Symbol().Quote

		if v.balances.GetAvailableToTrade(quote) < cost {
			return errors.Newf(errors.ErrCodeInsufficientFunds,
				"need %.8f %s, have %.8f", cost, quote, v.balances.GetAvailableToTrade(quote))
		}

		return nil
	}

	base := sec.Symbol().Base
	if v.balances.GetAvailableToTrade(base) < qty {
		return errors.Newf(errors.ErrCodeInsufficientFunds,
			"need %.8f %s, have %.8f", qty, base, v.balances.GetAvailableToTrade(base))
	}

	return nil
}

// settleFill moves funds for an executed quantity. Commission is charged on
// the quote notional on both sides.
func (v *Venue) settleFill(sec *security.Security, side types.OrderSide, qty, price float64) {
	base, quote := sec.Symbol().Base, sec.Symbol().Quote
	notional := qty * price
	commission := notional * v.config.CommissionRate

	if side == types.OrderSideBuy {
		v.balances.Modify(quote, -(notional + commission), 0)
		v.balances.Modify(base, qty, 0)

		return
	}

	v.balances.Modify(base, -qty, 0)
	v.balances.Modify(quote, notional-commission, 0)
}

// lockFunds moves the cover for a resting order from available to locked.
func (v *Venue) lockFunds(order *restingOrder) {
	if order.side == types.OrderSideBuy {
		order.lockedCurrency = order.sec.Symbol().Quote
		order.lockedAmount = order.remaining * order.limit * (1 + v.config.CommissionRate)
	} else {
		order.lockedCurrency = order.sec.Symbol().Base
		order.lockedAmount = order.remaining
	}

	v.balances.Modify(order.lockedCurrency, -order.lockedAmount, order.lockedAmount)
}

// unlockFunds releases the full remaining cover of a resting order.
func (v *Venue) unlockFunds(order *restingOrder) {
	v.balances.Modify(order.lockedCurrency, order.lockedAmount, -order.lockedAmount)
	order.lockedAmount = 0
}

// unlockFillFunds releases the cover for a filled portion of a resting order
// ahead of settlement.
func (v *Venue) unlockFillFunds(order *restingOrder, fillQty float64) {
	release := order.lockedAmount * fillQty / order.remaining
	order.lockedAmount -= release
	v.balances.Modify(order.lockedCurrency, release, -release)
}
