package position

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/module"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// State labels the position's place in its open/close cycle.
type State string

const (
	StateCreated         State = "created"
	StateOpening         State = "opening"
	StatePartiallyOpened State = "partially_opened"
	StateFullyOpened     State = "fully_opened"
	StateClosing         State = "closing"
	StateCompleted       State = "completed"
	StateError           State = "error"
)

// OrderPolicy turns an abstract open/close decision into a concrete order
// submission. Implementations live in the algo package.
type OrderPolicy interface {
	Open(ctx context.Context, pos *Position) error
	Close(ctx context.Context, pos *Position) error
}

// Algo is a watchdog attached to a position, evaluated on every relevant
// market update while the position is open.
type Algo interface {
	Name() string
	Run(ctx context.Context) error
}

// orderRecord tracks one order submitted for the position, open-side or
// close-side.
type orderRecord struct {
	txn       *trading.OrderTransaction
	request   types.OrderRequest
	status    types.OrderStatus
	filledQty float64
	isOpen    bool
	canceling bool
}

func (r *orderRecord) isActive() bool {
	return !r.status.IsFinal()
}

// Position is one open/close trading cycle for one instrument against one
// venue. All mutation happens under the owning strategy's module lock.
type Position struct {
	id             uuid.UUID
	subOperationID int64
	operation      Operation
	strategy       *module.Strategy
	security       *security.Security
	tradingSystem  trading.TradingSystem
	currency       string
	positionType   types.PositionType
	plannedQty     float64

	state       State
	markedDone  bool
	inactive    bool
	closeReason types.CloseReason

	orders           []*orderRecord
	activeOpenOrder  *orderRecord
	activeCloseOrder *orderRecord

	openFills  []types.Fill
	closeFills []types.Fill

	openedQty   float64
	closedQty   float64
	openVolume  float64
	closeVolume float64

	openStartTime  time.Time
	openTime       time.Time
	closeStartTime time.Time
	closeTime      time.Time
	lastUpdateTime time.Time

	algos []Algo

	log *logger.Logger
}

// NewPosition creates a position in the Created state. It does not submit
// any order; that is the controller's job.
func NewPosition(
	op Operation,
	strategy *module.Strategy,
	sec *security.Security,
	ts trading.TradingSystem,
	positionType types.PositionType,
	plannedQty float64,
	subOperationID int64,
) *Position {
	p := &Position{
		id:             uuid.New(),
		subOperationID: subOperationID,
		operation:      op,
		strategy:       strategy,
		security:       sec,
		tradingSystem:  ts,
		currency:       sec.Symbol().Currency(),
		positionType:   positionType,
		plannedQty:     plannedQty,
		state:          StateCreated,
		log:            strategy.Log().Named("position"),
	}

	return p
}

func (p *Position) ID() uuid.UUID                        { return p.id }
func (p *Position) SubOperationID() int64                { return p.subOperationID }
func (p *Position) Operation() Operation                 { return p.operation }
func (p *Position) Strategy() *module.Strategy           { return p.strategy }
func (p *Position) Security() *security.Security         { return p.security }
func (p *Position) TradingSystem() trading.TradingSystem { return p.tradingSystem }
func (p *Position) Currency() string                     { return p.currency }
func (p *Position) Type() types.PositionType             { return p.positionType }
func (p *Position) IsLong() bool                         { return p.positionType.IsLong() }
func (p *Position) PlannedQty() float64                  { return p.plannedQty }

func (p *Position) State() State {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.state
}

func (p *Position) OpenedQty() float64 {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.openedQty
}

func (p *Position) ClosedQty() float64 {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.closedQty
}

// ActiveQty is the quantity currently held at the venue.
func (p *Position) ActiveQty() float64 {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.openedQty - p.closedQty
}

// IsCompleted reports whether the position holds nothing and has no order in
// flight. A canceled open order with zero fills makes a position completed
// even though it never held anything; the controller decides whether that
// means "resubmit" or "done".
func (p *Position) IsCompleted() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.isCompletedLocked()
}

func (p *Position) isCompletedLocked() bool {
	if p.markedDone {
		return true
	}

	return p.activeOpenOrder == nil && p.activeCloseOrder == nil && p.openedQty-p.closedQty == 0 && p.state != StateCreated
}

func (p *Position) IsError() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.state == StateError
}

func (p *Position) IsFullyOpened() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.openedQty >= p.plannedQty
}

func (p *Position) HasActiveOrders() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.activeOpenOrder != nil || p.activeCloseOrder != nil
}

func (p *Position) HasActiveOpenOrders() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.activeOpenOrder != nil
}

func (p *Position) HasActiveCloseOrders() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.activeCloseOrder != nil
}

// ActiveCloseOrderPrice returns the limit price of the working close order,
// or None when no close order is active or it is a market order.
func (p *Position) ActiveCloseOrderPrice() optional.Option[float64] {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.activeCloseOrder == nil {
		return optional.None[float64]()
	}

	return p.activeCloseOrder.request.Price
}

// HasCloseOrders reports whether any close-side order was ever submitted.
func (p *Position) HasCloseOrders() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	for _, rec := range p.orders {
		if !rec.isOpen {
			return true
		}
	}

	return false
}

func (p *Position) CloseReason() types.CloseReason {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.closeReason
}

// SetCloseReason records why the position is being closed. The first reason
// wins; later calls are ignored so a stop algorithm cannot overwrite a
// signal that already committed.
func (p *Position) SetCloseReason(reason types.CloseReason) {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.closeReason != types.CloseReasonNone {
		return
	}

	p.closeReason = reason
}

// OverwriteCloseReason replaces the close reason unconditionally.
func (p *Position) OverwriteCloseReason(reason types.CloseReason) {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	p.closeReason = reason
}

// ResetCloseReason clears the close reason, reviving the position's intent
// to stay open.
func (p *Position) ResetCloseReason() {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	p.closeReason = types.CloseReasonNone
}

func (p *Position) OpenStartTime() time.Time  { return p.openStartTime }
func (p *Position) OpenTime() time.Time       { return p.openTime }
func (p *Position) CloseStartTime() time.Time { return p.closeStartTime }
func (p *Position) CloseTime() time.Time      { return p.closeTime }

func (p *Position) OpenFills() []types.Fill {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	result := make([]types.Fill, len(p.openFills))
	copy(result, p.openFills)

	return result
}

func (p *Position) CloseFills() []types.Fill {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	result := make([]types.Fill, len(p.closeFills))
	copy(result, p.closeFills)

	return result
}

// OpenAvgPrice is the volume-weighted average open fill price.
func (p *Position) OpenAvgPrice() float64 {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.openedQty == 0 {
		return 0
	}

	return p.openVolume / p.openedQty
}

// CloseAvgPrice is the volume-weighted average close fill price.
func (p *Position) CloseAvgPrice() float64 {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.closedQty == 0 {
		return 0
	}

	return p.closeVolume / p.closedQty
}

// RealizedPnl is the profit realized by the closed part of the position.
func (p *Position) RealizedPnl() float64 {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.realizedPnlLocked()
}

func (p *Position) realizedPnlLocked() float64 {
	if p.closedQty == 0 || p.openedQty == 0 {
		return 0
	}

	openAvg := p.openVolume / p.openedQty
	closeAvg := p.closeVolume / p.closedQty

	if p.positionType.IsLong() {
		return (closeAvg - openAvg) * p.closedQty
	}

	return (openAvg - closeAvg) * p.closedQty
}

// PlannedPnl is realized profit plus the profit the active quantity would
// realize if closed right now at the market close price.
func (p *Position) PlannedPnl() float64 {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	result := p.realizedPnlLocked()

	activeQty := p.openedQty - p.closedQty
	if activeQty == 0 || p.openedQty == 0 {
		return result
	}

	openAvg := p.openVolume / p.openedQty
	marketPrice := p.security.MarketClosePrice(p.positionType)

	if p.positionType.IsLong() {
		result += (marketPrice - openAvg) * activeQty
	} else {
		result += (openAvg - marketPrice) * activeQty
	}

	return result
}

func (p *Position) IsProfit() bool {
	return p.RealizedPnl() > 0
}

// MarkInactive flags the position as making no progress. Inactive is a
// condition, not a state: it clears on the next order event.
func (p *Position) MarkInactive() {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	p.inactive = true
}

func (p *Position) IsInactive() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.inactive
}

func (p *Position) LastUpdateTime() time.Time {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return p.lastUpdateTime
}

// AttachAlgo adds a watchdog algorithm.
func (p *Position) AttachAlgo(algo Algo) {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	p.algos = append(p.algos, algo)
}

// RunAlgos evaluates every attached algorithm. The first error aborts the
// run.
func (p *Position) RunAlgos() error {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.isCompletedLocked() || p.state == StateError {
		return nil
	}

	for _, algo := range p.algos {
		if err := algo.Run(context.Background()); err != nil {
			return errors.Wrapf(errors.GetCode(err), err, "position algo %s failed", algo.Name())
		}
	}

	return nil
}

// RestoreOpenState reconstructs a position already open at the venue without
// submitting an order. It is the only way a position reaches FullyOpened
// without going through Opening.
func (p *Position) RestoreOpenState(openTime time.Time, openPrice float64) error {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.state != StateCreated || len(p.orders) != 0 {
		return errors.Newf(errors.ErrCodePositionState,
			"cannot restore open state from %s with %d orders", p.state, len(p.orders))
	}

	p.openedQty = p.plannedQty
	p.openVolume = openPrice * p.plannedQty
	p.openFills = append(p.openFills, types.Fill{Price: openPrice, Quantity: p.plannedQty, Time: openTime})
	p.openStartTime = openTime
	p.openTime = openTime
	p.state = StateFullyOpened
	p.log.Info("restored open position state",
		zap.String("position", p.id.String()),
		zap.Float64("qty", p.plannedQty),
		zap.Float64("price", openPrice))

	return nil
}

// OpenAtPrice submits a good-till-cancel limit order for the remaining
// planned quantity.
func (p *Position) OpenAtPrice(ctx context.Context, price float64) error {
	return p.submitOpenOrder(ctx, optional.Some(price), types.TimeInForceGTC)
}

// OpenAtMarketPrice submits a market order for the remaining planned
// quantity.
func (p *Position) OpenAtMarketPrice(ctx context.Context) error {
	return p.submitOpenOrder(ctx, optional.None[float64](), types.TimeInForceGTC)
}

// OpenImmediatelyOrCancel submits a limit order whose unfilled remainder is
// canceled by the venue.
func (p *Position) OpenImmediatelyOrCancel(ctx context.Context, price float64) error {
	return p.submitOpenOrder(ctx, optional.Some(price), types.TimeInForceIOC)
}

// CloseAtPrice submits a good-till-cancel limit order for the active
// quantity.
func (p *Position) CloseAtPrice(ctx context.Context, price float64) error {
	return p.submitCloseOrder(ctx, optional.Some(price), types.TimeInForceGTC)
}

// CloseAtMarketPrice submits a market order for the active quantity.
func (p *Position) CloseAtMarketPrice(ctx context.Context) error {
	return p.submitCloseOrder(ctx, optional.None[float64](), types.TimeInForceGTC)
}

// CloseImmediatelyOrCancel submits a close limit order whose unfilled
// remainder is canceled by the venue.
func (p *Position) CloseImmediatelyOrCancel(ctx context.Context, price float64) error {
	return p.submitCloseOrder(ctx, optional.Some(price), types.TimeInForceIOC)
}

func (p *Position) submitOpenOrder(ctx context.Context, price optional.Option[float64], tif types.TimeInForce) error {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.state == StateError || p.markedDone {
		return errors.Newf(errors.ErrCodePositionState, "cannot open position in state %s", p.state)
	}

	if p.activeOpenOrder != nil {
		return errors.New(errors.ErrCodePositionState, "position already has an active open order")
	}

	qty := p.plannedQty - p.openedQty
	if qty <= 0 {
		return errors.New(errors.ErrCodePositionState, "position is already fully opened")
	}

	if p.openStartTime.IsZero() {
		p.openStartTime = time.Now()
	}

	return p.submitOrder(ctx, qty, price, p.positionType.OpenOrderSide(), tif, true)
}

func (p *Position) submitCloseOrder(ctx context.Context, price optional.Option[float64], tif types.TimeInForce) error {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.state == StateError || p.markedDone {
		return errors.Newf(errors.ErrCodePositionState, "cannot close position in state %s", p.state)
	}

	if p.activeCloseOrder != nil {
		return errors.New(errors.ErrCodePositionState, "position already has an active close order")
	}

	qty := p.openedQty - p.closedQty
	if qty <= 0 {
		return errors.New(errors.ErrCodePositionState, "position has nothing to close")
	}

	if p.closeStartTime.IsZero() {
		p.closeStartTime = time.Now()
	}

	p.state = StateClosing

	return p.submitOrder(ctx, qty, price, p.positionType.CloseOrderSide(), tif, false)
}

func (p *Position) submitOrder(
	ctx context.Context,
	qty float64,
	price optional.Option[float64],
	side types.OrderSide,
	tif types.TimeInForce,
	isOpen bool,
) error {
	request := types.OrderRequest{
		Symbol:      p.security.Symbol(),
		Currency:    p.currency,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		TimeInForce: tif,
	}

	rec := &orderRecord{request: request, status: types.OrderStatusSubmitted, isOpen: isOpen}

	callback := func(update types.OrderUpdate) {
		p.applyOrderUpdate(rec, update)
	}

	txn, err := p.tradingSystem.SendOrderTransaction(ctx, p.security, request, callback)
	if err != nil {
		return err
	}

	rec.txn = txn
	p.orders = append(p.orders, rec)

	if isOpen {
		p.activeOpenOrder = rec
		if p.state == StateCreated {
			p.state = StateOpening
		}
	} else {
		p.activeCloseOrder = rec
	}

	p.log.Info("order submitted",
		zap.String("position", p.id.String()),
		zap.String("order", txn.ID()),
		zap.String("side", string(side)),
		zap.Float64("qty", qty),
		zap.Bool("open", isOpen))

	return nil
}

// CancelAllOrders requests cancellation of every active order. The position
// stays in a cancelling condition until the venue confirms the cancel or
// reports the fill race.
func (p *Position) CancelAllOrders(ctx context.Context) error {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	for _, rec := range []*orderRecord{p.activeOpenOrder, p.activeCloseOrder} {
		if rec == nil || rec.canceling {
			continue
		}

		rec.canceling = true

		if err := p.tradingSystem.SendCancelOrderTransaction(ctx, rec.txn); err != nil {
			rec.canceling = false

			return err
		}
	}

	return nil
}

// IsCanceling reports whether a cancel request is in flight.
func (p *Position) IsCanceling() bool {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	return (p.activeOpenOrder != nil && p.activeOpenOrder.canceling) ||
		(p.activeCloseOrder != nil && p.activeCloseOrder.canceling)
}

// ReRoute moves the position to another venue-specific instance of the same
// instrument. Only allowed while no order is in flight.
func (p *Position) ReRoute(sec *security.Security, ts trading.TradingSystem) error {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	if p.activeOpenOrder != nil || p.activeCloseOrder != nil {
		return errors.New(errors.ErrCodePositionState, "cannot re-route a position with active orders")
	}

	p.log.Info("position re-routed",
		zap.String("position", p.id.String()),
		zap.String("from", p.security.String()),
		zap.String("to", sec.String()))

	p.security = sec
	p.tradingSystem = ts

	return nil
}

// MarkAsCompleted forces the completed flag, used by unconditional engine
// stops.
func (p *Position) MarkAsCompleted() {
	p.strategy.Lock()
	defer p.strategy.Unlock()

	p.markedDone = true
	p.state = StateCompleted
}

// applyOrderUpdate is the venue adapter's entry point back into the
// position. Updates carry increments, not totals. Every applied update is
// re-raised on the owning strategy as a position update event.
func (p *Position) applyOrderUpdate(rec *orderRecord, update types.OrderUpdate) {
	p.strategy.Lock()

	rec.status = update.Status
	p.inactive = false
	p.lastUpdateTime = update.Time

	switch update.Status {
	case types.OrderStatusPartiallyFilled, types.OrderStatusFilled:
		p.applyFillLocked(rec, update)
	case types.OrderStatusCancelled, types.OrderStatusRejected:
		if update.Status == types.OrderStatusRejected {
			p.log.Warn("order rejected",
				zap.String("position", p.id.String()),
				zap.String("order", rec.txn.ID()))
		}
	case types.OrderStatusError:
		p.log.Error("order failed at the venue, position enters error state",
			zap.String("position", p.id.String()),
			zap.String("order", rec.txn.ID()))
		p.state = StateError
	case types.OrderStatusSubmitted:
	}

	if rec.status.IsFinal() {
		rec.canceling = false

		if rec.isOpen && p.activeOpenOrder == rec {
			p.activeOpenOrder = nil
		}

		if !rec.isOpen && p.activeCloseOrder == rec {
			p.activeCloseOrder = nil
		}
	}

	p.refreshStateLocked()

	p.strategy.Unlock()

	if err := p.strategy.RaisePositionUpdateEvent(p); err != nil {
		p.log.Error("position update event failed",
			zap.String("position", p.id.String()),
			zap.Error(err))
	}
}

func (p *Position) applyFillLocked(rec *orderRecord, update types.OrderUpdate) {
	if update.FilledQty <= 0 {
		return
	}

	fill := types.Fill{Price: update.FillPrice, Quantity: update.FilledQty, Time: update.Time}
	rec.filledQty += update.FilledQty

	if rec.isOpen {
		p.openFills = append(p.openFills, fill)
		p.openedQty += update.FilledQty
		p.openVolume += update.FillPrice * update.FilledQty

		if p.openedQty >= p.plannedQty && p.openTime.IsZero() {
			p.openTime = update.Time
		}

		return
	}

	if p.closedQty+update.FilledQty > p.openedQty {
		p.log.Error("close fill exceeds opened quantity",
			zap.String("position", p.id.String()),
			zap.Float64("opened", p.openedQty),
			zap.Float64("closed", p.closedQty),
			zap.Float64("fill", update.FilledQty))
		p.state = StateError

		return
	}

	p.closeFills = append(p.closeFills, fill)
	p.closedQty += update.FilledQty
	p.closeVolume += update.FillPrice * update.FilledQty

	if p.closedQty == p.openedQty && p.closeTime.IsZero() {
		p.closeTime = update.Time
	}
}

func (p *Position) refreshStateLocked() {
	if p.state == StateError {
		return
	}

	switch {
	case p.markedDone:
		p.state = StateCompleted
	case p.closedQty > 0 && p.closedQty == p.openedQty && p.activeCloseOrder == nil:
		p.state = StateCompleted
	case p.activeCloseOrder != nil || (p.closeReason != types.CloseReasonNone && p.closedQty > 0):
		p.state = StateClosing
	case p.openedQty >= p.plannedQty && p.plannedQty > 0:
		p.state = StateFullyOpened
	case p.openedQty > 0:
		p.state = StatePartiallyOpened
	case p.activeOpenOrder != nil:
		p.state = StateOpening
	}
}
