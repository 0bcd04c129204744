package position

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/module"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// Controller drives the position state machine on behalf of one strategy.
// Every method runs under the strategy's module lock, so the controller
// itself needs no locking of its own.
type Controller struct {
	strategy *module.Strategy
	report   *Report
	log      *logger.Logger

	subOpCounters    map[uuid.UUID]int64
	pendingRollovers map[uuid.UUID]struct{}
	brokerRestored   map[string]struct{}
}

// NewController creates a controller bound to the given strategy.
func NewController(strategy *module.Strategy) *Controller {
	return &Controller{
		strategy:         strategy,
		report:           NewReport(strategy.Log()),
		log:              strategy.Log().Named("controller"),
		subOpCounters:    make(map[uuid.UUID]int64),
		pendingRollovers: make(map[uuid.UUID]struct{}),
		brokerRestored:   make(map[string]struct{}),
	}
}

// Report returns the controller's closed-position report.
func (c *Controller) Report() *Report { return c.report }

// Strategy returns the owning strategy.
func (c *Controller) Strategy() *module.Strategy { return c.strategy }

// LivePosition returns the strategy's non-completed position for the given
// security, if any.
func (c *Controller) LivePosition(sec *security.Security) *Position {
	for _, handle := range c.strategy.Positions() {
		pos, ok := handle.(*Position)
		if !ok || pos.Security() != sec {
			continue
		}

		if !pos.IsCompleted() {
			return pos
		}
	}

	return nil
}

// OnSignal is the single entry point a strategy calls on every trading
// decision. With no live position it opens one; with a live position it
// either initiates a close (when the operation's close predicate fires) or
// does nothing. Calling it twice with no intervening position update never
// submits twice.
func (c *Controller) OnSignal(
	ctx context.Context,
	op Operation,
	sec *security.Security,
	ts trading.TradingSystem,
) (*Position, error) {
	c.strategy.Lock()
	defer c.strategy.Unlock()

	pos := c.LivePosition(sec)
	if pos == nil {
		return c.OpenPosition(ctx, op, sec, ts)
	}

	if pos.CloseReason() != types.CloseReasonNone {
		// Close or cancel already pending.
		return nil, nil
	}

	if !op.HasCloseSignal(pos) {
		return nil, nil
	}

	if _, err := c.ClosePosition(ctx, pos, types.CloseReasonSignal); err != nil {
		return nil, err
	}

	return pos, nil
}

// OpenPosition creates a position, lets the operation attach its stop
// algorithms, and submits the opening order under the operation's open
// policy.
func (c *Controller) OpenPosition(
	ctx context.Context,
	op Operation,
	sec *security.Security,
	ts trading.TradingSystem,
) (*Position, error) {
	c.strategy.Lock()
	defer c.strategy.Unlock()

	pos := c.newPosition(op, sec, ts)

	if err := op.GetOpenOrderPolicy(pos).Open(ctx, pos); err != nil {
		c.strategy.RemovePosition(pos.ID())

		return nil, errors.Wrap(errors.GetCode(err), "failed to open position", err)
	}

	c.log.Info("position opened",
		zap.String("position", pos.ID().String()),
		zap.String("security", sec.String()),
		zap.String("type", string(pos.Type())),
		zap.Float64("qty", pos.PlannedQty()))

	return pos, nil
}

// RestorePosition reconstructs a position already open at the venue, without
// submitting an order. Used by startup reconciliation and broker position
// snapshots.
func (c *Controller) RestorePosition(
	ctx context.Context,
	op Operation,
	sec *security.Security,
	ts trading.TradingSystem,
	positionType types.PositionType,
	qty float64,
	openTime time.Time,
	openPrice float64,
) (*Position, error) {
	c.strategy.Lock()
	defer c.strategy.Unlock()

	pos := NewPosition(op, c.strategy, sec, ts, positionType, qty, c.nextSubOperationID(op))
	op.Setup(pos, c)
	c.strategy.AddPosition(pos)

	if err := pos.RestoreOpenState(openTime, openPrice); err != nil {
		c.strategy.RemovePosition(pos.ID())

		return nil, err
	}

	return pos, nil
}

func (c *Controller) newPosition(op Operation, sec *security.Security, ts trading.TradingSystem) *Position {
	positionType := types.PositionTypeShort
	if op.IsLong(sec) {
		positionType = types.PositionTypeLong
	}

	pos := NewPosition(op, c.strategy, sec, ts, positionType, op.GetPlannedQty(sec), c.nextSubOperationID(op))
	op.Setup(pos, c)
	c.strategy.AddPosition(pos)

	return pos
}

func (c *Controller) nextSubOperationID(op Operation) int64 {
	c.subOpCounters[op.ID()]++

	return c.subOpCounters[op.ID()]
}

// ContinuePosition resubmits the opening order for the remaining planned
// quantity.
func (c *Controller) ContinuePosition(ctx context.Context, pos *Position) error {
	return pos.Operation().GetOpenOrderPolicy(pos).Open(ctx, pos)
}

// HoldPosition is the explicit no-op branch of the decision table: the
// position is fully opened and the attached algorithms keep watching it.
func (c *Controller) HoldPosition(pos *Position) {
	c.log.Debug("holding position", zap.String("position", pos.ID().String()))
}

// ClosePosition initiates closing for the given reason. It reports whether
// it took an action, so a caller can retry later instead of double
// submitting. An active open order is canceled first; closing proceeds once
// cancellation is acknowledged. A transient venue failure is logged and
// retried on the next position update rather than losing the close intent.
func (c *Controller) ClosePosition(ctx context.Context, pos *Position, reason types.CloseReason) (bool, error) {
	c.strategy.Lock()
	defer c.strategy.Unlock()

	if pos.HasActiveCloseOrders() {
		return false, nil
	}

	// A passive reason (stop, signal) never displaces a pending one; an
	// active reason (rollover, request, engine stop) always takes over so
	// the close completes under the caller's intent.
	if reason.IsPassive() {
		pos.SetCloseReason(reason)
	} else {
		pos.OverwriteCloseReason(reason)
	}

	if pos.HasActiveOpenOrders() {
		if pos.IsCanceling() {
			return false, nil
		}

		if err := pos.CancelAllOrders(ctx); err != nil {
			return false, c.tolerateCommunication(pos, err, "cancel of open order")
		}

		return true, nil
	}

	if pos.ActiveQty() <= 0 {
		return false, nil
	}

	if err := pos.Operation().GetCloseOrderPolicy(pos).Close(ctx, pos); err != nil {
		return false, c.tolerateCommunication(pos, err, "close order")
	}

	return true, nil
}

// tolerateCommunication swallows transient venue errors: the close reason
// stays set on the position and the next position update retries the
// action.
func (c *Controller) tolerateCommunication(pos *Position, err error, action string) error {
	if !errors.IsCommunication(err) {
		return err
	}

	c.log.Warn("venue communication failed, will retry on next position update",
		zap.String("position", pos.ID().String()),
		zap.String("action", action),
		zap.Error(err))

	return nil
}

// CloseAllPositions is a best-effort sweep: a failure to close one position
// is logged and does not abort closing the rest.
func (c *Controller) CloseAllPositions(ctx context.Context, reason types.CloseReason) {
	c.strategy.Lock()
	defer c.strategy.Unlock()

	for _, handle := range c.strategy.Positions() {
		pos, ok := handle.(*Position)
		if !ok || pos.IsCompleted() {
			continue
		}

		if _, err := c.ClosePosition(ctx, pos, reason); err != nil {
			c.log.Error("failed to close position",
				zap.String("position", pos.ID().String()),
				zap.Error(err))
		}
	}
}

// Rollover starts the contract-switch protocol for a position: close with
// reason rollover now, reopen on the switched instrument once the close
// completes. A rollover requested while one is already pending is ignored.
func (c *Controller) Rollover(ctx context.Context, pos *Position) (bool, error) {
	c.strategy.Lock()
	defer c.strategy.Unlock()

	if _, pending := c.pendingRollovers[pos.ID()]; pending {
		return false, nil
	}

	c.pendingRollovers[pos.ID()] = struct{}{}

	took, err := c.ClosePosition(ctx, pos, types.CloseReasonRollover)
	if err != nil {
		delete(c.pendingRollovers, pos.ID())

		return false, err
	}

	return took, nil
}

// OnBrokerPositionUpdate reconciles an out-of-band venue-reported position
// snapshot. Only the initial non-zero snapshot is accepted per instrument,
// and it restores rather than opens a position.
func (c *Controller) OnBrokerPositionUpdate(
	ctx context.Context,
	op Operation,
	sec *security.Security,
	ts trading.TradingSystem,
	isLong bool,
	qty float64,
	volume float64,
	isInitial bool,
) (*Position, error) {
	c.strategy.Lock()
	defer c.strategy.Unlock()

	if !isInitial || qty == 0 {
		return nil, nil
	}

	if _, done := c.brokerRestored[sec.String()]; done {
		return nil, nil
	}

	c.brokerRestored[sec.String()] = struct{}{}

	positionType := types.PositionTypeShort
	if isLong {
		positionType = types.PositionTypeLong
	}

	return c.RestorePosition(ctx, op, sec, ts, positionType, qty, time.Now(), volume/qty)
}

// OnPositionUpdate is the central reconciliation handler, invoked on every
// order or fill event for the position.
func (c *Controller) OnPositionUpdate(ctx context.Context, pos *Position) error {
	c.strategy.Lock()
	defer c.strategy.Unlock()

	if pos.IsError() {
		// The strategy blocks itself on the error event; nothing to drive.
		return nil
	}

	switch {
	case pos.IsCompleted() && pos.ClosedQty() > 0:
		return c.onPositionClosed(ctx, pos)

	case pos.IsCompleted() && pos.OpenedQty() == 0 && pos.CloseReason() == types.CloseReasonNone:
		// The open order was canceled by an external condition before any
		// fill: the strategy's intent stands, resubmit.
		c.log.Info("open order canceled externally, resubmitting",
			zap.String("position", pos.ID().String()))

		return c.ContinuePosition(ctx, pos)

	case pos.IsCompleted():
		// Open canceled with a close reason pending and nothing held.
		return c.onPositionVoided(ctx, pos)

	case pos.HasActiveOpenOrders() && pos.CloseReason() != types.CloseReasonNone:
		// A close is wanted while the open order is still working: cancel
		// it; the close proceeds once the open is void.
		if pos.IsCanceling() {
			return nil
		}

		if err := pos.CancelAllOrders(ctx); err != nil {
			return c.tolerateCommunication(pos, err, "cancel of open order")
		}

		return nil

	case pos.HasActiveOrders():
		return nil

	case pos.CloseReason() != types.CloseReasonNone:
		_, err := c.ClosePosition(ctx, pos, pos.CloseReason())

		return err

	case !pos.IsFullyOpened():
		return c.ContinuePosition(ctx, pos)

	default:
		c.HoldPosition(pos)

		return nil
	}
}

// onPositionClosed handles a fully closed position: report it, drop it from
// the strategy, and spawn the rollover or inverted successor if one is due.
func (c *Controller) onPositionClosed(ctx context.Context, pos *Position) error {
	c.report.Append(pos)
	c.strategy.RemovePosition(pos.ID())

	if _, pending := c.pendingRollovers[pos.ID()]; pending && pos.CloseReason() == types.CloseReasonRollover {
		delete(c.pendingRollovers, pos.ID())
		c.log.Info("rollover close completed, reopening on switched contract",
			zap.String("position", pos.ID().String()))

		_, err := c.OpenPosition(ctx, pos.Operation(), pos.Security(), pos.TradingSystem())

		return err
	}

	delete(c.pendingRollovers, pos.ID())

	if inverted, ok := pos.Operation().GetInvertedOperation(pos); ok {
		c.log.Info("starting inverted position",
			zap.String("closed", pos.ID().String()))

		_, err := c.OpenPosition(ctx, inverted, pos.Security(), pos.TradingSystem())

		return err
	}

	return nil
}

// onPositionVoided handles a position that completed without ever holding
// anything: its open order was canceled while a close was already wanted.
func (c *Controller) onPositionVoided(ctx context.Context, pos *Position) error {
	c.strategy.RemovePosition(pos.ID())

	if _, pending := c.pendingRollovers[pos.ID()]; pending && pos.CloseReason() == types.CloseReasonRollover {
		delete(c.pendingRollovers, pos.ID())

		_, err := c.OpenPosition(ctx, pos.Operation(), pos.Security(), pos.TradingSystem())

		return err
	}

	delete(c.pendingRollovers, pos.ID())

	return nil
}
