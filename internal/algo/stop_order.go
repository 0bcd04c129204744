package algo

import (
	"context"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/position"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"go.uber.org/zap"
)

// stopOrder is the shared shape of the per-position watchdogs. Concrete
// stops embed it and implement the trigger condition in their Run.
type stopOrder struct {
	position   *position.Position
	controller *position.Controller
	log        *logger.Logger
}

func newStopOrder(name string, pos *position.Position, controller *position.Controller) stopOrder {
	return stopOrder{
		position:   pos,
		controller: controller,
		log:        controller.Strategy().Log().Named(name),
	}
}

// isWatching reports whether the trigger condition should be evaluated at
// all: the position must hold something and not be finished. A pending close
// does not stop the watch — a triggered stop keeps chasing a close order the
// market has run away from.
func (s *stopOrder) isWatching() bool {
	if s.position.IsCompleted() || s.position.IsError() {
		return false
	}

	return s.position.OpenedQty() > 0
}

// onHit commits the trigger: sets the close reason (first reason wins) and
// asks the controller to close. While a close is already pending, the hit
// instead verifies the working close order is still fillable.
func (s *stopOrder) onHit(ctx context.Context, reason types.CloseReason) error {
	if s.position.CloseReason() != types.CloseReasonNone {
		return s.refreshCloseOrder(ctx)
	}

	s.log.Info("stop condition hit",
		zap.String("position", s.position.ID().String()),
		zap.String("reason", reason.String()))

	_, err := s.controller.ClosePosition(ctx, s.position, reason)

	return err
}

// refreshCloseOrder cancels a resting close limit order the market has moved
// away from. The pending close reason makes the controller resubmit at the
// current price once the cancel is acknowledged.
func (s *stopOrder) refreshCloseOrder(ctx context.Context) error {
	if !s.position.HasActiveCloseOrders() || s.position.IsCanceling() {
		return nil
	}

	limit, err := s.position.ActiveCloseOrderPrice().Take()
	if err != nil {
		// Market close order, nothing to chase.
		return nil
	}

	market := s.position.Security().MarketClosePrice(s.position.Type())

	stale := (s.position.IsLong() && market < limit) || (!s.position.IsLong() && market > limit)
	if !stale {
		return nil
	}

	s.log.Info("close order left behind by the market, replacing",
		zap.String("position", s.position.ID().String()),
		zap.Float64("limit", limit),
		zap.Float64("market", market))

	return s.position.CancelAllOrders(ctx)
}
