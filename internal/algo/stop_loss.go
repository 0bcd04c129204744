package algo

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/position"
	"github.com/rxtech-lab/argo-engine/internal/types"
)

// StopLossParams configures an absolute stop loss: the maximum tolerated
// loss per lot of opened quantity. Delay, when set, gives a fresh position
// that long to breathe before the stop starts watching.
type StopLossParams struct {
	MaxLossPerLot float64
	Delay         time.Duration
}

// StopLossShareParams configures a relative stop loss: the maximum tolerated
// loss as a share of the opened volume (0.05 tolerates losing 5% of what was
// spent opening).
type StopLossShareParams struct {
	MaxLossShare float64
	Delay        time.Duration
}

// StopLoss closes a position when its planned loss exceeds a configured
// amount per lot.
type StopLoss struct {
	stopOrder
	params StopLossParams
}

// NewStopLoss creates a stop loss and attaches it to the position.
func NewStopLoss(params StopLossParams, pos *position.Position, controller *position.Controller) *StopLoss {
	s := &StopLoss{stopOrder: newStopOrder("stop_loss", pos, controller), params: params}
	pos.AttachAlgo(s)

	return s
}

func (s *StopLoss) Name() string { return "stop loss" }

func (s *StopLoss) Run(ctx context.Context) error {
	if !s.isWatching() {
		return nil
	}

	if s.params.Delay > 0 && time.Since(s.position.OpenTime()) < s.params.Delay {
		return nil
	}

	maxLoss := s.params.MaxLossPerLot * s.position.OpenedQty()
	if s.position.PlannedPnl() >= -maxLoss {
		return nil
	}

	return s.onHit(ctx, types.CloseReasonStopLoss)
}

// StopLossShare is a StopLoss whose tolerance scales with the open volume
// instead of being a constant per lot.
type StopLossShare struct {
	stopOrder
	params StopLossShareParams
}

// NewStopLossShare creates a relative stop loss and attaches it to the
// position.
func NewStopLossShare(params StopLossShareParams, pos *position.Position, controller *position.Controller) *StopLossShare {
	s := &StopLossShare{stopOrder: newStopOrder("stop_loss_share", pos, controller), params: params}
	pos.AttachAlgo(s)

	return s
}

func (s *StopLossShare) Name() string { return "stop loss share" }

func (s *StopLossShare) Run(ctx context.Context) error {
	if !s.isWatching() {
		return nil
	}

	if s.params.Delay > 0 && time.Since(s.position.OpenTime()) < s.params.Delay {
		return nil
	}

	maxLoss := s.position.OpenAvgPrice() * s.position.OpenedQty() * s.params.MaxLossShare
	if s.position.PlannedPnl() >= -maxLoss {
		return nil
	}

	return s.onHit(ctx, types.CloseReasonStopLoss)
}
