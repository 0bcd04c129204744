package algo

import (
	"context"

	"github.com/rxtech-lab/argo-engine/internal/position"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"go.uber.org/zap"
)

// TakeProfitParams configures a trailing take profit: the stop arms once the
// planned profit reaches MinProfitPerLotToActivate per lot, then trips when
// the profit retreats by more than TrailingOffsetPerLot per lot from its
// peak.
type TakeProfitParams struct {
	MinProfitPerLotToActivate float64
	TrailingOffsetPerLot      float64
}

// TakeProfit is the trailing profit lock for a position.
type TakeProfit struct {
	stopOrder
	params TakeProfitParams

	activated bool
	peakPnl   float64
}

// NewTakeProfit creates a trailing take profit and attaches it to the
// position.
func NewTakeProfit(params TakeProfitParams, pos *position.Position, controller *position.Controller) *TakeProfit {
	t := &TakeProfit{stopOrder: newStopOrder("take_profit", pos, controller), params: params}
	pos.AttachAlgo(t)

	return t
}

func (t *TakeProfit) Name() string { return "take profit" }

// IsActivated reports whether the trailing stop is armed.
func (t *TakeProfit) IsActivated() bool { return t.activated }

func (t *TakeProfit) Run(ctx context.Context) error {
	if !t.isWatching() {
		return nil
	}

	pnl := t.position.PlannedPnl()
	qty := t.position.OpenedQty()

	if !t.activated {
		if pnl < t.params.MinProfitPerLotToActivate*qty {
			return nil
		}

		t.activated = true
		t.peakPnl = pnl
		t.log.Info("take profit activated",
			zap.String("position", t.position.ID().String()),
			zap.Float64("pnl", pnl))

		return nil
	}

	if pnl > t.peakPnl {
		t.peakPnl = pnl

		return nil
	}

	if t.peakPnl-pnl < t.params.TrailingOffsetPerLot*qty {
		return nil
	}

	return t.onHit(ctx, types.CloseReasonTakeProfit)
}
