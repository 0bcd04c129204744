package algo

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/position"
	"github.com/rxtech-lab/argo-engine/internal/types"
)

// TakeProfitStopLimitParams configures the price-or-time stop: the position
// is closed when the price has moved favorably by more than
// MaxPriceOffsetPerLot since open, or when TimeToClose has elapsed since
// open, whichever comes first. Either condition alone is sufficient.
type TakeProfitStopLimitParams struct {
	MaxPriceOffsetPerLot float64
	TimeToClose          time.Duration
}

// TakeProfitStopLimit races a favorable-price condition against a timeout.
type TakeProfitStopLimit struct {
	stopOrder
	params TakeProfitStopLimitParams

	// now is replaceable by tests.
	now func() time.Time
}

// NewTakeProfitStopLimit creates the price-or-time stop and attaches it to
// the position.
func NewTakeProfitStopLimit(
	params TakeProfitStopLimitParams,
	pos *position.Position,
	controller *position.Controller,
) *TakeProfitStopLimit {
	t := &TakeProfitStopLimit{
		stopOrder: newStopOrder("stop_limit", pos, controller),
		params:    params,
		now:       time.Now,
	}
	pos.AttachAlgo(t)

	return t
}

func (t *TakeProfitStopLimit) Name() string { return "take profit stop limit" }

func (t *TakeProfitStopLimit) Run(ctx context.Context) error {
	if !t.isWatching() {
		return nil
	}

	if t.priceConditionMet() || t.timeConditionMet() {
		return t.onHit(ctx, types.CloseReasonStopLimit)
	}

	return nil
}

func (t *TakeProfitStopLimit) priceConditionMet() bool {
	openPrice := t.position.OpenAvgPrice()
	marketPrice := t.position.Security().MarketClosePrice(t.position.Type())

	if t.position.IsLong() {
		return marketPrice-openPrice >= t.params.MaxPriceOffsetPerLot
	}

	return openPrice-marketPrice >= t.params.MaxPriceOffsetPerLot
}

func (t *TakeProfitStopLimit) timeConditionMet() bool {
	openTime := t.position.OpenTime()
	if openTime.IsZero() {
		return false
	}

	return t.now().Sub(openTime) >= t.params.TimeToClose
}
