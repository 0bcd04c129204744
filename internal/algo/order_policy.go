// Package algo holds the pluggable pieces attached to a position by its
// operation: order policies, stop-order watchdogs, and the cross-venue
// security checker.
package algo

import (
	"context"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/position"
)

// LimitGTCOrderPolicy submits persistent limit orders at the current market
// price for the order's side: the ask to open a long, the bid to close it.
type LimitGTCOrderPolicy struct{}

func (LimitGTCOrderPolicy) Open(ctx context.Context, pos *position.Position) error {
	return pos.OpenAtPrice(ctx, pos.Security().MarketOpenPrice(pos.Type()))
}

func (LimitGTCOrderPolicy) Close(ctx context.Context, pos *position.Position) error {
	return pos.CloseAtPrice(ctx, pos.Security().MarketClosePrice(pos.Type()))
}

// LimitIOCOrderPolicy fires a limit order at the current market price and
// lets the venue cancel the unfilled remainder.
type LimitIOCOrderPolicy struct{}

func (LimitIOCOrderPolicy) Open(ctx context.Context, pos *position.Position) error {
	return pos.OpenImmediatelyOrCancel(ctx, pos.Security().MarketOpenPrice(pos.Type()))
}

func (LimitIOCOrderPolicy) Close(ctx context.Context, pos *position.Position) error {
	return pos.CloseImmediatelyOrCancel(ctx, pos.Security().MarketClosePrice(pos.Type()))
}

// MarketOrderPolicy submits market orders, taking whatever the venue gives.
type MarketOrderPolicy struct{}

func (MarketOrderPolicy) Open(ctx context.Context, pos *position.Position) error {
	return pos.OpenAtMarketPrice(ctx)
}

func (MarketOrderPolicy) Close(ctx context.Context, pos *position.Position) error {
	return pos.CloseAtMarketPrice(ctx)
}

// BoundedLimitOrderPolicy is a LimitGTCOrderPolicy that never crosses a
// caller-supplied price bound: a long open never pays more than OpenBound,
// a long close never sells below CloseBound (mirrored for shorts).
type BoundedLimitOrderPolicy struct {
	OpenBound  optional.Option[float64]
	CloseBound optional.Option[float64]
}

func (p BoundedLimitOrderPolicy) Open(ctx context.Context, pos *position.Position) error {
	price := pos.Security().MarketOpenPrice(pos.Type())
	if bound, err := p.OpenBound.Take(); err == nil {
		price = clamp(price, bound, pos.IsLong())
	}

	return pos.OpenAtPrice(ctx, price)
}

func (p BoundedLimitOrderPolicy) Close(ctx context.Context, pos *position.Position) error {
	price := pos.Security().MarketClosePrice(pos.Type())
	if bound, err := p.CloseBound.Take(); err == nil {
		price = clamp(price, bound, !pos.IsLong())
	}

	return pos.CloseAtPrice(ctx, price)
}

// clamp caps a buy price from above and a sell price from below.
func clamp(price, bound float64, isBuy bool) float64 {
	if isBuy {
		if price > bound {
			return bound
		}

		return price
	}

	if price < bound {
		return bound
	}

	return price
}
