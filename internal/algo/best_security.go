package algo

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/position"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// Rejection reasons returned by BestSecurityChecker.Check. A rejection never
// halts a scan; the caller moves on to the next candidate.
var (
	ErrVenueOffline          = errors.New(errors.ErrCodeVenueOffline, "venue is offline")
	ErrInsufficientLiquidity = errors.New(errors.ErrCodeOrderCheck, "insufficient opposite-side liquidity")
	ErrInsufficientFunds     = errors.New(errors.ErrCodeInsufficientFunds, "insufficient funds at venue")
	ErrOrderCheckViolation   = errors.New(errors.ErrCodeOrderCheck, "order violates venue constraints")
	ErrPriceNotBetter        = errors.New(errors.ErrCodeInvalidOrder, "price is not better than the held best")
)

// VenueResolver maps a venue-specific security instance to the trading
// system that executes on that venue.
type VenueResolver func(sec *security.Security) trading.TradingSystem

// sideView reads the price fields relevant to one order side. A buy hits
// the ask and prefers it lower; a sell hits the bid and prefers it higher.
type sideView struct {
	price  func(sec *security.Security) float64
	qty    func(sec *security.Security) float64
	better func(candidate, best float64) bool
}

var buyView = sideView{
	price:  func(sec *security.Security) float64 { return sec.AskPrice() },
	qty:    func(sec *security.Security) float64 { return sec.AskQty() },
	better: func(candidate, best float64) bool { return candidate < best },
}

var sellView = sideView{
	price:  func(sec *security.Security) float64 { return sec.BidPrice() },
	qty:    func(sec *security.Security) float64 { return sec.BidQty() },
	better: func(candidate, best float64) bool { return candidate > best },
}

// BestSecurityChecker scans venue-specific instances of one instrument and
// keeps the candidate that best satisfies balance, minimum-size, and
// price-improvement constraints.
type BestSecurityChecker struct {
	side     types.OrderSide
	qty      float64
	view     sideView
	resolver VenueResolver
	checkQty bool
	log      *logger.Logger

	best      *security.Security
	bestPrice float64
	bestQty   float64
}

// NewBestSecurityCheckerForOrder creates a checker for one prospective
// order. checkOpposingQty additionally requires the candidate's opposite
// side to quote at least the required quantity.
func NewBestSecurityCheckerForOrder(
	side types.OrderSide,
	qty float64,
	resolver VenueResolver,
	checkOpposingQty bool,
	log *logger.Logger,
) *BestSecurityChecker {
	view := buyView
	if side == types.OrderSideSell {
		view = sellView
	}

	return &BestSecurityChecker{
		side:     side,
		qty:      qty,
		view:     view,
		resolver: resolver,
		checkQty: checkOpposingQty,
		log:      log.Named("best_security"),
	}
}

// Check evaluates one candidate. A nil result means the candidate replaced
// the held best; any other result names why it was rejected.
func (c *BestSecurityChecker) Check(candidate *security.Security) error {
	if !candidate.IsOnline() {
		return ErrVenueOffline
	}

	price := c.view.price(candidate)
	qty := c.view.qty(candidate)

	if c.checkQty && qty < c.qty {
		return ErrInsufficientLiquidity
	}

	venue := c.resolver(candidate)

	if !c.hasFunds(candidate, venue, price) {
		return ErrInsufficientFunds
	}

	if violation := venue.CheckOrder(candidate, candidate.Symbol().Currency(), c.qty, optional.Some(price), c.side); violation.IsSome() {
		c.log.Debug("candidate rejected by venue order check",
			zap.String("security", candidate.String()),
			zap.String("violation", violation.Unwrap().String()))

		return ErrOrderCheckViolation
	}

	if c.best != nil && !c.view.better(price, c.bestPrice) {
		if price != c.bestPrice || qty <= c.bestQty {
			return ErrPriceNotBetter
		}
	}

	c.best = candidate
	c.bestPrice = price
	c.bestQty = qty

	return nil
}

// hasFunds verifies the venue holds enough balance for the prospective
// order: quote currency for a buy, base currency for a sell.
func (c *BestSecurityChecker) hasFunds(candidate *security.Security, venue trading.TradingSystem, price float64) bool {
	symbol := candidate.Symbol()

	if c.side == types.OrderSideBuy {
		return venue.Balances().GetAvailableToTrade(symbol.Quote) >= c.qty*price
	}

	return venue.Balances().GetAvailableToTrade(symbol.Base) >= c.qty
}

// GetSuitableSecurity returns the best candidate seen so far, or nil if
// every candidate was rejected.
func (c *BestSecurityChecker) GetSuitableSecurity() *security.Security {
	return c.best
}

// PositionBestSecurityChecker scans venues for finishing an existing
// position. Committing the scan re-routes the position to the selected
// venue.
type PositionBestSecurityChecker struct {
	BestSecurityChecker

	position *position.Position
}

// NewBestSecurityCheckerForPosition creates a checker whose side and
// quantity come from the position's close direction and active quantity.
func NewBestSecurityCheckerForPosition(
	pos *position.Position,
	resolver VenueResolver,
) *PositionBestSecurityChecker {
	return &PositionBestSecurityChecker{
		BestSecurityChecker: *NewBestSecurityCheckerForOrder(
			pos.Type().CloseOrderSide(),
			pos.ActiveQty(),
			resolver,
			true,
			pos.Strategy().Log(),
		),
		position: pos,
	}
}

// Commit re-routes the position to the selected venue. A scan with no
// suitable candidate, or one that selected the position's current venue,
// commits to nothing.
func (c *PositionBestSecurityChecker) Commit() error {
	if c.best == nil || c.best == c.position.Security() {
		return nil
	}

	return c.position.ReRoute(c.best, c.resolver(c.best))
}
