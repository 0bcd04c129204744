// Package security holds the tradable-instrument entity shared between market
// data sources and the trading core. A Security is created once per symbol per
// source and is referenced, never owned, by the modules that consume it.
package security

import (
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

// Level1 is a snapshot of the top-of-book state for one instrument.
type Level1 struct {
	BidPrice  float64
	BidQty    float64
	AskPrice  float64
	AskQty    float64
	LastPrice float64
	LastQty   float64
	Time      time.Time
}

// Security is a tradable instrument with its current market state. All reads
// and writes go through the internal lock, so venue adapters may update it
// concurrently with strategies reading it.
type Security struct {
	symbol     types.Symbol
	source     string
	priceScale int

	mu             sync.RWMutex
	level1         Level1
	online         bool
	tradingSession bool
}

// NewSecurity creates a Security for the given symbol, owned by the named
// market data source.
func NewSecurity(symbol types.Symbol, source string, priceScale int) *Security {
	return &Security{
		symbol:     symbol,
		source:     source,
		priceScale: priceScale,
	}
}

func (s *Security) Symbol() types.Symbol { return s.symbol }

func (s *Security) Source() string { return s.source }

// PriceScale returns the number of decimal digits the venue quotes prices in.
func (s *Security) PriceScale() int { return s.priceScale }

func (s *Security) String() string { return s.symbol.String() + "@" + s.source }

// Level1 returns the current top-of-book snapshot.
func (s *Security) Level1() Level1 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.level1
}

func (s *Security) BidPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.level1.BidPrice
}

func (s *Security) BidQty() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.level1.BidQty
}

func (s *Security) AskPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.level1.AskPrice
}

func (s *Security) AskQty() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.level1.AskQty
}

func (s *Security) LastPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.level1.LastPrice
}

// MarketOpenPrice returns the price a new position of the given type would
// open at right now: the ask for long, the bid for short.
func (s *Security) MarketOpenPrice(positionType types.PositionType) float64 {
	if positionType.IsLong() {
		return s.AskPrice()
	}

	return s.BidPrice()
}

// MarketClosePrice returns the price a position of the given type would close
// at right now: the bid for long, the ask for short.
func (s *Security) MarketClosePrice(positionType types.PositionType) float64 {
	if positionType.IsLong() {
		return s.BidPrice()
	}

	return s.AskPrice()
}

// IsOnline reports whether the owning source currently has a live feed for
// this instrument.
func (s *Security) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.online
}

// IsTradingSessionOpen reports whether the instrument is in an active trading
// session.
func (s *Security) IsTradingSessionOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tradingSession
}

// SetLevel1 replaces the top-of-book snapshot. Called by the owning market
// data source only.
func (s *Security) SetLevel1(level1 Level1) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.level1 = level1
}

// SetOnline marks the feed state. Called by the owning market data source only.
func (s *Security) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online = online
}

// SetTradingSession marks the trading-session state. Called by the owning
// market data source only.
func (s *Security) SetTradingSession(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tradingSession = open
}
