package strategies

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-engine/internal/engine"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading/paper"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

type TrendStrategyTestSuite struct {
	suite.Suite

	venue    *paper.Venue
	sec      *security.Security
	strategy *TrendStrategy
}

func (suite *TrendStrategyTestSuite) SetupTest() {
	suite.venue = paper.New(paper.Config{
		InitialBalances: map[string]float64{"USDT": 100_000},
		CommissionRate:  0.001,
	}, logger.NewNopLogger())

	suite.sec = security.NewSecurity(types.Symbol{Base: "BTC", Quote: "USDT"}, "paper", 8)
	suite.setBook(100, 100, 101, 100)

	suite.strategy = suite.newStrategy(map[string]any{
		"quantity": 1.0,
		"window":   3,
	})
}

func (suite *TrendStrategyTestSuite) TearDownTest() {
	suite.venue.Close()
}

func (suite *TrendStrategyTestSuite) newStrategy(params map[string]any) *TrendStrategy {
	s, err := newTrend(engine.StrategyContext{
		Name:          "trend",
		Params:        params,
		Log:           logger.NewNopLogger(),
		TradingSystem: suite.venue,
	})
	suite.Require().NoError(err)
	suite.Require().NoError(s.RegisterSource(suite.sec))

	return s
}

func (suite *TrendStrategyTestSuite) setBook(bidPrice, bidQty, askPrice, askQty float64) {
	suite.sec.SetLevel1(security.Level1{
		BidPrice: bidPrice,
		BidQty:   bidQty,
		AskPrice: askPrice,
		AskQty:   askQty,
		Time:     time.Now(),
	})
}

func (suite *TrendStrategyTestSuite) feedBar(close float64) {
	bar := types.Bar{
		Time:  time.Now(),
		Open:  close,
		High:  close,
		Low:   close,
		Close: close,
	}

	suite.Require().NoError(suite.strategy.RaiseNewBarEvent(suite.sec, bar))
}

// warmUp fills the breakout channel without triggering an entry.
func (suite *TrendStrategyTestSuite) warmUp() {
	for _, close := range []float64{100, 101, 102} {
		suite.feedBar(close)
	}
}

func (suite *TrendStrategyTestSuite) waitFullyOpened() {
	suite.Require().Eventually(func() bool {
		pos := suite.strategy.Controller().LivePosition(suite.sec)

		return pos != nil && pos.IsFullyOpened() && !pos.HasActiveOrders()
	}, 5*time.Second, 10*time.Millisecond, "position never fully opened")
}

func (suite *TrendStrategyTestSuite) waitClosed() {
	suite.Require().Eventually(func() bool {
		return suite.strategy.Controller().LivePosition(suite.sec) == nil &&
			len(suite.strategy.Controller().Report().Entries()) == 1
	}, 5*time.Second, 10*time.Millisecond, "position never closed")
}

func (suite *TrendStrategyTestSuite) TestParamsRequireQuantity() {
	_, err := newTrend(engine.StrategyContext{
		Name:          "trend",
		Params:        map[string]any{"window": 3},
		Log:           logger.NewNopLogger(),
		TradingSystem: suite.venue,
	})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *TrendStrategyTestSuite) TestParamsDefaultWindow() {
	s := suite.newStrategy(map[string]any{"quantity": 0.5})

	suite.Equal(defaultTrendWindow, s.params.Window)
	suite.InDelta(0.5, s.params.Quantity, 1e-9)
}

func (suite *TrendStrategyTestSuite) TestWarmupDoesNotTrade() {
	suite.warmUp()
	suite.feedBar(101.5) // inside the channel

	suite.Nil(suite.strategy.Controller().LivePosition(suite.sec))
	suite.Empty(suite.strategy.Controller().Report().Entries())
}

func (suite *TrendStrategyTestSuite) TestBreakoutOpensLong() {
	suite.warmUp()
	suite.feedBar(103)

	suite.waitFullyOpened()

	pos := suite.strategy.Controller().LivePosition(suite.sec)
	suite.Require().NotNil(pos)
	suite.True(pos.IsLong())
	suite.InDelta(1, pos.ActiveQty(), 1e-9)
	suite.InDelta(101, pos.OpenAvgPrice(), 1e-9)
}

func (suite *TrendStrategyTestSuite) TestBreakdownClosesPosition() {
	suite.warmUp()
	suite.feedBar(103)
	suite.waitFullyOpened()

	suite.feedBar(99) // below every channel close

	suite.waitClosed()

	entry := suite.strategy.Controller().Report().Entries()[0]
	suite.Equal(types.CloseReasonSignal, entry.CloseReason)
	suite.InDelta(101, entry.OpenAvgPrice, 1e-9)
	suite.InDelta(100, entry.CloseAvgPrice, 1e-9)
	suite.InDelta(-1, entry.Pnl, 1e-9)
	suite.False(entry.IsProfit)
}

func (suite *TrendStrategyTestSuite) TestStopLossClosesLosingPosition() {
	suite.strategy = suite.newStrategy(map[string]any{
		"quantity":         1.0,
		"window":           3,
		"max_loss_per_lot": 2.0,
	})

	suite.warmUp()
	suite.feedBar(103)
	suite.waitFullyOpened()

	// Deep enough that the unrealized loss exceeds the allowance.
	suite.setBook(95, 100, 96, 100)
	suite.Require().NoError(suite.strategy.RaiseLevel1UpdateEvent(suite.sec))

	suite.waitClosed()

	entry := suite.strategy.Controller().Report().Entries()[0]
	suite.Equal(types.CloseReasonStopLoss, entry.CloseReason)
	suite.InDelta(95, entry.CloseAvgPrice, 1e-9)
	suite.False(entry.IsProfit)
}

func (suite *TrendStrategyTestSuite) TestMarketTickEventsAreAccepted() {
	suite.Require().NoError(suite.strategy.RaiseLevel1UpdateEvent(suite.sec))
	suite.Require().NoError(suite.strategy.RaiseNewTradeEvent(suite.sec, time.Now(), 100.5, 2))
}

func (suite *TrendStrategyTestSuite) TestRegisterAddsTrend() {
	registry := engine.NewRegistry()
	suite.Require().NoError(Register(registry))
	suite.Contains(registry.Names(), "trend")
}

func TestTrendStrategyTestSuite(t *testing.T) {
	suite.Run(t, new(TrendStrategyTestSuite))
}
