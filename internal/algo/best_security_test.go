package algo

import (
	"context"
	"testing"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/position"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/mocks"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type BestSecurityTestSuite struct {
	suite.Suite

	mockCtrl *gomock.Controller
	venue    *mocks.MockTradingSystem
	balances *trading.BalancesContainer
	log      *logger.Logger
}

func TestBestSecuritySuite(t *testing.T) {
	suite.Run(t, new(BestSecurityTestSuite))
}

func (s *BestSecurityTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.venue = mocks.NewMockTradingSystem(s.mockCtrl)
	s.balances = trading.NewBalancesContainer(logger.NewNopLogger())
	s.balances.Set("USDT", 1_000_000, 0)
	s.balances.Set("BTC", 1_000, 0)
	s.log = logger.NewNopLogger()
}

func (s *BestSecurityTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func (s *BestSecurityTestSuite) resolver() VenueResolver {
	return func(*security.Security) trading.TradingSystem { return s.venue }
}

func (s *BestSecurityTestSuite) newCandidate(source string, bid, bidQty, ask, askQty float64) *security.Security {
	sec := security.NewSecurity(types.Symbol{Base: "BTC", Quote: "USDT"}, source, 2)
	sec.SetLevel1(security.Level1{BidPrice: bid, BidQty: bidQty, AskPrice: ask, AskQty: askQty})
	sec.SetOnline(true)

	return sec
}

func (s *BestSecurityTestSuite) allowVenueChecks() {
	s.venue.EXPECT().Balances().Return(s.balances).AnyTimes()
	s.venue.EXPECT().
		CheckOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(optional.None[types.OrderCheckError]()).
		AnyTimes()
}

func (s *BestSecurityTestSuite) TestRejectsOfflineCandidate() {
	checker := NewBestSecurityCheckerForOrder(types.OrderSideBuy, 5, s.resolver(), true, s.log)

	offline := s.newCandidate("a", 99.9, 50, 100.1, 50)
	offline.SetOnline(false)

	s.ErrorIs(checker.Check(offline), ErrVenueOffline)
	s.Nil(checker.GetSuitableSecurity())
}

func (s *BestSecurityTestSuite) TestRejectsThinOppositeSide() {
	s.allowVenueChecks()

	checker := NewBestSecurityCheckerForOrder(types.OrderSideBuy, 5, s.resolver(), true, s.log)

	thin := s.newCandidate("a", 99.9, 50, 100.1, 3)
	s.ErrorIs(checker.Check(thin), ErrInsufficientLiquidity)

	deep := s.newCandidate("b", 99.9, 50, 100.2, 50)
	s.NoError(checker.Check(deep))
	s.Equal(deep, checker.GetSuitableSecurity())
}

func (s *BestSecurityTestSuite) TestRejectsInsufficientFunds() {
	s.venue.EXPECT().Balances().Return(s.balances).AnyTimes()

	checker := NewBestSecurityCheckerForOrder(types.OrderSideBuy, 50_000, s.resolver(), false, s.log)

	candidate := s.newCandidate("a", 99.9, 50, 100.1, 50)
	s.ErrorIs(checker.Check(candidate), ErrInsufficientFunds)
}

func (s *BestSecurityTestSuite) TestNeverSelectsOrderCheckViolator() {
	s.venue.EXPECT().Balances().Return(s.balances).AnyTimes()

	violation := types.OrderCheckError{Qty: optional.Some(5.0)}
	bestPriced := s.newCandidate("a", 99.9, 50, 99.5, 50)
	worsePriced := s.newCandidate("b", 99.9, 50, 100.5, 50)

	gomock.InOrder(
		s.venue.EXPECT().
			CheckOrder(bestPriced, "USDT", 5.0, gomock.Any(), types.OrderSideBuy).
			Return(optional.Some(violation)),
		s.venue.EXPECT().
			CheckOrder(worsePriced, "USDT", 5.0, gomock.Any(), types.OrderSideBuy).
			Return(optional.None[types.OrderCheckError]()),
	)

	checker := NewBestSecurityCheckerForOrder(types.OrderSideBuy, 5, s.resolver(), false, s.log)

	s.ErrorIs(checker.Check(bestPriced), ErrOrderCheckViolation)
	s.NoError(checker.Check(worsePriced))
	s.Equal(worsePriced, checker.GetSuitableSecurity())
}

func (s *BestSecurityTestSuite) TestBuySidePrefersLowerAsk() {
	s.allowVenueChecks()

	checker := NewBestSecurityCheckerForOrder(types.OrderSideBuy, 5, s.resolver(), false, s.log)

	first := s.newCandidate("a", 99.9, 50, 100.2, 50)
	better := s.newCandidate("b", 99.9, 50, 100.1, 50)
	worse := s.newCandidate("c", 99.9, 50, 100.3, 50)

	s.NoError(checker.Check(first))
	s.NoError(checker.Check(better))
	s.ErrorIs(checker.Check(worse), ErrPriceNotBetter)
	s.Equal(better, checker.GetSuitableSecurity())
}

func (s *BestSecurityTestSuite) TestSellSidePrefersHigherBid() {
	s.allowVenueChecks()

	checker := NewBestSecurityCheckerForOrder(types.OrderSideSell, 5, s.resolver(), false, s.log)

	first := s.newCandidate("a", 99.8, 50, 100.2, 50)
	better := s.newCandidate("b", 99.9, 50, 100.2, 50)

	s.NoError(checker.Check(first))
	s.NoError(checker.Check(better))
	s.Equal(better, checker.GetSuitableSecurity())
}

func (s *BestSecurityTestSuite) TestEqualPriceBreaksTieOnQty() {
	s.allowVenueChecks()

	checker := NewBestSecurityCheckerForOrder(types.OrderSideBuy, 5, s.resolver(), false, s.log)

	first := s.newCandidate("a", 99.9, 50, 100.1, 20)
	deeper := s.newCandidate("b", 99.9, 50, 100.1, 40)
	shallower := s.newCandidate("c", 99.9, 50, 100.1, 10)

	s.NoError(checker.Check(first))
	s.NoError(checker.Check(deeper))
	s.ErrorIs(checker.Check(shallower), ErrPriceNotBetter)
	s.Equal(deeper, checker.GetSuitableSecurity())
}

func (s *BestSecurityTestSuite) TestPositionCheckerReRoutesOnCommit() {
	s.allowVenueChecks()

	strategy := newPassthroughStrategy()
	homeVenue := newRecordingVenue()
	home := s.newCandidate("home", 99.5, 50, 100.0, 50)

	op := position.NewBasicOperation(LimitGTCOrderPolicy{}, LimitGTCOrderPolicy{}, 10, true)
	pos, err := strategy.controller.OpenPosition(context.Background(), op, home, homeVenue)
	s.Require().NoError(err)
	homeVenue.lastOrder().fill(100, 10)

	checker := NewBestSecurityCheckerForPosition(pos, s.resolver())

	// Long close sells: the away venue quotes a better bid.
	away := s.newCandidate("away", 99.9, 50, 100.4, 50)
	s.NoError(checker.Check(home))
	s.NoError(checker.Check(away))

	s.Require().NoError(checker.Commit())
	s.Equal(away, pos.Security())
}

func (s *BestSecurityTestSuite) TestPositionCheckerCommitWithoutBetterVenueIsNoOp() {
	s.allowVenueChecks()

	strategy := newPassthroughStrategy()
	homeVenue := newRecordingVenue()
	home := s.newCandidate("home", 99.9, 50, 100.0, 50)

	op := position.NewBasicOperation(LimitGTCOrderPolicy{}, LimitGTCOrderPolicy{}, 10, true)
	pos, err := strategy.controller.OpenPosition(context.Background(), op, home, homeVenue)
	s.Require().NoError(err)
	homeVenue.lastOrder().fill(100, 10)

	checker := NewBestSecurityCheckerForPosition(pos, s.resolver())
	s.NoError(checker.Check(home))

	s.Require().NoError(checker.Commit())
	s.Equal(home, pos.Security())
}
