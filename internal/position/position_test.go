package position

import (
	"context"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/module"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// fakeOrder is one order held by the fake venue, filled or canceled by the
// test.
type fakeOrder struct {
	txn      *trading.OrderTransaction
	request  types.OrderRequest
	callback trading.OrderCallback
	canceled bool
}

func (o *fakeOrder) fill(price, qty float64) {
	o.callback(types.OrderUpdate{
		OrderID:   o.txn.ID(),
		Status:    types.OrderStatusFilled,
		FilledQty: qty,
		FillPrice: price,
		Time:      time.Now(),
	})
}

func (o *fakeOrder) partialFill(price, qty float64) {
	o.callback(types.OrderUpdate{
		OrderID:   o.txn.ID(),
		Status:    types.OrderStatusPartiallyFilled,
		FilledQty: qty,
		FillPrice: price,
		Time:      time.Now(),
	})
}

func (o *fakeOrder) confirmCancel() {
	o.callback(types.OrderUpdate{
		OrderID: o.txn.ID(),
		Status:  types.OrderStatusCancelled,
		Time:    time.Now(),
	})
}

func (o *fakeOrder) reportError() {
	o.callback(types.OrderUpdate{
		OrderID: o.txn.ID(),
		Status:  types.OrderStatusError,
		Time:    time.Now(),
	})
}

// fakeVenue is an in-memory TradingSystem whose fills are driven by the
// test.
type fakeVenue struct {
	orders    []*fakeOrder
	submitErr error
	cancelErr error
	balances  *trading.BalancesContainer
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{balances: trading.NewBalancesContainer(logger.NewNopLogger())}
}

func (v *fakeVenue) Name() string { return "fake" }

func (v *fakeVenue) SendOrderTransaction(
	_ context.Context,
	_ *security.Security,
	request types.OrderRequest,
	callback trading.OrderCallback,
) (*trading.OrderTransaction, error) {
	if v.submitErr != nil {
		err := v.submitErr
		v.submitErr = nil

		return nil, err
	}

	order := &fakeOrder{
		txn:      trading.NewOrderTransaction(v.Name(), "", request),
		request:  request,
		callback: callback,
	}
	v.orders = append(v.orders, order)

	return order.txn, nil
}

func (v *fakeVenue) SendCancelOrderTransaction(_ context.Context, txn *trading.OrderTransaction) error {
	if v.cancelErr != nil {
		err := v.cancelErr
		v.cancelErr = nil

		return err
	}

	for _, order := range v.orders {
		if order.txn.ID() == txn.ID() {
			order.canceled = true

			return nil
		}
	}

	return errors.New(errors.ErrCodeOrderUnknown, "unknown order")
}

func (v *fakeVenue) CheckOrder(
	*security.Security, string, float64, optional.Option[float64], types.OrderSide,
) optional.Option[types.OrderCheckError] {
	return optional.None[types.OrderCheckError]()
}

func (v *fakeVenue) Balances() *trading.BalancesContainer { return v.balances }

func (v *fakeVenue) lastOrder() *fakeOrder {
	return v.orders[len(v.orders)-1]
}

// limitPolicy opens and closes at fixed limit prices.
type limitPolicy struct {
	openPrice  float64
	closePrice float64
}

func (p limitPolicy) Open(ctx context.Context, pos *Position) error {
	return pos.OpenAtPrice(ctx, p.openPrice)
}

func (p limitPolicy) Close(ctx context.Context, pos *Position) error {
	return pos.CloseAtPrice(ctx, p.closePrice)
}

// controllerStrategy routes position updates back into the controller, the
// way a real strategy wires its OnPositionUpdate.
type controllerStrategy struct {
	*module.Strategy

	controller *Controller
}

func newControllerStrategy() *controllerStrategy {
	st := &controllerStrategy{}
	st.Strategy = module.NewStrategy("test", "controller", "test", st, logger.NewNopLogger())
	st.controller = NewController(st.Strategy)

	return st
}

func (st *controllerStrategy) OnPositionUpdate(handle module.PositionHandle) error {
	return st.controller.OnPositionUpdate(context.Background(), handle.(*Position))
}

type ControllerTestSuite struct {
	suite.Suite

	ctx      context.Context
	strategy *controllerStrategy
	venue    *fakeVenue
	sec      *security.Security
	op       *BasicOperation
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.strategy = newControllerStrategy()
	s.venue = newFakeVenue()
	s.sec = security.NewSecurity(types.Symbol{Base: "BTC", Quote: "USDT"}, "fake", 2)
	s.sec.SetLevel1(security.Level1{BidPrice: 99.9, BidQty: 50, AskPrice: 100.1, AskQty: 50, LastPrice: 100})
	s.op = NewBasicOperation(limitPolicy{openPrice: 100, closePrice: 105}, limitPolicy{openPrice: 100, closePrice: 105}, 10, true)
}

func (s *ControllerTestSuite) controller() *Controller { return s.strategy.controller }

func (s *ControllerTestSuite) openFullPosition() *Position {
	pos, err := s.controller().OpenPosition(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)
	s.Require().NotNil(pos)
	s.venue.lastOrder().fill(100, 10)
	s.Require().Equal(StateFullyOpened, pos.State())

	return pos
}

func (s *ControllerTestSuite) TestOpenFillClose() {
	pos := s.openFullPosition()
	s.Equal(10.0, pos.OpenedQty())
	s.Equal(10.0, pos.ActiveQty())
	s.Equal(100.0, pos.OpenAvgPrice())

	took, err := s.controller().ClosePosition(s.ctx, pos, types.CloseReasonSignal)
	s.Require().NoError(err)
	s.True(took)
	s.Equal(StateClosing, pos.State())

	s.venue.lastOrder().fill(105, 10)

	s.Equal(StateCompleted, pos.State())
	s.True(pos.IsCompleted())
	s.Equal(10.0, pos.OpenedQty())
	s.Equal(10.0, pos.ClosedQty())
	s.True(pos.IsProfit())
	s.InDelta(50.0, pos.RealizedPnl(), 1e-9)

	s.Empty(s.strategy.Positions())
	s.Require().Len(s.controller().Report().Entries(), 1)
	s.Equal(types.CloseReasonSignal, s.controller().Report().Entries()[0].CloseReason)
}

func (s *ControllerTestSuite) TestOnSignalIsIdempotent() {
	pos, err := s.controller().OnSignal(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)
	s.Require().NotNil(pos)
	s.Len(s.venue.orders, 1)

	again, err := s.controller().OnSignal(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)
	s.Nil(again)
	s.Len(s.venue.orders, 1)
}

func (s *ControllerTestSuite) TestOnSignalCloseSignalInitiatesClose() {
	s.op.CloseSignal = func(*Position) bool { return true }

	pos, err := s.controller().OnSignal(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)
	s.venue.lastOrder().fill(100, 10)

	changed, err := s.controller().OnSignal(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)
	s.Equal(pos, changed)
	s.Equal(types.CloseReasonSignal, pos.CloseReason())
	s.True(pos.HasActiveCloseOrders())

	// Close already pending, further signals no-op.
	again, err := s.controller().OnSignal(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)
	s.Nil(again)
	s.Len(s.venue.orders, 2)
}

func (s *ControllerTestSuite) TestExternallyCanceledOpenIsResubmitted() {
	pos, err := s.controller().OpenPosition(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)
	s.Require().Len(s.venue.orders, 1)

	s.venue.orders[0].confirmCancel()

	s.Require().Len(s.venue.orders, 2)
	s.False(pos.IsCompleted())
	s.True(pos.HasActiveOpenOrders())
}

func (s *ControllerTestSuite) TestPartialFillContinuesOpening() {
	pos, err := s.controller().OpenPosition(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)

	order := s.venue.lastOrder()
	order.partialFill(100, 4)
	s.Equal(StatePartiallyOpened, pos.State())

	// Venue finalizes the order with the remainder unfilled.
	order.confirmCancel()

	s.Require().Len(s.venue.orders, 2)
	s.Equal(6.0, s.venue.lastOrder().request.Quantity)
}

func (s *ControllerTestSuite) TestCloseCancelsActiveOpenOrderFirst() {
	pos, err := s.controller().OpenPosition(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)

	took, err := s.controller().ClosePosition(s.ctx, pos, types.CloseReasonRequest)
	s.Require().NoError(err)
	s.True(took)
	s.True(s.venue.orders[0].canceled)
	s.Len(s.venue.orders, 1)
	s.Equal(types.CloseReasonRequest, pos.CloseReason())
}

func (s *ControllerTestSuite) TestCloseIsNoOpWhileCloseOrderActive() {
	pos := s.openFullPosition()

	took, err := s.controller().ClosePosition(s.ctx, pos, types.CloseReasonSignal)
	s.Require().NoError(err)
	s.True(took)

	took, err = s.controller().ClosePosition(s.ctx, pos, types.CloseReasonStopLoss)
	s.Require().NoError(err)
	s.False(took)
	s.Len(s.venue.orders, 2)
	s.Equal(types.CloseReasonSignal, pos.CloseReason())
}

func (s *ControllerTestSuite) TestFirstCloseReasonWins() {
	pos := s.openFullPosition()

	pos.SetCloseReason(types.CloseReasonStopLoss)
	pos.SetCloseReason(types.CloseReasonSignal)
	s.Equal(types.CloseReasonStopLoss, pos.CloseReason())

	pos.ResetCloseReason()
	s.Equal(types.CloseReasonNone, pos.CloseReason())
}

func (s *ControllerTestSuite) TestCommunicationFailureRetriesOnNextUpdate() {
	pos := s.openFullPosition()

	s.venue.submitErr = errors.New(errors.ErrCodeCommunication, "venue unreachable")

	took, err := s.controller().ClosePosition(s.ctx, pos, types.CloseReasonStopLoss)
	s.Require().NoError(err)
	s.False(took)
	s.Equal(types.CloseReasonStopLoss, pos.CloseReason())
	s.False(pos.HasActiveCloseOrders())

	// The next position update retries the close.
	s.Require().NoError(s.controller().OnPositionUpdate(s.ctx, pos))
	s.True(pos.HasActiveCloseOrders())
}

func (s *ControllerTestSuite) TestRolloverCancelsOpenOrderFirst() {
	pos, err := s.controller().OpenPosition(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)

	took, err := s.controller().Rollover(s.ctx, pos)
	s.Require().NoError(err)
	s.True(took)
	s.True(s.venue.orders[0].canceled)
	s.Len(s.venue.orders, 1)

	// Duplicate request while the rollover is pending is ignored.
	took, err = s.controller().Rollover(s.ctx, pos)
	s.Require().NoError(err)
	s.False(took)

	// Only after the cancel is acknowledged does the new position open.
	s.venue.orders[0].confirmCancel()
	s.Require().Len(s.venue.orders, 2)
	s.True(pos.IsCompleted())

	replacement := s.controller().LivePosition(s.sec)
	s.Require().NotNil(replacement)
	s.NotEqual(pos.ID(), replacement.ID())
}

func (s *ControllerTestSuite) TestRolloverOfOpenPositionClosesThenReopens() {
	pos := s.openFullPosition()

	took, err := s.controller().Rollover(s.ctx, pos)
	s.Require().NoError(err)
	s.True(took)
	s.Equal(types.CloseReasonRollover, pos.CloseReason())

	s.venue.lastOrder().fill(101, 10)

	s.True(pos.IsCompleted())
	s.Require().Len(s.venue.orders, 3)
	s.NotNil(s.controller().LivePosition(s.sec))
}

func (s *ControllerTestSuite) TestRolloverOverridesPendingPassiveReason() {
	pos := s.openFullPosition()

	// A stop committed its reason but its close order has not gone out yet.
	pos.SetCloseReason(types.CloseReasonStopLoss)

	took, err := s.controller().Rollover(s.ctx, pos)
	s.Require().NoError(err)
	s.True(took)
	s.Equal(types.CloseReasonRollover, pos.CloseReason())

	s.venue.lastOrder().fill(101, 10)

	s.True(pos.IsCompleted())
	s.Equal(types.CloseReasonRollover, s.controller().Report().Entries()[0].CloseReason)
	s.Require().NotNil(s.controller().LivePosition(s.sec), "rollover must reopen on the switched contract")
}

func (s *ControllerTestSuite) TestPassiveReasonNeverDisplacesPending() {
	pos := s.openFullPosition()
	pos.SetCloseReason(types.CloseReasonSignal)

	took, err := s.controller().ClosePosition(s.ctx, pos, types.CloseReasonStopLoss)
	s.Require().NoError(err)
	s.True(took)
	s.Equal(types.CloseReasonSignal, pos.CloseReason())
}

func (s *ControllerTestSuite) TestInvertedPositionStartsAfterClose() {
	inverted := NewBasicOperation(limitPolicy{openPrice: 105, closePrice: 100}, limitPolicy{openPrice: 105, closePrice: 100}, 10, false)
	s.op.Inversion = func(*Position) (Operation, bool) { return inverted, true }

	pos := s.openFullPosition()

	_, err := s.controller().ClosePosition(s.ctx, pos, types.CloseReasonSignal)
	s.Require().NoError(err)
	s.venue.lastOrder().fill(105, 10)

	replacement := s.controller().LivePosition(s.sec)
	s.Require().NotNil(replacement)
	s.Equal(types.PositionTypeShort, replacement.Type())
	s.Equal(types.OrderSideSell, s.venue.lastOrder().request.Side)
}

func (s *ControllerTestSuite) TestOverCloseEntersErrorStateAndBlocksStrategy() {
	pos := s.openFullPosition()

	_, err := s.controller().ClosePosition(s.ctx, pos, types.CloseReasonSignal)
	s.Require().NoError(err)

	s.venue.lastOrder().fill(105, 20)

	s.True(pos.IsError())
	s.True(s.strategy.IsBlocked())
}

func (s *ControllerTestSuite) TestOrderErrorEntersErrorState() {
	pos, err := s.controller().OpenPosition(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)

	s.venue.lastOrder().reportError()

	s.True(pos.IsError())
	s.True(s.strategy.IsBlocked())
}

func (s *ControllerTestSuite) TestRestorePosition() {
	openTime := time.Now().Add(-time.Hour)
	pos, err := s.controller().RestorePosition(s.ctx, s.op, s.sec, s.venue, types.PositionTypeLong, 10, openTime, 98)
	s.Require().NoError(err)

	s.Equal(StateFullyOpened, pos.State())
	s.Equal(10.0, pos.OpenedQty())
	s.Equal(98.0, pos.OpenAvgPrice())
	s.Equal(openTime, pos.OpenTime())
	s.Empty(s.venue.orders)
}

func (s *ControllerTestSuite) TestBrokerPositionUpdateAcceptsOnlyInitialSnapshot() {
	pos, err := s.controller().OnBrokerPositionUpdate(s.ctx, s.op, s.sec, s.venue, true, 5, 500, true)
	s.Require().NoError(err)
	s.Require().NotNil(pos)
	s.Equal(100.0, pos.OpenAvgPrice())
	s.Equal(5.0, pos.OpenedQty())

	again, err := s.controller().OnBrokerPositionUpdate(s.ctx, s.op, s.sec, s.venue, true, 5, 500, true)
	s.Require().NoError(err)
	s.Nil(again)

	skipped, err := s.controller().OnBrokerPositionUpdate(s.ctx, s.op, s.sec, s.venue, true, 5, 500, false)
	s.Require().NoError(err)
	s.Nil(skipped)
}

func (s *ControllerTestSuite) TestCloseAllPositionsIsBestEffort() {
	pos := s.openFullPosition()

	s.controller().CloseAllPositions(s.ctx, types.CloseReasonEngineStop)
	s.Equal(types.CloseReasonEngineStop, pos.CloseReason())
	s.True(pos.HasActiveCloseOrders())
}

func (s *ControllerTestSuite) TestClosedQtyNeverExceedsOpenedQty() {
	pos, err := s.controller().OpenPosition(s.ctx, s.op, s.sec, s.venue)
	s.Require().NoError(err)

	order := s.venue.lastOrder()
	order.partialFill(100, 3)
	s.LessOrEqual(pos.ClosedQty(), pos.OpenedQty())

	order.partialFill(100, 7)
	order.fill(100, 0)
	s.LessOrEqual(pos.ClosedQty(), pos.OpenedQty())

	_, err = s.controller().ClosePosition(s.ctx, pos, types.CloseReasonSignal)
	s.Require().NoError(err)
	s.venue.lastOrder().partialFill(101, 6)
	s.LessOrEqual(pos.ClosedQty(), pos.OpenedQty())
}

func (s *ControllerTestSuite) TestPlannedPnlUsesMarketClosePrice() {
	pos := s.openFullPosition()

	// Long close hits the bid at 99.9; opened at 100.
	s.InDelta((99.9-100.0)*10, pos.PlannedPnl(), 1e-9)
}
