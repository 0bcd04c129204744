// Package tradingprovider implements the Binance spot venue adapter. The
// Binance REST client is wrapped behind small service interfaces so tests can
// substitute canned responses without touching the network.
package tradingprovider

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

const (
	// binanceDecimalPrecision is the fallback decimal precision for order
	// quantities. Symbol-specific precision comes from the exchange filters.
	binanceDecimalPrecision = 8
)

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	NewOrderRespType(respType binance.NewOrderRespType) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// GetOrderService interface for querying a single order.
type GetOrderService interface {
	Symbol(symbol string) GetOrderService
	OrderID(orderID int64) GetOrderService
	Do(ctx context.Context) (*binance.Order, error)
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// ExchangeInfoService interface for loading symbol trading filters.
type ExchangeInfoService interface {
	Symbols(symbols ...string) ExchangeInfoService
	Do(ctx context.Context) (*binance.ExchangeInfo, error)
}

// BinanceClient abstracts the Binance REST client for testing.
type BinanceClient interface {
	NewCreateOrderService() CreateOrderService
	NewCancelOrderService() CancelOrderService
	NewGetOrderService() GetOrderService
	NewGetAccountService() GetAccountService
	NewExchangeInfoService() ExchangeInfoService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realBinanceClient) NewGetOrderService() GetOrderService {
	return &realGetOrderService{service: r.client.NewGetOrderService()}
}

func (r *realBinanceClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

func (r *realBinanceClient) NewExchangeInfoService() ExchangeInfoService {
	return &realExchangeInfoService{service: r.client.NewExchangeInfoService()}
}

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) NewOrderRespType(respType binance.NewOrderRespType) CreateOrderService {
	s.service = s.service.NewOrderRespType(respType)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *binance.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetOrderService struct {
	service *binance.GetOrderService
}

func (s *realGetOrderService) Symbol(symbol string) GetOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realGetOrderService) OrderID(orderID int64) GetOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realGetOrderService) Do(ctx context.Context) (*binance.Order, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *binance.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.service.Do(ctx)
}

type realExchangeInfoService struct {
	service *binance.ExchangeInfoService
}

func (s *realExchangeInfoService) Symbols(symbols ...string) ExchangeInfoService {
	s.service = s.service.Symbols(symbols...)

	return s
}

func (s *realExchangeInfoService) Do(ctx context.Context) (*binance.ExchangeInfo, error) {
	return s.service.Do(ctx)
}

// symbolLimits are the parsed trading filters of one symbol. Zero values mean
// the filter is absent.
type symbolLimits struct {
	minQty      float64
	maxQty      float64
	minPrice    float64
	maxPrice    float64
	minNotional float64
}

// pendingOrder is a working order whose fills arrive through polling.
type pendingOrder struct {
	txn      *trading.OrderTransaction
	symbol   string
	orderID  int64
	callback trading.OrderCallback

	origQty       float64
	executedQty   float64
	executedQuote float64
}

type dispatchItem struct {
	callback trading.OrderCallback
	update   types.OrderUpdate
}

// Venue is the Binance spot trading system.
type Venue struct {
	client   BinanceClient
	balances *trading.BalancesContainer
	log      *logger.Logger

	mu      sync.Mutex
	pending map[string]*pendingOrder
	limits  map[string]symbolLimits

	// Unbounded so enqueue never blocks under v.mu; dispatcher callbacks
	// re-enter venue methods that take v.mu.
	queueMu  sync.Mutex
	queueCnd *sync.Cond
	queue    []dispatchItem
	closed   bool
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Binance venue from the given credentials and starts its
// callback dispatcher. Callers must Close it when done.
func New(config BinanceConfig, log *logger.Logger) (*Venue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.UseTestnet {
		binance.UseTestnet = true
	}

	client := binance.NewClient(config.APIKey, config.SecretKey)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return newWithClient(&realBinanceClient{client: client}, log), nil
}

// newWithClient is used by tests to inject a mock client.
func newWithClient(client BinanceClient, log *logger.Logger) *Venue {
	v := &Venue{
		client:   client,
		balances: trading.NewBalancesContainer(log),
		log:      log.Named("binance_venue"),
		pending:  make(map[string]*pendingOrder),
		limits:   make(map[string]symbolLimits),
		done:     make(chan struct{}),
	}
	v.queueCnd = sync.NewCond(&v.queueMu)

	go v.dispatchLoop()

	return v
}

// Close stops the callback dispatcher after draining queued events.
func (v *Venue) Close() {
	v.stopOnce.Do(func() {
		v.queueMu.Lock()
		v.closed = true
		v.queueMu.Unlock()
		v.queueCnd.Broadcast()
	})
	<-v.done
}

func (v *Venue) dispatchLoop() {
	defer close(v.done)

	for {
		v.queueMu.Lock()
		for len(v.queue) == 0 && !v.closed {
			v.queueCnd.Wait()
		}

		if len(v.queue) == 0 {
			v.queueMu.Unlock()
			return
		}

		item := v.queue[0]
		v.queue = v.queue[1:]
		v.queueMu.Unlock()

		item.callback(item.update)
	}
}

func (v *Venue) enqueue(callback trading.OrderCallback, update types.OrderUpdate) {
	v.queueMu.Lock()
	v.queue = append(v.queue, dispatchItem{callback: callback, update: update})
	v.queueMu.Unlock()
	v.queueCnd.Signal()
}

func (v *Venue) Name() string { return "binance" }

func (v *Venue) Balances() *trading.BalancesContainer { return v.balances }

// LoadSymbolFilters fetches and caches the exchange trading filters for the
// given venue symbols. CheckOrder consults the cache.
func (v *Venue) LoadSymbolFilters(ctx context.Context, symbols ...string) error {
	info, err := v.client.NewExchangeInfoService().Symbols(symbols...).Do(ctx)
	if err != nil {
		return mapVenueError("failed to load exchange info", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range info.Symbols {
		symbol := &info.Symbols[i]
		limits := symbolLimits{}

		if lot := symbol.LotSizeFilter(); lot != nil {
			limits.minQty = parseDecimal(lot.MinQuantity)
			limits.maxQty = parseDecimal(lot.MaxQuantity)
		}

		if price := symbol.PriceFilter(); price != nil {
			limits.minPrice = parseDecimal(price.MinPrice)
			limits.maxPrice = parseDecimal(price.MaxPrice)
		}

		// Spot symbols carry the minimum notional as either MIN_NOTIONAL or
		// NOTIONAL depending on the exchange info vintage.
		for _, filter := range symbol.Filters {
			filterType, _ := filter["filterType"].(string)
			if filterType != "MIN_NOTIONAL" && filterType != "NOTIONAL" {
				continue
			}

			if raw, ok := filter["minNotional"].(string); ok {
				limits.minNotional = parseDecimal(raw)
			}
		}

		v.limits[symbol.Symbol] = limits
	}

	return nil
}

// CheckOrder verifies the request against the cached exchange filters.
// Symbols without loaded filters pass unchecked.
func (v *Venue) CheckOrder(
	sec *security.Security,
	currency string,
	qty float64,
	price optional.Option[float64],
	side types.OrderSide,
) optional.Option[types.OrderCheckError] {
	v.mu.Lock()
	limits, ok := v.limits[sec.Symbol().VenueSymbol()]
	v.mu.Unlock()

	if !ok {
		return optional.None[types.OrderCheckError]()
	}

	var violation types.OrderCheckError

	if limits.minQty > 0 && qty < limits.minQty {
		violation.Qty = optional.Some(limits.minQty)
	}

	if limits.maxQty > 0 && qty > limits.maxQty {
		violation.Qty = optional.Some(limits.maxQty)
	}

	if price.IsSome() {
		p := price.Unwrap()
		if limits.minPrice > 0 && p < limits.minPrice {
			violation.Price = optional.Some(limits.minPrice)
		}

		if limits.maxPrice > 0 && p > limits.maxPrice {
			violation.Price = optional.Some(limits.maxPrice)
		}

		if limits.minNotional > 0 && qty*p < limits.minNotional {
			violation.Volume = optional.Some(limits.minNotional)
		}
	}

	if violation.Qty.IsSome() || violation.Price.IsSome() || violation.Volume.IsSome() {
		return optional.Some(violation)
	}

	return optional.None[types.OrderCheckError]()
}

// SendOrderTransaction submits the order to Binance. Fills returned in the
// submission response are delivered immediately; a working remainder is
// tracked and completed through PollOrderUpdates.
func (v *Venue) SendOrderTransaction(
	ctx context.Context,
	sec *security.Security,
	request types.OrderRequest,
	callback trading.OrderCallback,
) (*trading.OrderTransaction, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	if violation := v.CheckOrder(sec, request.Currency, request.Quantity, request.Price, request.Side); violation.IsSome() {
		return nil, errors.Newf(errors.ErrCodeOrderCheck, "%s", violation.Unwrap().String())
	}

	venueSymbol := sec.Symbol().VenueSymbol()

	service := v.client.NewCreateOrderService().
		Symbol(venueSymbol).
		Side(mapSide(request.Side)).
		Quantity(strconv.FormatFloat(request.Quantity, 'f', binanceDecimalPrecision, 64)).
		NewOrderRespType(binance.NewOrderRespTypeFULL)

	if request.Price.IsSome() {
		service = service.
			Type(binance.OrderTypeLimit).
			Price(strconv.FormatFloat(request.Price.Unwrap(), 'f', -1, 64)).
			TimeInForce(mapTimeInForce(request.TimeInForce))
	} else {
		service = service.Type(binance.OrderTypeMarket)
	}

	resp, err := service.Do(ctx)
	if err != nil {
		return nil, mapVenueError("failed to submit order to binance", err)
	}

	txn := trading.NewOrderTransaction(v.Name(), strconv.FormatInt(resp.OrderID, 10), request)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.enqueue(callback, types.OrderUpdate{
		OrderID:      txn.ID(),
		Status:       types.OrderStatusSubmitted,
		RemainingQty: request.Quantity,
		Time:         time.UnixMilli(resp.TransactTime),
	})

	executed, executedQuote := v.enqueueResponseFills(txn, callback, resp, request.Quantity)

	status := mapOrderStatus(resp.Status)

	switch {
	case !status.IsFinal():
		v.pending[txn.ID()] = &pendingOrder{
			txn:           txn,
			symbol:        venueSymbol,
			orderID:       resp.OrderID,
			callback:      callback,
			origQty:       request.Quantity,
			executedQty:   executed,
			executedQuote: executedQuote,
		}
	case status != types.OrderStatusFilled:
		// IOC remainder expired or the venue rejected after acceptance.
		v.enqueue(callback, types.OrderUpdate{
			OrderID:      txn.ID(),
			Status:       status,
			RemainingQty: request.Quantity - executed,
			Time:         time.UnixMilli(resp.TransactTime),
		})
	}

	v.log.Info("order submitted to binance",
		zap.String("order", txn.ID()),
		zap.Int64("venue_order_id", resp.OrderID),
		zap.String("symbol", venueSymbol),
		zap.String("status", string(resp.Status)))

	return txn, nil
}

// enqueueResponseFills replays the fills of a submission response as order
// updates and returns the executed base and quote quantities.
func (v *Venue) enqueueResponseFills(
	txn *trading.OrderTransaction,
	callback trading.OrderCallback,
	resp *binance.CreateOrderResponse,
	origQty float64,
) (executed, executedQuote float64) {
	for i, fill := range resp.Fills {
		qty := parseDecimal(fill.Quantity)
		price := parseDecimal(fill.Price)
		executed += qty
		executedQuote += qty * price

		status := types.OrderStatusPartiallyFilled
		if i == len(resp.Fills)-1 && mapOrderStatus(resp.Status) == types.OrderStatusFilled {
			status = types.OrderStatusFilled
		}

		v.enqueue(callback, types.OrderUpdate{
			OrderID:      txn.ID(),
			Status:       status,
			FilledQty:    qty,
			RemainingQty: origQty - executed,
			FillPrice:    price,
			Time:         time.UnixMilli(resp.TransactTime),
		})
	}

	return executed, executedQuote
}

// SendCancelOrderTransaction cancels a working order at Binance. The
// confirmation is delivered through the order's callback.
func (v *Venue) SendCancelOrderTransaction(ctx context.Context, transaction *trading.OrderTransaction) error {
	orderID, err := strconv.ParseInt(transaction.VenueRef(), 10, 64)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeOrderUnknown, err, "bad venue order reference %q", transaction.VenueRef())
	}

	_, err = v.client.NewCancelOrderService().
		Symbol(transaction.Request().Symbol.VenueSymbol()).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return mapVenueError("failed to cancel order at binance", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	order, ok := v.pending[transaction.ID()]
	if !ok {
		return nil
	}

	delete(v.pending, transaction.ID())

	v.enqueue(order.callback, types.OrderUpdate{
		OrderID:      transaction.ID(),
		Status:       types.OrderStatusCancelled,
		RemainingQty: order.origQty - order.executedQty,
		Time:         time.Now(),
	})

	return nil
}

// PollOrderUpdates queries every working order and delivers fill increments
// and terminal states through the order callbacks. The engine calls this on a
// fixed interval.
func (v *Venue) PollOrderUpdates(ctx context.Context) error {
	v.mu.Lock()
	working := make([]*pendingOrder, 0, len(v.pending))
	for _, order := range v.pending {
		working = append(working, order)
	}
	v.mu.Unlock()

	var firstErr error

	for _, order := range working {
		if err := v.pollOrder(ctx, order); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (v *Venue) pollOrder(ctx context.Context, order *pendingOrder) error {
	state, err := v.client.NewGetOrderService().
		Symbol(order.symbol).
		OrderID(order.orderID).
		Do(ctx)
	if err != nil {
		return mapVenueError("failed to query order at binance", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.pending[order.txn.ID()]; !ok {
		return nil
	}

	executed := parseDecimal(state.ExecutedQuantity)
	executedQuote := parseDecimal(state.CummulativeQuoteQuantity)
	status := mapOrderStatus(state.Status)
	updateTime := time.UnixMilli(state.UpdateTime)

	delta := executed - order.executedQty
	if delta > 0 {
		// The REST order state only carries cumulative figures, so the
		// increment's price is the average of the new quote volume.
		fillPrice := (executedQuote - order.executedQuote) / delta
		fillStatus := types.OrderStatusPartiallyFilled
		if status == types.OrderStatusFilled {
			fillStatus = types.OrderStatusFilled
		}

		v.enqueue(order.callback, types.OrderUpdate{
			OrderID:      order.txn.ID(),
			Status:       fillStatus,
			FilledQty:    delta,
			RemainingQty: order.origQty - executed,
			FillPrice:    fillPrice,
			Time:         updateTime,
		})

		order.executedQty = executed
		order.executedQuote = executedQuote
	}

	if status.IsFinal() {
		delete(v.pending, order.txn.ID())

		if status != types.OrderStatusFilled {
			v.enqueue(order.callback, types.OrderUpdate{
				OrderID:      order.txn.ID(),
				Status:       status,
				RemainingQty: order.origQty - executed,
				Time:         updateTime,
			})
		}
	}

	return nil
}

// RefreshBalances reconciles the balances container against the Binance
// account snapshot.
func (v *Venue) RefreshBalances(ctx context.Context) error {
	account, err := v.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return mapVenueError("failed to load binance account", err)
	}

	known := make(map[string]struct{})
	for _, currency := range v.balances.Currencies() {
		known[currency] = struct{}{}
	}

	for _, balance := range account.Balances {
		free := parseDecimal(balance.Free)
		locked := parseDecimal(balance.Locked)

		// Skip the long tail of zero balances the account carries, but keep
		// zeroing out currencies we already track.
		if _, tracked := known[balance.Asset]; free != 0 || locked != 0 || tracked {
			v.balances.Set(balance.Asset, free, locked)
		}
	}

	return nil
}

func mapSide(side types.OrderSide) binance.SideType {
	if side == types.OrderSideBuy {
		return binance.SideTypeBuy
	}

	return binance.SideTypeSell
}

func mapTimeInForce(tif types.TimeInForce) binance.TimeInForceType {
	if tif == types.TimeInForceIOC {
		return binance.TimeInForceTypeIOC
	}

	return binance.TimeInForceTypeGTC
}

func mapOrderStatus(status binance.OrderStatusType) types.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return types.OrderStatusSubmitted
	case binance.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return types.OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return types.OrderStatusCancelled
	case binance.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	default:
		return types.OrderStatusError
	}
}

// mapVenueError translates Binance API errors into engine error codes. API
// errors carry a business meaning; everything else is a transport failure.
func mapVenueError(message string, err error) error {
	var apiErr *common.APIError
	if !stderrors.As(err, &apiErr) {
		return errors.Wrap(errors.ErrCodeCommunication, message, err)
	}

	switch apiErr.Code {
	case -2010: // NEW_ORDER_REJECTED, typically insufficient balance
		return errors.Wrap(errors.ErrCodeInsufficientFunds, message, err)
	case -1013: // filter failure
		return errors.Wrap(errors.ErrCodeOrderCheck, message, err)
	case -2011, -2013: // unknown order / cancel rejected
		return errors.Wrap(errors.ErrCodeOrderUnknown, message, err)
	default:
		return errors.Wrap(errors.ErrCodeOrderFailed, message, err)
	}
}

func parseDecimal(value string) float64 {
	parsed, _ := strconv.ParseFloat(value, 64)

	return parsed
}
