package module

import (
	"time"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// HistoryRequest lets a module ask for a historical data window when it first
// registers a security.
type HistoryRequest struct {
	// Bars is the number of historical bars requested.
	Bars int
	// Since is the earliest time data is requested from. Zero means no
	// time-based request.
	Since time.Time
}

// IsEmpty reports whether no historical data was requested.
func (r HistoryRequest) IsEmpty() bool {
	return r.Bars == 0 && r.Since.IsZero()
}

// Handler capability interfaces, one per event family. A module implements
// only the handlers for the events it subscribed to; receiving an event
// without the matching handler fails loudly with ErrCodeNotImplemented
// instead of silently dropping data.

// SecurityStartHandler is invoked on the first registration of a security.
type SecurityStartHandler interface {
	OnSecurityStart(sec *security.Security, request *HistoryRequest) error
}

// Level1UpdateHandler receives consolidated top-of-book updates.
type Level1UpdateHandler interface {
	OnLevel1Update(sec *security.Security) error
}

// Level1TickHandler receives single top-of-book value changes.
type Level1TickHandler interface {
	OnLevel1Tick(sec *security.Security, tick types.Level1Tick) error
}

// NewTradeHandler receives trade prints.
type NewTradeHandler interface {
	OnNewTrade(sec *security.Security, tradeTime time.Time, price, qty float64) error
}

// NewBarHandler receives finalized bars.
type NewBarHandler interface {
	OnNewBar(sec *security.Security, bar types.Bar) error
}

// BookUpdateHandler receives order book updates.
type BookUpdateHandler interface {
	OnBookUpdate(sec *security.Security, book types.BookUpdate) error
}

// BrokerPositionUpdateHandler receives out-of-band venue-reported position
// snapshots.
type BrokerPositionUpdateHandler interface {
	OnBrokerPositionUpdate(sec *security.Security, isLong bool, qty, volume float64, isInitial bool) error
}

// ContractSwitchHandler receives security service events such as a futures
// contract switch.
type ContractSwitchHandler interface {
	OnSecurityContractSwitched(switchTime time.Time, sec *security.Security, request *HistoryRequest) error
}

// Consumer is a module that consumes security events. It keeps a non-owning,
// idempotent registry of the securities it observes.
type Consumer struct {
	Module

	// self is the concrete module; event dispatch type-asserts the handler
	// capability interfaces against it.
	self any

	securities      map[string]*security.Security
	securityOrder   []*security.Security
	historyRequests map[string]HistoryRequest
}

// NewConsumer creates a Consumer base for the given concrete module.
func NewConsumer(typeName, name, tag string, self any, log *logger.Logger) *Consumer {
	c := &Consumer{}
	*c = newConsumerBase(KindConsumer, typeName, name, tag, log)
	c.bind(self, c)

	return c
}

func newConsumerBase(kind Kind, typeName, name, tag string, log *logger.Logger) Consumer {
	return Consumer{
		Module:          newModule(kind, typeName, name, tag, log),
		securities:      make(map[string]*security.Security),
		historyRequests: make(map[string]HistoryRequest),
	}
}

// bind attaches the concrete module. fallback is used when the concrete
// module is nil (base-only construction in tests).
func (c *Consumer) bind(self, fallback any) {
	if self == nil {
		self = fallback
	}

	c.self = self
}

// RegisterSource registers a security with the module. Registration is
// idempotent; the first registration invokes OnSecurityStart so the module
// can request a historical data window.
func (c *Consumer) RegisterSource(sec *security.Security) error {
	c.Lock()
	defer c.Unlock()

	key := sec.String()
	if _, ok := c.securities[key]; ok {
		return nil
	}

	c.securities[key] = sec
	c.securityOrder = append(c.securityOrder, sec)

	var request HistoryRequest
	if handler, ok := c.self.(SecurityStartHandler); ok {
		if err := handler.OnSecurityStart(sec, &request); err != nil {
			return err
		}
	}

	if !request.IsEmpty() {
		c.historyRequests[key] = request
	}

	return nil
}

// Securities returns the registered securities in registration order.
func (c *Consumer) Securities() []*security.Security {
	c.Lock()
	defer c.Unlock()

	result := make([]*security.Security, len(c.securityOrder))
	copy(result, c.securityOrder)

	return result
}

// HistoryRequest returns the historical window requested for a security at
// registration time, if any.
func (c *Consumer) HistoryRequest(sec *security.Security) (HistoryRequest, bool) {
	c.Lock()
	defer c.Unlock()

	request, ok := c.historyRequests[sec.String()]

	return request, ok
}

func (c *Consumer) notImplemented(event string) error {
	c.Log().Error("module subscribed to an event it cannot handle",
		zap.String("event", event))

	return errors.Newf(errors.ErrCodeNotImplemented,
		"module %s subscribed to %s but does not implement the handler", c.String(), event)
}

// RaiseLevel1UpdateEvent delivers a consolidated top-of-book update.
func (c *Consumer) RaiseLevel1UpdateEvent(sec *security.Security) error {
	c.Lock()
	defer c.Unlock()

	if c.IsBlocked() {
		c.logBlockedDrop("level 1 update")

		return nil
	}

	handler, ok := c.self.(Level1UpdateHandler)
	if !ok {
		return c.notImplemented("level 1 updates")
	}

	return handler.OnLevel1Update(sec)
}

// RaiseLevel1TickEvent delivers a single top-of-book value change.
func (c *Consumer) RaiseLevel1TickEvent(sec *security.Security, tick types.Level1Tick) error {
	c.Lock()
	defer c.Unlock()

	if c.IsBlocked() {
		c.logBlockedDrop("level 1 tick")

		return nil
	}

	handler, ok := c.self.(Level1TickHandler)
	if !ok {
		return c.notImplemented("level 1 ticks")
	}

	return handler.OnLevel1Tick(sec, tick)
}

// RaiseNewTradeEvent delivers a trade print.
func (c *Consumer) RaiseNewTradeEvent(sec *security.Security, tradeTime time.Time, price, qty float64) error {
	c.Lock()
	defer c.Unlock()

	if c.IsBlocked() {
		c.logBlockedDrop("new trade")

		return nil
	}

	handler, ok := c.self.(NewTradeHandler)
	if !ok {
		return c.notImplemented("new trades")
	}

	return handler.OnNewTrade(sec, tradeTime, price, qty)
}

// RaiseNewBarEvent delivers a finalized bar.
func (c *Consumer) RaiseNewBarEvent(sec *security.Security, bar types.Bar) error {
	c.Lock()
	defer c.Unlock()

	if c.IsBlocked() {
		c.logBlockedDrop("new bar")

		return nil
	}

	handler, ok := c.self.(NewBarHandler)
	if !ok {
		return c.notImplemented("new bars")
	}

	return handler.OnNewBar(sec, bar)
}

// RaiseBookUpdateEvent delivers an order book update.
func (c *Consumer) RaiseBookUpdateEvent(sec *security.Security, book types.BookUpdate) error {
	c.Lock()
	defer c.Unlock()

	if c.IsBlocked() {
		c.logBlockedDrop("book update")

		return nil
	}

	handler, ok := c.self.(BookUpdateHandler)
	if !ok {
		return c.notImplemented("book updates")
	}

	return handler.OnBookUpdate(sec, book)
}

// RaiseBrokerPositionUpdateEvent delivers a venue-reported position snapshot.
func (c *Consumer) RaiseBrokerPositionUpdateEvent(sec *security.Security, isLong bool, qty, volume float64, isInitial bool) error {
	c.Lock()
	defer c.Unlock()

	if c.IsBlocked() {
		c.logBlockedDrop("broker position update")

		return nil
	}

	handler, ok := c.self.(BrokerPositionUpdateHandler)
	if !ok {
		return c.notImplemented("broker position updates")
	}

	return handler.OnBrokerPositionUpdate(sec, isLong, qty, volume, isInitial)
}

// RaiseServiceStartEvent notifies the module that it has been registered as
// a subscriber of the given service. Modules without a ServiceStartHandler
// skip the notification.
func (c *Consumer) RaiseServiceStartEvent(svc *Service) error {
	c.Lock()
	defer c.Unlock()

	handler, ok := c.self.(ServiceStartHandler)
	if !ok {
		return nil
	}

	return handler.OnServiceStart(svc)
}

// RaiseServiceDataUpdateEvent delivers a data update from a subscribed
// service.
func (c *Consumer) RaiseServiceDataUpdateEvent(svc *Service) error {
	c.Lock()
	defer c.Unlock()

	if c.IsBlocked() {
		c.logBlockedDrop("service data update")

		return nil
	}

	handler, ok := c.self.(ServiceDataUpdateHandler)
	if !ok {
		return c.notImplemented("service data updates")
	}

	_, err := handler.OnServiceDataUpdate(svc)

	return err
}

// RaiseSecurityContractSwitchedEvent delivers a contract switch event.
func (c *Consumer) RaiseSecurityContractSwitchedEvent(switchTime time.Time, sec *security.Security) error {
	c.Lock()
	defer c.Unlock()

	if c.IsBlocked() {
		c.logBlockedDrop("contract switch")

		return nil
	}

	handler, ok := c.self.(ContractSwitchHandler)
	if !ok {
		return c.notImplemented("contract switch events")
	}

	var request HistoryRequest
	if err := handler.OnSecurityContractSwitched(switchTime, sec, &request); err != nil {
		return err
	}

	if !request.IsEmpty() {
		c.historyRequests[sec.String()] = request
	}

	return nil
}
