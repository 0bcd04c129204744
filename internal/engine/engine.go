// Package engine wires the configured market data source, trading venue, and
// strategies into a running process. Market data events fan out to the paper
// venue first (so resting orders match before strategies see the update) and
// then to every strategy registered on the updated security.
package engine

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-engine/internal/config"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/marketdata"
	"github.com/rxtech-lab/argo-engine/internal/module"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/trading/paper"
	tradingprovider "github.com/rxtech-lab/argo-engine/internal/trading/provider"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

const serverShutdownTimeout = 5 * time.Second

// marketSubscriber is the slice of the strategy surface the engine fans
// market data events into.
type marketSubscriber interface {
	String() string
	RaiseLevel1UpdateEvent(sec *security.Security) error
	RaiseNewBarEvent(sec *security.Security, bar types.Bar) error
	RaiseNewTradeEvent(sec *security.Security, tradeTime time.Time, price, qty float64) error
}

// Engine owns the wired components for one process.
type Engine struct {
	config *config.Config
	log    *logger.Logger

	source       *marketdata.BinanceSource
	venue        trading.TradingSystem
	paperVenue   *paper.Venue
	binanceVenue *tradingprovider.Venue

	securities  map[string]*security.Security
	strategies  []*module.Strategy
	subscribers map[*security.Security][]marketSubscriber

	server *http.Server
}

// New builds an engine from configuration: venue, market data source, one
// security per configured symbol, and one strategy instance per strategies
// entry.
func New(cfg *config.Config, registry *Registry, log *logger.Logger) (*Engine, error) {
	e := &Engine{
		config:      cfg,
		log:         log.Named("engine"),
		securities:  make(map[string]*security.Security),
		subscribers: make(map[*security.Security][]marketSubscriber),
	}

	if err := e.buildVenue(); err != nil {
		return nil, err
	}

	e.source = marketdata.NewBinanceSource(marketdata.BinanceSourceConfig{
		StreamURL:     cfg.MarketData.StreamURL,
		KlineInterval: cfg.MarketData.KlineInterval,
	}, &eventSink{engine: e}, log)

	for _, raw := range cfg.MarketData.Symbols {
		symbol := types.ParseSymbol(raw)

		sec, err := e.source.CreateNewSecurityObject(symbol)
		if err != nil {
			e.closeVenue()

			return nil, err
		}

		e.securities[raw] = sec
	}

	if err := e.buildStrategies(registry, log); err != nil {
		e.closeVenue()

		return nil, err
	}

	if cfg.Server.Listen != "" {
		e.server = &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           e.newRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return e, nil
}

func (e *Engine) buildVenue() error {
	switch e.config.Trading.Venue {
	case "paper":
		e.paperVenue = paper.New(e.config.Trading.Paper, e.log)
		e.venue = e.paperVenue
	case "binance":
		venue, err := tradingprovider.New(e.config.Trading.Binance, e.log)
		if err != nil {
			return err
		}

		e.binanceVenue = venue
		e.venue = venue
	default:
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown trading venue %q", e.config.Trading.Venue)
	}

	return nil
}

func (e *Engine) closeVenue() {
	if e.paperVenue != nil {
		e.paperVenue.Close()
	}

	if e.binanceVenue != nil {
		e.binanceVenue.Close()
	}
}

func (e *Engine) buildStrategies(registry *Registry, log *logger.Logger) error {
	for _, sc := range e.config.Strategies {
		factory, ok := registry.lookup(sc.Name)
		if !ok {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "strategy %q is not registered", sc.Name)
		}

		strat, err := factory(StrategyContext{
			Name:          sc.Name,
			Tag:           sc.Tag,
			Params:        sc.Params,
			Log:           log,
			TradingSystem: e.venue,
		})
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to build strategy %q", sc.Name)
		}

		for _, raw := range sc.Symbols {
			sec, ok := e.securities[raw]
			if !ok {
				return errors.Newf(errors.ErrCodeInvalidConfiguration,
					"strategy %q trades %s which is not listed under market_data.symbols", sc.Name, raw)
			}

			if err := strat.RegisterSource(sec); err != nil {
				return err
			}

			e.subscribers[sec] = append(e.subscribers[sec], strat)
		}

		e.strategies = append(e.strategies, strat)
	}

	return nil
}

// Strategies returns the wired strategy instances.
func (e *Engine) Strategies() []*module.Strategy { return e.strategies }

// Venue returns the wired trading system.
func (e *Engine) Venue() trading.TradingSystem { return e.venue }

// Run starts the market data stream, venue housekeeping, and the status
// server, then blocks until ctx is canceled or the stream fails fatally.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if e.binanceVenue != nil {
		if err := e.prepareBinance(runCtx); err != nil {
			return err
		}
	}

	streamErr := make(chan error, 1)
	go func() { streamErr <- e.source.SubscribeToSecurities(runCtx) }()

	if e.server != nil {
		go func() {
			e.log.Info("status server listening", zap.String("addr", e.server.Addr))

			if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				e.log.Error("status server failed", zap.Error(err))
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-streamErr:
		if err != nil && ctx.Err() == nil {
			runErr = err
		}
	}

	e.shutdown()

	return runErr
}

// prepareBinance loads exchange filters, reconciles balances, and starts the
// polling loops the REST venue needs.
func (e *Engine) prepareBinance(ctx context.Context) error {
	symbols := make([]string, 0, len(e.securities))
	for _, sec := range e.securities {
		symbols = append(symbols, sec.Symbol().VenueSymbol())
	}

	if err := e.binanceVenue.LoadSymbolFilters(ctx, symbols...); err != nil {
		return err
	}

	if err := e.binanceVenue.RefreshBalances(ctx); err != nil {
		return err
	}

	go e.pollLoop(ctx, e.config.Trading.OrderPollInterval.Std(), func() {
		if err := e.binanceVenue.PollOrderUpdates(ctx); err != nil {
			e.log.Warn("order poll failed", zap.Error(err))
		}
	})

	go e.pollLoop(ctx, e.config.Trading.BalanceRefreshInterval.Std(), func() {
		if err := e.binanceVenue.RefreshBalances(ctx); err != nil {
			e.log.Warn("balance refresh failed", zap.Error(err))
		}
	})

	return nil
}

func (e *Engine) pollLoop(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (e *Engine) shutdown() {
	if e.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()

		if err := e.server.Shutdown(shutdownCtx); err != nil {
			e.log.Warn("status server shutdown failed", zap.Error(err))
		}
	}

	for _, strat := range e.strategies {
		if err := strat.Stop(module.StopModeUnconditionally); err != nil {
			e.log.Error("strategy stop failed", zap.String("strategy", strat.String()), zap.Error(err))
		}
	}

	e.closeVenue()
	e.log.Info("engine stopped")
}

// eventSink fans market data events into the paper venue book and the
// subscribed strategies. A failing strategy only loses its own event.
type eventSink struct {
	engine *Engine
}

func (s *eventSink) PublishLevel1Update(sec *security.Security) {
	if s.engine.paperVenue != nil {
		s.engine.paperVenue.OnLevel1Update(sec)
	}

	for _, sub := range s.engine.subscribers[sec] {
		if err := sub.RaiseLevel1UpdateEvent(sec); err != nil {
			s.engine.logEventError("level1 update", sub, err)
		}
	}
}

func (s *eventSink) PublishNewBar(sec *security.Security, bar types.Bar) {
	for _, sub := range s.engine.subscribers[sec] {
		if err := sub.RaiseNewBarEvent(sec, bar); err != nil {
			s.engine.logEventError("new bar", sub, err)
		}
	}
}

func (s *eventSink) PublishNewTrade(sec *security.Security, tradeTime time.Time, price, qty float64) {
	for _, sub := range s.engine.subscribers[sec] {
		if err := sub.RaiseNewTradeEvent(sec, tradeTime, price, qty); err != nil {
			s.engine.logEventError("new trade", sub, err)
		}
	}
}

func (e *Engine) logEventError(event string, sub marketSubscriber, err error) {
	e.log.Error("event dispatch failed",
		zap.String("event", event),
		zap.String("module", sub.String()),
		zap.Error(err))
}
