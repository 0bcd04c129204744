// Package strategies holds the built-in strategies registered by the engine
// entrypoint.
package strategies

import (
	"context"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-engine/internal/algo"
	"github.com/rxtech-lab/argo-engine/internal/config"
	"github.com/rxtech-lab/argo-engine/internal/engine"
	"github.com/rxtech-lab/argo-engine/internal/module"
	"github.com/rxtech-lab/argo-engine/internal/position"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// TrendParams configures the channel-breakout trend strategy.
type TrendParams struct {
	// Quantity is the position size per signal.
	Quantity float64 `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	// Window is how many closed bars form the breakout channel.
	Window int `yaml:"window" json:"window" validate:"gte=2"`
	// MaxLossPerLot arms a stop loss when positive.
	MaxLossPerLot float64 `yaml:"max_loss_per_lot" json:"max_loss_per_lot" validate:"gte=0"`
	// ProfitToActivatePerLot and TrailingOffsetPerLot arm a trailing take
	// profit when the offset is positive.
	ProfitToActivatePerLot float64 `yaml:"profit_to_activate_per_lot" json:"profit_to_activate_per_lot" validate:"gte=0"`
	TrailingOffsetPerLot   float64 `yaml:"trailing_offset_per_lot" json:"trailing_offset_per_lot" validate:"gte=0"`
	// OrderTimeout arms the no-progress watchdog when positive.
	OrderTimeout config.Duration `yaml:"order_timeout" json:"order_timeout"`
}

const defaultTrendWindow = 20

func parseTrendParams(raw map[string]any) (TrendParams, error) {
	params := TrendParams{Window: defaultTrendWindow}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return params, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to encode trend params", err)
	}

	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse trend params", err)
	}

	if err := validator.New().Struct(&params); err != nil {
		return params, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid trend params", err)
	}

	return params, nil
}

// TrendStrategy goes long on an upside breakout of the recent close channel
// and exits on a downside breakdown or through its protective stops.
type TrendStrategy struct {
	*module.Strategy

	controller *position.Controller
	venue      trading.TradingSystem
	params     TrendParams

	closes     map[string][]float64
	operations map[string]*position.BasicOperation
}

// NewTrendStrategy is the engine factory for the "trend" strategy.
func NewTrendStrategy(ctx engine.StrategyContext) (*module.Strategy, error) {
	s, err := newTrend(ctx)
	if err != nil {
		return nil, err
	}

	return s.Strategy, nil
}

func newTrend(ctx engine.StrategyContext) (*TrendStrategy, error) {
	params, err := parseTrendParams(ctx.Params)
	if err != nil {
		return nil, err
	}

	s := &TrendStrategy{
		venue:      ctx.TradingSystem,
		params:     params,
		closes:     make(map[string][]float64),
		operations: make(map[string]*position.BasicOperation),
	}

	s.Strategy = module.NewStrategy("strategy", ctx.Name, ctx.Tag, s, ctx.Log)
	s.controller = position.NewController(s.Strategy)

	return s, nil
}

// Controller exposes the position controller for inspection.
func (s *TrendStrategy) Controller() *position.Controller { return s.controller }

func (s *TrendStrategy) OnSecurityStart(sec *security.Security, request *module.HistoryRequest) error {
	request.Bars = s.params.Window

	return nil
}

// OnLevel1Update and OnNewTrade accept the stream so the attached stop
// algorithms run after every price update; entries and exits are decided on
// closed bars only.
func (s *TrendStrategy) OnLevel1Update(sec *security.Security) error { return nil }

func (s *TrendStrategy) OnNewTrade(sec *security.Security, tradeTime time.Time, price, qty float64) error {
	return nil
}

func (s *TrendStrategy) OnNewBar(sec *security.Security, bar types.Bar) error {
	key := sec.String()

	window := append(s.closes[key], bar.Close)
	if len(window) > s.params.Window+1 {
		window = window[1:]
	}

	s.closes[key] = window

	if len(window) < s.params.Window+1 {
		return nil
	}

	ctx := context.Background()
	op := s.operationFor(sec)

	if s.controller.LivePosition(sec) != nil {
		// Only the close predicate can fire here.
		_, err := s.controller.OnSignal(ctx, op, sec, s.venue)

		return err
	}

	if s.isBreakout(window) {
		_, err := s.controller.OnSignal(ctx, op, sec, s.venue)

		return err
	}

	return nil
}

func (s *TrendStrategy) OnPositionUpdate(handle module.PositionHandle) error {
	pos, ok := handle.(*position.Position)
	if !ok {
		return errors.New(errors.ErrCodeLogic, "unexpected position handle type")
	}

	return s.controller.OnPositionUpdate(context.Background(), pos)
}

func (s *TrendStrategy) operationFor(sec *security.Security) *position.BasicOperation {
	key := sec.String()
	if op, ok := s.operations[key]; ok {
		return op
	}

	op := position.NewBasicOperation(
		algo.LimitIOCOrderPolicy{},
		algo.LimitGTCOrderPolicy{},
		s.params.Quantity,
		true,
	)

	op.CloseSignal = func(pos *position.Position) bool {
		return s.isBreakdown(s.closes[key])
	}

	op.SetupPosition = func(pos *position.Position, controller *position.Controller) {
		if s.params.MaxLossPerLot > 0 {
			algo.NewStopLoss(algo.StopLossParams{MaxLossPerLot: s.params.MaxLossPerLot}, pos, controller)
		}

		if s.params.TrailingOffsetPerLot > 0 {
			algo.NewTakeProfit(algo.TakeProfitParams{
				MinProfitPerLotToActivate: s.params.ProfitToActivatePerLot,
				TrailingOffsetPerLot:      s.params.TrailingOffsetPerLot,
			}, pos, controller)
		}

		if s.params.OrderTimeout > 0 {
			algo.NewInactivityWatch(algo.InactivityWatchParams{
				Timeout: s.params.OrderTimeout.Std(),
			}, pos, controller)
		}
	}

	s.operations[key] = op

	return op
}

// isBreakout reports whether the latest close exceeds every close of the
// preceding window.
func (s *TrendStrategy) isBreakout(window []float64) bool {
	last := window[len(window)-1]
	for _, close := range window[:len(window)-1] {
		if last <= close {
			return false
		}
	}

	return true
}

// isBreakdown reports whether the latest close undercuts every close of the
// preceding window.
func (s *TrendStrategy) isBreakdown(window []float64) bool {
	if len(window) < 2 {
		return false
	}

	last := window[len(window)-1]
	for _, close := range window[:len(window)-1] {
		if last >= close {
			return false
		}
	}

	return true
}

// Register adds the built-in strategies to the registry.
func Register(registry *engine.Registry) error {
	return registry.Register("trend", NewTrendStrategy)
}
