package module

import (
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// StopMode controls how Stop treats the strategy's open positions.
type StopMode int

const (
	// StopModeAssertNoOrders fails the stop if any position still has
	// active orders.
	StopModeAssertNoOrders StopMode = iota
	// StopModeGracefully defers the stop until every position completes.
	StopModeGracefully
	// StopModeUnconditionally stops immediately, positions or not.
	StopModeUnconditionally
)

// PositionHandle is the strategy's view of a position. The concrete type
// lives in the position package; the indirection keeps the event framework
// free of position internals.
type PositionHandle interface {
	ID() uuid.UUID
	IsCompleted() bool
	HasActiveOrders() bool
	ActiveQty() float64
	IsError() bool
	RunAlgos() error
}

// PositionUpdateHandler receives position state change notifications.
type PositionUpdateHandler interface {
	OnPositionUpdate(pos PositionHandle) error
}

// Strategy is the trading module: it consumes events, owns positions and is
// the only module kind that sends orders.
type Strategy struct {
	Consumer

	positions     []PositionHandle
	positionIndex map[uuid.UUID]PositionHandle
	pendingStop   bool
}

// NewStrategy creates a Strategy base for the given concrete module.
func NewStrategy(typeName, name, tag string, self any, log *logger.Logger) *Strategy {
	s := &Strategy{
		Consumer:      newConsumerBase(KindStrategy, typeName, name, tag, log),
		positionIndex: make(map[uuid.UUID]PositionHandle),
	}
	s.bind(self, s)

	return s
}

// AddPosition registers a position with the strategy. Idempotent.
func (s *Strategy) AddPosition(pos PositionHandle) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.positionIndex[pos.ID()]; ok {
		return
	}

	s.positions = append(s.positions, pos)
	s.positionIndex[pos.ID()] = pos
}

// RemovePosition detaches a position from the strategy.
func (s *Strategy) RemovePosition(id uuid.UUID) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.positionIndex[id]; !ok {
		return
	}

	delete(s.positionIndex, id)

	for i, pos := range s.positions {
		if pos.ID() == id {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)

			break
		}
	}
}

// Positions returns the strategy's positions in creation order.
func (s *Strategy) Positions() []PositionHandle {
	s.Lock()
	defer s.Unlock()

	result := make([]PositionHandle, len(s.positions))
	copy(result, s.positions)

	return result
}

// Block blocks the strategy until it is explicitly stopped. Blocked
// strategies drop market events but keep servicing their open positions.
func (s *Strategy) Block() {
	s.Log().Warn("strategy blocked")
	s.block.block(time.Time{})
}

// BlockFor blocks the strategy for the given duration.
func (s *Strategy) BlockFor(d time.Duration) {
	s.Log().Warn("strategy blocked temporarily", zap.Duration("for", d))
	s.block.block(time.Now().Add(d))
}

// WaitForStop parks the caller until the strategy is stopped or permanently
// blocked.
func (s *Strategy) WaitForStop() {
	s.block.waitForStop()
}

// Stop requests the strategy to stop according to the given mode.
func (s *Strategy) Stop(mode StopMode) error {
	s.Lock()
	defer s.Unlock()

	switch mode {
	case StopModeAssertNoOrders:
		for _, pos := range s.positions {
			if pos.HasActiveOrders() {
				return errors.Newf(errors.ErrCodeModuleStopFailed,
					"strategy %s has a position with active orders", s.String())
			}
		}
	case StopModeGracefully:
		if !s.allPositionsCompletedLocked() {
			s.pendingStop = true
			s.block.block(time.Time{})
			s.Log().Info("stop deferred until all positions complete")

			return nil
		}
	case StopModeUnconditionally:
	default:
		return errors.Newf(errors.ErrCodeLogic, "unknown stop mode %d", mode)
	}

	s.Log().Info("strategy stopped")
	s.block.stop()

	return nil
}

func (s *Strategy) allPositionsCompletedLocked() bool {
	for _, pos := range s.positions {
		if !pos.IsCompleted() {
			return false
		}
	}

	return true
}

// RaisePositionUpdateEvent delivers a position state change. Position events
// are never dropped by a block: a blocked strategy still has to manage what
// it already holds. A position in the error state blocks the strategy
// instead of being dispatched.
func (s *Strategy) RaisePositionUpdateEvent(pos PositionHandle) error {
	s.Lock()
	defer s.Unlock()

	if pos.IsError() {
		s.Log().Error("position entered error state, blocking strategy",
			zap.String("position", pos.ID().String()))
		s.block.block(time.Time{})

		return nil
	}

	var err error

	if handler, ok := s.self.(PositionUpdateHandler); ok {
		err = handler.OnPositionUpdate(pos)
	}

	if s.pendingStop && s.allPositionsCompletedLocked() {
		s.pendingStop = false
		s.Log().Info("all positions completed, finishing deferred stop")
		s.block.stop()
	}

	return err
}

// Market events shadow the consumer versions so position algos run after
// every update, including while the strategy is blocked.

func (s *Strategy) RaiseLevel1UpdateEvent(sec *security.Security) error {
	s.Lock()
	defer s.Unlock()

	if err := s.Consumer.RaiseLevel1UpdateEvent(sec); err != nil {
		return err
	}

	return s.runAlgosLocked()
}

func (s *Strategy) RaiseLevel1TickEvent(sec *security.Security, tick types.Level1Tick) error {
	s.Lock()
	defer s.Unlock()

	if err := s.Consumer.RaiseLevel1TickEvent(sec, tick); err != nil {
		return err
	}

	return s.runAlgosLocked()
}

func (s *Strategy) RaiseNewTradeEvent(sec *security.Security, tradeTime time.Time, price, qty float64) error {
	s.Lock()
	defer s.Unlock()

	if err := s.Consumer.RaiseNewTradeEvent(sec, tradeTime, price, qty); err != nil {
		return err
	}

	return s.runAlgosLocked()
}

func (s *Strategy) RaiseNewBarEvent(sec *security.Security, bar types.Bar) error {
	s.Lock()
	defer s.Unlock()

	if err := s.Consumer.RaiseNewBarEvent(sec, bar); err != nil {
		return err
	}

	return s.runAlgosLocked()
}

func (s *Strategy) RaiseBookUpdateEvent(sec *security.Security, book types.BookUpdate) error {
	s.Lock()
	defer s.Unlock()

	if err := s.Consumer.RaiseBookUpdateEvent(sec, book); err != nil {
		return err
	}

	return s.runAlgosLocked()
}

// RunAllAlgos runs the attached algorithms of every open position.
func (s *Strategy) RunAllAlgos() error {
	s.Lock()
	defer s.Unlock()

	return s.runAlgosLocked()
}

func (s *Strategy) runAlgosLocked() error {
	for _, pos := range s.positions {
		if pos.IsCompleted() {
			continue
		}

		if err := pos.RunAlgos(); err != nil {
			return err
		}
	}

	return nil
}
