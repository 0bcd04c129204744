package algo

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/position"
	"go.uber.org/zap"
)

// InactivityWatchParams configures the no-progress watchdog.
type InactivityWatchParams struct {
	// Timeout is how long a working order may go without any order event
	// before the position is flagged inactive.
	Timeout time.Duration
}

// InactivityWatch flags a position whose working order has made no progress
// for too long. Inactive is a condition, not a terminal state: the venue's
// next order event clears it, and the owning strategy decides whether to
// block or replace the order.
type InactivityWatch struct {
	stopOrder
	params InactivityWatchParams

	// now is replaceable by tests.
	now func() time.Time
}

// NewInactivityWatch creates the watchdog and attaches it to the position.
func NewInactivityWatch(
	params InactivityWatchParams,
	pos *position.Position,
	controller *position.Controller,
) *InactivityWatch {
	w := &InactivityWatch{
		stopOrder: newStopOrder("inactivity_watch", pos, controller),
		params:    params,
		now:       time.Now,
	}
	pos.AttachAlgo(w)

	return w
}

func (w *InactivityWatch) Name() string { return "inactivity watch" }

func (w *InactivityWatch) Run(ctx context.Context) error {
	if w.position.IsCompleted() || w.position.IsError() || w.position.IsInactive() {
		return nil
	}

	if !w.position.HasActiveOrders() {
		return nil
	}

	last := w.position.LastUpdateTime()
	if last.IsZero() {
		last = w.position.OpenStartTime()
	}

	if last.IsZero() || w.now().Sub(last) < w.params.Timeout {
		return nil
	}

	w.log.Warn("position made no progress, flagging inactive",
		zap.String("position", w.position.ID().String()),
		zap.Time("lastEvent", last),
		zap.Duration("timeout", w.params.Timeout))

	w.position.MarkInactive()

	return nil
}
