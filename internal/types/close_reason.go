package types

// CloseReason explains why a position is being closed. The set is closed: it
// selects the applicable close order policy and decides whether a completed
// position spawns an inverted follow-up position.
type CloseReason string

const (
	CloseReasonNone         CloseReason = ""
	CloseReasonSignal       CloseReason = "signal"
	CloseReasonTakeProfit   CloseReason = "take_profit"
	CloseReasonStopLoss     CloseReason = "stop_loss"
	CloseReasonStopLimit    CloseReason = "stop_limit"
	CloseReasonTrailingStop CloseReason = "trailing_stop"
	CloseReasonRollover     CloseReason = "rollover"
	CloseReasonRequest      CloseReason = "request"
	CloseReasonEngineStop   CloseReason = "engine_stop"
	CloseReasonError        CloseReason = "error"
)

// IsPassive reports whether the reason is set passively: a passive reason
// never overrides a reason that is already pending, while an active reason
// (rollover, explicit request, engine stop, error) replaces it.
func (r CloseReason) IsPassive() bool {
	switch r {
	case CloseReasonSignal, CloseReasonTakeProfit, CloseReasonStopLoss,
		CloseReasonStopLimit, CloseReasonTrailingStop:
		return true
	case CloseReasonNone, CloseReasonRollover, CloseReasonRequest,
		CloseReasonEngineStop, CloseReasonError:
		return false
	default:
		return false
	}
}

func (r CloseReason) String() string {
	if r == CloseReasonNone {
		return "none"
	}

	return string(r)
}
