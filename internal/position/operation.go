package position

import (
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-engine/internal/security"
)

// Operation is a strategy-supplied description of one trading decision:
// side, quantity, the order policies to open and close with, the stop
// algorithms to attach, and the predicate deciding when the position should
// be closed. Operations are immutable except for HasCloseSignal, which is
// re-evaluated on every update. One Operation may be shared by a position
// and its inverted successor.
type Operation interface {
	ID() uuid.UUID
	GetOpenOrderPolicy(pos *Position) OrderPolicy
	GetCloseOrderPolicy(pos *Position) OrderPolicy
	GetPlannedQty(sec *security.Security) float64
	IsLong(sec *security.Security) bool
	// HasCloseSignal is the operation's close predicate, re-evaluated on
	// every signal while a position is live.
	HasCloseSignal(pos *Position) bool
	// GetInvertedOperation returns the operation for a follow-up position on
	// the opposite side, or false if a completed close should not invert.
	GetInvertedOperation(pos *Position) (Operation, bool)
	// Setup attaches the operation's stop algorithms to a freshly created
	// position. It runs before the first order is submitted.
	Setup(pos *Position, controller *Controller)
}

// BasicOperation is a ready-made Operation for strategies that do not need
// custom behavior. The zero value is not usable; fill in the policies and
// quantity.
type BasicOperation struct {
	OperationID   uuid.UUID
	OpenPolicy    OrderPolicy
	ClosePolicy   OrderPolicy
	Qty           float64
	Long          bool
	CloseSignal   func(pos *Position) bool
	Inversion     func(pos *Position) (Operation, bool)
	SetupPosition func(pos *Position, controller *Controller)
}

// NewBasicOperation creates a market-side-agnostic operation with a fresh
// id.
func NewBasicOperation(openPolicy, closePolicy OrderPolicy, qty float64, long bool) *BasicOperation {
	return &BasicOperation{
		OperationID: uuid.New(),
		OpenPolicy:  openPolicy,
		ClosePolicy: closePolicy,
		Qty:         qty,
		Long:        long,
	}
}

func (o *BasicOperation) ID() uuid.UUID { return o.OperationID }

func (o *BasicOperation) GetOpenOrderPolicy(*Position) OrderPolicy { return o.OpenPolicy }

func (o *BasicOperation) GetCloseOrderPolicy(*Position) OrderPolicy { return o.ClosePolicy }

func (o *BasicOperation) GetPlannedQty(*security.Security) float64 { return o.Qty }

func (o *BasicOperation) IsLong(*security.Security) bool { return o.Long }

func (o *BasicOperation) HasCloseSignal(pos *Position) bool {
	if o.CloseSignal == nil {
		return false
	}

	return o.CloseSignal(pos)
}

func (o *BasicOperation) GetInvertedOperation(pos *Position) (Operation, bool) {
	if o.Inversion == nil {
		return nil, false
	}

	return o.Inversion(pos)
}

func (o *BasicOperation) Setup(pos *Position, controller *Controller) {
	if o.SetupPosition != nil {
		o.SetupPosition(pos, controller)
	}
}
