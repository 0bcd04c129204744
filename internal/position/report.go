package position

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReportEntry is the immutable record of one completed position.
type ReportEntry struct {
	PositionID    uuid.UUID
	OperationID   uuid.UUID
	Security      string
	Type          types.PositionType
	OpenedQty     float64
	ClosedQty     float64
	OpenAvgPrice  float64
	CloseAvgPrice float64
	Pnl           float64
	IsProfit      bool
	CloseReason   types.CloseReason
	OpenTime      time.Time
	CloseTime     time.Time
}

// Report accumulates completed positions for end-of-run accounting.
type Report struct {
	mu      sync.Mutex
	entries []ReportEntry
	log     *logger.Logger
}

// NewReport creates an empty report.
func NewReport(log *logger.Logger) *Report {
	return &Report{log: log.Named("report")}
}

// Append records a completed position.
func (r *Report) Append(pos *Position) {
	entry := ReportEntry{
		PositionID:    pos.ID(),
		OperationID:   pos.Operation().ID(),
		Security:      pos.Security().String(),
		Type:          pos.Type(),
		OpenedQty:     pos.OpenedQty(),
		ClosedQty:     pos.ClosedQty(),
		OpenAvgPrice:  pos.OpenAvgPrice(),
		CloseAvgPrice: pos.CloseAvgPrice(),
		Pnl:           pos.RealizedPnl(),
		IsProfit:      pos.IsProfit(),
		CloseReason:   pos.CloseReason(),
		OpenTime:      pos.OpenTime(),
		CloseTime:     pos.CloseTime(),
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	r.log.Info("position closed",
		zap.String("position", entry.PositionID.String()),
		zap.String("security", entry.Security),
		zap.Float64("pnl", entry.Pnl),
		zap.String("reason", entry.CloseReason.String()))
}

// Entries returns a snapshot of the recorded entries.
func (r *Report) Entries() []ReportEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]ReportEntry, len(r.entries))
	copy(result, r.entries)

	return result
}

// TotalPnl sums realized profit across all recorded positions. Sums are
// accumulated in decimals so long runs do not drift.
func (r *Report) TotalPnl() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := decimal.Zero
	for _, entry := range r.entries {
		total = total.Add(decimal.NewFromFloat(entry.Pnl))
	}

	return total.InexactFloat64()
}

// Summary aggregates the recorded positions for end-of-run accounting.
type Summary struct {
	Positions    int
	Wins         int
	Losses       int
	TotalPnl     float64
	GrossProfit  float64
	GrossLoss    float64
	WinRate      float64
	ProfitFactor float64
}

// Summarize computes aggregate statistics across the recorded positions.
func (r *Report) Summarize() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := Summary{Positions: len(r.entries)}
	grossProfit, grossLoss := decimal.Zero, decimal.Zero

	for _, entry := range r.entries {
		pnl := decimal.NewFromFloat(entry.Pnl)
		if entry.IsProfit {
			summary.Wins++
			grossProfit = grossProfit.Add(pnl)
		} else {
			summary.Losses++
			grossLoss = grossLoss.Sub(pnl)
		}
	}

	summary.GrossProfit = grossProfit.InexactFloat64()
	summary.GrossLoss = grossLoss.InexactFloat64()
	summary.TotalPnl = grossProfit.Sub(grossLoss).InexactFloat64()

	if summary.Positions > 0 {
		summary.WinRate = float64(summary.Wins) / float64(summary.Positions)
	}

	if grossLoss.IsPositive() {
		summary.ProfitFactor = grossProfit.Div(grossLoss).InexactFloat64()
	}

	return summary
}

// ReportStop logs loudly if positions remain when an unconditional stop is
// requested.
func (r *Report) ReportStop(open int) {
	if open > 0 {
		r.log.Error("stopping with positions still open", zap.Int("open", open))
	}
}
