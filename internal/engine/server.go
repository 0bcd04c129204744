package engine

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type securityStatus struct {
	Symbol    string  `json:"symbol"`
	Source    string  `json:"source"`
	Online    bool    `json:"online"`
	BidPrice  float64 `json:"bid_price"`
	AskPrice  float64 `json:"ask_price"`
	LastPrice float64 `json:"last_price"`
}

type balanceStatus struct {
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
}

type positionStatus struct {
	ID              string  `json:"id"`
	ActiveQty       float64 `json:"active_qty"`
	HasActiveOrders bool    `json:"has_active_orders"`
	Completed       bool    `json:"completed"`
	Error           bool    `json:"error"`
}

type strategyStatus struct {
	Strategy  string           `json:"strategy"`
	Blocked   bool             `json:"blocked"`
	Positions []positionStatus `json:"positions"`
}

// newRouter builds the status HTTP API.
func (e *Engine) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", e.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/securities", e.handleSecurities).Methods(http.MethodGet)
	router.HandleFunc("/balances", e.handleBalances).Methods(http.MethodGet)
	router.HandleFunc("/positions", e.handlePositions).Methods(http.MethodGet)

	return router
}

func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	e.writeJSON(w, map[string]string{"status": "ok", "venue": e.venue.Name()})
}

func (e *Engine) handleSecurities(w http.ResponseWriter, r *http.Request) {
	result := make([]securityStatus, 0, len(e.securities))

	for _, sec := range e.securities {
		level1 := sec.Level1()
		result = append(result, securityStatus{
			Symbol:    sec.Symbol().String(),
			Source:    sec.Source(),
			Online:    sec.IsOnline(),
			BidPrice:  level1.BidPrice,
			AskPrice:  level1.AskPrice,
			LastPrice: level1.LastPrice,
		})
	}

	e.writeJSON(w, result)
}

func (e *Engine) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances := e.venue.Balances()
	result := make(map[string]balanceStatus)

	for _, currency := range balances.Currencies() {
		balance := balances.Get(currency)
		result[currency] = balanceStatus{Available: balance.Available, Locked: balance.Locked}
	}

	e.writeJSON(w, result)
}

func (e *Engine) handlePositions(w http.ResponseWriter, r *http.Request) {
	result := make([]strategyStatus, 0, len(e.strategies))

	for _, strat := range e.strategies {
		status := strategyStatus{
			Strategy:  strat.String(),
			Blocked:   strat.IsBlocked(),
			Positions: []positionStatus{},
		}

		for _, pos := range strat.Positions() {
			status.Positions = append(status.Positions, positionStatus{
				ID:              pos.ID().String(),
				ActiveQty:       pos.ActiveQty(),
				HasActiveOrders: pos.HasActiveOrders(),
				Completed:       pos.IsCompleted(),
				Error:           pos.IsError(),
			})
		}

		result = append(result, status)
	}

	e.writeJSON(w, result)
}

func (e *Engine) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		e.log.Error("failed to encode status response", zap.Error(err))
	}
}
