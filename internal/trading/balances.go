package trading

import (
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"go.uber.org/zap"
)

// Balance is the venue-reported funds for one currency.
type Balance struct {
	Available float64
	Locked    float64
}

// BalancesContainer holds per-currency balances for one venue. Strategies
// read it concurrently while routing orders; only the owning venue's
// reconciliation logic mutates it.
type BalancesContainer struct {
	log *logger.Logger

	mu       sync.RWMutex
	balances map[string]Balance
}

// NewBalancesContainer creates an empty container logging changes to log.
func NewBalancesContainer(log *logger.Logger) *BalancesContainer {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BalancesContainer{
		log:      log,
		balances: make(map[string]Balance),
	}
}

// GetAvailableToTrade returns the funds available for new orders in the given
// currency. Unknown currencies report zero.
func (c *BalancesContainer) GetAvailableToTrade(currency string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.balances[currency].Available
}

// Get returns the full balance for the given currency.
func (c *BalancesContainer) Get(currency string) Balance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.balances[currency]
}

// Set replaces the balance for a currency. Called by the venue's
// reconciliation logic on every balance snapshot.
func (c *BalancesContainer) Set(currency string, available, locked float64) {
	c.mu.Lock()
	prev, known := c.balances[currency]
	c.balances[currency] = Balance{Available: available, Locked: locked}
	c.mu.Unlock()

	if !known || prev.Available != available || prev.Locked != locked {
		c.log.Debug("balance updated",
			zap.String("currency", currency),
			zap.Float64("available", available),
			zap.Float64("locked", locked))
	}
}

// Modify applies a delta to a currency balance. Used by venues that report
// incremental changes instead of snapshots.
func (c *BalancesContainer) Modify(currency string, availableDelta, lockedDelta float64) {
	c.mu.Lock()
	balance := c.balances[currency]
	balance.Available += availableDelta
	balance.Locked += lockedDelta
	c.balances[currency] = balance
	c.mu.Unlock()

	c.log.Debug("balance modified",
		zap.String("currency", currency),
		zap.Float64("available_delta", availableDelta),
		zap.Float64("locked_delta", lockedDelta))
}

// Currencies returns the currencies known to the container.
func (c *BalancesContainer) Currencies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	currencies := make([]string, 0, len(c.balances))
	for currency := range c.balances {
		currencies = append(currencies, currency)
	}

	return currencies
}
