// Package marketdata defines the market data source contract and the
// websocket transport shared by venue-specific feeds.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/security"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// EventSink receives the market events produced by a source. The engine
// implements it by fanning events out to the modules registered for each
// security.
type EventSink interface {
	PublishLevel1Update(sec *security.Security)
	PublishNewBar(sec *security.Security, bar types.Bar)
	PublishNewTrade(sec *security.Security, tradeTime time.Time, price, qty float64)
}

// Source is a venue-specific market data feed.
type Source interface {
	// Name returns the source name, used as the security's source tag.
	Name() string
	// CreateNewSecurityObject registers a symbol with the source. At most one
	// security may exist per symbol per source.
	CreateNewSecurityObject(symbol types.Symbol) (*security.Security, error)
	// SubscribeToSecurities starts the feed for every registered security and
	// blocks until ctx is canceled.
	SubscribeToSecurities(ctx context.Context) error
}

// SecuritySet is the registry embedded by concrete sources: it enforces the
// one-security-per-symbol rule and hands out stable references.
type SecuritySet struct {
	mu         sync.Mutex
	source     string
	priceScale int
	securities map[string]*security.Security
}

// NewSecuritySet creates a registry for the named source.
func NewSecuritySet(source string, priceScale int) *SecuritySet {
	return &SecuritySet{
		source:     source,
		priceScale: priceScale,
		securities: make(map[string]*security.Security),
	}
}

// Create registers a symbol and returns its security. Registering the same
// symbol twice fails with ErrCodeSecurityExists.
func (s *SecuritySet) Create(symbol types.Symbol) (*security.Security, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := symbol.String()
	if _, ok := s.securities[key]; ok {
		return nil, errors.Newf(errors.ErrCodeSecurityExists,
			"security %s already exists for source %s", key, s.source)
	}

	sec := security.NewSecurity(symbol, s.source, s.priceScale)
	s.securities[key] = sec

	return sec, nil
}

// Get returns the security registered for a symbol.
func (s *SecuritySet) Get(symbol types.Symbol) (*security.Security, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.securities[symbol.String()]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeSecurityNotFound,
			"security %s is not registered with source %s", symbol.String(), s.source)
	}

	return sec, nil
}

// All returns every registered security.
func (s *SecuritySet) All() []*security.Security {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*security.Security, 0, len(s.securities))
	for _, sec := range s.securities {
		result = append(result, sec)
	}

	return result
}

// SetAllOnline flips the online flag of every registered security, used when
// the feed connects or drops.
func (s *SecuritySet) SetAllOnline(online bool) {
	for _, sec := range s.All() {
		sec.SetOnline(online)
	}
}
