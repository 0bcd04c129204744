// Package module implements the event dispatch framework: the Module base
// unit and its Consumer, Service, Observer, and Strategy specializations.
// Every module owns a re-entrant lock; any Raise*Event call acquires that
// lock, checks the module's administrative state, and only then invokes the
// handler, so at most one event is processed per module at a time even when
// multiple venue adapters deliver concurrently.
package module

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"go.uber.org/zap"
)

// Kind tags a module specialization. The subscriber graph is traversed by
// kind instead of through virtual dispatch.
type Kind string

const (
	KindConsumer Kind = "consumer"
	KindService  Kind = "service"
	KindObserver Kind = "observer"
	KindStrategy Kind = "strategy"
)

type runState int

const (
	stateRunning runState = iota
	stateBlocked
	stateStopped
)

// blockState tracks the administrative state of a module: running, blocked
// forever, blocked until a deadline, or stopped. It has its own small lock so
// waiters never park while holding the module's event lock.
type blockState struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state runState
	// until is the end of a temporary block; zero means blocked forever.
	until time.Time
}

func newBlockState() *blockState {
	b := &blockState{}
	b.cond = sync.NewCond(&b.mu)

	return b
}

func (b *blockState) isBlocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateRunning:
		return false
	case stateStopped:
		return true
	case stateBlocked:
		if !b.until.IsZero() && time.Now().After(b.until) {
			// The temporary block expired.
			b.state = stateRunning
			b.until = time.Time{}

			return false
		}

		return true
	default:
		return true
	}
}

func (b *blockState) block(until time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateStopped {
		return
	}

	// A permanent block is never downgraded to a temporary one.
	if b.state == stateBlocked && b.until.IsZero() && !until.IsZero() {
		return
	}

	b.state = stateBlocked
	b.until = until
	b.cond.Broadcast()
}

func (b *blockState) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = stateStopped
	b.until = time.Time{}
	b.cond.Broadcast()
}

// waitForStop parks the caller until the module is permanently blocked or
// stopped.
func (b *blockState) waitForStop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for !(b.state == stateStopped || (b.state == stateBlocked && b.until.IsZero())) {
		b.cond.Wait()
	}
}

// Module is the base execution unit. It owns an identity, a re-entrant lock,
// and a log sink. Modules are created once at strategy-set construction time
// and are never copied.
type Module struct {
	kind       Kind
	typeName   string
	name       string
	tag        string
	instanceID uuid.UUID

	lock  ReentrantMutex
	block *blockState
	log   *logger.Logger
}

func newModule(kind Kind, typeName, name, tag string, log *logger.Logger) Module {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return Module{
		kind:       kind,
		typeName:   typeName,
		name:       name,
		tag:        tag,
		instanceID: uuid.New(),
		block:      newBlockState(),
		log:        log.Named(typeName + "." + name),
	}
}

// Kind returns the module specialization tag.
func (m *Module) Kind() Kind { return m.kind }

// TypeName returns the module implementation's type name.
func (m *Module) TypeName() string { return m.typeName }

// Name returns the module instance name.
func (m *Module) Name() string { return m.name }

// Tag returns the configuration tag of the module instance.
func (m *Module) Tag() string { return m.tag }

// InstanceID returns the process-unique module instance id.
func (m *Module) InstanceID() uuid.UUID { return m.instanceID }

// Log returns the module's named logger.
func (m *Module) Log() *logger.Logger { return m.log }

func (m *Module) String() string {
	return fmt.Sprintf("%s.%s", m.typeName, m.name)
}

// Lock acquires the module's re-entrant event lock.
func (m *Module) Lock() { m.lock.Lock() }

// Unlock releases the module's event lock.
func (m *Module) Unlock() { m.lock.Unlock() }

// IsBlocked reports whether the module is administratively blocked and must
// not process new signal-generating events.
func (m *Module) IsBlocked() bool { return m.block.isBlocked() }

func (m *Module) logBlockedDrop(event string) {
	m.log.Debug("event dropped, module is blocked", zap.String("event", event))
}
