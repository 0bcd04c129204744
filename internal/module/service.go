package module

import (
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// Propagation tells a service whether a data update it just handled should
// continue down the subscription graph.
type Propagation int

const (
	// PropagationStop swallows the update; subscribers are not notified.
	PropagationStop Propagation = iota
	// PropagationContinue forwards the update to the module's subscribers.
	PropagationContinue
)

// ServiceStartHandler is invoked synchronously when the module is registered
// as a subscriber of a service. Modules that do not implement it simply skip
// the notification.
type ServiceStartHandler interface {
	OnServiceStart(svc *Service) error
}

// ServiceDataUpdateHandler receives data updates from subscribed services.
// Subscribing to a service without implementing this handler is a wiring bug
// and fails with ErrCodeNotImplemented on the first update.
type ServiceDataUpdateHandler interface {
	OnServiceDataUpdate(svc *Service) (Propagation, error)
}

// Subscriber is anything that can receive service events: strategies,
// observers and other services.
type Subscriber interface {
	String() string
	InstanceID() uuid.UUID
	RaiseServiceStartEvent(svc *Service) error
	RaiseServiceDataUpdateEvent(svc *Service) error
}

// serviceNode is satisfied by services (and anything embedding one); it
// exposes the outgoing subscription edges for cycle detection.
type serviceNode interface {
	InstanceID() uuid.UUID
	String() string
	serviceSubscribers() []Subscriber
}

// Service is a module that derives data from its sources and pushes the
// result to an ordered list of subscribers.
type Service struct {
	Consumer

	subscribers   []Subscriber
	subscriberIDs map[uuid.UUID]struct{}
}

// NewService creates a Service base for the given concrete module.
func NewService(typeName, name, tag string, self any, log *logger.Logger) *Service {
	s := &Service{
		Consumer:      newConsumerBase(KindService, typeName, name, tag, log),
		subscriberIDs: make(map[uuid.UUID]struct{}),
	}
	s.bind(self, s)

	return s
}

func (s *Service) serviceSubscribers() []Subscriber {
	s.Lock()
	defer s.Unlock()

	result := make([]Subscriber, len(s.subscribers))
	copy(result, s.subscribers)

	return result
}

// Subscribers returns the current subscribers in registration order.
func (s *Service) Subscribers() []Subscriber {
	return s.serviceSubscribers()
}

// RegisterSubscriber adds a subscriber. Registration is idempotent and
// rejects subscriptions that would close a cycle in the service graph. The
// subscriber's OnServiceStart runs synchronously before any data update can
// be delivered to it.
func (s *Service) RegisterSubscriber(sub Subscriber) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.subscriberIDs[sub.InstanceID()]; ok {
		return nil
	}

	if node, ok := sub.(serviceNode); ok {
		if path := findSubscriptionPath(node, s.InstanceID(), nil); path != nil {
			// The reported path starts at the service being subscribed on
			// and ends where the walk reached it again, so subscribing B on
			// A with an existing A-on-B edge reports A -> B -> A.
			full := append([]string{s.String()}, path...)
			s.Log().Error("rejected recursive service subscription",
				zap.Strings("path", full))

			return &errors.RecursiveSubscriptionError{Path: full}
		}
	}

	if err := sub.RaiseServiceStartEvent(s); err != nil {
		return err
	}

	s.subscribers = append(s.subscribers, sub)
	s.subscriberIDs[sub.InstanceID()] = struct{}{}

	return nil
}

// findSubscriptionPath walks subscription edges from the candidate node
// looking for the target service. It returns the module names along the path
// ending at the target, or nil if the target is unreachable.
func findSubscriptionPath(from serviceNode, target uuid.UUID, visited map[uuid.UUID]struct{}) []string {
	if from.InstanceID() == target {
		return []string{from.String()}
	}

	if visited == nil {
		visited = make(map[uuid.UUID]struct{})
	}

	if _, seen := visited[from.InstanceID()]; seen {
		return nil
	}

	visited[from.InstanceID()] = struct{}{}

	for _, sub := range from.serviceSubscribers() {
		node, ok := sub.(serviceNode)
		if !ok {
			continue
		}

		if path := findSubscriptionPath(node, target, visited); path != nil {
			return append([]string{from.String()}, path...)
		}
	}

	return nil
}

// NotifySubscribers pushes a data update produced by this service to its
// subscribers, depth-first in registration order. The first subscriber error
// aborts the fan-out.
func (s *Service) NotifySubscribers() error {
	s.Lock()
	defer s.Unlock()

	return s.notifySubscribersLocked()
}

func (s *Service) notifySubscribersLocked() error {
	for _, sub := range s.subscribers {
		if err := sub.RaiseServiceDataUpdateEvent(s); err != nil {
			return err
		}
	}

	return nil
}

// RaiseServiceDataUpdateEvent delivers an upstream service's data update to
// this service. If the handler asks to continue, the update fans out to this
// service's own subscribers.
func (s *Service) RaiseServiceDataUpdateEvent(source *Service) error {
	s.Lock()
	defer s.Unlock()

	if s.IsBlocked() {
		s.logBlockedDrop("service data update")

		return nil
	}

	handler, ok := s.self.(ServiceDataUpdateHandler)
	if !ok {
		return s.notImplemented("service data updates")
	}

	propagation, err := handler.OnServiceDataUpdate(source)
	if err != nil {
		return err
	}

	if propagation == PropagationContinue {
		return s.notifySubscribersLocked()
	}

	return nil
}
