package module

import "github.com/rxtech-lab/argo-engine/internal/logger"

// Observer is a passive module: it consumes security and service events but
// never trades. Reporters and recorders are observers.
type Observer struct {
	Consumer
}

// NewObserver creates an Observer base for the given concrete module.
func NewObserver(typeName, name, tag string, self any, log *logger.Logger) *Observer {
	o := &Observer{
		Consumer: newConsumerBase(KindObserver, typeName, name, tag, log),
	}
	o.bind(self, o)

	return o
}
