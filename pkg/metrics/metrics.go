// Package metrics holds an optional Prometheus collector registry for
// the topology core: RegisterCollector records named collector
// constructors and NewMetricGatherer instantiates them. The module
// itself registers no collector, so by default the gatherer exports
// nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	builtInCollectors    = make(map[string]InitCollector)
	registeredCollectors = []prometheus.Collector{}
)

// InitCollector builds a prometheus.Collector for one subsystem.
type InitCollector func() (prometheus.Collector, error)

// RegisterCollector registers a named collector constructor. Called
// from package init functions; a duplicate name is a programming
// error.
func RegisterCollector(name string, init InitCollector) error {
	if _, found := builtInCollectors[name]; found {
		return fmt.Errorf("metrics: collector %q already registered", name)
	}

	builtInCollectors[name] = init

	return nil
}

// NewMetricGatherer builds a fresh registry with every registered
// collector instantiated and registered.
func NewMetricGatherer() (prometheus.Gatherer, error) {
	reg := prometheus.NewPedanticRegistry()

	collectors := make([]prometheus.Collector, 0, len(builtInCollectors))
	for _, cb := range builtInCollectors {
		c, err := cb()
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, c)
	}
	registeredCollectors = collectors

	if len(registeredCollectors) > 0 {
		reg.MustRegister(registeredCollectors...)
	}

	return reg, nil
}
