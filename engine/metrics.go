package engine

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var engineCount atomic.Uint64

// metrics are the collectors of a single [Engine]. Every series carries an
// "engine" label so that several engines can share a registry.
type metrics struct {
	reg        prometheus.Registerer
	collectors []prometheus.Collector

	operationsTotal   *prometheus.CounterVec
	operationErrors   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	deviceMemory      prometheus.Gauge
	pinnedMemory      prometheus.Gauge
}

// newMetrics registers the collectors of a new engine on reg.
func newMetrics(reg prometheus.Registerer) (m *metrics, err error) {

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m = &metrics{
		reg: prometheus.WrapRegistererWith(prometheus.Labels{
			"engine": strconv.FormatUint(engineCount.Add(1), 10),
		}, reg),
	}

	// promauto panics when reg refuses a collector, e.g. on a name clash with a foreign metric.
	defer func() {
		if r := recover(); r != nil {
			m.unregister()
			m, err = nil, errors.Join(errors.New("cannot register engine metrics"), asError(r))
		}
	}()

	factory := promauto.With(registererFunc(func(c prometheus.Collector) error {
		if err := m.reg.Register(c); err != nil {
			return err
		}
		m.collectors = append(m.collectors, c)
		return nil
	}))

	m.operationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nttgpu_transforms_total",
			Help: "The total number of engine operations completed",
		},
		[]string{"op"},
	)
	m.operationErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nttgpu_transform_errors_total",
			Help: "The total number of engine operations that failed",
		},
		[]string{"op"},
	)
	m.operationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nttgpu_transform_duration_seconds",
			Help:    "The duration of engine operations in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		},
		[]string{"op"},
	)
	m.deviceMemory = factory.NewGauge(prometheus.GaugeOpts{
		Name: "nttgpu_device_memory_bytes",
		Help: "The number of bytes of device memory in use",
	})
	m.pinnedMemory = factory.NewGauge(prometheus.GaugeOpts{
		Name: "nttgpu_pinned_bytes",
		Help: "The number of bytes held by live pinned host vectors",
	})

	return
}

// unregister removes the collectors of the engine from its registry.
func (m *metrics) unregister() {
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
	m.collectors = nil
}

// registererFunc is a [prometheus.Registerer] that records what it registers.
type registererFunc func(c prometheus.Collector) error

func (f registererFunc) Register(c prometheus.Collector) error {
	return f(c)
}

func (f registererFunc) MustRegister(cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := f(c); err != nil {
			panic(err)
		}
	}
}

func (f registererFunc) Unregister(prometheus.Collector) bool {
	return false
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("unknown panic")
}
