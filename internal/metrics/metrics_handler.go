package metrics

import (
	"maps"
	"sort"
	"sync"
	"time"

	"mboflow/logger"
)

const defaultMetricType = "counter"

// Metric is one measurement taken by a pipeline stage.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler observes every emitted metric. Handlers run synchronously
// on the emitting goroutine.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registration; zero is never issued.
type MetricHandlerID uint64

type handlerRegistry struct {
	mu      sync.RWMutex
	last    MetricHandlerID
	entries map[MetricHandlerID]MetricHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{entries: map[MetricHandlerID]MetricHandler{}}
}

var handlers = newHandlerRegistry()

func (r *handlerRegistry) add(h MetricHandler) MetricHandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.entries[r.last] = h
	return r.last
}

func (r *handlerRegistry) remove(id MetricHandlerID) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// snapshot returns the handlers in registration order so the lock is not
// held while they run.
func (r *handlerRegistry) snapshot() []MetricHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]MetricHandlerID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]MetricHandler, len(ids))
	for i, id := range ids {
		out[i] = r.entries[id]
	}
	return out
}

// RegisterMetricHandler subscribes h to every metric. A nil handler is
// ignored and yields 0.
func RegisterMetricHandler(h MetricHandler) MetricHandlerID {
	if h == nil {
		return 0
	}
	return handlers.add(h)
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id != 0 {
		handlers.remove(id)
	}
}

// recordMetric logs a metric line and fans the event out to handlers. The
// caller's fields are copied, never mutated.
func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = defaultMetricType
	}
	if log == nil {
		log = logger.GetLogger()
	}

	m := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    cloneFields(fields),
	}

	line := cloneFields(m.Fields)
	line["metric"], line["metric_type"], line["value"] = name, metricType, value
	log.WithComponent(component).WithFields(line).Info("metric")

	for _, h := range handlers.snapshot() {
		h(m)
	}
	return m, true
}

func cloneFields(fields logger.Fields) logger.Fields {
	out := make(logger.Fields, len(fields)+3)
	maps.Copy(out, fields)
	return out
}

func sortedKeys(fields logger.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
