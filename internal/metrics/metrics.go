// Package metrics drží Prometheus metriky dashboardu.
//
// Všechny metody jsou bezpečné i na nil přijímači, takže komponenty se dají
// testovat bez registru.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "envdash"

// Metrics obsahuje všechny metriky služby.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived    *prometheus.CounterVec
	Classified        *prometheus.CounterVec
	CommandsPublished *prometheus.CounterVec
	CommandsFailed    *prometheus.CounterVec
	TransportErrors   prometheus.Counter
	QueueDropped      prometheus.Counter
	CSVFlushFailures  prometheus.Counter
	ArchiveFailures   *prometheus.CounterVec
	BrokerConnected   prometheus.Gauge
	StoreSize         prometheus.Gauge
	QueueDepth        prometheus.Gauge
	WSClients         prometheus.Gauge
}

// New vytvoří metriky a zaregistruje je do vlastního registru (včetně Go runtime).
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Počet událostí vybraných z fronty podle druhu",
		}, []string{"kind"}),

		Classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readings",
			Name:      "classified_total",
			Help:      "Počet klasifikovaných měření podle kódu stavu",
		}, []string{"code"}),

		CommandsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "published_total",
			Help:      "Počet úspěšně odeslaných příkazů",
		}, []string{"command"}),

		CommandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "failed_total",
			Help:      "Počet příkazů, které se nepodařilo odeslat",
		}, []string{"command"}),

		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "transport_errors_total",
			Help:      "Počet chyb MQTT listeneru",
		}),

		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Počet událostí zahozených kvůli plné frontě",
		}),

		CSVFlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv",
			Name:      "flush_failures_total",
			Help:      "Počet neúspěšných zápisů CSV zrcadla",
		}),

		ArchiveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "failures_total",
			Help:      "Počet neúspěšných zápisů do archivu podle cíle",
		}, []string{"sink"}),

		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 pokud je listener přihlášen k odběru, jinak 0",
		}),

		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records",
			Help:      "Počet záznamů v paměťové historii",
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Počet událostí čekajících ve frontě",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Počet připojených websocket klientů",
		}),
	}

	m.registry.MustRegister(
		m.EventsReceived, m.Classified, m.CommandsPublished, m.CommandsFailed,
		m.TransportErrors, m.QueueDropped, m.CSVFlushFailures, m.ArchiveFailures,
		m.BrokerConnected, m.StoreSize, m.QueueDepth, m.WSClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry vrací podkladový Prometheus registr.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler vrací HTTP handler pro /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EventReceived(kind string) {
	if m != nil {
		m.EventsReceived.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ReadingClassified(code string) {
	if m != nil {
		m.Classified.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) CommandPublished(command string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CommandsFailed.WithLabelValues(command).Inc()
		return
	}
	m.CommandsPublished.WithLabelValues(command).Inc()
}

func (m *Metrics) TransportError() {
	if m != nil {
		m.TransportErrors.Inc()
	}
}

func (m *Metrics) Dropped() {
	if m != nil {
		m.QueueDropped.Inc()
	}
}

func (m *Metrics) CSVFlushFailed() {
	if m != nil {
		m.CSVFlushFailures.Inc()
	}
}

func (m *Metrics) ArchiveFailed(sink string) {
	if m != nil {
		m.ArchiveFailures.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.BrokerConnected.Set(1)
	} else {
		m.BrokerConnected.Set(0)
	}
}

func (m *Metrics) SetStoreSize(n int) {
	if m != nil {
		m.StoreSize.Set(float64(n))
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) SetWSClients(n int) {
	if m != nil {
		m.WSClients.Set(float64(n))
	}
}
