package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gymroster/internal/adapters/http/perf"
	outboxStore "gymroster/internal/adapters/storage/outbox"
)

// Metrics holds the roster store's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	logins     *prometheus.CounterVec
	commits    *prometheus.CounterVec
	rowsAdded  prometheus.Counter
	uploads    *prometheus.CounterVec
	reminders  *prometheus.CounterVec
	registered prometheus.Counter
}

// NewMetrics builds a registry with process, Go, request timing and
// domain collectors. A nil outbox store leaves out the queue gauge.
func NewMetrics(collector *perf.Collector, outbox outboxStore.Store) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gymroster", Name: "logins_total",
			Help: "Login attempts by scope and result.",
		}, []string{"scope", "result"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gymroster", Name: "roster_commits_total",
			Help: "Full-replace roster saves by course.",
		}, []string{"course"}),
		rowsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gymroster", Name: "roster_rows_created_total",
			Help: "Rows appended one at a time.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gymroster", Name: "document_uploads_total",
			Help: "Member document uploads by result.",
		}, []string{"result"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gymroster", Name: "payment_reminders_total",
			Help: "Payment reminder emails by result.",
		}, []string{"result"}),
		registered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gymroster", Name: "members_registered_total",
			Help: "Members created through self-registration.",
		}),
	}

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins, m.commits, m.rowsAdded, m.uploads, m.reminders, m.registered,
	}
	if outbox != nil {
		cs = append(cs, &outboxCollector{store: outbox})
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if collector != nil {
		if err := collector.Register(reg); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// outboxCollector reports the outbox size per status at scrape time.
type outboxCollector struct {
	store outboxStore.Store
}

var outboxEntriesDesc = prometheus.NewDesc(
	"gymroster_outbox_entries", "Outbox entries by status.", []string{"status"}, nil)

func (c *outboxCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- outboxEntriesDesc
}

func (c *outboxCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		slog.Warn("outbox_metrics_failed", "error", err)
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(outboxEntriesDesc, prometheus.GaugeValue, float64(n), status)
	}
}

// The recording helpers accept a nil receiver so a server can run without metrics.

func (m *Metrics) login(scope, result string) {
	if m != nil {
		m.logins.WithLabelValues(scope, result).Inc()
	}
}

func (m *Metrics) commit(course string) {
	if m != nil {
		m.commits.WithLabelValues(course).Inc()
	}
}

func (m *Metrics) rowCreated() {
	if m != nil {
		m.rowsAdded.Inc()
	}
}

func (m *Metrics) upload(result string) {
	if m != nil {
		m.uploads.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) reminder(sent, failed int) {
	if m != nil {
		m.reminders.WithLabelValues("queued").Add(float64(sent))
		m.reminders.WithLabelValues("failed").Add(float64(failed))
	}
}

func (m *Metrics) memberRegistered() {
	if m != nil {
		m.registered.Inc()
	}
}
