// ABOUTME: Prometheus metrics exposition for scan, quarantine, and catalog state.
// ABOUTME: Uses a per-request registry so every scrape reflects current data only.

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/types"
)

// CatalogProvider reports the active rule catalog's identity.
type CatalogProvider interface {
	Version() int64
	Len() int
}

// QuarantineProvider reports current quarantine entries.
type QuarantineProvider interface {
	CountByStatus() map[types.QuarantineStatus]int
}

// Recorder accumulates scan counters. It is fed by the engine's callers and
// read by the metrics handler; safe for concurrent use.
type Recorder struct {
	mu                 sync.RWMutex
	scansByVerdict     map[types.Verdict]int
	findingsByPhase    map[types.Phase]int
	findingsBySeverity map[types.Severity]int
}

func NewRecorder() *Recorder {
	return &Recorder{
		scansByVerdict:     make(map[types.Verdict]int),
		findingsByPhase:    make(map[types.Phase]int),
		findingsBySeverity: make(map[types.Severity]int),
	}
}

// RecordScan folds one completed scan into the counters.
func (r *Recorder) RecordScan(result *types.ScanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scansByVerdict[result.Verdict]++
	for _, f := range result.Findings {
		r.findingsByPhase[f.Phase]++
		r.findingsBySeverity[f.Severity]++
	}
}

// Handler serves /metrics in Prometheus exposition format.
type Handler struct {
	recorder   *Recorder
	catalog    CatalogProvider
	quarantine QuarantineProvider
	logger     *logrus.Logger

	scansTotal         *prometheus.GaugeVec
	findingsByPhase    *prometheus.GaugeVec
	findingsBySeverity *prometheus.GaugeVec
	quarantineEntries  *prometheus.GaugeVec
	catalogInfo        *prometheus.GaugeVec
}

func NewHandler(recorder *Recorder, catalog CatalogProvider, quarantine QuarantineProvider, logger *logrus.Logger) *Handler {
	return &Handler{
		recorder:   recorder,
		catalog:    catalog,
		quarantine: quarantine,
		logger:     logger,

		scansTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigil_scans_total",
				Help: "Number of completed scans by verdict",
			},
			[]string{"verdict"},
		),

		findingsByPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigil_findings_by_phase_total",
				Help: "Number of findings produced, by detection phase",
			},
			[]string{"phase"},
		),

		findingsBySeverity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigil_findings_by_severity_total",
				Help: "Number of findings produced, by severity",
			},
			[]string{"severity"},
		),

		quarantineEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigil_quarantine_entries",
				Help: "Current quarantine entries by status",
			},
			[]string{"status"},
		),

		catalogInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigil_catalog_info",
				Help: "Active rule catalog version and size",
			},
			[]string{"info_type"},
		),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// A fresh registry per request avoids stale series from previous state.
	registry := prometheus.NewRegistry()
	registry.MustRegister(h.scansTotal)
	registry.MustRegister(h.findingsByPhase)
	registry.MustRegister(h.findingsBySeverity)
	registry.MustRegister(h.quarantineEntries)
	registry.MustRegister(h.catalogInfo)

	h.scansTotal.Reset()
	h.findingsByPhase.Reset()
	h.findingsBySeverity.Reset()
	h.quarantineEntries.Reset()
	h.catalogInfo.Reset()

	h.recorder.mu.RLock()
	for verdict, count := range h.recorder.scansByVerdict {
		h.scansTotal.WithLabelValues(string(verdict)).Set(float64(count))
	}
	for phase, count := range h.recorder.findingsByPhase {
		h.findingsByPhase.WithLabelValues(string(phase)).Set(float64(count))
	}
	for severity, count := range h.recorder.findingsBySeverity {
		h.findingsBySeverity.WithLabelValues(string(severity)).Set(float64(count))
	}
	h.recorder.mu.RUnlock()

	if h.quarantine != nil {
		for status, count := range h.quarantine.CountByStatus() {
			h.quarantineEntries.WithLabelValues(string(status)).Set(float64(count))
		}
	}

	if h.catalog != nil {
		h.catalogInfo.WithLabelValues("version").Set(float64(h.catalog.Version()))
		h.catalogInfo.WithLabelValues("rule_count").Set(float64(h.catalog.Len()))
	}

	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
