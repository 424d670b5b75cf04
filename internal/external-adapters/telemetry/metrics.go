package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ochairo/prgate/internal/domain/entities"
)

// MetricsFileName is written next to the run summary
const MetricsFileName = "devsecops-metrics.prom"

// gateMetrics holds the gauges of one run in a private registry
type gateMetrics struct {
	path     string
	registry *prometheus.Registry

	findings     *prometheus.GaugeVec
	denies       prometheus.Gauge
	blocking     prometheus.Gauge
	scanDuration *prometheus.GaugeVec
}

func newGateMetrics(path string) *gateMetrics {
	m := &gateMetrics{
		path:     path,
		registry: prometheus.NewRegistry(),
		findings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prgate_findings",
				Help: "Findings reported by a scanner, by severity",
			},
			[]string{"tool", "severity"},
		),
		denies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prgate_policy_denies",
			Help: "Policy deny results",
		}),
		blocking: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prgate_gate_blocking",
			Help: "1 when the gate blocks the merge",
		}),
		scanDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prgate_scan_duration_seconds",
				Help: "Wall time of each scanner",
			},
			[]string{"tool"},
		),
	}
	m.registry.MustRegister(m.findings, m.denies, m.blocking, m.scanDuration)
	return m
}

func (m *gateMetrics) recordScan(tool entities.ToolName, elapsed time.Duration) {
	m.scanDuration.WithLabelValues(string(tool)).Set(elapsed.Seconds())
}

func (m *gateMetrics) recordRun(outcomes entities.Outcomes, result entities.GateResult) {
	for tool, outcome := range map[entities.ToolName]entities.ScanOutcome{
		entities.ToolTrivy:   outcomes.Trivy,
		entities.ToolCheckov: outcomes.Checkov,
	} {
		for _, level := range []entities.Severity{
			entities.SeverityCritical, entities.SeverityHigh, entities.SeverityMedium, entities.SeverityLow,
		} {
			m.findings.WithLabelValues(string(tool), string(level)).Set(float64(outcome.Count(level)))
		}
	}
	m.denies.Set(float64(outcomes.OPA.DenyCount))
	if result.Blocking {
		m.blocking.Set(1)
	} else {
		m.blocking.Set(0)
	}
}

// write stores the registry in the node exporter textfile format
func (m *gateMetrics) write() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(m.path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
