package store

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// dbMetrics is the metric set of one DB.
type dbMetrics struct {
	set *metrics.Set
}

func newDBMetrics() *dbMetrics {
	return &dbMetrics{set: metrics.NewSet()}
}

func (m *dbMetrics) op(op, table string) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`lattice_ops_total{op=%q,table=%q}`, op, table)).Inc()
}

func (m *dbMetrics) commitFailure(op, table string) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`lattice_commit_failures_total{op=%q,table=%q}`, op, table)).Inc()
}

func (m *dbMetrics) rollback(table string) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`lattice_rollbacks_total{table=%q}`, table)).Inc()
}

func (m *dbMetrics) chunks(op string, n int) {
	m.set.GetOrCreateHistogram(fmt.Sprintf(`lattice_batch_chunks{op=%q}`, op)).Update(float64(n))
}

// WriteMetrics writes the DB's metrics in Prometheus text format.
func (db *DB) WriteMetrics(w io.Writer) {
	db.metrics.set.WritePrometheus(w)
}
