package lstore

import (
	"io"

	"github.com/ValentinKolb/tks/lib/db"
	"github.com/ValentinKolb/tks/lib/db/engines/spine"
	"github.com/VictoriaMetrics/metrics"
)

// storeMetrics are the Prometheus metrics of one store
type storeMetrics struct {
	set *metrics.Set

	writes       *metrics.Counter
	retries      *metrics.Counter
	repairs      *metrics.Counter
	notified     *metrics.Counter
	notifyErrors *metrics.Counter
	recordBytes  *metrics.Histogram
}

func newStoreMetrics(set *metrics.Set) *storeMetrics {
	return &storeMetrics{
		set:          set,
		writes:       set.NewCounter("tks_writes_total"),
		retries:      set.NewCounter("tks_merge_retries_total"),
		repairs:      set.NewCounter("tks_repairs_total"),
		notified:     set.NewCounter("tks_notifications_total"),
		notifyErrors: set.NewCounter("tks_notify_errors_total"),
		recordBytes:  set.NewHistogram("tks_merged_record_bytes"),
	}
}

// register adds the gauges that read the state of s
func (m *storeMetrics) register(s *storeImpl) {
	m.set.NewGauge("tks_merge_total", func() float64 {
		return float64(s.merger.Stats().Merges)
	})
	m.set.NewGauge("tks_merge_fast_path_total", func() float64 {
		return float64(s.merger.Stats().FastPath)
	})
	m.set.NewGauge("tks_merge_gc_versions_total", func() float64 {
		return float64(s.merger.Stats().Collected)
	})
	m.set.NewGauge("tks_canceled_stamps", func() float64 {
		return float64(s.canceled.Len())
	})
	m.set.NewGauge("tks_identities", func() float64 {
		return float64(s.registry.Count())
	})
	m.set.NewGauge("tks_open_transactions", func() float64 {
		return float64(len(s.txns.Active()))
	})
	m.set.NewGauge("tks_pending_notifications", func() float64 {
		return float64(s.events.Len())
	})
	m.set.NewGauge("tks_spine_loads_total", func() float64 {
		return float64(spineMeta(s.records).Loads + spineMeta(s.citing).Loads + spineMeta(s.patternOf).Loads)
	})
	m.set.NewGauge("tks_spine_flushes_total", func() float64 {
		return float64(spineMeta(s.records).Flushes + spineMeta(s.citing).Flushes + spineMeta(s.patternOf).Flushes)
	})
}

type infoSource interface {
	GetInfo() db.DatabaseInfo
}

// spineMeta returns the engine statistics of a spined map, or zero values
// for engines without them
func spineMeta(src infoSource) spine.Metadata {
	if meta, ok := src.GetInfo().Metadata.(*spine.Metadata); ok && meta != nil {
		return *meta
	}
	return spine.Metadata{}
}

// WriteMetrics writes the metrics of the store in Prometheus text format
func (s *storeImpl) WriteMetrics(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
