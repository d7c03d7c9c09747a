package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

type recordSet interface {
	Len() int
}

// newRecordsCollector returns a collector reporting the number of records
// in the local set.
func newRecordsCollector(set recordSet) prometheus.Collector {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "spread",
			Subsystem: "records",
			Name:      "stored",
			Help:      "Number of records in the local set.",
		},
		func() float64 {
			return float64(set.Len())
		},
	)
}
