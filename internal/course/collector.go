package course

import "github.com/prometheus/client_golang/prometheus"

// Sizer reports store sizes for metrics.
type Sizer interface {
	Len() int
	IndexSize() int
}

// Collector exports store sizes on each scrape.
type Collector struct {
	store    Sizer
	records  *prometheus.Desc
	postings *prometheus.Desc
}

func NewCollector(s Sizer, service string) *Collector {
	labels := prometheus.Labels{"service": service}
	return &Collector{
		store: s,
		records: prometheus.NewDesc(
			"course_store_records",
			"Records currently held by the store",
			nil, labels,
		),
		postings: prometheus.NewDesc(
			"course_store_index_postings",
			"Title index postings (tokens and n-grams)",
			nil, labels,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.records
	ch <- c.postings
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(c.store.Len()))
	ch <- prometheus.MustNewConstMetric(c.postings, prometheus.GaugeValue, float64(c.store.IndexSize()))
}
