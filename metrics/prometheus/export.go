// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Package prometheus adapts a metrics.Registry into a prometheus.Collector,
// the export path the teacher's daemons expose behind /debug/metrics/prometheus.
package prometheus

import (
	"strings"

	"github.com/kimberlitedb/kimberlite/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bridges a metrics.Registry to the prometheus client library so
// every Counter/Gauge/Timer/Meter created with NewRegistered* is scraped
// without any per-metric boilerplate.
type Collector struct {
	registry metrics.Registry
	namespace string
}

// NewCollector wraps r (or metrics.DefaultRegistry if nil) for registration
// with a prometheus.Registerer, e.g. prometheus.MustRegister(NewCollector(...)).
func NewCollector(namespace string, r metrics.Registry) *Collector {
	if r == nil {
		r = metrics.DefaultRegistry
	}
	return &Collector{registry: r, namespace: namespace}
}

func (c *Collector) fqName(name string) string {
	sanitized := strings.NewReplacer("/", "_", "-", "_").Replace(name)
	if c.namespace == "" {
		return sanitized
	}
	return c.namespace + "_" + sanitized
}

// Describe satisfies prometheus.Collector with no static descriptors, since
// the metric set grows dynamically as replica code registers instruments.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {}

// Collect walks the registry and emits one prometheus metric per instrument.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.registry.Each(func(name string, metric interface{}) {
		fq := c.fqName(name)
		switch m := metric.(type) {
		case metrics.Counter:
			desc := prometheus.NewDesc(fq, "kimberlite counter "+name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(m.Count()))
		case metrics.Gauge:
			desc := prometheus.NewDesc(fq, "kimberlite gauge "+name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(m.Value()))
		case metrics.GaugeFloat64:
			desc := prometheus.NewDesc(fq, "kimberlite gauge "+name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Value())
		case metrics.Meter:
			desc := prometheus.NewDesc(fq+"_rate1", "kimberlite meter rate1 "+name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Rate1())
		case metrics.Timer:
			meanDesc := prometheus.NewDesc(fq+"_mean_ns", "kimberlite timer mean ns "+name, nil, nil)
			ch <- prometheus.MustNewConstMetric(meanDesc, prometheus.GaugeValue, m.Mean())
			p99Desc := prometheus.NewDesc(fq+"_p99_ns", "kimberlite timer p99 ns "+name, nil, nil)
			ch <- prometheus.MustNewConstMetric(p99Desc, prometheus.GaugeValue, m.Percentile(0.99))
		}
	})
}
