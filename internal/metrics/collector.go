// collector.go: Gauges read from the engine at scrape time
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"github.com/agilira/copilot"
	"github.com/prometheus/client_golang/prometheus"
)

// engineCollector reports engine state without subscribing to it, so that
// scraping never changes buffer temperature.
type engineCollector struct {
	engine *copilot.Copilot

	runningDesc   *prometheus.Desc
	uptimeDesc    *prometheus.Desc
	mappingDesc   *prometheus.Desc
	inputsDesc    *prometheus.Desc
	recordedDesc  *prometheus.Desc
	deliveredDesc *prometheus.Desc
	evictedDesc   *prometheus.Desc
	bufferedDesc  *prometheus.Desc
}

func newEngineCollector(engine *copilot.Copilot) *engineCollector {
	return &engineCollector{
		engine:        engine,
		runningDesc:   prometheus.NewDesc(namespace+"_running", "1 while the engine is started", nil, nil),
		uptimeDesc:    prometheus.NewDesc(namespace+"_uptime_seconds", "Seconds since the engine was constructed", nil, nil),
		mappingDesc:   prometheus.NewDesc(namespace+"_mapping_entries", "Entries in the mapping table", nil, nil),
		inputsDesc:    prometheus.NewDesc(namespace+"_inputs", "Inputs known to the engine", nil, nil),
		recordedDesc:  prometheus.NewDesc(namespace+"_log_events_recorded_total", "Diagnostic events recorded", nil, nil),
		deliveredDesc: prometheus.NewDesc(namespace+"_log_events_delivered_total", "Diagnostic events delivered to listeners", nil, nil),
		evictedDesc:   prometheus.NewDesc(namespace+"_log_events_evicted_total", "Diagnostic events evicted from full buffers", nil, nil),
		bufferedDesc:  prometheus.NewDesc(namespace+"_log_events_buffered", "Diagnostic events waiting for a listener", []string{"category"}, nil),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runningDesc
	ch <- c.uptimeDesc
	ch <- c.mappingDesc
	ch <- c.inputsDesc
	ch <- c.recordedDesc
	ch <- c.deliveredDesc
	ch <- c.evictedDesc
	ch <- c.bufferedDesc
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	running := 0.0
	if c.engine.IsRunning() {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.runningDesc, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, c.engine.Uptime().Seconds())
	ch <- prometheus.MustNewConstMetric(c.mappingDesc, prometheus.GaugeValue, float64(len(c.engine.Mapping())))
	ch <- prometheus.MustNewConstMetric(c.inputsDesc, prometheus.GaugeValue, float64(len(c.engine.Inputs())))

	logs := c.engine.LogBuffer()
	stats := logs.Stats()
	ch <- prometheus.MustNewConstMetric(c.recordedDesc, prometheus.CounterValue, float64(stats.Recorded))
	ch <- prometheus.MustNewConstMetric(c.deliveredDesc, prometheus.CounterValue, float64(stats.Delivered))
	ch <- prometheus.MustNewConstMetric(c.evictedDesc, prometheus.CounterValue, float64(stats.Evicted))
	for _, cat := range copilot.LogCategories {
		ch <- prometheus.MustNewConstMetric(c.bufferedDesc, prometheus.GaugeValue, float64(logs.Len(cat)), string(cat))
	}
}
