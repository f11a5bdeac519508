// Package metrics exports receiver state to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/sbus.go/pkg/receiver"
	"github.com/robotalks/sbus.go/pkg/sbus"
)

// NewRegistry creates a Registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Collector reads a receiver Snapshot on every scrape.
type Collector struct {
	Source receiver.SnapshotSource

	valid    *prometheus.Desc
	lost     *prometheus.Desc
	resync   *prometheus.Desc
	overrun  *prometheus.Desc
	channel  *prometheus.Desc
	failsafe *prometheus.Desc
	synced   *prometheus.Desc
}

// NewCollector creates a Collector labeled with the receiver ref.
func NewCollector(ref receiver.Ref, src receiver.SnapshotSource) *Collector {
	labels := prometheus.Labels{"type": ref.Type, "id": ref.ID}
	desc := func(name, help string, variableLabels ...string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, variableLabels, labels)
	}
	return &Collector{
		Source:   src,
		valid:    desc("sbus_frames_valid_total", "Valid SBUS frames decoded."),
		lost:     desc("sbus_frames_lost_total", "SBUS frames rejected while synced."),
		resync:   desc("sbus_resync_total", "Times frame alignment was lost."),
		overrun:  desc("sbus_source_overrun_total", "Bytes dropped by the source buffer."),
		channel:  desc("sbus_channel_value", "Channel value of the last valid frame.", "channel"),
		failsafe: desc("sbus_failsafe_status", "Failsafe status, 0 ok, 1 signal lost, 2 failsafe."),
		synced:   desc("sbus_synced", "1 when frames are being decoded."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.valid
	ch <- c.lost
	ch <- c.resync
	ch <- c.overrun
	ch <- c.channel
	ch <- c.failsafe
	ch <- c.synced
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.Source.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.valid, prometheus.CounterValue, float64(snap.Stats.Valid))
	ch <- prometheus.MustNewConstMetric(c.lost, prometheus.CounterValue, float64(snap.Stats.Lost))
	ch <- prometheus.MustNewConstMetric(c.resync, prometheus.CounterValue, float64(snap.Stats.Resync))
	ch <- prometheus.MustNewConstMetric(c.overrun, prometheus.CounterValue, float64(snap.Overruns))
	for n := 0; n < sbus.NumChannels; n++ {
		ch <- prometheus.MustNewConstMetric(c.channel, prometheus.GaugeValue,
			float64(snap.Channels[n]), strconv.Itoa(n+1))
	}
	ch <- prometheus.MustNewConstMetric(c.failsafe, prometheus.GaugeValue, float64(snap.Failsafe))
	synced := 0.0
	if snap.Synced() {
		synced = 1
	}
	ch <- prometheus.MustNewConstMetric(c.synced, prometheus.GaugeValue, synced)
}
