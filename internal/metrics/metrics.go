// Package metrics exports pipeline counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/truebasic2011/mercury/internal/pipeline"
)

const namespace = "mercury"

var (
	packetsReadDesc = prometheus.NewDesc(
		namespace+"_packets_read_total",
		"Total number of packets returned by the input source",
		[]string{"thread"}, nil)
	recordsEnqueuedDesc = prometheus.NewDesc(
		namespace+"_records_enqueued_total",
		"Total number of records handed to the output queue",
		[]string{"thread"}, nil)
	bytesEnqueuedDesc = prometheus.NewDesc(
		namespace+"_bytes_enqueued_total",
		"Total payload bytes handed to the output queue",
		[]string{"thread"}, nil)
	dropsDesc = prometheus.NewDesc(
		namespace+"_drops_total",
		"Total number of packets or records dropped",
		[]string{"thread", "stage"}, nil)
	noRecordDesc = prometheus.NewDesc(
		namespace+"_packets_no_record_total",
		"Total number of packets that produced no record",
		[]string{"thread"}, nil)

	outputRecordsDesc = prometheus.NewDesc(
		namespace+"_output_records_total",
		"Total number of records written by the output coordinator",
		nil, nil)
	outputBytesDesc = prometheus.NewDesc(
		namespace+"_output_bytes_total",
		"Total bytes written by the output coordinator",
		nil, nil)
	coordinatorStateDesc = prometheus.NewDesc(
		namespace+"_coordinator_state",
		"Output coordinator state (0=uninitialized 1=waiting 2=draining 3=shutting_down 4=terminated)",
		nil, nil)
	admissionPercentDesc = prometheus.NewDesc(
		namespace+"_admission_percent",
		"Current adaptive admission percentage",
		nil, nil)
)

// Snapshotter is implemented by *pipeline.Pipeline.
type Snapshotter interface {
	Snapshot() pipeline.Snapshot
}

// Collector reads a fresh pipeline snapshot on every scrape, so the hot path
// only ever touches its own atomics.
type Collector struct {
	source Snapshotter
}

// NewCollector creates a collector over s.
func NewCollector(s Snapshotter) *Collector {
	return &Collector{source: s}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- packetsReadDesc
	ch <- recordsEnqueuedDesc
	ch <- bytesEnqueuedDesc
	ch <- dropsDesc
	ch <- noRecordDesc
	ch <- outputRecordsDesc
	ch <- outputBytesDesc
	ch <- coordinatorStateDesc
	ch <- admissionPercentDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	for i, t := range snap.PerThread {
		thread := strconv.Itoa(i)
		counter := func(d *prometheus.Desc, v uint64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), append([]string{thread}, labels...)...)
		}
		counter(packetsReadDesc, t.PacketsRead)
		counter(recordsEnqueuedDesc, t.PacketsWritten)
		counter(bytesEnqueuedDesc, t.BytesWritten)
		counter(noRecordDesc, t.NoRecord)
		counter(dropsDesc, t.PacketsDropped, "admission")
		counter(dropsDesc, t.QueueDrops, "queue")
		counter(dropsDesc, t.KernelDrops, "kernel")
	}

	ch <- prometheus.MustNewConstMetric(outputRecordsDesc, prometheus.CounterValue, float64(snap.Output.Records))
	ch <- prometheus.MustNewConstMetric(outputBytesDesc, prometheus.CounterValue, float64(snap.Output.Bytes))
	ch <- prometheus.MustNewConstMetric(coordinatorStateDesc, prometheus.GaugeValue, float64(snap.CoordinatorState))
	if snap.AdmissionPercent >= 0 {
		ch <- prometheus.MustNewConstMetric(admissionPercentDesc, prometheus.GaugeValue, float64(snap.AdmissionPercent))
	}
}
