// Package telemetry exports engine counters to Prometheus.
package telemetry

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

const namespace = "xgrid"

// Source is what the Collector reads, usually an *xgrid.Engine.
type Source interface {
	ID() uint16
	Firmware() (build uint32, crc uint16)
	Stats() xgrid.Stats
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(*xgrid.Stats) uint64
}

func newCounter(name, help string, value func(*xgrid.Stats) uint64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"node"}, nil),
		value: value,
	}
}

var (
	counters = []counterDesc{
		newCounter("rx_frames_total", "Frames received and accepted.", func(s *xgrid.Stats) uint64 { return s.RxFrames }),
		newCounter("tx_frames_total", "Frames fully transmitted.", func(s *xgrid.Stats) uint64 { return s.TxFrames }),
		newCounter("sent_total", "Locally originated packets queued.", func(s *xgrid.Stats) uint64 { return s.Sent }),
		newCounter("relayed_total", "Frames relayed to other links.", func(s *xgrid.Stats) uint64 { return s.Relayed }),
		newCounter("duplicates_total", "Frames dropped as duplicates.", func(s *xgrid.Stats) uint64 { return s.Duplicates }),
		newCounter("filtered_total", "Frames dropped during firmware updates.", func(s *xgrid.Stats) uint64 { return s.Filtered }),
		newCounter("malformed_total", "Frames with an impossible size or payload.", func(s *xgrid.Stats) uint64 { return s.Malformed }),
		newCounter("resynced_bytes_total", "Garbage bytes skipped.", func(s *xgrid.Stats) uint64 { return s.Resynced }),
		newCounter("alloc_stalls_total", "Receive attempts stalled on an exhausted pool.", func(s *xgrid.Stats) uint64 { return s.AllocStalls }),
		newCounter("send_failures_total", "Local sends refused by an exhausted pool.", func(s *xgrid.Stats) uint64 { return s.SendFailures }),
		newCounter("unhandled_total", "Packets without handler.", func(s *xgrid.Stats) uint64 { return s.Unhandled }),
		newCounter("blocks_written_total", "Firmware pages staged.", func(s *xgrid.Stats) uint64 { return s.BlocksWritten }),
		newCounter("blocks_sent_total", "Firmware pages pushed.", func(s *xgrid.Stats) uint64 { return s.BlocksSent }),
		newCounter("installs_total", "Firmware images installed.", func(s *xgrid.Stats) uint64 { return s.Installs }),
		newCounter("crc_failures_total", "Pulled images failing verification.", func(s *xgrid.Stats) uint64 { return s.CRCFailures }),
	}

	slotsDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "slots_in_use"),
		"Buffer pool slots in use.", []string{"node"}, nil)
	stateDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "update_state"),
		"Firmware update state, constant 1.", []string{"node", "state"}, nil)
	buildDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "firmware_info"),
		"Running firmware, constant 1.", []string{"node", "build", "crc"}, nil)
)

// Collector implements prometheus.Collector over engines.
type Collector struct {
	lock    sync.RWMutex
	sources []Source
}

// NewCollector creates a Collector.
func NewCollector(sources ...Source) *Collector {
	return &Collector{sources: sources}
}

// Add adds engines.
func (c *Collector) Add(sources ...Source) {
	c.lock.Lock()
	c.sources = append(c.sources, sources...)
	c.lock.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range counters {
		ch <- cd.desc
	}
	ch <- slotsDesc
	ch <- stateDesc
	ch <- buildDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	sources := c.sources
	c.lock.RUnlock()
	for _, src := range sources {
		node := fmt.Sprintf("%04x", src.ID())
		stats := src.Stats()
		for _, cd := range counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(&stats)), node)
		}
		ch <- prometheus.MustNewConstMetric(slotsDesc, prometheus.GaugeValue, float64(stats.SlotsInUse), node)
		ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, 1, node, stats.State.String())
		build, crc := src.Firmware()
		ch <- prometheus.MustNewConstMetric(buildDesc, prometheus.GaugeValue, 1,
			node, fmt.Sprint(build), fmt.Sprintf("%04x", crc))
	}
}

// NewRegistry creates a registry with the collector and the Go runtime
// collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c, collectors.NewGoCollector())
	return reg
}

// MetricsHandler exposes /metrics. Mount it with
// mux.Handle("/metrics", telemetry.MetricsHandler(reg)).
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
