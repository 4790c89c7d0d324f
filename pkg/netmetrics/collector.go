// Package netmetrics exposes per-peer endpoint statistics as Prometheus
// metrics, grounded on runZeroInc-sockstats's TCPInfoCollector
// (pkg/exporter/exporter.go): a Describe/Collect pair reading live state
// out of a registered set of peers rather than pushing updates.
package netmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/majg0/lockstep/pkg/endpoint"
)

type info struct {
	description *prometheus.Desc
	supplier    func(e *endpoint.Endpoint, labelValues []string) prometheus.Metric
}

type peerEntry struct {
	endpoint *endpoint.Endpoint
	labels   []string
}

// EndpointCollector reports live endpoint.Counters and RTT for every
// registered peer each time Prometheus scrapes the registry.
type EndpointCollector struct {
	mu    sync.Mutex
	peers map[string]peerEntry
	infos []info
}

// NewEndpointCollector builds a collector with the given metric name
// prefix. connectionLabels are the per-peer label names supplied at Add
// time; constLabels apply to every metric regardless of peer.
func NewEndpointCollector(prefix string, connectionLabels []string, constLabels prometheus.Labels) *EndpointCollector {
	c := &EndpointCollector{
		peers: make(map[string]peerEntry),
	}
	c.addMetrics(prefix, connectionLabels, constLabels)
	return c
}

func (c *EndpointCollector) addMetrics(prefix string, labels []string, constLabels prometheus.Labels) {
	newDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prefix+"_"+name, help, labels, constLabels)
	}

	packetsSent := newDesc("packets_sent_total", "packets created for this peer")
	packetsReceived := newDesc("packets_received_total", "packets received from this peer, including duplicates")
	packetsReceivedNew := newDesc("packets_received_new_total", "non-duplicate packets received from this peer")
	bytesSent := newDesc("bytes_sent_total", "bytes sent to this peer")
	bytesReceived := newDesc("bytes_received_total", "bytes received from this peer")
	rttSeconds := newDesc("rtt_seconds", "smoothed round trip time")

	c.infos = []info{
		{
			description: packetsSent,
			supplier: func(e *endpoint.Endpoint, lv []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(packetsSent, prometheus.CounterValue, float64(e.Stats.PacketsCreated), lv...)
			},
		},
		{
			description: packetsReceived,
			supplier: func(e *endpoint.Endpoint, lv []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(packetsReceived, prometheus.CounterValue, float64(e.Stats.PacketsReceived), lv...)
			},
		},
		{
			description: packetsReceivedNew,
			supplier: func(e *endpoint.Endpoint, lv []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(packetsReceivedNew, prometheus.CounterValue, float64(e.Stats.NewPacketsReceived), lv...)
			},
		},
		{
			description: bytesSent,
			supplier: func(e *endpoint.Endpoint, lv []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(bytesSent, prometheus.CounterValue, float64(e.Stats.BytesSent), lv...)
			},
		},
		{
			description: bytesReceived,
			supplier: func(e *endpoint.Endpoint, lv []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(bytesReceived, prometheus.CounterValue, float64(e.Stats.BytesReceived), lv...)
			},
		},
		{
			description: rttSeconds,
			supplier: func(e *endpoint.Endpoint, lv []string) prometheus.Metric {
				return prometheus.MustNewConstMetric(rttSeconds, prometheus.GaugeValue, e.RTTAverage().Seconds(), lv...)
			},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *EndpointCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, i := range c.infos {
		descs <- i.description
	}
}

// Collect implements prometheus.Collector.
func (c *EndpointCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.peers {
		for _, i := range c.infos {
			metrics <- i.supplier(entry.endpoint, entry.labels)
		}
	}
}

// Add registers a peer's endpoint for scraping under the given label
// values, matching connectionLabels' order from NewEndpointCollector.
func (c *EndpointCollector) Add(key string, e *endpoint.Endpoint, labelValues []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[key] = peerEntry{endpoint: e, labels: labelValues}
}

// Remove unregisters a peer, e.g. on connection timeout.
func (c *EndpointCollector) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.peers, key)
}
