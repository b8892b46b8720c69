// Package metrics holds the prometheus collectors of the data access layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "decentium"

// Eviction reasons.
const (
	ReasonCapacity = "capacity"
	ReasonAge      = "age"
	ReasonReplaced = "replaced"
	ReasonPurge    = "purge"
)

// Metrics groups every collector the client exposes.
type Metrics struct {
	RPCRequests    *prometheus.CounterVec
	RPCRetries     *prometheus.CounterVec
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions *prometheus.CounterVec
	ABIFallbacks   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered, which is what tests and embedded clients usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Node RPC attempts by method and outcome.",
		}, []string{"method", "status"}),
		RPCRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_retries_total",
			Help:      "Node RPC retries by method.",
		}, []string{"method"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_cache_hits_total",
			Help:      "Block cache lookups served from memory.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_cache_misses_total",
			Help:      "Block cache lookups that missed.",
		}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_cache_evictions_total",
			Help:      "Blocks evicted from the cache by reason.",
		}, []string{"reason"}),
		ABIFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abi_fallback_total",
			Help:      "Action payloads decoded locally after the node failed to, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RPCRequests,
			m.RPCRetries,
			m.CacheHits,
			m.CacheMisses,
			m.CacheEvictions,
			m.ABIFallbacks,
		)
	}
	return m
}
