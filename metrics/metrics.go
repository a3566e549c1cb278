// Package metrics holds the Prometheus collectors of the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "omnibatch"

var registry = prometheus.NewRegistry()

var (
	// ComputationsQueued counts computations posted to the cluster, by circuit.
	ComputationsQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "computations_queued_total",
		Help:      "Computations queued for the MPC cluster.",
	}, []string{"circuit"})
	// ComputationsCompleted counts callbacks that consumed an output.
	ComputationsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "computations_completed_total",
		Help:      "Computations whose callback finished, by circuit and result.",
	}, []string{"circuit", "result"})
	// ComputationsAborted counts cluster aborts and rejected outputs.
	ComputationsAborted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "computations_aborted_total",
		Help:      "Computations aborted by the cluster or with an invalid output.",
	}, []string{"circuit"})
	// ComputationsRebased counts accumulate computations re-queued on a newer
	// accumulator state.
	ComputationsRebased = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "computations_rebased_total",
		Help:      "Order accumulations re-queued after a concurrent batch update.",
	})
	// BatchesExecuted counts revealed and netted batches.
	BatchesExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_executed_total",
		Help:      "Batches revealed and netted.",
	})
	// BatchesFailed counts reveals that did not pass admission.
	BatchesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_failed_total",
		Help:      "Batch reveals rejected by admission.",
	})
	// SwapsExecuted counts vault/reserve rebalancings.
	SwapsExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swaps_executed_total",
		Help:      "Vault and reserve rebalancings executed.",
	})
	// Settlements counts settled orders.
	Settlements = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Orders settled.",
	})
	// AccumulatorOrders tracks the accepted orders of the current batch.
	AccumulatorOrders = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "accumulator_orders",
		Help:      "Accepted orders in the current batch.",
	})
	// QueueLength tracks computations waiting for the cluster.
	QueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "computation_queue_length",
		Help:      "Computations waiting for the cluster.",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ComputationsQueued,
		ComputationsCompleted,
		ComputationsAborted,
		ComputationsRebased,
		BatchesExecuted,
		BatchesFailed,
		SwapsExecuted,
		Settlements,
		AccumulatorOrders,
		QueueLength,
	)
}

// Handler serves the collectors in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
