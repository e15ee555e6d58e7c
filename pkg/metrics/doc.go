/*
Package metrics defines Nexus's Prometheus instrumentation: query and
transaction counters/histograms, storage and WAL gauges, index sizes,
and replication lag/replica-count gauges, all registered on a private
prometheus.Registry rather than the global DefaultRegisterer.

# Why a private registry

An embedding process may run more than one Engine (tests commonly do),
and each Engine's metrics would collide by name on the global registry.
NewRegistry creates and registers every metric fresh each call; the
caller decides whether and how to expose Registry.Handler() over HTTP
(cmd/nexusd serves it on /metrics when started with --metrics-addr).

# Collector

Collector polls an engine on a fixed interval and updates the gauges a
single point-in-time snapshot can answer (node/relationship counts,
storage bytes, replication lag). The counters and histograms are
registered but no engine code path updates them; a caller records them
itself, for example with Timer.

	reg := metrics.NewRegistry()
	collector := metrics.NewCollector(eng, reg, cfg.DefaultDatabase)
	collector.Start()
	defer collector.Stop()

# Timer

Timer is a small stopwatch helper for recording a histogram observation
around a block of code:

	timer := metrics.NewTimer()
	result, err := executor.Run(plan)
	timer.ObserveDurationVec(reg.QueryDuration, db)
*/
package metrics
