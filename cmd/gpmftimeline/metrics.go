package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promRecorder implements gpmf.Recorder on top of the standard Prometheus
// client. It's only constructed when --metrics-addr is set, so a caller
// that never passes the flag never pulls in a network listener.
type promRecorder struct {
	payloadsParsed prometheus.Counter
	parseDuration  prometheus.Histogram
	samplesEmitted prometheus.Counter
}

func newPromRecorder() *promRecorder {
	return &promRecorder{
		payloadsParsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gpmf_payloads_parsed_total",
			Help: "GPMF payloads parsed by Timeline.Assemble.",
		}),
		parseDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpmf_payload_parse_seconds",
			Help:    "Time to parse a single GPMF payload.",
			Buckets: prometheus.DefBuckets,
		}),
		samplesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gpmf_samples_emitted_total",
			Help: "Samples emitted into the timeline across all payloads.",
		}),
	}
}

func (p *promRecorder) PayloadParsed(d time.Duration) {
	p.payloadsParsed.Inc()
	p.parseDuration.Observe(d.Seconds())
}

func (p *promRecorder) SamplesEmitted(n int) {
	p.samplesEmitted.Add(float64(n))
}

// serveMetrics starts the /metrics listener in the background. Errors
// after startup are fatal to the exporter goroutine only, not the CLI
// itself — a dead metrics listener shouldn't abort an in-flight parse.
func serveMetrics(addr string, errc chan<- error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	errc <- http.ListenAndServe(addr, mux)
}
