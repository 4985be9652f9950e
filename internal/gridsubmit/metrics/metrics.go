package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "gridsubmit_"

type Metrics struct {
	batchesSubmitted prometheus.Counter
	jobsSubmitted    prometheus.Counter
	bytesStaged      prometheus.Counter
	enqueueFailures  prometheus.Counter
	requestErrors    *prometheus.CounterVec
}

func NewMetrics(prefix string) *Metrics {
	return &Metrics{
		batchesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "batches_submitted",
			Help: "Number of batches successfully submitted",
		}),
		jobsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "jobs_submitted",
			Help: "Number of jobs successfully submitted",
		}),
		bytesStaged: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "bytes_staged",
			Help: "Bytes written into the content-addressed file store",
		}),
		enqueueFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "enqueue_failures",
			Help: "Number of failed enqueue command invocations",
		}),
		requestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "request_errors",
			Help: "Number of RPC errors grouped by command",
		}, []string{"command"}),
	}
}

func (m *Metrics) RecordBatchSubmitted(njobs int) {
	m.batchesSubmitted.Inc()
	m.jobsSubmitted.Add(float64(njobs))
}

func (m *Metrics) RecordBytesStaged(n int64) {
	m.bytesStaged.Add(float64(n))
}

func (m *Metrics) RecordEnqueueFailure() {
	m.enqueueFailures.Inc()
}

func (m *Metrics) RecordRequestError(command string) {
	m.requestErrors.With(map[string]string{"command": command}).Inc()
}
