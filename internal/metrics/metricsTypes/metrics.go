package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_LedgerCall  = "ledger.call"
	Metric_Incr_HttpRequest = "rpc.http.request"

	Metric_Gauge_CurrentEpoch     = "ledger.currentEpoch"
	Metric_Gauge_Participants     = "ledger.participants"
	Metric_Gauge_ChainBlockHeight = "chain.blockHeight"

	Metric_Timing_LedgerCallDuration = "ledger.call.duration"
	Metric_Timing_HttpDuration       = "rpc.http.duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_LedgerCall,
			Labels: []string{"kind", "outcome"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_HttpRequest,
			Labels: []string{"path", "status"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_CurrentEpoch,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_Participants,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_ChainBlockHeight,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_LedgerCallDuration,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_HttpDuration,
			Labels: []string{"path"},
		},
	},
}
