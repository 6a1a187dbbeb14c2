package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/mezonai/mvnode/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BlockRejectedReason string

var (
	BlockMissingParent   BlockRejectedReason = "missing_parent"
	BlockInvalidHeader   BlockRejectedReason = "invalid_header"
	BlockLedgerError     BlockRejectedReason = "ledger_error"
	BlockStorageError    BlockRejectedReason = "storage_error"
	BlockRejectedUnknown BlockRejectedReason = "other"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	tipChainLength    prometheus.Gauge
	blockTime         prometheus.Histogram
	applyDuration     prometheus.Histogram
	appliedBlockCount prometheus.Counter
	rejectedBlocks    *prometheus.CounterVec
	fragmentsInBlock  prometheus.Histogram
	multiverseSize    prometheus.Gauge
	gcSwept           prometheus.Counter
	explorerLength    prometheus.Gauge
	peerCount         prometheus.Gauge
	panicCount        prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mvnode_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		tipChainLength: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mvnode_tip_chain_length",
				Help: "Chain length of the current tip",
			},
		),
		blockTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "mvnode_block_time",
				Help: "Duration in second between two consecutive tip updates",
			},
		),
		applyDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mvnode_block_apply_seconds",
				Help:    "Time spent applying and storing one block",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		appliedBlockCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mvnode_applied_block_count",
				Help: "The total number of blocks applied and stored",
			},
		),
		rejectedBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mvnode_rejected_block_count",
				Help: "The total number of rejected blocks or headers",
			},
			[]string{"reason"},
		),
		fragmentsInBlock: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "mvnode_fragments_in_block",
				Help: "Number of fragments in applied blocks",
			},
		),
		multiverseSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mvnode_multiverse_states",
				Help: "Number of ledger states held in memory",
			},
		),
		gcSwept: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mvnode_multiverse_gc_swept_count",
				Help: "The total number of ledger states released by garbage collection",
			},
		),
		explorerLength: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mvnode_explorer_indexed_chain_length",
				Help: "Highest chain length indexed by the explorer",
			},
		),
		peerCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mvnode_peer_count",
				Help: "The total number of connected peers",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mvnode_panic_count",
				Help: "The total number of recovered panics",
			},
		),
	}
}

var (
	initOnce    sync.Once
	nodeMetrics *nodePromMetrics
)

func metrics() *nodePromMetrics {
	initOnce.Do(func() {
		nodeMetrics = newNodePromMetrics()
	})
	return nodeMetrics
}

// InitMetrics registers the node metrics without exposing them. Calling it
// more than once is harmless; recorders initialize lazily too.
func InitMetrics() {
	metrics().nodeUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetTipChainLength(length uint32) {
	metrics().tipChainLength.Set(float64(length))
}

func RecordBlockTime(duration time.Duration) {
	metrics().blockTime.Observe(duration.Seconds())
}

func RecordApplyDuration(duration time.Duration) {
	metrics().applyDuration.Observe(duration.Seconds())
}

func IncreaseAppliedBlockCount() {
	metrics().appliedBlockCount.Inc()
}

func RecordRejectedBlock(reason BlockRejectedReason) {
	metrics().rejectedBlocks.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func RecordFragmentsInBlock(count int) {
	metrics().fragmentsInBlock.Observe(float64(count))
}

func SetMultiverseSize(states int) {
	metrics().multiverseSize.Set(float64(states))
}

func AddGCSwept(n int) {
	metrics().gcSwept.Add(float64(n))
}

func SetExplorerChainLength(length uint32) {
	metrics().explorerLength.Set(float64(length))
}

func SetPeerCount(peers int) {
	metrics().peerCount.Set(float64(peers))
}

func IncreasePanicCount() {
	metrics().panicCount.Inc()
}
