package metrics

import (
	"context"
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type MatrixMetrics struct {
	txs         *prometheus.CounterVec
	payouts     *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	users       prometheus.Gauge
	royaltyPool *prometheus.GaugeVec

	// otlpTxs mirrors txs for the OTLP exporter. Instruments created before
	// the meter provider is installed are forwarded once it is.
	otlpTxs metric.Int64Counter
}

var (
	matrixOnce     sync.Once
	matrixRegistry *MatrixMetrics
)

func Matrix() *MatrixMetrics {
	matrixOnce.Do(func() {
		matrixRegistry = &MatrixMetrics{
			txs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "matrix_tx_total",
				Help: "Count of engine operations by name and outcome.",
			}, []string{"op", "outcome"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "matrix_payout_wei_total",
				Help: "Cumulative wei routed per payout kind.",
			}, []string{"kind"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "matrix_rejections_total",
				Help: "Count of rejected engine operations by error code.",
			}, []string{"op", "code"}),
			users: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "matrix_users",
				Help: "Registered participants excluding the root.",
			}),
			royaltyPool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "matrix_royalty_pool_wei",
				Help: "Undistributed royalty pool per tier.",
			}, []string{"tier"}),
		}
		if counter, err := otel.Meter("matrixchain/matrix").Int64Counter("matrix.tx",
			metric.WithDescription("Engine operations by name and outcome.")); err == nil {
			matrixRegistry.otlpTxs = counter
		}
		prometheus.MustRegister(
			matrixRegistry.txs,
			matrixRegistry.payouts,
			matrixRegistry.rejections,
			matrixRegistry.users,
			matrixRegistry.royaltyPool,
		)
	})
	return matrixRegistry
}

func (m *MatrixMetrics) ObserveTx(op string, err error, code string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if code == "" {
			code = "internal"
		}
		m.rejections.WithLabelValues(op, code).Inc()
	}
	m.txs.WithLabelValues(op, outcome).Inc()
	if m.otlpTxs != nil {
		m.otlpTxs.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}
}

// AddPayout accumulates amount under kind. Nil and non-positive amounts are
// ignored.
func (m *MatrixMetrics) AddPayout(kind string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.payouts.WithLabelValues(kind).Add(value)
}

func (m *MatrixMetrics) SetUsers(total uint64) {
	if m == nil {
		return
	}
	m.users.Set(float64(total))
}

func (m *MatrixMetrics) SetRoyaltyPool(tier uint64, pool *big.Int) {
	if m == nil {
		return
	}
	value := 0.0
	if pool != nil {
		value, _ = new(big.Float).SetInt(pool).Float64()
	}
	m.royaltyPool.WithLabelValues(strconv.FormatUint(tier, 10)).Set(value)
}
