package metrics

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type StakingMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	totalStaked    prometheus.Gauge
	poolBalance    prometheus.Gauge
	emissionMinted prometheus.Counter
	feesCollected  prometheus.Counter
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

var weiPerToken = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "operations_total",
				Help:      "Count of staking operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "operation_duration_seconds",
				Help:      "Latency of staking operations including persistence.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			}, []string{"operation"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "total_staked_tokens",
				Help:      "Principal plus credited yield held for depositors.",
			}),
			poolBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "pool_balance_tokens",
				Help:      "Token balance of the pool custody address.",
			}),
			emissionMinted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "emission_minted_tokens_total",
				Help:      "Yield credited to depositors.",
			}),
			feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "withdrawal_fees_tokens_total",
				Help:      "Forced withdrawal fees routed to the reward address.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.totalStaked,
			stakingRegistry.poolBalance,
			stakingRegistry.emissionMinted,
			stakingRegistry.feesCollected,
		)
	})
	return stakingRegistry
}

// tokens converts a wei amount into whole tokens for gauge export.
func tokens(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := new(big.Float).Quo(f, weiPerToken).Float64()
	return out
}

func (m *StakingMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *StakingMetrics) SetTotalStaked(v *uint256.Int) {
	if m == nil {
		return
	}
	m.totalStaked.Set(tokens(v))
}

func (m *StakingMetrics) SetPoolBalance(v *uint256.Int) {
	if m == nil {
		return
	}
	m.poolBalance.Set(tokens(v))
}

func (m *StakingMetrics) AddEmission(v *uint256.Int) {
	if m == nil || v == nil || v.IsZero() {
		return
	}
	m.emissionMinted.Add(tokens(v))
}

func (m *StakingMetrics) AddFee(v *uint256.Int) {
	if m == nil || v == nil || v.IsZero() {
		return
	}
	m.feesCollected.Add(tokens(v))
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// format. Short-lived CLI invocations use it instead of a scrape endpoint.
func WriteTextfile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
