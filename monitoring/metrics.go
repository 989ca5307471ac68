package monitoring

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	tokensWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_tokens_waiting",
			Help: "Current number of waiting tokens per service",
		},
		[]string{"service_id"},
	)

	reschedulesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_reschedules_pending",
			Help: "Current number of open reschedule offers",
		},
	)

	tokenOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_token_operations_total",
			Help: "Total token operations by outcome",
		},
		[]string{"operation", "service_id", "outcome"},
	)

	waitEstimates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_wait_estimate_minutes",
			Help:    "Wait estimates handed to joining citizens",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"service_id"},
	)
)

type Monitor struct {
	redis    *redis.Client
	stopChan chan struct{}
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{
		redis:    redisClient,
		stopChan: make(chan struct{}),
	}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collectQueueMetrics(context.Background())
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	waitingKeys, _ := m.redis.Keys(ctx, "queue:waiting:*").Result()
	for _, key := range waitingKeys {
		serviceID := strings.TrimPrefix(key, "queue:waiting:")
		depth, _ := m.redis.SCard(ctx, key).Result()
		tokensWaiting.WithLabelValues(serviceID).Set(float64(depth))
	}

	pending, _ := m.redis.SCard(ctx, "reschedule:pending").Result()
	reschedulesPending.Set(float64(pending))
}

// TrackTokenOperation counts a queue operation outcome.
func (m *Monitor) TrackTokenOperation(operation, serviceID, outcome string) {
	tokenOperations.WithLabelValues(operation, serviceID, outcome).Inc()
}

// TrackWaitEstimate records the estimate handed out at join time.
func (m *Monitor) TrackWaitEstimate(serviceID string, minutes int) {
	waitEstimates.WithLabelValues(serviceID).Observe(float64(minutes))
}

func (m *Monitor) Stop() {
	close(m.stopChan)
}
