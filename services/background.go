package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sweeper periodically expires overdue reschedule offers. Multiple sweepers
// (or the lazy sweep in the coordinator) can overlap safely; each expiry is
// a conditional transition.
type Sweeper struct {
	coordinator *RescheduleCoordinator
	interval    time.Duration
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewSweeper(coordinator *RescheduleCoordinator, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		coordinator: coordinator,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("reschedule sweeper started", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			count, err := s.coordinator.SweepExpired(context.Background())
			if err != nil {
				slog.Error("reschedule sweep failed", "error", err)
				continue
			}
			if count > 0 {
				slog.Info("expired reschedule offers", "count", count)
			}
		case <-s.stopChan:
			slog.Info("reschedule sweeper stopping")
			return
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// PositionNotifier recomputes queue positions per active service on a timer
// and pushes throttled updates to citizens. The ordering here is a
// read-time derivation for display only; call-next never consults it.
type PositionNotifier struct {
	redis    *redis.Client
	store    TokenStore
	notifier Notifier
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPositionNotifier(redisClient *redis.Client, store TokenStore, notifier Notifier, interval time.Duration) *PositionNotifier {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PositionNotifier{
		redis:    redisClient,
		store:    store,
		notifier: notifier,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (p *PositionNotifier) Start() {
	p.wg.Add(1)
	go p.run()
}

func (p *PositionNotifier) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("position notifier started", "interval", p.interval)

	for {
		select {
		case <-ticker.C:
			p.updateAllPositions()
		case <-p.stopChan:
			slog.Info("position notifier stopping")
			return
		}
	}
}

func (p *PositionNotifier) updateAllPositions() {
	ctx := context.Background()

	serviceIDs, err := p.redis.SMembers(ctx, "active_services").Result()
	if err != nil {
		slog.Error("failed to list active services", "error", err)
		return
	}

	for _, serviceID := range serviceIDs {
		waiting, err := p.store.ListWaiting(ctx, serviceID)
		if err != nil {
			slog.Error("failed to list waiting tokens", "service_id", serviceID, "error", err)
			continue
		}

		for i, token := range Rank(waiting) {
			position := i + 1
			if shouldNotifyPosition(position) {
				p.notifier.CitizenPosition(token.CitizenID, serviceID, position)
			}
		}
	}
}

// shouldNotifyPosition throttles updates: citizens near the front hear
// every tick, the deep queue only on round numbers.
func shouldNotifyPosition(position int) bool {
	switch {
	case position <= 5:
		return true
	case position <= 20:
		return position%2 == 0
	case position <= 100:
		return position%10 == 0
	default:
		return position%50 == 0
	}
}

func (p *PositionNotifier) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
