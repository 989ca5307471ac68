package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"queue-system/models"
)

// ServiceDayStats are queryable aggregates over a service's terminal tokens
// for one day. They are derived on demand from the retained records, never
// kept as process-local counters that would reset on restart.
type ServiceDayStats struct {
	ServiceID    string          `json:"service_id"`
	Day          string          `json:"day"`
	Served       int             `json:"served"`
	NoShows      int             `json:"no_shows"`
	Cancelled    int             `json:"cancelled"`
	NoShowRate   decimal.Decimal `json:"no_show_rate"`
	AvgHandleMin decimal.Decimal `json:"avg_handle_min"`
	Reschedules  int             `json:"reschedules"`
}

type AnalyticsService struct {
	Redis *redis.Client
}

func NewAnalyticsService(redisClient *redis.Client) *AnalyticsService {
	return &AnalyticsService{Redis: redisClient}
}

// StatsFor scans the terminal index for a service and day and folds the
// token records into aggregates. Handle times come out as decimal minutes
// so small samples don't collapse to zero the way integer division would.
func (a *AnalyticsService) StatsFor(ctx context.Context, serviceID string, day time.Time) (*ServiceDayStats, error) {
	ids, err := a.Redis.SMembers(ctx, terminalKey(serviceID, day)).Result()
	if err != nil {
		return nil, err
	}

	stats := &ServiceDayStats{
		ServiceID:    serviceID,
		Day:          day.Format("2006-01-02"),
		NoShowRate:   decimal.Zero,
		AvgHandleMin: decimal.Zero,
	}

	handleTotal := decimal.Zero
	handled := 0

	for _, id := range ids {
		data, err := a.Redis.HGetAll(ctx, tokenKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		token := tokenFromHash(data)

		switch token.Status {
		case models.TokenCompleted:
			stats.Served++
			if token.CalledAt != nil && token.CompletedAt != nil {
				minutes := decimal.NewFromFloat(token.CompletedAt.Sub(*token.CalledAt).Minutes())
				handleTotal = handleTotal.Add(minutes)
				handled++
			}
		case models.TokenNoShow:
			stats.NoShows++
		case models.TokenCancelled:
			stats.Cancelled++
		}
		stats.Reschedules += token.RescheduleCount
	}

	if called := stats.Served + stats.NoShows; called > 0 {
		stats.NoShowRate = decimal.NewFromInt(int64(stats.NoShows)).
			Div(decimal.NewFromInt(int64(called))).
			Round(4)
	}
	if handled > 0 {
		stats.AvgHandleMin = handleTotal.Div(decimal.NewFromInt(int64(handled))).Round(2)
	}

	return stats, nil
}
