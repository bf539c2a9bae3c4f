package auth

import (
	"context"
	"slices"
)

const (
	analyticsTradeLimit    = 100
	analyticsStrategyLimit = 50
	analyticsFeedSize      = 10
	profilesSource         = "user_profiles"
)

// feed share of each journal table before the merged feed is cut
var analyticsFeedShare = map[JournalTable]int{
	TableTrades:     5,
	TableStrategies: 3,
}

// SystemStats reads the analytics overview. Each source is read on its own;
// a source that fails, such as a journal table that does not exist yet, is
// reported in Unavailable and never fails the whole call.
func (s *AdminService) SystemStats(ctx context.Context, session *Session) (*SystemStats, error) {
	_, ctx, err := s.authorize(ctx, session, OperationAnalytics, CanAccessAdminPanel)
	if err != nil {
		return nil, err
	}

	out := &SystemStats{RecentActivity: []ActivityItem{}}
	unavailable := func(source string, err error) {
		s.logger.Warn("analytics source unavailable", "source", source, "error", err)
		out.Unavailable = append(out.Unavailable, source)
	}

	if users, err := s.store.CountProfiles(ctx); err != nil {
		unavailable(profilesSource, err)
	} else {
		out.TotalUsers = users.Total
		out.ActiveUsers = users.Active
	}

	for _, src := range []struct {
		table JournalTable
		limit int
		count *int
	}{
		{TableTrades, analyticsTradeLimit, &out.TotalTrades},
		{TableStrategies, analyticsStrategyLimit, &out.TotalStrategies},
	} {
		rows, err := s.store.RecentRecords(ctx, src.table, src.limit)
		if err != nil {
			unavailable(string(src.table), err)
			continue
		}
		*src.count = len(rows)
		for _, row := range rows[:min(len(rows), analyticsFeedShare[src.table])] {
			out.RecentActivity = append(out.RecentActivity, ActivityItem{
				Table:     src.table,
				ID:        row.ID,
				CreatedAt: row.CreatedAt,
			})
		}
	}

	slices.SortStableFunc(out.RecentActivity, func(a, b ActivityItem) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out.RecentActivity) > analyticsFeedSize {
		out.RecentActivity = out.RecentActivity[:analyticsFeedSize]
	}

	s.metrics.observeAdminOperation(OperationAnalytics, nil)
	return out, nil
}
