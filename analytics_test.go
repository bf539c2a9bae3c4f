package auth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
)

// recentRows returns n rows of table, newest first, an hour apart ending at last.
func recentRows(prefix string, n int, last time.Time) []auth.RecentRecord {
	rows := make([]auth.RecentRecord, n)
	for i := range rows {
		rows[i] = auth.RecentRecord{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			CreatedAt: last.Add(-time.Duration(i) * time.Hour),
		}
	}
	return rows
}

func TestSystemStatsMergesFeed(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := auth.NewMetrics(reg)
	require.NoError(t, err)

	f := newAdminFixture(profile("mod", auth.RoleModerator, auth.StatusActive), auth.WithAdminMetrics(metrics))
	f.store.On("CountProfiles", actingAs("mod")).Return(&auth.UserStats{Total: 12, Active: 9, Pending: 3}, nil)
	// trades are interleaved with strategies half an hour apart
	f.store.On("RecentRecords", mock.Anything, auth.TableTrades, 100).
		Return(recentRows("trade", 40, fixedNow), nil)
	f.store.On("RecentRecords", mock.Anything, auth.TableStrategies, 50).
		Return(recentRows("strategy", 7, fixedNow.Add(-30*time.Minute)), nil)

	stats, err := f.service.SystemStats(context.Background(), session("mod"))
	require.NoError(t, err)

	assert.Equal(t, 12, stats.TotalUsers)
	assert.Equal(t, 9, stats.ActiveUsers)
	assert.Equal(t, 40, stats.TotalTrades)
	assert.Equal(t, 7, stats.TotalStrategies)
	assert.Empty(t, stats.Unavailable)

	var ids []string
	for _, item := range stats.RecentActivity {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{
		"trade-0", "strategy-0",
		"trade-1", "strategy-1",
		"trade-2", "strategy-2",
		"trade-3", "trade-4",
	}, ids)
	assert.Equal(t, auth.TableStrategies, stats.RecentActivity[1].Table)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AdminOperationCounter(auth.OperationAnalytics, "success")))
	f.store.AssertExpectations(t)
}

func TestSystemStatsToleratesUnavailableSources(t *testing.T) {
	missing := &auth.RemoteError{Code: "42P01", Message: `relation "public.strategies" does not exist`}

	tests := []struct {
		name        string
		countErr    error
		tradesErr   error
		strategyErr error
		unavailable []string
		totalUsers  int
		totalTrades int
	}{
		{
			name:        "missing strategies table",
			strategyErr: missing,
			unavailable: []string{"strategies"},
			totalUsers:  4,
			totalTrades: 2,
		},
		{
			name:        "profiles unreadable",
			countErr:    errors.New("connection refused"),
			unavailable: []string{"user_profiles"},
			totalTrades: 2,
		},
		{
			name:        "nothing readable",
			countErr:    errors.New("connection refused"),
			tradesErr:   missing,
			strategyErr: missing,
			unavailable: []string{"user_profiles", "trades", "strategies"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(profile("adm", auth.RoleAdmin, auth.StatusActive))
			if tt.countErr != nil {
				f.store.On("CountProfiles", mock.Anything).Return(nil, tt.countErr)
			} else {
				f.store.On("CountProfiles", mock.Anything).Return(&auth.UserStats{Total: 4, Active: 3}, nil)
			}
			trades := recentRows("trade", 2, fixedNow)
			if tt.tradesErr != nil {
				trades = nil
			}
			f.store.On("RecentRecords", mock.Anything, auth.TableTrades, 100).Return(trades, tt.tradesErr)
			f.store.On("RecentRecords", mock.Anything, auth.TableStrategies, 50).Return(nil, tt.strategyErr)

			stats, err := f.service.SystemStats(context.Background(), session("adm"))
			require.NoError(t, err)
			assert.Equal(t, tt.unavailable, stats.Unavailable)
			assert.Equal(t, tt.totalUsers, stats.TotalUsers)
			assert.Equal(t, tt.totalTrades, stats.TotalTrades)
			assert.Zero(t, stats.TotalStrategies)
			assert.NotNil(t, stats.RecentActivity)
		})
	}
}

func TestSystemStatsRequiresAdminPanel(t *testing.T) {
	f := newAdminFixture(profile("u", auth.RoleUser, auth.StatusActive))

	_, err := f.service.SystemStats(context.Background(), session("u"))
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeForbidden), err.Error())
	assert.Empty(t, f.store.Calls)
}
