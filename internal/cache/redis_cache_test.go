package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioclinics/backoffice/internal/domain"
)

func setupTestRedis(t *testing.T) (*RedisReportCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisReportCacheWithClient(client), mr
}

func sampleReport() *domain.SalesReport {
	return &domain.SalesReport{
		Summary: domain.SalesReportSummary{
			DayTotal:   decimal.RequireFromString("120.50"),
			MonthTotal: decimal.RequireFromString("980.00"),
			TotalCount: 3,
			TargetDate: "2024-01-15",
			MonthStart: "2024-01-01",
			MonthEnd:   "2024-01-31",
		},
		Pagination: domain.Pagination{Page: 1, Limit: 15, Total: 3},
	}
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "2024-01-15")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "2024-01-15", sampleReport(), time.Minute))

	got, found, err := c.Get(ctx, "2024-01-15")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Summary.DayTotal.Equal(decimal.RequireFromString("120.50")))
	assert.Equal(t, "2024-01-31", got.Summary.MonthEnd)
}

func TestRedisReportCacheInvalidateHidesOldEntries(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", sampleReport(), time.Minute))
	require.NoError(t, c.Invalidate(ctx))

	_, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisReportCacheExpires(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", sampleReport(), time.Second))
	mr.FastForward(2 * time.Second)

	_, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}
