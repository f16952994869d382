package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0") // Mock stream ID
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func record(n string) *models.ProductRecord {
	rec := models.NewProductRecord("https://www.adidas.jp/tee/" + n + ".html")
	rec.Title = "Tシャツ " + n
	rec.Price = "¥3,990"
	return rec
}

func TestPublisherWrite(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()

	t.Run("one entry per record in order", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		pub := NewPublisher(mockRedis, "", runID, slog.Default())
		fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		pub.now = func() time.Time { return fixed }

		var calls []*redis.XAddArgs
		mockRedis.On("XAdd", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
			calls = append(calls, args.Get(1).(*redis.XAddArgs))
		}).Twice()

		require.NoError(t, pub.Write(ctx, []*models.ProductRecord{record("A"), record("B")}))
		mockRedis.AssertExpectations(t)
		require.Len(t, calls, 2)

		for i, want := range []string{"https://www.adidas.jp/tee/A.html", "https://www.adidas.jp/tee/B.html"} {
			assert.Equal(t, DefaultStream, calls[i].Stream)
			values := calls[i].Values.(map[string]interface{})
			assert.Equal(t, want, values["aggregate_id"])
			assert.Equal(t, "PRODUCT_EXTRACTED", values["type"])
			assert.Equal(t, fmt.Sprintf("%d", fixed.UnixNano()), values["timestamp"])

			var data map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &data))
			assert.Equal(t, AggregateType, data["aggregate_type"])
			payload := data["payload"].(map[string]interface{})
			assert.Equal(t, runID.String(), payload["run_id"])
			product := payload["product"].(map[string]interface{})
			assert.Equal(t, "¥3,990", product["price"])
			assert.Equal(t, want, product["url"])
		}
	})

	t.Run("stops on publish failure", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		pub := NewPublisher(mockRedis, "stream:test", runID, slog.Default())
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis unavailable")).Once()

		err := pub.Write(ctx, []*models.ProductRecord{record("A"), record("B")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to publish to redis")
		mockRedis.AssertNumberOfCalls(t, "XAdd", 1)
	})

	t.Run("cancelled context publishes nothing", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		pub := NewPublisher(mockRedis, "", runID, slog.Default())
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		assert.ErrorIs(t, pub.Write(cctx, []*models.ProductRecord{record("A")}), context.Canceled)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})
}
