package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bigzbot/internal/models"
)

// APIClient fetches booking lists from the read-only schedule endpoint.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewAPIClient constructs a client for the schedule API at baseURL.
func NewAPIClient(baseURL string, logger *zerolog.Logger) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching for schedule reads.
func (c *APIClient) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// FetchBookings returns all bookings for a date (YYYYMMDD).
func (c *APIClient) FetchBookings(ctx context.Context, date string) ([]models.Booking, error) {
	endpoint := fmt.Sprintf("%s/%s/", c.baseURL, date)
	cacheKey := fmt.Sprintf("schedule:%s", date)

	var bookings []models.Booking
	if c.readCache(ctx, cacheKey, &bookings) {
		c.logger.Debug().Str("date", date).Int("bookings", len(bookings)).Msg("schedule served from cache")
		return bookings, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bookings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bookings: http %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&bookings); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}

	c.logger.Debug().Str("date", date).Int("bookings", len(bookings)).Msg("schedule fetched")
	c.writeCache(ctx, cacheKey, bookings)
	return bookings, nil
}

func (c *APIClient) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *APIClient) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("schedule cache write failed")
	}
}
