package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radiusdt/banner-analytics/internal/models"
)

// RedisSessionStore keeps session rollups in Redis hashes and the
// first-view seen-set as SETNX keys, which makes the unique-view check a
// single atomic operation shared by all ingestion workers.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store. Sessions and
// seen markers expire after ttl to bound memory.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

var _ SessionStore = (*RedisSessionStore)(nil)

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func seenKey(sessionID string, bannerID int64) string {
	return fmt.Sprintf("seen:%d:%s", bannerID, sessionID)
}

func (s *RedisSessionStore) UpsertActivity(ctx context.Context, sessionID, visitorID, countryCode string, pageView bool, at time.Time) error {
	key := sessionKey(sessionID)
	nano := at.UTC().UnixNano()

	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, key, "first_seen_ns", nano)
	pipe.HSet(ctx, key, "last_seen_ns", nano)
	if visitorID != "" {
		pipe.HSet(ctx, key, "visitor_id", visitorID)
	}
	if countryCode != "" {
		pipe.HSet(ctx, key, "country_code", countryCode)
	}
	if pageView {
		pipe.HIncrBy(ctx, key, "page_views", 1)
	} else {
		pipe.HIncrBy(ctx, key, "banner_interactions", 1)
	}
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) FirstView(ctx context.Context, sessionID string, bannerID int64) (bool, error) {
	return s.client.SetNX(ctx, seenKey(sessionID, bannerID), 1, s.ttl).Result()
}

func (s *RedisSessionStore) GetSession(ctx context.Context, sessionID string) (*models.UserSession, error) {
	vals, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	sess := &models.UserSession{
		SessionID:          sessionID,
		VisitorID:          vals["visitor_id"],
		CountryCode:        vals["country_code"],
		PageViews:          parseCounterField(vals, "page_views"),
		BannerInteractions: parseCounterField(vals, "banner_interactions"),
	}
	if ns, err := strconv.ParseInt(vals["first_seen_ns"], 10, 64); err == nil {
		sess.FirstSeenAt = time.Unix(0, ns).UTC()
	}
	if ns, err := strconv.ParseInt(vals["last_seen_ns"], 10, 64); err == nil {
		sess.LastSeenAt = time.Unix(0, ns).UTC()
	}
	return sess, nil
}

// RedisClaimer implements BucketClaimer with SETNX + TTL so concurrent
// aggregator instances never double-process a bucket. The TTL keeps a
// crashed holder from wedging the bucket forever.
type RedisClaimer struct {
	client *redis.Client
}

// NewRedisClaimer creates a Redis-backed bucket claimer.
func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client}
}

var _ BucketClaimer = (*RedisClaimer)(nil)

func (c *RedisClaimer) TryClaim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "claim:"+key, 1, ttl).Result()
}

func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, "claim:"+key).Err()
}
