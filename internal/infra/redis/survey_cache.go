package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"survey-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SurveyLoader fetches survey definitions from a backing store.
type SurveyLoader interface {
	LoadSurvey(ctx context.Context, id int) (*domain.Survey, error)
}

// SurveyCache caches survey definitions as JSON blobs in Redis and falls
// back to a loader on cache miss. Keys: survey:{id}:def
type SurveyCache struct {
	client *redis.Client
	loader SurveyLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewSurveyCache(client *redis.Client, loader SurveyLoader, ttl time.Duration) *SurveyCache {
	return &SurveyCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *SurveyCache) GetSurvey(ctx context.Context, id int) (*domain.Survey, error) {
	key := c.key(id)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		return decodeSurvey(raw)
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			return decodeSurvey(raw)
		}

		survey, err := c.loader.LoadSurvey(ctx, id)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(survey)
		if err != nil {
			return nil, fmt.Errorf("marshal survey: %w", err)
		}
		// best-effort fill
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()

		return survey, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Survey), nil
}

// Invalidate drops the cached definition after a write.
func (c *SurveyCache) Invalidate(ctx context.Context, id int) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *SurveyCache) key(id int) string {
	return "survey:" + strconv.Itoa(id) + ":def"
}

func decodeSurvey(raw []byte) (*domain.Survey, error) {
	survey := &domain.Survey{}
	if err := json.Unmarshal(raw, survey); err != nil {
		return nil, fmt.Errorf("unmarshal survey: %w", err)
	}
	return survey, nil
}

func (c *SurveyCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
