package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"survey-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// SurveyLoader fetches survey definitions from a backing store.
type SurveyLoader interface {
	LoadSurvey(ctx context.Context, id int) (*domain.Survey, error)
}

// SurveyCache caches survey definitions with TTL to avoid repeated store
// hits while submissions pour in.
type SurveyCache struct {
	loader SurveyLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[int]cachedSurvey
}

type cachedSurvey struct {
	survey    *domain.Survey
	expiresAt time.Time
}

func NewSurveyCache(loader SurveyLoader, ttl time.Duration) *SurveyCache {
	return &SurveyCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int]cachedSurvey),
	}
}

func (c *SurveyCache) GetSurvey(ctx context.Context, id int) (*domain.Survey, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.survey, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(strconv.Itoa(id), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.survey, nil
		}
		c.mu.RUnlock()

		survey, err := c.loader.LoadSurvey(ctx, id)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[id] = cachedSurvey{
			survey:    survey,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return survey, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Survey), nil
}

// Invalidate drops a cached definition after a write.
func (c *SurveyCache) Invalidate(_ context.Context, id int) error {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
	return nil
}

func (c *SurveyCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticSurveyLoader is a simple loader backed by an in-memory map
// (useful for tests/demos).
type StaticSurveyLoader struct {
	surveys map[int]*domain.Survey
}

func NewStaticSurveyLoader(surveys map[int]*domain.Survey) *StaticSurveyLoader {
	return &StaticSurveyLoader{surveys: surveys}
}

func (l *StaticSurveyLoader) LoadSurvey(_ context.Context, id int) (*domain.Survey, error) {
	if survey, ok := l.surveys[id]; ok {
		return survey, nil
	}
	return nil, domain.ErrNotFound
}
