package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/catalog"
	"github.com/stemsi/exstem-mocktest/internal/config"
	"github.com/stemsi/exstem-mocktest/internal/exam"
	"github.com/stemsi/exstem-mocktest/internal/loader"
)

// ErrCacheMiss is returned by a PayloadCache that holds nothing for a key.
var ErrCacheMiss = errors.New("cache miss")

// PayloadCache stores raw payload bytes between loads.
type PayloadCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Fetcher reads raw payload bytes for a catalog source.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// RedisPayloadCache is a PayloadCache backed by Redis.
type RedisPayloadCache struct {
	rdb *redis.Client
}

// NewRedisPayloadCache creates a new RedisPayloadCache.
func NewRedisPayloadCache(rdb *redis.Client) *RedisPayloadCache {
	return &RedisPayloadCache{rdb: rdb}
}

func (c *RedisPayloadCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *RedisPayloadCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// PaperSummary describes a test without exposing its questions.
type PaperSummary struct {
	TestID        string      `json:"test_id"`
	Title         string      `json:"title"`
	Subject       string      `json:"subject,omitempty"`
	Config        exam.Config `json:"config"`
	QuestionCount int         `json:"question_count"`
	WarningCount  int         `json:"integrity_warnings"`
}

// PaperService resolves catalog ids to loaded papers with a read-through
// payload cache.
type PaperService struct {
	catalog *catalog.Catalog
	fetcher Fetcher
	cache   PayloadCache
	ttl     time.Duration
	log     zerolog.Logger
}

// NewPaperService creates a new PaperService. cache may be nil.
func NewPaperService(cat *catalog.Catalog, fetcher Fetcher, cache PayloadCache, ttl time.Duration, log zerolog.Logger) *PaperService {
	return &PaperService{
		catalog: cat,
		fetcher: fetcher,
		cache:   cache,
		ttl:     ttl,
		log:     log.With().Str("component", "paper_service").Logger(),
	}
}

// List returns the catalog entries.
func (s *PaperService) List() []catalog.Entry {
	return s.catalog.List()
}

// Entry looks testID up in the catalog without loading its payload.
func (s *PaperService) Entry(testID string) (catalog.Entry, error) {
	return s.catalog.Lookup(testID)
}

// Paper loads the paper for testID. A payload that fails to load is never
// cached, so the next request retries the source.
func (s *PaperService) Paper(ctx context.Context, testID string) (*loader.Paper, catalog.Entry, error) {
	entry, err := s.catalog.Lookup(testID)
	if err != nil {
		return nil, catalog.Entry{}, err
	}

	key := config.CacheKey.TestPayloadKey(testID)
	if data, ok := s.cached(ctx, key); ok {
		if paper, err := loader.Parse(entry.Source, data); err == nil {
			return paper, entry, nil
		}
		s.log.Warn().Str("test_id", testID).Msg("Cached payload no longer parses, refetching")
	}

	data, err := s.fetcher.Fetch(ctx, entry.Source)
	if err != nil {
		return nil, entry, err
	}
	paper, err := loader.Parse(entry.Source, data)
	if err != nil {
		s.log.Warn().Err(err).Str("test_id", testID).Msg("Payload rejected")
		return nil, entry, err
	}

	for _, w := range paper.Warnings {
		s.log.Warn().Str("test_id", testID).Msg(w.String())
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("test_id", testID).Msg("Payload cache write failed")
		}
	}
	return paper, entry, nil
}

// Prewarm loads every catalog entry once so the payload cache is filled
// before traffic arrives. Entries that fail to load are logged and skipped.
func (s *PaperService) Prewarm(ctx context.Context) int {
	entries := s.catalog.List()
	if len(entries) == 0 {
		s.log.Info().Msg("No tests to prewarm")
		return 0
	}

	s.log.Info().Int("count", len(entries)).Msg("Prewarming test payloads...")

	warmed := 0
	for _, e := range entries {
		if _, _, err := s.Paper(ctx, e.ID); err != nil {
			s.log.Warn().
				Err(err).
				Str("test_id", e.ID).
				Msg("Failed to warm test, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(entries)).
		Msg("Prewarming complete")
	return warmed
}

// Summary loads a paper and describes it.
func (s *PaperService) Summary(ctx context.Context, testID string) (*PaperSummary, error) {
	paper, entry, err := s.Paper(ctx, testID)
	if err != nil {
		return nil, err
	}
	return &PaperSummary{
		TestID:        entry.ID,
		Title:         entry.Title,
		Subject:       entry.Subject,
		Config:        paper.Config,
		QuestionCount: len(paper.Questions),
		WarningCount:  len(paper.Warnings),
	}, nil
}

func (s *PaperService) cached(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("Payload cache read failed")
		}
		return nil, false
	}
	return data, true
}
