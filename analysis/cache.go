package analysis

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// CacheStore persists serialized results by key.
type CacheStore interface {
	GetAnalysisCache(cacheKey string) ([]byte, error)
	SaveAnalysisCache(cacheKey string, requestParams interface{}, payload []byte, ttlHours int) error
}

// CachingProvider serves repeated requests from a CacheStore. Only successful
// results are cached.
type CachingProvider struct {
	next     Provider
	store    CacheStore
	mode     string
	ttlHours int
}

// NewCachingProvider wraps next. mode separates cache entries of different providers.
func NewCachingProvider(next Provider, store CacheStore, mode string, ttlHours int) *CachingProvider {
	return &CachingProvider{next: next, store: store, mode: mode, ttlHours: ttlHours}
}

type cacheParams struct {
	Mode        string `json:"mode"`
	RecordCount int    `json:"record_count"`
}

func (c *CachingProvider) Analyze(ctx context.Context, recordCount int) (*Result, error) {
	params := cacheParams{Mode: c.mode, RecordCount: recordCount}
	key := generateCacheKey(params)

	if payload, err := c.store.GetAnalysisCache(key); err == nil && len(payload) > 0 {
		var cached Result
		if err := json.Unmarshal(payload, &cached); err == nil {
			log.Debug().Str("cache_key", key).Msg("analysis cache hit")
			return &cached, nil
		}
	}

	result, err := c.next.Analyze(ctx, recordCount)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := c.store.SaveAnalysisCache(key, params, payload, c.ttlHours); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("failed to save analysis cache")
	}
	return result, nil
}

func generateCacheKey(params cacheParams) string {
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return fmt.Sprintf("%x", hash)
}
