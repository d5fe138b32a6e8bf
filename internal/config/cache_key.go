package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TestPayloadKey returns the cache key for a test's raw JSON payload
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// SessionResultKey returns the cache key for a submitted session's result
func (r *CacheKeyStruct) SessionResultKey(sessionID string) string {
	return fmt.Sprintf("session:%s:result", sessionID)
}

var CacheKey = NewCacheKeyStruct()
