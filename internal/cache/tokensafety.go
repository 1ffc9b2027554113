package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chimera-labs/chimera-operator/internal/models"
)

// TokenSafetyResult is the cached verdict of a Token Safety Validator
// check (C2). Transient upstream errors are never cached — only a
// definitive Safe/Unsafe verdict earns a cache entry.
type TokenSafetyResult struct {
	Safe      bool
	Reason    string
	CheckedAt time.Time
}

type tokenSafetyEntry struct {
	result    TokenSafetyResult
	expiresAt time.Time
}

// TokenSafetyCache is an LRU cache bounded by a hard capacity, keyed by
// (mint, strategy) since liquidity floors and bypass rules differ by
// strategy (C2 §"strategy-specific thresholds").
type TokenSafetyCache struct {
	lru *lru.Cache[string, tokenSafetyEntry]
	ttl time.Duration
}

// NewTokenSafetyCache builds a cache bounded at capacity entries, each
// valid for ttl.
func NewTokenSafetyCache(capacity int, ttl time.Duration) (*TokenSafetyCache, error) {
	l, err := lru.New[string, tokenSafetyEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &TokenSafetyCache{lru: l, ttl: ttl}, nil
}

func safetyKey(mint string, strategy models.Strategy) string {
	return fmt.Sprintf("%s:%s", mint, strategy)
}

// Get returns a cached verdict if present and unexpired.
func (c *TokenSafetyCache) Get(mint string, strategy models.Strategy) (TokenSafetyResult, bool) {
	entry, ok := c.lru.Get(safetyKey(mint, strategy))
	if !ok || time.Now().After(entry.expiresAt) {
		return TokenSafetyResult{}, false
	}
	return entry.result, true
}

// Set stores a verdict. Callers must not call this for transient errors —
// only for a definitive Safe or Unsafe result.
func (c *TokenSafetyCache) Set(mint string, strategy models.Strategy, result TokenSafetyResult) {
	result.CheckedAt = time.Now()
	c.lru.Add(safetyKey(mint, strategy), tokenSafetyEntry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *TokenSafetyCache) Len() int {
	return c.lru.Len()
}
