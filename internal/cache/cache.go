// Package cache keeps rendered read responses until their table is written to.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	jsoniter "github.com/json-iterator/go"

	"github.com/Annany2002/nebula-dataapi/internal/logger"
)

var (
	customLog = logger.NewLogger()
	json      = jsoniter.ConfigCompatibleWithStandardLibrary
)

const (
	KeyPrefix   = "nebula:data:"
	DefaultTTL  = 300 * time.Second
	DefaultSize = 1024
)

// params that change nothing about the response body
var ignoredParams = map[string]bool{"nocache": true, "force": true}

// Entry is one cached response.
type Entry struct {
	Status      int
	ContentType string
	Body        []byte
}

// Cache is a size and age bounded response cache, safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, Entry]
}

func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

// Scope identifies the caller and resource a response was rendered for.
type Scope struct {
	Path     string
	UserID   string
	APIKeyID uint
}

// Key derives the cache key for a read of table. Parameter order does not matter.
func Key(table string, params url.Values, scope Scope) string {
	relevant := make(map[string][]string, len(params))
	for k, v := range params {
		if ignoredParams[strings.ToLower(k)] {
			continue
		}
		relevant[k] = v
	}

	// map keys are sorted on encode, which makes this canonical
	raw, err := json.Marshal(map[string]any{
		"params":  relevant,
		"path":    scope.Path,
		"user":    scope.UserID,
		"api_key": scope.APIKeyID,
	})
	if err != nil {
		customLog.Warnf("Cache: failed to encode key material for %s: %v", table, err)
	}
	sum := sha256.Sum256(raw)
	return tablePrefix(table) + hex.EncodeToString(sum[:])
}

func tablePrefix(table string) string {
	return KeyPrefix + table + ":"
}

func (c *Cache) Get(key string) (Entry, bool) {
	return c.lru.Get(key)
}

func (c *Cache) Set(key string, e Entry) {
	c.lru.Add(key, e)
}

// InvalidateTable drops every entry for table and returns how many were removed.
func (c *Cache) InvalidateTable(table string) int {
	prefix := tablePrefix(table)
	removed := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) && c.lru.Remove(k) {
			removed++
		}
	}
	if removed > 0 {
		customLog.Debugf("Cache: invalidated %d entries for %s", removed, table)
	}
	return removed
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
