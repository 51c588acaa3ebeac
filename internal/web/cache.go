package web

import (
	"net/http"
	"time"

	"github.com/UkralStul/yatube/internal/auth"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// pageCacheSize - сколько разных страниц помнит кеш.
const pageCacheSize = 256

// pageCache хранит готовые страницы на ttl. Нулевой ttl выключает кеш;
// методы nil-кеша ничего не делают.
type pageCache struct {
	lru *expirable.LRU[string, []byte]
}

func newPageCache(ttl time.Duration) *pageCache {
	if ttl <= 0 {
		return nil
	}
	return &pageCache{lru: expirable.NewLRU[string, []byte](pageCacheSize, nil, ttl)}
}

// pageKey - адрес запроса и зритель: разным пользователям видна разная шапка.
func pageKey(r *http.Request) string {
	viewer := "anonymous"
	if u := auth.UserFrom(r.Context()); u != nil {
		viewer = u.ID
	}
	return viewer + " " + r.URL.RequestURI()
}

func (c *pageCache) get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *pageCache) add(key string, page []byte) {
	if c == nil {
		return
	}
	c.lru.Add(key, page)
}

func (c *pageCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
