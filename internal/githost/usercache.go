package githost

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"contactdir/internal/gateway/entity"
)

const (
	userCacheSize = 256
	userCacheTTL  = 5 * time.Minute
)

// userCache remembers the identity behind a token so repeated submissions
// do not spend rate limit on /user. Tokens are stored hashed.
type userCache struct {
	lru *expirable.LRU[string, entity.User]
}

func newUserCache(size int, ttl time.Duration) *userCache {
	if size <= 0 {
		size = userCacheSize
	}
	if ttl <= 0 {
		ttl = userCacheTTL
	}
	return &userCache{lru: expirable.NewLRU[string, entity.User](size, nil, ttl)}
}

func (c *userCache) get(cred Credential) (entity.User, bool) {
	if c == nil {
		return entity.User{}, false
	}
	return c.lru.Get(tokenKey(cred))
}

func (c *userCache) put(cred Credential, u entity.User) {
	if c == nil {
		return
	}
	c.lru.Add(tokenKey(cred), u)
}

func (c *userCache) forget(cred Credential) {
	if c == nil {
		return
	}
	c.lru.Remove(tokenKey(cred))
}

func tokenKey(cred Credential) string {
	sum := sha256.Sum256([]byte(cred))
	return hex.EncodeToString(sum[:])
}
