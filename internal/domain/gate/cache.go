package gate

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
	"github.com/Sentinel-Gate/docgate/internal/domain/session"
)

// maxViewEntries bounds the cache; expired entries are pruned when it fills.
const maxViewEntries = 10_000

// view is a read-only snapshot of a resolved session and its role.
type view struct {
	session *session.Session
	role    auth.Role
	expires time.Time
}

// viewCache holds resolved (session, role) views keyed by token hash.
// Decisions themselves are never cached.
type viewCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[uint64]view
	now     func() time.Time
}

func newViewCache(ttl time.Duration) *viewCache {
	return &viewCache{
		ttl:     ttl,
		entries: make(map[uint64]view),
		now:     time.Now,
	}
}

func tokenKey(token string) uint64 {
	return xxhash.Sum64String(token)
}

func (c *viewCache) get(token string) (view, bool) {
	if c.ttl <= 0 {
		return view{}, false
	}
	key := tokenKey(token)

	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		return view{}, false
	}
	// Guards against hash collisions.
	if v.session.AccessToken != token || !c.now().Before(v.expires) {
		delete(c.entries, key)
		return view{}, false
	}
	return v, true
}

func (c *viewCache) put(token string, sess *session.Session, role auth.Role) {
	if c.ttl <= 0 {
		return
	}
	now := c.now()
	expires := now.Add(c.ttl)
	if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(expires) {
		expires = sess.ExpiresAt
	}
	if !now.Before(expires) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= maxViewEntries {
		c.pruneLocked(now)
		if len(c.entries) >= maxViewEntries {
			return
		}
	}
	c.entries[tokenKey(token)] = view{session: sess, role: role, expires: expires}
}

func (c *viewCache) evict(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	delete(c.entries, tokenKey(token))
	c.mu.Unlock()
}

// evictIdentity drops every view for an identity.
func (c *viewCache) evictIdentity(identityID string) {
	if identityID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.entries {
		if v.session.IdentityID == identityID {
			delete(c.entries, k)
		}
	}
}

func (c *viewCache) pruneLocked(now time.Time) {
	for k, v := range c.entries {
		if !now.Before(v.expires) {
			delete(c.entries, k)
		}
	}
}

func (c *viewCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
