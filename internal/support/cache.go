package support

import (
	"container/list"
	"sync"

	"github.com/BTreeMap/CampusCare/internal/models"
)

// DefaultSessionCacheSize is the number of sessions kept in memory between requests.
const DefaultSessionCacheSize = 1024

// sessionCache is a bounded LRU of loaded sessions. An evicted session is
// reloaded from the store on its next request.
type sessionCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front is most recently used
}

type cacheEntry struct {
	id   string
	sess *models.Session
}

func newSessionCache(capacity int) *sessionCache {
	if capacity <= 0 {
		capacity = DefaultSessionCacheSize
	}
	return &sessionCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *sessionCache) get(id string) (*models.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).sess, true
}

func (c *sessionCache) put(id string, sess *models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[id]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).sess = sess
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).id)
	}
	c.items[id] = c.order.PushFront(&cacheEntry{id: id, sess: sess})
}

func (c *sessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// sessionLock serializes work on one session. refs counts holders and
// waiters so the entry can be dropped once nobody needs it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockSession locks the session and returns the matching unlock func.
func (s *Service) lockSession(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
