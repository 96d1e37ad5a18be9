package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache holds successful GET responses of the record API for a fixed TTL.
// Any write to the records, from HTTP or from the simulator, must call Flush.
type ResponseCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewResponseCache creates a cache. A non-positive ttl disables caching.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		store: cache.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

// Len returns the number of cached responses.
func (rc *ResponseCache) Len() int {
	return rc.store.ItemCount()
}

// Flush drops every cached response.
func (rc *ResponseCache) Flush() {
	rc.store.Flush()
}

// cacheKey is the path plus the query re-encoded in sorted order, so that
// ?a=1&b=2 and ?b=2&a=1 share an entry.
func cacheKey(r *http.Request) string {
	key := r.URL.Path
	if q := r.URL.Query(); len(q) > 0 {
		key += "?" + q.Encode()
	}
	return key
}

// Cache serves repeated GET requests from memory.
func (rc *ResponseCache) Cache() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || rc.ttl <= 0 {
			c.Next()
			return
		}

		key := cacheKey(c.Request)
		if resp, found := rc.store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			_, _ = c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if blw.Status() >= 200 && blw.Status() < 300 {
			rc.store.Set(key, cachedResponse{
				status:  blw.Status(),
				headers: blw.Header().Clone(),
				body:    blw.body.Bytes(),
			}, rc.ttl)
		}
	}
}

// FlushOnWrite empties the cache after every successful non-GET request.
func (rc *ResponseCache) FlushOnWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}
		if status := c.Writer.Status(); status >= 200 && status < 300 {
			log.Debug().Str("path", c.Request.URL.Path).Msg("record write; flushing response cache")
			rc.Flush()
		}
	}
}
