package middleware

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-dataapi/internal/cache"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

// CacheHeader reports HIT, MISS or BYPASS on cacheable reads.
const CacheHeader = "X-Cache"

// ModelLookup resolves the :table path parameter to a model.
type ModelLookup func(name string) (*domain.Model, bool)

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func bypassCache(c *gin.Context) bool {
	if c.Query("nocache") == "1" {
		return true
	}
	return strings.Contains(strings.ToLower(c.GetHeader("Cache-Control")), "no-cache")
}

// CacheMiddleware serves successful GET responses from store until a write to the same table
// invalidates them. Entries are scoped to the caller. It must run after IdentityMiddleware.
func CacheMiddleware(store *cache.Cache, lookup ModelLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		model, ok := lookup(c.Param("table"))
		if !ok {
			c.Next()
			return
		}
		if bypassCache(c) {
			c.Header(CacheHeader, "BYPASS")
			c.Next()
			return
		}

		ident := IdentityFrom(c)
		key := cache.Key(model.TableName, c.Request.URL.Query(), cache.Scope{
			Path:     c.Request.URL.Path,
			UserID:   ident.UserID,
			APIKeyID: ident.KeyID(),
		})
		if entry, hit := store.Get(key); hit {
			c.Header(CacheHeader, "HIT")
			c.Data(entry.Status, entry.ContentType, entry.Body)
			c.Abort()
			return
		}

		c.Header(CacheHeader, "MISS")
		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		if recorder.Status() == http.StatusOK && len(c.Errors) == 0 {
			store.Set(key, cache.Entry{
				Status:      http.StatusOK,
				ContentType: recorder.Header().Get("Content-Type"),
				Body:        bytes.Clone(recorder.body.Bytes()),
			})
		}
	}
}
