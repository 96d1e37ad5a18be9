package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"machine-monitor-backend/internal/hub"
	"machine-monitor-backend/internal/mw"
	"machine-monitor-backend/internal/store"
)

// RouterOptions collects what NewRouter wires together. Cache is shared with
// the simulator so fault injection can flush it; when nil a private cache
// with CacheTTL is created.
type RouterOptions struct {
	Store          store.Store
	Webpush        *webpush.Options
	Hub            *hub.Registry
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	RateLimit      rate.Limit
	RateBurst      int
	CacheTTL       time.Duration
	Cache          *mw.ResponseCache
	StaticDir      string
}

// NewRouter creates and configures a new Gin router.
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger())

	handler := NewHandler(opts.Store, opts.Webpush, opts.Hub)

	rateLimiter := mw.RateLimiter(opts.RateLimit, opts.RateBurst)
	responses := opts.Cache
	if responses == nil {
		responses = mw.NewResponseCache(opts.CacheTTL)
	}
	caching := responses.Cache()

	upgrader := hub.Upgrader(opts.AllowedOrigins)
	serveWS := hub.ServeWS(opts.Hub, upgrader)

	r.GET("/healthz", handler.Healthz)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/ws", serveWS)

	api := r.Group("/api")
	api.Use(rateLimiter, responses.FlushOnWrite())
	{
		api.GET("/machines", caching, handler.ListMachines)
		api.GET("/machines/:id", caching, handler.GetMachine)
		api.POST("/machines", handler.CreateMachine)
		api.PUT("/machines/:id", handler.UpdateMachine)
		api.DELETE("/machines/:id", handler.DeleteMachine)

		api.GET("/faults", caching, handler.ListFaults)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	// The dashboard historically opened its socket on the root path.
	r.GET("/", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			serveWS(c)
			return
		}
		serveStatic(c, opts.StaticDir)
	})
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		serveStatic(c, opts.StaticDir)
	})

	return r
}

// serveStatic serves a file from dir, falling back to index.html for client-side routes.
func serveStatic(c *gin.Context, dir string) {
	if dir == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	rel := filepath.FromSlash(filepath.Clean("/" + c.Request.URL.Path))
	path := filepath.Join(dir, rel)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		c.File(path)
		return
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.File(index)
}
