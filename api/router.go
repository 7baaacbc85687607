package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/poiesic/ragbot/ai"
	"github.com/poiesic/ragbot/chat"
	"github.com/poiesic/ragbot/ingestion"
	"github.com/poiesic/ragbot/search"
	"github.com/poiesic/ragbot/storage"
)

const (
	// Name is reported by the root endpoint.
	Name = "ragbot"
	// Version is reported by the root and health endpoints.
	Version = "0.1.0"

	// DefaultPrefix is the path every API route lives under.
	DefaultPrefix = "/api"
)

// Deps are the services behind the API.
type Deps struct {
	Chat      *chat.Service
	Sessions  storage.SessionRepository
	Chunks    storage.ChunkRepository
	Retriever *search.Retriever
	Pipeline  *ingestion.Pipeline
	Vision    ai.ImageDescriber // nil when image analysis is not configured
	Ready     func() bool       // Reports whether the vector store is usable
	Logger    *slog.Logger
}

// Config controls routing and cross-origin access.
type Config struct {
	Prefix      string
	CORSOrigins []string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg Config, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "api")
	}
	prefix := "/" + strings.Trim(cfg.Prefix, "/")
	if prefix == "/" {
		prefix = DefaultPrefix
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(CORS(cfg.CORSOrigins))
	// Compression would buffer server-sent events.
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{prefix + "/chat/stream"})))

	ready := deps.Ready
	if ready == nil {
		ready = func() bool { return true }
	}
	router.GET("/", rootInfo(prefix))

	api := router.Group(prefix)
	api.GET("/health", health(ready))
	RegisterRoutes(api, deps)

	return router
}

// RegisterRoutes adds the chat, document, search and vision routes to group.
func RegisterRoutes(group *gin.RouterGroup, deps Deps) {
	chats := NewChatHandler(deps.Chat, deps.Sessions)
	group.POST("/chat", chats.Chat)
	group.POST("/chat/stream", chats.Stream)
	group.GET("/chat/history/:id", chats.History)
	group.DELETE("/chat/history/:id", chats.DeleteHistory)
	group.GET("/chat/sessions", chats.ListSessions)
	group.GET("/chat/sessions/:id", chats.GetSession)
	group.POST("/chat/sessions", chats.CreateSession)
	group.PUT("/chat/sessions/:id/title", chats.RenameSession)
	group.DELETE("/chat/sessions", chats.ClearSessions)

	docs := NewDocumentHandler(deps.Chunks, deps.Pipeline)
	group.POST("/documents/upload", docs.Upload)
	group.POST("/documents/ingest-url", docs.IngestURLs)
	group.GET("/documents/stats", docs.Stats)
	group.GET("/documents/list", docs.List)
	group.DELETE("/documents/clear", docs.Clear)
	group.DELETE("/documents/:id", docs.Delete)

	searches := NewSearchHandler(deps.Retriever)
	group.POST("/search", searches.Search)

	vision := NewVisionHandler(deps.Vision)
	group.POST("/vision/analyze", vision.Analyze)
}

func rootInfo(prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":       Name,
			"version":    Version,
			"api_prefix": prefix,
			"endpoints": gin.H{
				"chat":      prefix + "/chat",
				"documents": prefix + "/documents",
				"search":    prefix + "/search",
				"vision":    prefix + "/vision/analyze",
				"health":    prefix + "/health",
			},
		})
	}
}

func health(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok := ready()
		status := "healthy"
		if !ok {
			status = "initializing"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":          status,
			"version":         Version,
			"vector_db_ready": ok,
		})
	}
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
