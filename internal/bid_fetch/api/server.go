package api

import (
	"bid-fetch/internal/bid_fetch/files"
	"bid-fetch/internal/bid_fetch/model"
	"bid-fetch/internal/middleware"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Searcher is the search service as seen by the handlers.
type Searcher interface {
	Run(ctx context.Context, params model.SearchParams) (*model.SearchResult, error)
	Get(ctx context.Context, id string) (*model.SearchResult, error)
	Progress(id string) (model.SearchProgress, error)
	Statistics(ctx context.Context, id string) (model.SearchStatistics, error)
	Package(ctx context.Context, id string) ([]files.ZipEntry, error)
	History(ctx context.Context, limit int) ([]model.SearchSummary, error)
	CachedCount() int
}

type Server struct {
	Log         *zap.Logger
	Searches    Searcher
	Library     *files.Library
	CORSOrigins []string

	// BaseCtx bounds searches started by requests; it is cancelled on shutdown. Searches do
	// not stop when the client disconnects.
	BaseCtx context.Context
}

func (s *Server) Router() *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.AccessLog(s.Log),
		middleware.Recovery(s.Log),
		middleware.CORS(s.CORSOrigins),
	)

	r.GET("/health", s.health)
	r.Static("/downloads", s.Library.Root)

	apiGroup := r.Group("/api")
	apiGroup.GET("/system/info", s.systemInfo)

	sg := apiGroup.Group("/search")
	sg.POST("", s.runSearch)
	sg.GET("/history", s.searchHistory) // ?limit=20
	sg.GET("/:id/results", s.searchResults)
	sg.GET("/:id/status", s.searchStatus)
	sg.GET("/:id/statistics", s.searchStatistics)
	sg.GET("/:id/package", s.searchPackage)

	dg := apiGroup.Group("/download")
	dg.GET("/attachment/:filename", s.downloadAttachment) // ?inline=true
	dg.GET("/json/:filename", s.downloadJSON)
	dg.GET("/report/:filename", s.downloadReport)
	dg.GET("/search-results/:search_id", s.downloadSearchResults)
	dg.GET("/list/:file_type", s.listFiles) // ?search_id=
	dg.GET("/disk-usage", s.diskUsage)
	dg.DELETE("/:file_type/:filename", s.deleteFile)
	dg.POST("/cleanup", s.cleanup) // ?file_type=&older_than_days=7

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) systemInfo(c *gin.Context) {
	usage, err := s.Library.DiskUsage()
	if err != nil {
		s.fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"cached_searches": s.Searches.CachedCount(),
		"downloads_dir":   s.Library.Root,
		"disk_usage":      usage,
	})
}

func (s *Server) baseCtx() context.Context {
	if s.BaseCtx != nil {
		return s.BaseCtx
	}
	return context.Background()
}
