package api

import (
	"bid-fetch/internal/bid_fetch/files"
	"bid-fetch/internal/bid_fetch/model"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type searchRequest struct {
	Keyword     string `json:"keyword" binding:"required,min=1,max=100"`
	StartDate   string `json:"start_date" binding:"required,yyyymmdd"`
	EndDate     string `json:"end_date" binding:"required,yyyymmdd"`
	NumRows     int    `json:"num_rows" binding:"omitempty,min=1,max=500"`
	Institution string `json:"institution" binding:"omitempty,max=100"`
}

func (s *Server) runSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": bindMessage(err)})
		return
	}
	params := model.SearchParams{
		Keyword:     req.Keyword,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		NumRows:     req.NumRows,
		Institution: req.Institution,
	}.WithDefaults()
	if err := params.Validate(); err != nil {
		s.searchError(c, err)
		return
	}

	result, err := s.Searches.Run(s.baseCtx(), params)
	if err != nil {
		s.searchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"search_id":   result.SearchID,
		"total_count": result.TotalCount,
		"results":     result.Items,
		"search_dir":  result.SearchDir,
		"json_file":   result.JSONFile,
		"report_file": result.ReportFile,
	})
}

func (s *Server) searchResults(c *gin.Context) {
	id := c.Param("id")
	result, err := s.Searches.Get(c.Request.Context(), id)
	if err != nil {
		s.searchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"search_id":   result.SearchID,
		"total_count": result.TotalCount,
		"results":     result.Items,
	})
}

func (s *Server) searchStatus(c *gin.Context) {
	p, err := s.Searches.Progress(c.Param("id"))
	if err != nil {
		s.searchError(c, err)
		return
	}
	c.JSON(http.StatusOK, p.View(time.Now()))
}

func (s *Server) searchStatistics(c *gin.Context) {
	id := c.Param("id")
	stats, err := s.Searches.Statistics(c.Request.Context(), id)
	if err != nil {
		s.searchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "search_id": id, "statistics": stats})
}

func (s *Server) searchPackage(c *gin.Context) {
	id := c.Param("id")
	entries, err := s.Searches.Package(c.Request.Context(), id)
	if err != nil {
		s.searchError(c, err)
		return
	}
	s.streamZip(c, id+"_package.zip", entries)
}

func (s *Server) searchHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	history, err := s.Searches.History(c.Request.Context(), limit)
	if err != nil {
		s.searchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "searches": history, "count": len(history)})
}

// streamZip writes the archive directly to the response. Errors after the first byte can only
// be logged.
func (s *Server) streamZip(c *gin.Context, name string, entries []files.ZipEntry) {
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)
	if err := files.WriteZip(c.Writer, entries); err != nil {
		s.Log.Error("Failed to stream zip", zap.String("file", name), zap.Error(err))
		_ = c.Error(err)
	}
}
