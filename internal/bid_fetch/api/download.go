package api

import (
	"bid-fetch/internal/bid_fetch/files"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) downloadAttachment(c *gin.Context) {
	name := c.Param("filename")
	p, _, err := s.Library.ResolveAttachment(name)
	if err != nil {
		s.fileError(c, err)
		return
	}
	s.serveFile(c, p, c.Query("inline") == "true")
}

func (s *Server) downloadJSON(c *gin.Context) {
	p, _, err := s.Library.Resolve(files.TypeJSON, c.Param("filename"))
	if err != nil {
		s.fileError(c, err)
		return
	}
	s.serveFile(c, p, false)
}

func (s *Server) downloadReport(c *gin.Context) {
	name := c.Param("filename")
	if !strings.HasSuffix(strings.ToLower(name), ".json") {
		name += ".json"
	}
	p, _, err := s.Library.Resolve(files.TypeReport, name)
	if err != nil {
		s.fileError(c, err)
		return
	}
	s.serveFile(c, p, false)
}

func (s *Server) downloadSearchResults(c *gin.Context) {
	id := c.Param("search_id")
	entries, err := s.Library.PlanSearchArchive(id)
	if err != nil {
		s.fileError(c, err)
		return
	}
	s.streamZip(c, "search_results_"+id+".zip", entries)
}

func (s *Server) listFiles(c *gin.Context) {
	ft, err := files.ParseFileType(c.Param("file_type"))
	if err != nil {
		s.fileError(c, err)
		return
	}
	list, err := s.Library.List(ft, c.Query("search_id"))
	if err != nil {
		s.fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_type": ft, "files": list, "count": len(list)})
}

func (s *Server) deleteFile(c *gin.Context) {
	ft, err := files.ParseFileType(c.Param("file_type"))
	if err != nil {
		s.fileError(c, err)
		return
	}
	name := c.Param("filename")
	if err := s.Library.Delete(ft, name); err != nil {
		s.fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "file deleted", "filename": name})
}

func (s *Server) diskUsage(c *gin.Context) {
	usage, err := s.Library.DiskUsage()
	if err != nil {
		s.fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (s *Server) cleanup(c *gin.Context) {
	var ft files.FileType
	if raw := c.Query("file_type"); raw != "" {
		parsed, err := files.ParseFileType(raw)
		if err != nil {
			s.fileError(c, err)
			return
		}
		ft = parsed
	}
	days, err := strconv.Atoi(c.DefaultQuery("older_than_days", "7"))
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "older_than_days must be a positive integer"})
		return
	}
	res, err := s.Library.Cleanup(ft, days)
	if err != nil {
		s.fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"deleted_files": res.DeletedFiles,
		"deleted_count": len(res.DeletedFiles),
		"failed":        res.Failed,
		"cutoff_days":   res.CutoffDays,
	})
}

// serveFile sends a file with its MIME type, as a download unless inline is set.
func (s *Server) serveFile(c *gin.Context, path string, inline bool) {
	name := filepath.Base(path)
	c.Header("Content-Type", files.ContentType(name))
	if inline {
		c.Header("Content-Disposition", "inline")
		c.File(path)
		return
	}
	c.FileAttachment(path, name)
}
