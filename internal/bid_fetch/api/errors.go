package api

import (
	"bid-fetch/internal/bid_fetch/files"
	"bid-fetch/internal/bid_fetch/model"
	"bid-fetch/internal/bid_fetch/processor"
	"bid-fetch/internal/bid_fetch/search"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidParams),
		errors.Is(err, files.ErrInvalidFilename),
		errors.Is(err, files.ErrInvalidPath),
		errors.Is(err, files.ErrInvalidFileType):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrNotFound),
		errors.Is(err, files.ErrNotFound),
		errors.Is(err, files.ErrNothingToDownload):
		return http.StatusNotFound
	case errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, processor.ErrRetriesExhausted),
		errors.Is(err, processor.ErrResultCode):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// searchError answers the search endpoints: {"success": false, "error": ...}.
func (s *Server) searchError(c *gin.Context, err error) {
	status := statusFor(err)
	s.logIfInternal(c, status, err)
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// fileError answers the download endpoints: {"error": ...}.
func (s *Server) fileError(c *gin.Context, err error) {
	status := statusFor(err)
	s.logIfInternal(c, status, err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) logIfInternal(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Int("status", status), zap.Error(err))
	}
}
