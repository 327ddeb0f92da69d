package master

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	httperr "github.com/voyage-lab/project-voyage/internal/core/errors"
)

// RegisterRoutes registers the master rebuild endpoint.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/masters/rebuild", s.RebuildHandler)
}

// RebuildHandler triggers a synchronous rebuild of both reporting masters.
func (s *Service) RebuildHandler(c *gin.Context) {
	res, err := s.Rebuild(c.Request.Context())
	if err != nil {
		slog.Error("[Master] Rebuild request failed", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to rebuild master tables",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "rebuilt",
		"stage_rows":       res.StageRows,
		"application_rows": res.ApplicationRows,
		"skipped_groups":   res.Skipped,
		"validation":       res.Reports,
		"persisted":        res.Persisted,
	})
}
