package projection

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	httperr "github.com/voyage-lab/project-voyage/internal/core/errors"
	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

const msgJourneyNotFound = "Journey not found"

// RegisterRoutes registers the journey query and retention routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/journeys/:journey_id", s.GetJourneyHandler)
	r.DELETE("/v1/journeys/:journey_id", s.DeleteJourneyHandler)
}

// GetJourneyHandler serves the folded state of one journey.
func (s *Service) GetJourneyHandler(c *gin.Context) {
	journeyID := c.Param("journey_id")

	view, err := s.GetJourney(c.Request.Context(), journeyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   msgJourneyNotFound,
			})
			return
		}
		slog.Error("Failed to load journey", "journey_id", journeyID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to load journey",
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// DeleteJourneyHandler removes one journey and its dependent rows.
func (s *Service) DeleteJourneyHandler(c *gin.Context) {
	journeyID := c.Param("journey_id")

	if err := s.DeleteJourney(c.Request.Context(), journeyID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   msgJourneyNotFound,
			})
			return
		}
		slog.Error("Failed to delete journey", "journey_id", journeyID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to delete journey",
		})
		return
	}

	slog.Info("Journey deleted", "journey_id", journeyID)
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "journey_id": journeyID})
}
