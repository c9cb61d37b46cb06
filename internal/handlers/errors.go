package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/estatevista/booking-backend/internal/models"
)

// respondError maps a domain error to its HTTP representation. Unclassified
// errors become a generic 500 so internals never leak to clients.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var de *models.DomainError
	if errors.As(err, &de) {
		status := http.StatusInternalServerError
		switch de.Kind {
		case models.KindValidation, models.KindSignatureInvalid, models.KindUnsupportedProvider:
			status = http.StatusBadRequest
		case models.KindStateConflict:
			status = http.StatusConflict
		case models.KindNotFound:
			status = http.StatusNotFound
		case models.KindProvider:
			status = http.StatusBadGateway
		}

		if status >= http.StatusInternalServerError {
			logger.WithError(err).Error("Request failed")
		}

		c.JSON(status, gin.H{
			"error":   string(de.Kind),
			"message": de.Message,
		})
		return
	}

	logger.WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal",
		"message": "internal server error",
	})
}
