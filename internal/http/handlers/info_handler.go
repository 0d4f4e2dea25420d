package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"novobot/internal/config"
)

type InfoHandler struct {
	version string
	tariffs []string
	hours   config.ValidationConfig
}

func NewInfoHandler(version string, tariffs []string, hours config.ValidationConfig) *InfoHandler {
	return &InfoHandler{version: version, tariffs: tariffs, hours: hours}
}

func (h *InfoHandler) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Info handles GET /info.
func (h *InfoHandler) Info(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"service": "novobot",
		"version": h.version,
		"tariffs": h.tariffs,
		"hours": gin.H{
			"open":  h.hours.OpenHour,
			"close": h.hours.CloseHour,
		},
	})
}
