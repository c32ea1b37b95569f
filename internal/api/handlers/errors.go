package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/classguard/internal/models"
)

// writeError maps domain error kinds onto HTTP statuses. Image problems a
// client can fix map to 422, missing records to 404, inference deadlines
// to 504, everything else to 500.
func writeError(c *gin.Context, err error) {
	kind := models.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case models.KindDecodeError, models.KindNoFace, models.KindMultipleFaces, models.KindEmbeddingError:
		status = http.StatusUnprocessableEntity
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	c.JSON(status, gin.H{"error": err.Error(), "kind": string(kind)})
}
