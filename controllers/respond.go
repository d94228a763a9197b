package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yashrajoria/inventory-reservation-service/apperrors"
)

// respondError renders err using its application error code. The original
// error is attached to the context so the request logger records it.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.Code, appErr)
}

func bindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"code":    apperrors.KindValidation,
		"details": err.Error(),
	})
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperrors.Validation("invalid %s %q", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}
