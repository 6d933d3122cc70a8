package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sirh-sync/internal/middleware"
	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
	"github.com/noah-isme/sirh-sync/pkg/response"
)

func actorFromContext(c *gin.Context) models.Actor {
	return middleware.ActorFromContext(c)
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
