package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-portal-api/internal/middleware"
	"github.com/noah-isme/admission-portal-api/internal/service"
)

// actorFromContext builds the workflow actor from the authenticated claims.
// Anonymous requests yield an actor with only request metadata set.
func actorFromContext(c *gin.Context) service.Actor {
	actor := service.Actor{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if claims := middleware.Claims(c); claims != nil {
		actor.UserID = claims.UserID
		actor.Role = claims.Role
	}
	return actor
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
