package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"admissions-portal/internal/shared/server/middleware"
	"admissions-portal/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	response := gin.H{
		"userId": userID,
		"role":   middleware.UserRoleFromContext(c),
	}
	if email := middleware.UserEmailFromContext(c); email != "" {
		response["email"] = email
	}
	if name := middleware.UserNameFromContext(c); name != "" {
		response["name"] = name
	}
	if isGuest, ok := c.Get("isGuest"); ok {
		response["isGuest"] = isGuest
	}

	respond.JSON(c, http.StatusOK, response)
}
