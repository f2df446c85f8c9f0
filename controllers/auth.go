package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"labelapi/models"
)

const (
	KeyHeader    = "Authentication-Key"
	SecretHeader = "Authentication-Secret"

	userKey = "user"
)

// AuthMiddleware Resolve the user from the API key headers, aborting with 401 when they do not match
func AuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := models.Authenticate(db.WithContext(c.Request.Context()),
			c.GetHeader(KeyHeader), c.GetHeader(SecretHeader))
		if err != nil {
			log.WithError(err).Error("Failed to authenticate request")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized request please make sure you set the Authentication-Key and Authentication-Secret in the header",
			})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// currentUser The user resolved by AuthMiddleware, nil outside authenticated routes
func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
