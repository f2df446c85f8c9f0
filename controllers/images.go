package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"labelapi/workflow"
)

// FindImages Find all images
func FindImages(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		images, pagination, err := engine.ListImages(c.Request.Context(), currentUser(c), queryPage(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": newImageDTOs(images), "pagination": pagination})
	}
}

// GetImage Redirect to the image in blob storage, with a token for access
func GetImage(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		url, err := engine.ImageURL(c.Request.Context(), currentUser(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		log.Debug("Redirecting to signed image url")
		c.Redirect(http.StatusSeeOther, url)
	}
}

// GetImageObjects Show the objects of an image. With ?campaigns=1,2 the first listed campaign
// that labeled the image wins, otherwise the most recently finished one.
func GetImageObjects(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		campaigns, err := queryIDs(c, "campaigns")
		if err != nil {
			badRequest(c, err)
			return
		}
		labels, err := engine.GetObjects(c.Request.Context(), currentUser(c), id, campaigns)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": newObjectDTOs(labels.ImageID, labels.CampaignID, labels.Objects)})
	}
}
