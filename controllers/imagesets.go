package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"labelapi/models"
	"labelapi/workflow"
)

type CreateImageSetInput struct {
	Title    string                 `json:"title" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ListImageSets Return list of image sets
func ListImageSets(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		imageSets, pagination, err := engine.ListImageSets(c.Request.Context(), currentUser(c), queryPage(c))
		if err != nil {
			respondError(c, err)
			return
		}
		dtos := make([]imageSetDTO, 0, len(imageSets))
		for _, imageSet := range imageSets {
			dtos = append(dtos, newImageSetDTO(imageSet))
		}
		c.JSON(http.StatusOK, gin.H{"data": dtos, "pagination": pagination})
	}
}

// CreateImageSet Create an image set and return the URL to upload its images to
func CreateImageSet(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateImageSetInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		created, err := engine.CreateImageSet(c.Request.Context(), currentUser(c), input.Title, input.Metadata)
		if err != nil {
			respondError(c, err)
			return
		}
		dto := newImageSetDTO(created.ImageSet)
		dto.CreatedBy = created.CreatedBy
		dto.DropboxURL = created.DropboxURL
		c.JSON(http.StatusOK, gin.H{"data": dto})
	}
}

// ChangeImageSetStatus Change the status of an image set. Finishing moves the uploaded images
// in the background.
func ChangeImageSetStatus(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var input ChangeStatusInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		imageSet, err := engine.ChangeImageSetStatus(c.Request.Context(), currentUser(c), id, models.ImageSetStatus(input.NewStatus))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"imageset_id": imageSet.ID, "status": imageSet.Status}})
	}
}

// ImageSetImages List the images in an image set
func ImageSetImages(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		images, pagination, err := engine.ImageSetImages(c.Request.Context(), currentUser(c), id, queryPage(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": newImageDTOs(images), "pagination": pagination})
	}
}

// AddImageSetImages Add existing images to an image set
func AddImageSetImages(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var input []ImageRefInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		refs, err := imageRefs(input)
		if err != nil {
			badRequest(c, err)
			return
		}
		if err := engine.AddImageSetImages(c.Request.Context(), currentUser(c), id, refs); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": true})
	}
}
