package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"labelapi/models"
	"labelapi/workflow"
)

type CreateCampaignInput struct {
	Title             string                 `json:"title" binding:"required"`
	LabelerEmail      string                 `json:"labeler_email" binding:"required,email"`
	Metadata          map[string]interface{} `json:"metadata"`
	LabelTranslations map[string]string      `json:"label_translations"`
}

type ChangeStatusInput struct {
	NewStatus string `json:"new_status" binding:"required"`
}

// ImageRefInput identifies an image by id or by storage path, exactly one of both.
type ImageRefInput struct {
	ID       *uint   `json:"id"`
	Filepath *string `json:"filepath"`
}

func (in ImageRefInput) ref() (workflow.ImageRef, error) {
	switch {
	case in.ID != nil && in.Filepath == nil:
		return workflow.ByID(*in.ID), nil
	case in.Filepath != nil && in.ID == nil:
		return workflow.ByHandle(*in.Filepath), nil
	default:
		return nil, errors.New("every image needs either an id or a filepath")
	}
}

func imageRefs(inputs []ImageRefInput) ([]workflow.ImageRef, error) {
	refs := make([]workflow.ImageRef, 0, len(inputs))
	for _, in := range inputs {
		ref, err := in.ref()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

type BoundingBoxInput struct {
	XMin *int `json:"xmin" binding:"required"`
	XMax *int `json:"xmax" binding:"required"`
	YMin *int `json:"ymin" binding:"required"`
	YMax *int `json:"ymax" binding:"required"`
}

type ObjectInput struct {
	BoundingBox     *BoundingBoxInput `json:"bounding_box" binding:"required"`
	Label           string            `json:"label" binding:"required"`
	LabelTranslated *string           `json:"label_translated"`
	Confidence      *float64          `json:"confidence"`
}

type ImageObjectsInput struct {
	ImageID uint          `json:"image_id" binding:"required"`
	Objects []ObjectInput `json:"objects" binding:"dive"`
}

func objectBatch(inputs []ImageObjectsInput) ([]workflow.ImageObjects, error) {
	batch := make([]workflow.ImageObjects, 0, len(inputs))
	for _, in := range inputs {
		if in.ImageID == 0 {
			return nil, errors.New("every entry needs an image_id")
		}
		item := workflow.ImageObjects{ImageID: in.ImageID, Objects: make([]workflow.ObjectInput, 0, len(in.Objects))}
		for _, o := range in.Objects {
			b := o.BoundingBox
			if o.Label == "" || b == nil || b.XMin == nil || b.XMax == nil || b.YMin == nil || b.YMax == nil {
				return nil, errors.New("every object needs a label and a complete bounding_box")
			}
			item.Objects = append(item.Objects, workflow.ObjectInput{
				Label:           o.Label,
				LabelTranslated: o.LabelTranslated,
				Confidence:      o.Confidence,
				Box:             workflow.BoundingBox{XMin: *b.XMin, XMax: *b.XMax, YMin: *b.YMin, YMax: *b.YMax},
			})
		}
		batch = append(batch, item)
	}
	return batch, nil
}

// ListCampaigns List all labeling campaigns
func ListCampaigns(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, pagination, err := engine.ListCampaigns(c.Request.Context(), currentUser(c), queryPage(c))
		if err != nil {
			respondError(c, err)
			return
		}
		campaigns := make([]campaignDTO, 0, len(summaries))
		for _, s := range summaries {
			campaigns = append(campaigns, newCampaignDTO(s))
		}
		c.JSON(http.StatusOK, gin.H{"data": campaigns, "pagination": pagination})
	}
}

// CreateCampaign Create a campaign together with the credentials of its labeler
func CreateCampaign(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateCampaignInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}

		created, err := engine.CreateCampaign(c.Request.Context(), currentUser(c), workflow.CampaignInput{
			Title:             input.Title,
			LabelerEmail:      input.LabelerEmail,
			Metadata:          input.Metadata,
			LabelTranslations: input.LabelTranslations,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": createdCampaignDTO{
			campaignDTO: newCampaignDTO(created.CampaignSummary),
			AccessToken: accessTokenDTO{APIKey: created.AccessToken.APIKey, APISecret: created.AccessToken.APISecret},
		}})
	}
}

// GetCampaign Return the metadata and progress of a campaign
func GetCampaign(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		summary, err := engine.GetCampaign(c.Request.Context(), currentUser(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": newCampaignDTO(*summary)})
	}
}

// ChangeCampaignStatus Move a campaign to a new status
func ChangeCampaignStatus(engine *workflow.Engine) gin.HandlerFunc {
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
		campaign, err := engine.ChangeCampaignStatus(c.Request.Context(), currentUser(c), id, models.CampaignStatus(input.NewStatus))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"campaign_id": campaign.ID, "status": campaign.Status}})
	}
}

// CampaignImages List the images of a campaign with their labeling state
func CampaignImages(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		page := queryPage(c)
		if page.PerPage == 0 {
			page.PerPage = 1000
		}
		links, pagination, err := engine.CampaignImages(c.Request.Context(), currentUser(c), id, page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": newCampaignImageDTOs(links), "pagination": pagination})
	}
}

// AddCampaignImages Add images to a campaign that has not started
func AddCampaignImages(engine *workflow.Engine) gin.HandlerFunc {
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
		if err := engine.AddCampaignImages(c.Request.Context(), currentUser(c), id, refs); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": true})
	}
}

// CampaignObjects List every image of a campaign, a download link and the objects found in it
func CampaignObjects(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		links, err := engine.CampaignObjects(c.Request.Context(), currentUser(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		images := make([]imageObjectsDTO, 0, len(links))
		for _, link := range links {
			images = append(images, imageObjectsDTO{
				ImageID:  link.ImageID,
				ImageURL: imagePath(link.ImageID),
				Labeled:  link.Labeled,
				Objects:  newObjectDTOs(link.ImageID, link.CampaignID, link.Objects),
			})
		}
		c.JSON(http.StatusOK, gin.H{"data": images})
	}
}

// AddObjects Store the objects labeled in images of an active campaign
func AddObjects(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var input []ImageObjectsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		batch, err := objectBatch(input)
		if err != nil {
			badRequest(c, err)
			return
		}
		campaign, err := engine.AddObjects(c.Request.Context(), currentUser(c), id, batch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"campaign_id": campaign.ID, "status": campaign.Status}})
	}
}
