package controllers

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"labelapi/models"
	"labelapi/workflow"
)

type progressDTO struct {
	Done  int64 `json:"done"`
	Total int64 `json:"total"`
}

type campaignDTO struct {
	CampaignID        uint                     `json:"campaign_id"`
	Title             string                   `json:"title"`
	Status            models.CampaignStatus    `json:"status"`
	Progress          progressDTO              `json:"progress"`
	Metadata          datatypes.JSONMap        `json:"metadata"`
	LabelTranslations models.LabelTranslations `json:"label_translations"`
	DateCreated       time.Time                `json:"date_created"`
	DateStarted       *time.Time               `json:"date_started"`
	DateCompleted     *time.Time               `json:"date_completed"`
	DateFinished      *time.Time               `json:"date_finished"`
	CreatedBy         string                   `json:"created_by"`
}

func newCampaignDTO(s workflow.CampaignSummary) campaignDTO {
	c := s.Campaign
	return campaignDTO{
		CampaignID:        c.ID,
		Title:             c.Title,
		Status:            c.Status,
		Progress:          progressDTO{Done: s.Done, Total: s.Total},
		Metadata:          c.Metadata,
		LabelTranslations: c.LabelTranslations.Data(),
		DateCreated:       c.CreatedAt,
		DateStarted:       c.DateStarted,
		DateCompleted:     c.DateCompleted,
		DateFinished:      c.DateFinished,
		CreatedBy:         s.CreatedBy,
	}
}

type accessTokenDTO struct {
	APIKey    string  `json:"api_key"`
	APISecret *string `json:"api_secret,omitempty"`
}

type createdCampaignDTO struct {
	campaignDTO
	AccessToken accessTokenDTO `json:"access_token"`
}

type imageSetRefDTO struct {
	ImageSetID uint   `json:"imageset_id"`
	Title      string `json:"title"`
}

type dimensionsDTO struct {
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

type fileDTO struct {
	FileType   *string       `json:"filetype"`
	FileSize   *int64        `json:"filesize"`
	Dimensions dimensionsDTO `json:"dimensions"`
}

type imageDTO struct {
	ImageID         uint              `json:"image_id"`
	BlobstoragePath string            `json:"blobstorage_path"`
	ImageSet        *imageSetRefDTO   `json:"imageset"`
	DateTaken       *time.Time        `json:"date_taken"`
	LocationTaken   *string           `json:"location_taken"`
	Type            *string           `json:"type"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	File            fileDTO           `json:"file"`
}

func newImageDTO(image models.Image) imageDTO {
	dto := imageDTO{
		ImageID:         image.ID,
		BlobstoragePath: image.Handle,
		DateTaken:       image.DateTaken,
		LocationTaken:   image.LocationDescription,
		Type:            image.Type,
		Metadata:        image.Metadata,
		File: fileDTO{
			FileType:   image.FileType,
			FileSize:   image.FileSize,
			Dimensions: dimensionsDTO{Width: image.Width, Height: image.Height},
		},
	}
	if image.ImageSet != nil {
		dto.ImageSet = &imageSetRefDTO{ImageSetID: image.ImageSet.ID, Title: image.ImageSet.Title}
	}
	return dto
}

func newImageDTOs(images []models.Image) []imageDTO {
	dtos := make([]imageDTO, 0, len(images))
	for _, image := range images {
		dtos = append(dtos, newImageDTO(image))
	}
	return dtos
}

type imageSetDTO struct {
	ImageSetID      uint                  `json:"imageset_id"`
	Title           string                `json:"title"`
	Status          models.ImageSetStatus `json:"status"`
	Metadata        datatypes.JSONMap     `json:"metadata"`
	BlobstoragePath *string               `json:"blobstorage_path"`
	DropboxURL      string                `json:"dropbox_url,omitempty"`
	DateCreated     time.Time             `json:"date_created"`
	DateFinished    *time.Time            `json:"date_finished"`
	CreatedBy       string                `json:"created_by"`
}

func newImageSetDTO(imageSet models.ImageSet) imageSetDTO {
	dto := imageSetDTO{
		ImageSetID:      imageSet.ID,
		Title:           imageSet.Title,
		Status:          imageSet.Status,
		Metadata:        imageSet.Metadata,
		BlobstoragePath: imageSet.Handle,
		DateCreated:     imageSet.CreatedAt,
		DateFinished:    imageSet.DateFinished,
	}
	if imageSet.CreatedBy != nil {
		dto.CreatedBy = imageSet.CreatedBy.Email
	}
	return dto
}

type boundingBoxDTO struct {
	XMin int `json:"xmin"`
	XMax int `json:"xmax"`
	YMin int `json:"ymin"`
	YMax int `json:"ymax"`
}

type objectDTO struct {
	ObjectID    uint           `json:"object_id"`
	ImageID     uint           `json:"image_id"`
	CampaignID  uint           `json:"campaign_id"`
	Label       string         `json:"label"`
	BoundingBox boundingBoxDTO `json:"bounding_box"`
	Confidence  *float64       `json:"confidence"`
	DateAdded   time.Time      `json:"date_added"`
}

func newObjectDTOs(imageID, campaignID uint, objects []models.Object) []objectDTO {
	dtos := make([]objectDTO, 0, len(objects))
	for _, o := range objects {
		dtos = append(dtos, objectDTO{
			ObjectID:    o.ID,
			ImageID:     imageID,
			CampaignID:  campaignID,
			Label:       o.LabelTranslated,
			BoundingBox: boundingBoxDTO{XMin: o.XMin, XMax: o.XMax, YMin: o.YMin, YMax: o.YMax},
			Confidence:  o.Confidence,
			DateAdded:   o.CreatedAt,
		})
	}
	return dtos
}

type campaignImageDTO struct {
	CampaignImageID uint      `json:"campaignimage_id"`
	CampaignID      uint      `json:"campaign_id"`
	ImageID         uint      `json:"image_id"`
	Labeled         bool      `json:"labeled"`
	Image           *imageDTO `json:"image,omitempty"`
}

func newCampaignImageDTOs(links []models.CampaignImage) []campaignImageDTO {
	dtos := make([]campaignImageDTO, 0, len(links))
	for _, link := range links {
		dto := campaignImageDTO{
			CampaignImageID: link.ID,
			CampaignID:      link.CampaignID,
			ImageID:         link.ImageID,
			Labeled:         link.Labeled,
		}
		if link.Image != nil {
			image := newImageDTO(*link.Image)
			dto.Image = &image
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

type imageObjectsDTO struct {
	ImageID  uint        `json:"image_id"`
	ImageURL string      `json:"image_url"`
	Labeled  bool        `json:"labeled"`
	Objects  []objectDTO `json:"objects"`
}

// imagePath is where an image download is requested, answered with a redirect to storage
func imagePath(id uint) string {
	return fmt.Sprintf("/api/v1/images/%d", id)
}
