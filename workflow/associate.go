package workflow

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"labelapi/models"
)

// ImageRef identifies an existing image, either ByID or ByHandle.
type ImageRef interface {
	resolve(tx *gorm.DB) (*models.Image, error)
	String() string
}

// ByID refers to an image by its id.
type ByID uint

// ByHandle refers to an image by its storage path.
type ByHandle string

func (r ByID) resolve(tx *gorm.DB) (*models.Image, error) {
	var image models.Image
	return findImage(tx.Where("id = ?", uint(r)), &image)
}

func (r ByID) String() string { return fmt.Sprintf("image %d", uint(r)) }

func (r ByHandle) resolve(tx *gorm.DB) (*models.Image, error) {
	var image models.Image
	return findImage(tx.Where("blobstorage_path = ?", string(r)), &image)
}

func (r ByHandle) String() string { return fmt.Sprintf("image %s", string(r)) }

// findImage Returns nil without error when the image does not exist
func findImage(query *gorm.DB, image *models.Image) (*models.Image, error) {
	err := query.First(image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up image: %w", err)
	}
	return image, nil
}

// AddCampaignImages Link images to a campaign that has not started yet. Images already linked
// are skipped. Either all images are linked or none.
func (e *Engine) AddCampaignImages(ctx context.Context, user *models.User, campaignID uint, refs []ImageRef) error {
	if err := requireAdmin(user); err != nil {
		return err
	}

	added := 0
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, campaignID).Error; err != nil {
			return notFoundOr(err, "Campaign does not exist")
		}
		if campaign.Status != models.CampaignCreated {
			log.WithField("campaign_id", campaign.ID).Warn(fmt.Sprintf("Trying to add images to %s campaign", campaign.Status))
			return conflict(`Not allowed to add images while status is "%s"`, campaign.Status)
		}

		for _, ref := range refs {
			image, err := ref.resolve(tx)
			if err != nil {
				return err
			}
			if image == nil {
				return notFound("Unknown image provided: %s", ref)
			}

			var linked int64
			err = tx.Model(&models.CampaignImage{}).
				Where("campaign_id = ? AND image_id = ?", campaign.ID, image.ID).
				Count(&linked).Error
			if err != nil {
				return fmt.Errorf("failed to check campaign image: %w", err)
			}
			if linked > 0 {
				continue
			}

			link := models.CampaignImage{CampaignID: campaign.ID, ImageID: image.ID}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("failed to add image to campaign: %w", err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.WithField("campaign_id", campaignID).Info(fmt.Sprintf("Added %d images to campaign", added))
	return nil
}

// AddImageSetImages Assign images to an image set that is not finished yet. Images may belong
// to one set only. Either all images are assigned or none.
func (e *Engine) AddImageSetImages(ctx context.Context, user *models.User, imageSetID uint, refs []ImageRef) error {
	if err := requireAdmin(user); err != nil {
		return err
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var imageSet models.ImageSet
		if err := tx.First(&imageSet, imageSetID).Error; err != nil {
			return notFoundOr(err, "Image Set does not exist")
		}
		if imageSet.Status != models.ImageSetCreated {
			log.WithField("imageset_id", imageSet.ID).Warn(fmt.Sprintf("Trying to add images to %s image set", imageSet.Status))
			return conflict(`Not allowed to add images while status is "%s"`, imageSet.Status)
		}

		for _, ref := range refs {
			image, err := ref.resolve(tx)
			if err != nil {
				return err
			}
			if image == nil {
				return notFound("Unknown image provided: %s", ref)
			}
			if image.ImageSetID != nil {
				return conflict("Image %d (%s) is already assigned to an image set", image.ID, image.Handle)
			}

			if err := tx.Model(image).Update("image_set_id", imageSet.ID).Error; err != nil {
				return fmt.Errorf("failed to add image to image set: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.WithField("imageset_id", imageSetID).Info(fmt.Sprintf("Added %d images to image set", len(refs)))
	return nil
}
