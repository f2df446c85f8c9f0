package workflow

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"labelapi/models"
)

type BoundingBox struct {
	XMin int
	XMax int
	YMin int
	YMax int
}

// ObjectInput is one labeled box. Without a translated label the original label is used for both.
type ObjectInput struct {
	Label           string
	LabelTranslated *string
	Confidence      *float64
	Box             BoundingBox
}

// ImageObjects holds all objects labeled in one image.
type ImageObjects struct {
	ImageID uint
	Objects []ObjectInput
}

// AddObjects Store the objects labeled in images of an active campaign. The objects of each
// image replace whatever was labeled in it before. When every image of the campaign is
// labeled afterwards, the campaign is completed. Either the whole batch is stored or nothing.
func (e *Engine) AddObjects(ctx context.Context, user *models.User, campaignID uint, batch []ImageObjects) (*models.Campaign, error) {
	if err := requireCampaignAccess(user, campaignID); err != nil {
		return nil, err
	}

	var campaign models.Campaign
	boxes := 0
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&campaign, campaignID).Error; err != nil {
			return notFoundOr(err, "Campaign does not exist")
		}
		if campaign.Status != models.CampaignActive {
			log.WithField("campaign_id", campaign.ID).Warn(fmt.Sprintf("Trying to add objects to %s campaign", campaign.Status))
			return conflict(`Not allowed to add objects while status is "%s"`, campaign.Status)
		}

		for _, item := range batch {
			var link models.CampaignImage
			err := tx.Where("campaign_id = ? AND image_id = ?", campaign.ID, item.ImageID).First(&link).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Image %d does not exist or is not part of this campaign", item.ImageID)
			}
			if err != nil {
				return fmt.Errorf("failed to find campaign image: %w", err)
			}

			if err := tx.Where("campaign_image_id = ?", link.ID).Delete(&models.Object{}).Error; err != nil {
				return fmt.Errorf("failed to delete objects of image %d: %w", item.ImageID, err)
			}

			if len(item.Objects) > 0 {
				objects := make([]models.Object, 0, len(item.Objects))
				for _, o := range item.Objects {
					translated := o.Label
					if o.LabelTranslated != nil {
						translated = *o.LabelTranslated
					}
					objects = append(objects, models.Object{
						CampaignImageID: link.ID,
						LabelOriginal:   o.Label,
						LabelTranslated: translated,
						Confidence:      o.Confidence,
						XMin:            o.Box.XMin,
						XMax:            o.Box.XMax,
						YMin:            o.Box.YMin,
						YMax:            o.Box.YMax,
					})
				}
				if err := tx.Create(&objects).Error; err != nil {
					return fmt.Errorf("failed to store objects of image %d: %w", item.ImageID, err)
				}
				boxes += len(objects)
			}

			if err := tx.Model(&link).Update("labeled", true).Error; err != nil {
				return fmt.Errorf("failed to mark image %d labeled: %w", item.ImageID, err)
			}
		}

		total, unlabeled, err := campaignProgress(tx, campaign.ID)
		if err != nil {
			return err
		}
		if total > 0 && unlabeled == 0 {
			return e.applyCampaignStatus(tx, &campaign, models.CampaignCompleted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("campaign_id", campaign.ID).Info(fmt.Sprintf("Stored %d objects in %d images", boxes, len(batch)))
	return &campaign, nil
}

// campaignProgress Count all images of a campaign and the ones not labeled yet
func campaignProgress(tx *gorm.DB, campaignID uint) (int64, int64, error) {
	var total, unlabeled int64
	if err := tx.Model(&models.CampaignImage{}).Where("campaign_id = ?", campaignID).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count campaign images: %w", err)
	}
	err := tx.Model(&models.CampaignImage{}).
		Where("campaign_id = ? AND labeled = ?", campaignID, false).
		Count(&unlabeled).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count unlabeled images: %w", err)
	}
	return total, unlabeled, nil
}
