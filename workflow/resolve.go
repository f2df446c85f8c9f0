package workflow

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"labelapi/models"
)

// Labels are the objects of one image as labeled in one campaign. CampaignID is zero when no
// campaign provided labels.
type Labels struct {
	ImageID    uint
	CampaignID uint
	Objects    []models.Object
}

// GetObjects Return the objects of an image from exactly one campaign. With campaign ids, the
// first listed campaign that labeled the image wins. Without, the most recently finished
// campaign wins.
func (e *Engine) GetObjects(ctx context.Context, user *models.User, imageID uint, campaignIDs []uint) (*Labels, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}

	db := e.db.WithContext(ctx)
	var image models.Image
	if err := db.First(&image, imageID).Error; err != nil {
		return nil, notFoundOr(err, "Image does not exist")
	}
	for _, id := range campaignIDs {
		var count int64
		if err := db.Model(&models.Campaign{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to look up campaign: %w", err)
		}
		if count == 0 {
			return nil, notFound("Unknown campaign %d", id)
		}
	}

	var links []models.CampaignImage
	err := db.Where("image_id = ?", image.ID).
		Preload("Campaign").
		Preload("Objects", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Order("id").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load campaigns of image: %w", err)
	}

	labels := &Labels{ImageID: image.ID, Objects: []models.Object{}}
	if link := resolveLink(links, campaignIDs); link != nil {
		labels.CampaignID = link.CampaignID
		labels.Objects = sortedObjects(link.Objects)
	}
	return labels, nil
}

// resolveLink Pick the campaign link whose objects are authoritative. Links need their
// campaign loaded.
func resolveLink(links []models.CampaignImage, campaignIDs []uint) *models.CampaignImage {
	if len(campaignIDs) > 0 {
		for _, id := range campaignIDs {
			for i := range links {
				if links[i].CampaignID == id && links[i].Labeled {
					return &links[i]
				}
			}
		}
		return nil
	}

	var latest *models.CampaignImage
	for i := range links {
		campaign := links[i].Campaign
		if campaign == nil || campaign.Status != models.CampaignFinished {
			continue
		}
		if latest == nil || finishedAfter(campaign, latest.Campaign) {
			latest = &links[i]
		}
	}
	return latest
}

func finishedAfter(a, b *models.Campaign) bool {
	switch {
	case a.DateFinished == nil:
		return false
	case b.DateFinished == nil:
		return true
	default:
		return a.DateFinished.After(*b.DateFinished)
	}
}

func sortedObjects(objects []models.Object) []models.Object {
	sorted := make([]models.Object, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
