package workflow

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"labelapi/models"
)

// Requesting "finished" stores "finishing" until the finalization job is done. A finishing
// entity may be requested as finished again, which starts the job again.
var campaignTransitions = map[models.CampaignStatus][]models.CampaignStatus{
	models.CampaignCreated:   {models.CampaignActive},
	models.CampaignActive:    {models.CampaignCompleted},
	models.CampaignCompleted: {models.CampaignActive, models.CampaignFinished},
	models.CampaignFinishing: {models.CampaignFinished},
	models.CampaignFinished:  {},
}

var imageSetTransitions = map[models.ImageSetStatus][]models.ImageSetStatus{
	models.ImageSetCreated:   {models.ImageSetFinished},
	models.ImageSetFinishing: {models.ImageSetFinished},
	models.ImageSetFinished:  {},
}

// snapshot identifies the entity a finalization job works on, taken when the job is scheduled.
type snapshot struct {
	ID    uint
	Title string
}

func campaignTransitionAllowed(from, to models.CampaignStatus) bool {
	for _, allowed := range campaignTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func imageSetTransitionAllowed(from, to models.ImageSetStatus) bool {
	for _, allowed := range imageSetTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ChangeCampaignStatus Move a campaign to the desired status. Requesting "finished" schedules
// the export of the campaign.
func (e *Engine) ChangeCampaignStatus(ctx context.Context, user *models.User, campaignID uint, desired models.CampaignStatus) (*models.Campaign, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	return e.changeCampaignStatus(ctx, campaignID, desired)
}

func (e *Engine) changeCampaignStatus(ctx context.Context, campaignID uint, desired models.CampaignStatus) (*models.Campaign, error) {
	var campaign models.Campaign
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&campaign, campaignID).Error; err != nil {
			return notFoundOr(err, "Campaign does not exist")
		}
		return e.applyCampaignStatus(tx, &campaign, desired)
	})
	if err != nil {
		return nil, err
	}

	if campaign.Status == models.CampaignFinishing {
		e.enqueueFinishCampaign(snapshot{ID: campaign.ID, Title: campaign.Title})
	}
	return &campaign, nil
}

// applyCampaignStatus Validate and store a transition inside tx, updating campaign on success
func (e *Engine) applyCampaignStatus(tx *gorm.DB, campaign *models.Campaign, desired models.CampaignStatus) error {
	from := campaign.Status
	if !campaignTransitionAllowed(from, desired) {
		log.WithField("campaign_id", campaign.ID).Warn(
			fmt.Sprintf("Attempting invalid status transition on campaign: %s to %s", from, desired))
		return conflict(`Not allowed to go from "%s" to "%s"`, from, desired)
	}

	next := desired
	if desired == models.CampaignFinished {
		next = models.CampaignFinishing
	}
	now := e.now()
	updates := map[string]interface{}{"status": next, "updated_at": now}
	switch next {
	case models.CampaignActive:
		updates["date_started"] = now
		updates["date_completed"] = nil
		updates["date_finished"] = nil
	case models.CampaignCompleted:
		updates["date_completed"] = now
		updates["date_finished"] = nil
	}

	if err := commitStatus(tx, &models.Campaign{}, campaign.ID, string(from), updates); err != nil {
		return err
	}

	campaign.Status = next
	campaign.UpdatedAt = now
	switch next {
	case models.CampaignActive:
		campaign.DateStarted = &now
		campaign.DateCompleted = nil
		campaign.DateFinished = nil
	case models.CampaignCompleted:
		campaign.DateCompleted = &now
		campaign.DateFinished = nil
	}
	log.WithField("campaign_id", campaign.ID).Info(fmt.Sprintf("Campaign status changed from %s to %s", from, next))
	return nil
}

// ChangeImageSetStatus Move an image set to the desired status. Requesting "finished"
// schedules moving the uploaded files to permanent storage.
func (e *Engine) ChangeImageSetStatus(ctx context.Context, user *models.User, imageSetID uint, desired models.ImageSetStatus) (*models.ImageSet, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	return e.changeImageSetStatus(ctx, imageSetID, desired)
}

func (e *Engine) changeImageSetStatus(ctx context.Context, imageSetID uint, desired models.ImageSetStatus) (*models.ImageSet, error) {
	var imageSet models.ImageSet
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&imageSet, imageSetID).Error; err != nil {
			return notFoundOr(err, "Image Set does not exist")
		}

		from := imageSet.Status
		if !imageSetTransitionAllowed(from, desired) {
			log.WithField("imageset_id", imageSet.ID).Warn(
				fmt.Sprintf("Attempting invalid status transition on image set: %s to %s", from, desired))
			return conflict(`Not allowed to go from "%s" to "%s"`, from, desired)
		}

		next := desired
		if desired == models.ImageSetFinished {
			next = models.ImageSetFinishing
		}
		now := e.now()
		updates := map[string]interface{}{"status": next, "updated_at": now}
		if err := commitStatus(tx, &models.ImageSet{}, imageSet.ID, string(from), updates); err != nil {
			return err
		}
		imageSet.Status = next
		imageSet.UpdatedAt = now
		log.WithField("imageset_id", imageSet.ID).Info(fmt.Sprintf("Image set status changed from %s to %s", from, next))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if imageSet.Status == models.ImageSetFinishing {
		e.enqueueFinishImageSet(snapshot{ID: imageSet.ID, Title: imageSet.Title})
	}
	return &imageSet, nil
}

// commitStatus Store the updates only if the row still has the status the transition was
// validated against. A concurrent change makes this a conflict.
func commitStatus(tx *gorm.DB, model interface{}, id uint, from string, updates map[string]interface{}) error {
	res := tx.Model(model).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to store status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return conflict(`Status is no longer "%s"`, from)
	}
	return nil
}

// markFinished Complete the finishing status of a campaign or image set inside tx
func markFinished(tx *gorm.DB, model interface{}, id uint, from string, to string, now time.Time) error {
	return commitStatus(tx, model, id, from, map[string]interface{}{
		"status":        to,
		"date_finished": now,
		"updated_at":    now,
	})
}
