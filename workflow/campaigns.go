package workflow

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"labelapi/models"
)

type CampaignInput struct {
	Title             string
	LabelerEmail      string
	Metadata          map[string]interface{}
	LabelTranslations map[string]string
}

// AccessToken holds the credentials of the labeler. Secret is only known when the key was
// generated for this campaign.
type AccessToken struct {
	APIKey    string
	APISecret *string
}

type CampaignSummary struct {
	Campaign  models.Campaign
	Done      int64
	Total     int64
	CreatedBy string
}

// CreatedCampaign is a new campaign with the credentials its labeler uses.
type CreatedCampaign struct {
	CampaignSummary
	AccessToken AccessToken
}

// CreateCampaign Create a campaign and give the labeler, created when unknown, access to it
func (e *Engine) CreateCampaign(ctx context.Context, user *models.User, input CampaignInput) (*CreatedCampaign, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalid("Title is required")
	}
	if input.LabelerEmail == "" {
		return nil, invalid("Labeler email is required")
	}

	var created CreatedCampaign
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Campaign{}).Where("title = ?", title).Count(&taken).Error; err != nil {
			return fmt.Errorf("failed to check title: %w", err)
		}
		if taken > 0 {
			log.Info("Trying to create campaign with already existing name")
			return conflict("Campaign title is already taken")
		}

		labeler, err := models.FindOrCreateUser(tx, input.LabelerEmail)
		if err != nil {
			return err
		}
		if labeler.APIKey != nil {
			created.AccessToken = AccessToken{APIKey: *labeler.APIKey}
		} else {
			key, secret, err := labeler.GenerateAPIKey(tx)
			if err != nil {
				return err
			}
			created.AccessToken = AccessToken{APIKey: key, APISecret: &secret}
		}

		campaign := models.Campaign{
			Title:             title,
			Status:            models.CampaignCreated,
			Metadata:          datatypes.JSONMap(input.Metadata),
			LabelTranslations: datatypes.NewJSONType(models.LabelTranslations(input.LabelTranslations)),
			CreatedByID:       user.ID,
		}
		if err := tx.Create(&campaign).Error; err != nil {
			return fmt.Errorf("failed to create campaign: %w", duplicateAs(err, "Campaign title is already taken"))
		}

		grant := models.ScopedGrant{Name: models.RoleLabeler, SubjectType: models.SubjectCampaign, SubjectID: campaign.ID}
		if err := models.GrantRole(tx, labeler, grant); err != nil {
			return err
		}

		created.CampaignSummary = CampaignSummary{Campaign: campaign, CreatedBy: user.Email}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("campaign_id", created.Campaign.ID).Info(fmt.Sprintf("Created campaign %s", title))
	return &created, nil
}

// GetCampaign Return a campaign with its labeling progress
func (e *Engine) GetCampaign(ctx context.Context, user *models.User, campaignID uint) (*CampaignSummary, error) {
	if err := requireCampaignAccess(user, campaignID); err != nil {
		return nil, err
	}
	db := e.db.WithContext(ctx)
	var campaign models.Campaign
	if err := db.Preload("CreatedBy").First(&campaign, campaignID).Error; err != nil {
		return nil, notFoundOr(err, "Campaign does not exist")
	}
	summary, err := summarize(db, campaign)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListCampaigns Return one page of campaigns
func (e *Engine) ListCampaigns(ctx context.Context, user *models.User, page Page) ([]CampaignSummary, Pagination, error) {
	if err := requireAdmin(user); err != nil {
		return nil, Pagination{}, err
	}
	db := e.db.WithContext(ctx)
	var campaigns []models.Campaign
	pagination, err := paginate(db.Model(&models.Campaign{}), page, &campaigns)
	if err != nil {
		return nil, Pagination{}, err
	}

	summaries := make([]CampaignSummary, 0, len(campaigns))
	for _, campaign := range campaigns {
		var creator models.User
		if err := db.First(&creator, campaign.CreatedByID).Error; err == nil {
			campaign.CreatedBy = &creator
		}
		summary, err := summarize(db, campaign)
		if err != nil {
			return nil, Pagination{}, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, pagination, nil
}

// CampaignImages Return one page of the images of a campaign with their labeling state
func (e *Engine) CampaignImages(ctx context.Context, user *models.User, campaignID uint, page Page) ([]models.CampaignImage, Pagination, error) {
	if err := requireCampaignAccess(user, campaignID); err != nil {
		return nil, Pagination{}, err
	}
	db := e.db.WithContext(ctx)
	var campaign models.Campaign
	if err := db.First(&campaign, campaignID).Error; err != nil {
		return nil, Pagination{}, notFoundOr(err, "Campaign does not exist")
	}

	var links []models.CampaignImage
	query := db.Model(&models.CampaignImage{}).Where("campaign_id = ?", campaign.ID)
	pagination, err := paginate(query, page, &links)
	if err != nil {
		return nil, Pagination{}, err
	}
	if err := attachImages(db, links); err != nil {
		return nil, Pagination{}, err
	}
	return links, pagination, nil
}

// CampaignObjects Return every image of a campaign with the objects labeled in it
func (e *Engine) CampaignObjects(ctx context.Context, user *models.User, campaignID uint) ([]models.CampaignImage, error) {
	if err := requireCampaignAccess(user, campaignID); err != nil {
		return nil, err
	}
	db := e.db.WithContext(ctx)
	var campaign models.Campaign
	if err := db.First(&campaign, campaignID).Error; err != nil {
		return nil, notFoundOr(err, "Campaign does not exist")
	}

	var links []models.CampaignImage
	err := db.Where("campaign_id = ?", campaign.ID).
		Preload("Image").
		Preload("Objects", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Order("id").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign objects: %w", err)
	}
	return links, nil
}

func summarize(db *gorm.DB, campaign models.Campaign) (CampaignSummary, error) {
	total, unlabeled, err := campaignProgress(db, campaign.ID)
	if err != nil {
		return CampaignSummary{}, err
	}
	summary := CampaignSummary{Campaign: campaign, Done: total - unlabeled, Total: total}
	if campaign.CreatedBy != nil {
		summary.CreatedBy = campaign.CreatedBy.Email
	}
	return summary, nil
}

// attachImages Load the image of every link
func attachImages(db *gorm.DB, links []models.CampaignImage) error {
	if len(links) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.ImageID)
	}
	var images []models.Image
	if err := db.Where("id IN ?", ids).Find(&images).Error; err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}
	byID := make(map[uint]*models.Image, len(images))
	for i := range images {
		byID[images[i].ID] = &images[i]
	}
	for i := range links {
		links[i].Image = byID[links[i].ImageID]
	}
	return nil
}
