package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignCreated   CampaignStatus = "created"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	// CampaignFinishing is stored while the export job of a finished campaign runs.
	CampaignFinishing CampaignStatus = "finishing"
	CampaignFinished  CampaignStatus = "finished"
)

// LabelTranslations maps the labels used by a labeling party to internal labels.
type LabelTranslations map[string]string

type Campaign struct {
	gorm.Model
	Title             string                                `json:"title" gorm:"size:128;not null;uniqueIndex"`
	Status            CampaignStatus                        `json:"status" gorm:"size:16;not null;default:created;index"`
	Metadata          datatypes.JSONMap                     `json:"metadata"`
	LabelTranslations datatypes.JSONType[LabelTranslations] `json:"label_translations"`
	DateStarted       *time.Time                            `json:"date_started"`
	DateCompleted     *time.Time                            `json:"date_completed"`
	DateFinished      *time.Time                            `json:"date_finished"`
	CreatedByID       uint                                  `json:"-" gorm:"not null"`
	CreatedBy         *User                                 `json:"-" gorm:"foreignKey:CreatedByID"`
	CampaignImages    []CampaignImage                       `json:"-" gorm:"foreignKey:CampaignID"`
}

// CampaignImage links an image to a campaign and owns the objects labeled in it for that campaign.
type CampaignImage struct {
	ID         uint      `json:"campaignimage_id" gorm:"primaryKey"`
	CampaignID uint      `json:"campaign_id" gorm:"not null;uniqueIndex:idx_campaign_image"`
	ImageID    uint      `json:"image_id" gorm:"not null;uniqueIndex:idx_campaign_image;index"`
	Labeled    bool      `json:"labeled" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"-"`
	Campaign   *Campaign `json:"-" gorm:"foreignKey:CampaignID"`
	Image      *Image    `json:"-" gorm:"foreignKey:ImageID"`
	Objects    []Object  `json:"-" gorm:"foreignKey:CampaignImageID"`
}
