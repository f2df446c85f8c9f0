package models

import "time"

// Object is one bounding box labeled in an image during a campaign.
type Object struct {
	ID              uint      `json:"object_id" gorm:"primaryKey"`
	CampaignImageID uint      `json:"-" gorm:"not null;index"`
	LabelOriginal   string    `json:"-" gorm:"size:128"`
	LabelTranslated string    `json:"label" gorm:"size:128;not null"`
	Confidence      *float64  `json:"confidence"`
	XMin            int       `json:"-" gorm:"not null"`
	XMax            int       `json:"-" gorm:"not null"`
	YMin            int       `json:"-" gorm:"not null"`
	YMax            int       `json:"-" gorm:"not null"`
	CreatedAt       time.Time `json:"date_added"`
}
