package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ImageSetStatus string

const (
	ImageSetCreated ImageSetStatus = "created"
	// ImageSetFinishing is stored while the dropbox of a finished set is moved to permanent storage.
	ImageSetFinishing ImageSetStatus = "finishing"
	ImageSetFinished  ImageSetStatus = "finished"
)

type Image struct {
	gorm.Model
	Handle              string            `json:"blobstorage_path" gorm:"column:blobstorage_path;size:512;not null;uniqueIndex"`
	ImageSetID          *uint             `json:"-" gorm:"index"`
	ImageSet            *ImageSet         `json:"-" gorm:"foreignKey:ImageSetID"`
	DateTaken           *time.Time        `json:"date_taken"`
	LocationDescription *string           `json:"-" gorm:"size:1024"`
	Lat                 *float64          `json:"-"`
	Lon                 *float64          `json:"-"`
	Type                *string           `json:"type" gorm:"size:128"`
	Metadata            datatypes.JSONMap `json:"metadata"`
	FileType            *string           `json:"-" gorm:"size:128"`
	FileSize            *int64            `json:"-"`
	Width               *int              `json:"-"`
	Height              *int              `json:"-"`
	CampaignImages      []CampaignImage   `json:"-" gorm:"foreignKey:ImageID"`
}

type ImageSet struct {
	gorm.Model
	Title        string            `json:"title" gorm:"size:128;not null;uniqueIndex"`
	Status       ImageSetStatus    `json:"status" gorm:"size:16;not null;default:created;index"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	Handle       *string           `json:"blobstorage_path" gorm:"column:blobstorage_path;size:512;uniqueIndex"`
	DateFinished *time.Time        `json:"date_finished"`
	CreatedByID  uint              `json:"-" gorm:"not null"`
	CreatedBy    *User             `json:"-" gorm:"foreignKey:CreatedByID"`
	Images       []Image           `json:"-" gorm:"foreignKey:ImageSetID"`
}
