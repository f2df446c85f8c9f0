package workflow

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"labelapi/models"
	"labelapi/storage"
)

// CreatedImageSet is a new image set with the URL its images are uploaded to.
type CreatedImageSet struct {
	ImageSet   models.ImageSet
	CreatedBy  string
	DropboxURL string
}

// CreateImageSet Create an image set and the dropbox its images are uploaded to
func (e *Engine) CreateImageSet(ctx context.Context, user *models.User, title string, metadata map[string]interface{}) (*CreatedImageSet, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	if !storage.CheckName(title) {
		return nil, invalid("Name is invalid - must be a valid storage container name")
	}

	db := e.db.WithContext(ctx)
	var taken int64
	if err := db.Model(&models.ImageSet{}).Where("LOWER(title) = LOWER(?)", title).Count(&taken).Error; err != nil {
		return nil, fmt.Errorf("failed to check title: %w", err)
	}
	if taken > 0 {
		log.Info("Trying to create image set with already existing name")
		return nil, conflict("Image Set title is already taken")
	}

	location, err := e.storage.CreateLocation(ctx, title)
	if err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, conflict("Image Set title is already taken")
		}
		return nil, &Error{Kind: KindInternal, Message: "Failed to create container in Blob Storage"}
	}

	imageSet := models.ImageSet{
		Title:       title,
		Status:      models.ImageSetCreated,
		Metadata:    datatypes.JSONMap(metadata),
		Handle:      &location,
		CreatedByID: user.ID,
	}
	if err := db.Create(&imageSet).Error; err != nil {
		if derr := e.storage.DeleteLocation(ctx, location); derr != nil {
			log.Warn(fmt.Sprintf("Failed to remove dropbox %s after failed create", location))
		}
		return nil, fmt.Errorf("failed to create image set: %w", duplicateAs(err, "Image Set title is already taken"))
	}

	url, err := e.storage.SignURL(location, e.now().Add(e.options.UploadTTL),
		storage.PermissionWrite, storage.PermissionList, storage.PermissionRead, storage.PermissionDelete)
	if err != nil {
		return nil, err
	}

	log.WithField("imageset_id", imageSet.ID).Info(fmt.Sprintf("Created image set %s", title))
	return &CreatedImageSet{ImageSet: imageSet, CreatedBy: user.Email, DropboxURL: url}, nil
}

// ListImageSets Return one page of image sets
func (e *Engine) ListImageSets(ctx context.Context, user *models.User, page Page) ([]models.ImageSet, Pagination, error) {
	if err := requireAdmin(user); err != nil {
		return nil, Pagination{}, err
	}
	db := e.db.WithContext(ctx)
	var imageSets []models.ImageSet
	pagination, err := paginate(db.Model(&models.ImageSet{}), page, &imageSets)
	if err != nil {
		return nil, Pagination{}, err
	}
	if err := attachCreators(db, imageSets); err != nil {
		return nil, Pagination{}, err
	}
	return imageSets, pagination, nil
}

// ImageSetImages Return one page of the images in an image set
func (e *Engine) ImageSetImages(ctx context.Context, user *models.User, imageSetID uint, page Page) ([]models.Image, Pagination, error) {
	if err := requireAdmin(user); err != nil {
		return nil, Pagination{}, err
	}
	db := e.db.WithContext(ctx)
	var imageSet models.ImageSet
	if err := db.First(&imageSet, imageSetID).Error; err != nil {
		return nil, Pagination{}, notFoundOr(err, "Image Set does not exist")
	}

	var images []models.Image
	pagination, err := paginate(db.Model(&models.Image{}).Where("image_set_id = ?", imageSet.ID), page, &images)
	if err != nil {
		return nil, Pagination{}, err
	}
	for i := range images {
		images[i].ImageSet = &imageSet
	}
	return images, pagination, nil
}

func attachCreators(db *gorm.DB, imageSets []models.ImageSet) error {
	for i := range imageSets {
		var creator models.User
		err := db.First(&creator, imageSets[i].CreatedByID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load creator: %w", err)
		}
		imageSets[i].CreatedBy = &creator
	}
	return nil
}
