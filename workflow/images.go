package workflow

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"labelapi/models"
	"labelapi/storage"
)

// ListImages Return one page of all images
func (e *Engine) ListImages(ctx context.Context, user *models.User, page Page) ([]models.Image, Pagination, error) {
	if err := requireAdmin(user); err != nil {
		return nil, Pagination{}, err
	}
	db := e.db.WithContext(ctx)
	var images []models.Image
	pagination, err := paginate(db.Model(&models.Image{}), page, &images)
	if err != nil {
		return nil, Pagination{}, err
	}

	sets := map[uint]*models.ImageSet{}
	for i := range images {
		id := images[i].ImageSetID
		if id == nil {
			continue
		}
		if _, ok := sets[*id]; !ok {
			var imageSet models.ImageSet
			if err := db.First(&imageSet, *id).Error; err != nil {
				return nil, Pagination{}, fmt.Errorf("failed to load image set: %w", err)
			}
			sets[*id] = &imageSet
		}
		images[i].ImageSet = sets[*id]
	}
	return images, pagination, nil
}

// ImageURL Return a signed download URL for an image. Admins and the labelers of any campaign
// containing the image have access.
func (e *Engine) ImageURL(ctx context.Context, user *models.User, imageID uint) (string, error) {
	if user == nil {
		return "", unauthorized()
	}
	var image models.Image
	if err := e.db.WithContext(ctx).Preload("CampaignImages").First(&image, imageID).Error; err != nil {
		return "", notFoundOr(err, "Image does not exist")
	}
	if !HasGlobalRole(user, models.RoleImageAdmin) && !HasAccessToImage(user, &image) {
		log.Warn("User not authorized")
		return "", unauthorized()
	}
	return e.storage.SignURL(image.Handle, e.now().Add(e.options.ImageReadTTL), storage.PermissionRead)
}
