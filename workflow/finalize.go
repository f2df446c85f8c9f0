package workflow

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"labelapi/export"
	"labelapi/models"
)

// Slug Lowercase the title and replace spaces with dashes
func Slug(title string) string {
	return strings.ToLower(strings.ReplaceAll(title, " ", "-"))
}

func (e *Engine) enqueueFinishCampaign(s snapshot) {
	e.jobs.Enqueue(Job{
		Name: fmt.Sprintf("finish-campaign-%d", s.ID),
		Run:  func(ctx context.Context) error { return e.finishCampaign(ctx, s) },
	})
}

func (e *Engine) enqueueFinishImageSet(s snapshot) {
	e.jobs.Enqueue(Job{
		Name: fmt.Sprintf("finish-imageset-%d", s.ID),
		Run:  func(ctx context.Context) error { return e.finishImageSet(ctx, s) },
	})
}

// finishCampaign Export the images and labels of a campaign as two datasets, then mark the
// campaign finished.
func (e *Engine) finishCampaign(ctx context.Context, s snapshot) error {
	logger := log.WithField("campaign_id", s.ID)
	db := e.db.WithContext(ctx)

	var campaign models.Campaign
	if err := db.First(&campaign, s.ID).Error; err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.Status != models.CampaignFinishing {
		logger.Info(fmt.Sprintf("Campaign is %s, nothing to finish", campaign.Status))
		return nil
	}
	logger.Info("Started finishing campaign")

	var links []models.CampaignImage
	err := db.Where("campaign_id = ?", s.ID).
		Preload("Image").
		Preload("Objects", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Order("id").
		Find(&links).Error
	if err != nil {
		return fmt.Errorf("failed to load campaign images: %w", err)
	}

	paths := make([]string, 0, len(links))
	records := make([]export.LabelRecord, 0, len(links))
	for _, link := range links {
		if link.Image == nil {
			continue
		}
		p := export.DatastorePath(link.Image.Handle)
		paths = append(paths, p)

		record := export.LabelRecord{
			ImageURL:    p,
			Labels:      make([]export.Box, 0, len(link.Objects)),
			Confidences: make([]*float64, 0, len(link.Objects)),
		}
		for _, o := range link.Objects {
			record.Labels = append(record.Labels, export.Box{
				Label:   o.LabelTranslated,
				BottomX: o.XMin,
				TopX:    o.XMax,
				BottomY: o.YMin,
				TopY:    o.YMax,
			})
			record.Confidences = append(record.Confidences, o.Confidence)
		}
		records = append(records, record)
	}
	logger.Info("Successfully parsed campaign image objects")

	name := Slug(s.Title)
	err = e.exporter.ExportImages(ctx, name+"_images",
		fmt.Sprintf("Exported dataset as result of the finishing of labeling campaign %s", name), paths)
	if err != nil {
		return fmt.Errorf("failed to export images of campaign %d: %w", s.ID, err)
	}
	logger.Info(fmt.Sprintf("Exported images to dataset %s_images", name))

	err = e.exporter.ExportLabels(ctx, name+"_labels",
		fmt.Sprintf("Exported labels as result of the finishing of labeling campaign %s", name), records)
	if err != nil {
		return fmt.Errorf("failed to export labels of campaign %d: %w", s.ID, err)
	}
	logger.Info(fmt.Sprintf("Exported labels to dataset %s_labels", name))

	err = markFinished(db, &models.Campaign{}, s.ID,
		string(models.CampaignFinishing), string(models.CampaignFinished), e.now())
	if err != nil {
		return err
	}
	logger.Info("Campaign finished")
	return nil
}

// finishImageSet Copy the dropbox of an image set to permanent storage, create an image for
// every copied file, point the set at the new location and remove the dropbox. When copying
// fails or finds no files nothing is changed and the set stays finishing.
func (e *Engine) finishImageSet(ctx context.Context, s snapshot) error {
	logger := log.WithField("imageset_id", s.ID)
	db := e.db.WithContext(ctx)

	var imageSet models.ImageSet
	if err := db.First(&imageSet, s.ID).Error; err != nil {
		return fmt.Errorf("failed to load image set: %w", err)
	}
	if imageSet.Status != models.ImageSetFinishing {
		logger.Info(fmt.Sprintf("Image set is %s, nothing to finish", imageSet.Status))
		return nil
	}
	logger.Info("Started finishing image set")
	if imageSet.Handle == nil {
		return errors.New("image set has no storage location")
	}

	dropbox := *imageSet.Handle
	container := e.options.ImageSetContainer
	folder := path.Join(e.options.ImageSetFolder, Slug(s.Title))

	items, err := e.storage.CopyContents(ctx, dropbox, "", container, folder)
	if err != nil {
		logger.Warn("Failed to copy images from dropbox to uploads folder, possibly partially")
		return err
	}
	if len(items) == 0 {
		logger.Warn("Failed to copy images from dropbox to uploads folder, no files found")
		return fmt.Errorf("no files copied from %s", dropbox)
	}
	logger.Debug("Files copied")

	images := make([]models.Image, 0, len(items))
	for _, item := range items {
		p := path.Join(container, folder, item.Name)
		size := item.Size
		image := models.Image{Handle: p, ImageSetID: &imageSet.ID, FileSize: &size}

		desc, err := e.storage.DescribeItem(ctx, p)
		if err == nil {
			fileType, width, height := desc.FileType, desc.Width, desc.Height
			image.FileType = &fileType
			image.Width = &width
			image.Height = &height
		}
		images = append(images, image)
	}

	permanent := path.Join(container, folder)
	err = db.Transaction(func(tx *gorm.DB) error {
		for i := range images {
			var existing models.Image
			err := tx.Where("blobstorage_path = ?", images[i].Handle).Limit(1).Find(&existing).Error
			if err != nil {
				return err
			}
			if existing.ID != 0 {
				if existing.ImageSetID == nil {
					if err := tx.Model(&existing).Update("image_set_id", imageSet.ID).Error; err != nil {
						return fmt.Errorf("failed to assign image %s: %w", existing.Handle, err)
					}
				}
				continue
			}
			if err := tx.Create(&images[i]).Error; err != nil {
				return fmt.Errorf("failed to create image %s: %w", images[i].Handle, err)
			}
		}
		if err := tx.Model(&imageSet).Update("blobstorage_path", permanent).Error; err != nil {
			return fmt.Errorf("failed to update image set location: %w", err)
		}
		return markFinished(tx, &models.ImageSet{}, imageSet.ID,
			string(models.ImageSetFinishing), string(models.ImageSetFinished), e.now())
	})
	if err != nil {
		return err
	}
	logger.Debug("Image objects created")

	if err := e.storage.DeleteLocation(ctx, dropbox); err != nil {
		logger.Warn(fmt.Sprintf("Failed to delete dropbox %s", dropbox))
	}
	logger.Info("Image set finished")
	return nil
}

// Recover Schedule the finalization of every campaign and image set left finishing, for
// instance by a restart while their job was running.
func (e *Engine) Recover(ctx context.Context) error {
	db := e.db.WithContext(ctx)

	var campaigns []models.Campaign
	if err := db.Where("status = ?", models.CampaignFinishing).Order("id").Find(&campaigns).Error; err != nil {
		return fmt.Errorf("failed to find finishing campaigns: %w", err)
	}
	for _, c := range campaigns {
		e.enqueueFinishCampaign(snapshot{ID: c.ID, Title: c.Title})
	}

	var imageSets []models.ImageSet
	if err := db.Where("status = ?", models.ImageSetFinishing).Order("id").Find(&imageSets).Error; err != nil {
		return fmt.Errorf("failed to find finishing image sets: %w", err)
	}
	for _, s := range imageSets {
		e.enqueueFinishImageSet(snapshot{ID: s.ID, Title: s.Title})
	}

	if len(campaigns)+len(imageSets) > 0 {
		log.Info(fmt.Sprintf("Rescheduled %d campaigns and %d image sets", len(campaigns), len(imageSets)))
	}
	return nil
}
