package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelapi/models"
	"labelapi/storage"
)

var campaignStatuses = []models.CampaignStatus{
	models.CampaignCreated,
	models.CampaignActive,
	models.CampaignCompleted,
	models.CampaignFinishing,
	models.CampaignFinished,
}

func TestCampaignTransitions(t *testing.T) {
	allowed := map[string]bool{
		"created->active":     true,
		"active->completed":   true,
		"completed->active":   true,
		"completed->finished": true,
		"finishing->finished": true,
	}

	for _, from := range campaignStatuses {
		for _, to := range campaignStatuses {
			name := fmt.Sprintf("%s->%s", from, to)
			t.Run(name, func(t *testing.T) {
				h := newHarness(t)
				campaign := h.campaign("campaign", from)

				changed, err := h.engine.ChangeCampaignStatus(context.Background(), h.admin, campaign.ID, to)
				if !allowed[name] {
					assert.True(t, IsKind(err, KindConflict), "expected conflict, got %v", err)
					assert.Equal(t, from, h.reloadCampaign(campaign.ID).Status)
					return
				}

				require.NoError(t, err)
				expected := to
				if to == models.CampaignFinished {
					expected = models.CampaignFinishing
				}
				assert.Equal(t, expected, changed.Status)
			})
		}
	}
}

func TestChangeCampaignStatusSetsDates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	campaign := h.campaign("dates", models.CampaignCreated)

	active, err := h.engine.ChangeCampaignStatus(ctx, h.admin, campaign.ID, models.CampaignActive)
	require.NoError(t, err)
	require.NotNil(t, active.DateStarted)
	assert.Nil(t, active.DateCompleted)

	completed, err := h.engine.ChangeCampaignStatus(ctx, h.admin, campaign.ID, models.CampaignCompleted)
	require.NoError(t, err)
	require.NotNil(t, completed.DateCompleted)

	reactivated, err := h.engine.ChangeCampaignStatus(ctx, h.admin, campaign.ID, models.CampaignActive)
	require.NoError(t, err)
	assert.Nil(t, reactivated.DateCompleted)

	stored := h.reloadCampaign(campaign.ID)
	assert.Equal(t, models.CampaignActive, stored.Status)
	assert.Nil(t, stored.DateCompleted)
	require.NotNil(t, stored.DateStarted)
}

func TestChangeCampaignStatusUnknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.ChangeCampaignStatus(context.Background(), h.admin, 42, models.CampaignActive)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestChangeCampaignStatusRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	campaign := h.campaign("campaign", models.CampaignCreated)
	labeler := h.user("labeler@example.com",
		models.ScopedGrant{Name: models.RoleLabeler, SubjectType: models.SubjectCampaign, SubjectID: campaign.ID})

	_, err := h.engine.ChangeCampaignStatus(context.Background(), labeler, campaign.ID, models.CampaignActive)
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Equal(t, models.CampaignCreated, h.reloadCampaign(campaign.ID).Status)
}

func TestCommitStatusDetectsStaleStatus(t *testing.T) {
	h := newHarness(t)
	campaign := h.campaign("stale", models.CampaignActive)

	err := commitStatus(h.db, &models.Campaign{}, campaign.ID, string(models.CampaignCreated),
		map[string]interface{}{"status": models.CampaignActive})
	assert.True(t, IsKind(err, KindConflict))
	assert.Equal(t, models.CampaignActive, h.reloadCampaign(campaign.ID).Status)
}

func TestImageSetTransitions(t *testing.T) {
	statuses := []models.ImageSetStatus{models.ImageSetCreated, models.ImageSetFinishing, models.ImageSetFinished}
	allowed := map[string]bool{
		"created->finished":   true,
		"finishing->finished": true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			name := fmt.Sprintf("%s->%s", from, to)
			t.Run(name, func(t *testing.T) {
				h := newHarness(t)
				handle := "dropbox-set"
				imageSet := models.ImageSet{Title: "set", Status: from, Handle: &handle, CreatedByID: h.admin.ID}
				require.NoError(t, h.db.Create(&imageSet).Error)

				changed, err := h.engine.ChangeImageSetStatus(context.Background(), h.admin, imageSet.ID, to)
				if !allowed[name] {
					assert.True(t, IsKind(err, KindConflict), "expected conflict, got %v", err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, models.ImageSetFinishing, changed.Status)
			})
		}
	}
}

func TestFinishCampaignExportsDatasets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.image("images/uploads/beach/a.png")
	second := h.image("images/uploads/beach/b.png")
	campaign := h.campaign("Beach Cleanup", models.CampaignActive, first, second)

	confidence := 0.9
	labeled := box("bottle")
	labeled.Confidence = &confidence
	_, err := h.engine.AddObjects(ctx, h.admin, campaign.ID, []ImageObjects{
		{ImageID: first.ID, Objects: []ObjectInput{labeled, box("can")}},
		{ImageID: second.ID, Objects: nil},
	})
	require.NoError(t, err)
	require.Equal(t, models.CampaignCompleted, h.reloadCampaign(campaign.ID).Status)

	changed, err := h.engine.ChangeCampaignStatus(ctx, h.admin, campaign.ID, models.CampaignFinished)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignFinishing, changed.Status)

	h.drain()

	stored := h.reloadCampaign(campaign.ID)
	assert.Equal(t, models.CampaignFinished, stored.Status)
	assert.NotNil(t, stored.DateFinished)

	assert.Equal(t, []string{"uploads/beach/a.png", "uploads/beach/b.png"}, h.exporter.images["beach-cleanup_images"])
	records := h.exporter.labels["beach-cleanup_labels"]
	require.Len(t, records, 2)
	assert.Equal(t, "uploads/beach/a.png", records[0].ImageURL)
	require.Len(t, records[0].Labels, 2)
	assert.Equal(t, "bottle", records[0].Labels[0].Label)
	assert.Equal(t, 10, records[0].Labels[0].TopX)
	assert.Equal(t, &confidence, records[0].Confidences[0])
	assert.Nil(t, records[0].Confidences[1])
	assert.Empty(t, records[1].Labels)
}

func TestFinishCampaignFailureKeepsFinishing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	campaign := h.campaign("failing", models.CampaignCompleted)
	h.exporter.failure = errors.New("export unavailable")

	_, err := h.engine.ChangeCampaignStatus(ctx, h.admin, campaign.ID, models.CampaignFinished)
	require.NoError(t, err)
	h.drain()
	assert.Equal(t, models.CampaignFinishing, h.reloadCampaign(campaign.ID).Status)

	h.exporter.mu.Lock()
	h.exporter.failure = nil
	h.exporter.mu.Unlock()

	_, err = h.engine.ChangeCampaignStatus(ctx, h.admin, campaign.ID, models.CampaignFinished)
	require.NoError(t, err)
	h.drain()
	assert.Equal(t, models.CampaignFinished, h.reloadCampaign(campaign.ID).Status)
}

func TestFinishImageSetMovesUploads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.storage.items = []storage.Item{{Name: "a.png", Size: 10}, {Name: "nested/b.png", Size: 20}, {Name: "notes.txt", Size: 3}}

	created, err := h.engine.CreateImageSet(ctx, h.admin, "beach-2021", nil)
	require.NoError(t, err)

	changed, err := h.engine.ChangeImageSetStatus(ctx, h.admin, created.ImageSet.ID, models.ImageSetFinished)
	require.NoError(t, err)
	assert.Equal(t, models.ImageSetFinishing, changed.Status)

	h.drain()

	stored := h.reloadImageSet(created.ImageSet.ID)
	assert.Equal(t, models.ImageSetFinished, stored.Status)
	assert.NotNil(t, stored.DateFinished)
	require.NotNil(t, stored.Handle)
	assert.Equal(t, "images/uploads/beach-2021", *stored.Handle)
	assert.Equal(t, []string{"dropbox-beach-2021 -> images/uploads/beach-2021"}, h.storage.copied)
	assert.Equal(t, []string{"dropbox-beach-2021"}, h.storage.deleted)

	var images []models.Image
	require.NoError(t, h.db.Where("image_set_id = ?", stored.ID).Order("id").Find(&images).Error)
	require.Len(t, images, 3)
	assert.Equal(t, "images/uploads/beach-2021/a.png", images[0].Handle)
	assert.Equal(t, "images/uploads/beach-2021/nested/b.png", images[1].Handle)
	require.NotNil(t, images[0].FileType)
	assert.Equal(t, "PNG", *images[0].FileType)
	assert.Equal(t, 640, *images[0].Width)
	assert.EqualValues(t, 20, *images[1].FileSize)
	assert.Nil(t, images[2].FileType)
}

func TestFinishImageSetCopyFailureAndRecover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.storage.items = []storage.Item{{Name: "a.png", Size: 10}}
	h.storage.setCopyErr(errors.New("copy interrupted"))

	created, err := h.engine.CreateImageSet(ctx, h.admin, "interrupted", nil)
	require.NoError(t, err)
	_, err = h.engine.ChangeImageSetStatus(ctx, h.admin, created.ImageSet.ID, models.ImageSetFinished)
	require.NoError(t, err)
	h.drain()

	stored := h.reloadImageSet(created.ImageSet.ID)
	assert.Equal(t, models.ImageSetFinishing, stored.Status)
	assert.Equal(t, "dropbox-interrupted", *stored.Handle)
	assert.Empty(t, h.storage.deleted)
	var count int64
	require.NoError(t, h.db.Model(&models.Image{}).Count(&count).Error)
	assert.Zero(t, count)

	h.storage.setCopyErr(nil)
	require.NoError(t, h.engine.Recover(ctx))
	h.drain()

	assert.Equal(t, models.ImageSetFinished, h.reloadImageSet(created.ImageSet.ID).Status)
	require.NoError(t, h.db.Model(&models.Image{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestFinishImageSetSkipsExistingImages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.storage.items = []storage.Item{{Name: "a.png", Size: 10}, {Name: "b.png", Size: 10}}
	h.image("images/uploads/rerun/a.png")

	created, err := h.engine.CreateImageSet(ctx, h.admin, "rerun", nil)
	require.NoError(t, err)
	_, err = h.engine.ChangeImageSetStatus(ctx, h.admin, created.ImageSet.ID, models.ImageSetFinished)
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, models.ImageSetFinished, h.reloadImageSet(created.ImageSet.ID).Status)
	var images []models.Image
	require.NoError(t, h.db.Order("id").Find(&images).Error)
	require.Len(t, images, 2)
	assert.Equal(t, "images/uploads/rerun/a.png", images[0].Handle)
	require.NotNil(t, images[0].ImageSetID)
	assert.Equal(t, created.ImageSet.ID, *images[0].ImageSetID)
}

func TestFinishImageSetKeepsImagesOfOtherSets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.storage.items = []storage.Item{{Name: "a.png", Size: 10}}
	owner := models.ImageSet{Title: "owner", Status: models.ImageSetFinished, CreatedByID: h.admin.ID}
	require.NoError(t, h.db.Create(&owner).Error)
	image := models.Image{Handle: "images/uploads/shared/a.png", ImageSetID: &owner.ID}
	require.NoError(t, h.db.Create(&image).Error)

	created, err := h.engine.CreateImageSet(ctx, h.admin, "shared", nil)
	require.NoError(t, err)
	_, err = h.engine.ChangeImageSetStatus(ctx, h.admin, created.ImageSet.ID, models.ImageSetFinished)
	require.NoError(t, err)
	h.drain()

	var reloaded models.Image
	require.NoError(t, h.db.First(&reloaded, image.ID).Error)
	assert.Equal(t, owner.ID, *reloaded.ImageSetID)
}

func TestFinishImageSetEmptyDropboxStaysFinishing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateImageSet(ctx, h.admin, "empty", nil)
	require.NoError(t, err)
	_, err = h.engine.ChangeImageSetStatus(ctx, h.admin, created.ImageSet.ID, models.ImageSetFinished)
	require.NoError(t, err)
	h.drain()

	stored := h.reloadImageSet(created.ImageSet.ID)
	assert.Equal(t, models.ImageSetFinishing, stored.Status)
	assert.Nil(t, stored.DateFinished)
	assert.Equal(t, "dropbox-empty", *stored.Handle)
	assert.Empty(t, h.storage.deleted)
}

func TestFinishImageSetRequestedTwice(t *testing.T) {
	h := newHarness(t)
	blobs, _ := h.useLocal()
	ctx := context.Background()
	content := []byte("0123456789")

	created, err := h.engine.CreateImageSet(ctx, h.admin, "beach", nil)
	require.NoError(t, err)
	_, err = blobs.Put(*created.ImageSet.Handle+"/a.png", bytes.NewReader(content))
	require.NoError(t, err)

	release := h.hold()
	for i := 0; i < 2; i++ {
		changed, err := h.engine.ChangeImageSetStatus(ctx, h.admin, created.ImageSet.ID, models.ImageSetFinished)
		require.NoError(t, err)
		assert.Equal(t, models.ImageSetFinishing, changed.Status)
	}
	release()
	h.drain()

	stored := h.reloadImageSet(created.ImageSet.ID)
	assert.Equal(t, models.ImageSetFinished, stored.Status)
	assert.Equal(t, "images/uploads/beach", *stored.Handle)
	assert.NoDirExists(t, filepath.Join(blobs.Root(), "dropbox-beach"))

	permanent := filepath.Join(blobs.Root(), "images", "uploads", "beach", "a.png")
	data, err := os.ReadFile(permanent)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	var count int64
	require.NoError(t, h.db.Model(&models.Image{}).Where("image_set_id = ?", stored.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// a leftover job for a finished set changes nothing
	require.NoError(t, h.engine.finishImageSet(ctx, snapshot{ID: stored.ID, Title: stored.Title}))
	data, err = os.ReadFile(permanent)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	_, err = h.engine.ChangeImageSetStatus(ctx, h.admin, created.ImageSet.ID, models.ImageSetFinished)
	assert.True(t, IsKind(err, KindConflict))
}

func TestFinishCampaignRequestedTwice(t *testing.T) {
	h := newHarness(t)
	_, datasets := h.useLocal()
	ctx := context.Background()
	image := h.image("images/uploads/beach/a.png")
	campaign := h.campaign("twice", models.CampaignCompleted, image)

	release := h.hold()
	for i := 0; i < 2; i++ {
		changed, err := h.engine.ChangeCampaignStatus(ctx, h.admin, campaign.ID, models.CampaignFinished)
		require.NoError(t, err)
		assert.Equal(t, models.CampaignFinishing, changed.Status)
	}
	release()
	h.drain()

	assert.Equal(t, models.CampaignFinished, h.reloadCampaign(campaign.ID).Status)
	for _, name := range []string{"twice_images", "twice_labels"} {
		_, err := datasets.ReadManifest(name, 1)
		require.NoError(t, err, name)
		_, err = datasets.ReadManifest(name, 2)
		assert.Error(t, err, name)
	}

	require.NoError(t, h.engine.finishCampaign(ctx, snapshot{ID: campaign.ID, Title: campaign.Title}))
	_, err := datasets.ReadManifest("twice_images", 2)
	assert.Error(t, err)
}
