package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"labelapi/export"
	"labelapi/models"
	"labelapi/storage"
)

type fakeStorage struct {
	mu      sync.Mutex
	items   []storage.Item
	copyErr error
	copied  []string
	deleted []string
}

func (s *fakeStorage) CreateLocation(_ context.Context, name string) (string, error) {
	return "dropbox-" + strings.ToLower(name), nil
}

func (s *fakeStorage) CopyContents(_ context.Context, sourceLocation, _, targetLocation, targetPrefix string) ([]storage.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copyErr != nil {
		return nil, s.copyErr
	}
	s.copied = append(s.copied, fmt.Sprintf("%s -> %s/%s", sourceLocation, targetLocation, targetPrefix))
	return s.items, nil
}

func (s *fakeStorage) DeleteLocation(_ context.Context, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, location)
	return nil
}

func (s *fakeStorage) DescribeItem(_ context.Context, p string) (storage.Description, error) {
	if strings.HasSuffix(p, ".txt") {
		return storage.Description{}, fmt.Errorf("not an image: %s", p)
	}
	return storage.Description{FileType: "PNG", Width: 640, Height: 480}, nil
}

func (s *fakeStorage) SignURL(p string, _ time.Time, permissions ...storage.Permission) (string, error) {
	perms := make([]string, 0, len(permissions))
	for _, perm := range permissions {
		perms = append(perms, string(perm))
	}
	return fmt.Sprintf("signed://%s?perms=%s", p, strings.Join(perms, ",")), nil
}

func (s *fakeStorage) setCopyErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copyErr = err
}

type fakeExporter struct {
	mu      sync.Mutex
	images  map[string][]string
	labels  map[string][]export.LabelRecord
	failure error
}

func (e *fakeExporter) ExportImages(_ context.Context, name, _ string, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return e.failure
	}
	e.images[name] = paths
	return nil
}

func (e *fakeExporter) ExportLabels(_ context.Context, name, _ string, records []export.LabelRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return e.failure
	}
	e.labels[name] = records
	return nil
}

type harness struct {
	t        *testing.T
	db       *gorm.DB
	engine   *Engine
	storage  *fakeStorage
	exporter *fakeExporter
	admin    *models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := models.OpenForTesting(t.Name())
	require.NoError(t, err)

	h := &harness{
		t:        t,
		db:       db,
		storage:  &fakeStorage{},
		exporter: &fakeExporter{images: map[string][]string{}, labels: map[string][]export.LabelRecord{}},
	}
	h.engine = NewEngine(db, h.storage, h.exporter, NewRunner(1, 8), Options{
		ImageSetContainer: "images",
		ImageSetFolder:    "uploads",
	})

	var mu sync.Mutex
	clock := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	h.engine.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}

	t.Cleanup(func() {
		h.engine.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	h.admin = h.user("admin@example.com", models.GlobalGrant{Name: models.RoleImageAdmin})
	return h
}

// drain waits for every scheduled job and starts a fresh runner
func (h *harness) drain() {
	h.engine.jobs.Close()
	h.engine.jobs = NewRunner(1, 8)
}

// useLocal Replace the fakes with storage and datasets on disk
func (h *harness) useLocal() (*storage.Local, *export.Local) {
	h.t.Helper()
	blobs, err := storage.NewLocal(h.t.TempDir(), "http://localhost:8080", []byte("test-key"))
	require.NoError(h.t, err)
	datasets, err := export.NewLocal(h.t.TempDir())
	require.NoError(h.t, err)
	h.engine.storage = blobs
	h.engine.exporter = datasets
	return blobs, datasets
}

// hold Keep the single worker busy until the returned func is called
func (h *harness) hold() func() {
	started := make(chan struct{})
	release := make(chan struct{})
	h.engine.jobs.Enqueue(Job{Name: "hold", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started
	return func() { close(release) }
}

func (h *harness) user(email string, grants ...models.Grant) *models.User {
	h.t.Helper()
	user, err := models.FindOrCreateUser(h.db, email)
	require.NoError(h.t, err)
	for _, grant := range grants {
		require.NoError(h.t, models.GrantRole(h.db, user, grant))
	}
	return user
}

func (h *harness) image(handle string) models.Image {
	h.t.Helper()
	image := models.Image{Handle: handle}
	require.NoError(h.t, h.db.Create(&image).Error)
	return image
}

func (h *harness) campaign(title string, status models.CampaignStatus, images ...models.Image) models.Campaign {
	h.t.Helper()
	campaign := models.Campaign{Title: title, Status: status, CreatedByID: h.admin.ID}
	require.NoError(h.t, h.db.Create(&campaign).Error)
	for _, image := range images {
		require.NoError(h.t, h.db.Create(&models.CampaignImage{CampaignID: campaign.ID, ImageID: image.ID}).Error)
	}
	return campaign
}

func (h *harness) reloadCampaign(id uint) models.Campaign {
	h.t.Helper()
	var campaign models.Campaign
	require.NoError(h.t, h.db.First(&campaign, id).Error)
	return campaign
}

func (h *harness) reloadImageSet(id uint) models.ImageSet {
	h.t.Helper()
	var imageSet models.ImageSet
	require.NoError(h.t, h.db.First(&imageSet, id).Error)
	return imageSet
}

func box(label string) ObjectInput {
	return ObjectInput{Label: label, Box: BoundingBox{XMin: 1, XMax: 10, YMin: 2, YMax: 20}}
}
