// Package workflow runs the labeling workflow: status changes of campaigns and image sets,
// adding images and labeled objects in all-or-nothing batches, picking the labels of an
// image when several campaigns labeled it, and the background jobs that finish campaigns
// and image sets.
package workflow

import (
	"context"
	"time"

	"gorm.io/gorm"

	"labelapi/export"
	"labelapi/storage"
)

// Storage is the blob storage holding dropboxes and permanent images.
type Storage interface {
	CreateLocation(ctx context.Context, name string) (string, error)
	CopyContents(ctx context.Context, sourceLocation, sourcePrefix, targetLocation, targetPrefix string) ([]storage.Item, error)
	DeleteLocation(ctx context.Context, location string) error
	DescribeItem(ctx context.Context, path string) (storage.Description, error)
	SignURL(path string, expires time.Time, permissions ...storage.Permission) (string, error)
}

// Exporter registers datasets for model training.
type Exporter interface {
	ExportImages(ctx context.Context, name, description string, paths []string) error
	ExportLabels(ctx context.Context, name, description string, records []export.LabelRecord) error
}

type Options struct {
	// ImageSetContainer and ImageSetFolder name where finished image sets are stored.
	ImageSetContainer string
	ImageSetFolder    string
	ImageReadTTL      time.Duration
	UploadTTL         time.Duration
}

type Engine struct {
	db       *gorm.DB
	storage  Storage
	exporter Exporter
	jobs     *Runner
	options  Options
	now      func() time.Time
}

func NewEngine(db *gorm.DB, storage Storage, exporter Exporter, jobs *Runner, options Options) *Engine {
	if options.ImageReadTTL <= 0 {
		options.ImageReadTTL = 7 * 24 * time.Hour
	}
	if options.UploadTTL <= 0 {
		options.UploadTTL = 7 * 24 * time.Hour
	}
	return &Engine{
		db:       db,
		storage:  storage,
		exporter: exporter,
		jobs:     jobs,
		options:  options,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close Wait for running finalization jobs
func (e *Engine) Close() {
	e.jobs.Close()
}
