// Package export registers finished campaigns as versioned datasets: one dataset with the
// image paths and one with the labels.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Box is one exported bounding box, named the way the dataset consumers expect.
type Box struct {
	Label   string `json:"label"`
	BottomX int    `json:"bottomX"`
	TopX    int    `json:"topX"`
	BottomY int    `json:"bottomY"`
	TopY    int    `json:"topY"`
}

// LabelRecord holds the labels of one image.
type LabelRecord struct {
	ImageURL    string
	Labels      []Box
	Confidences []*float64
}

type Manifest struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Kind        string    `yaml:"kind"`
	Version     int       `yaml:"version"`
	Created     time.Time `yaml:"created"`
	Files       []string  `yaml:"files,omitempty"`
	Labels      string    `yaml:"labels,omitempty"`
}

// Local writes datasets to root/<name>/v<version>/. Every export creates a new version.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root Directory all datasets are written to
func (e *Local) Root() string {
	return e.root
}

// DatastorePath Strip the location from a storage path, giving the path inside the datastore
func DatastorePath(handle string) string {
	handle = strings.TrimLeft(handle, "/")
	_, name, _ := strings.Cut(handle, "/")
	return name
}

// ExportImages Register a file dataset with the given image paths
func (e *Local) ExportImages(ctx context.Context, name, description string, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, version, err := e.nextVersion(name)
	if err != nil {
		return err
	}
	manifest := Manifest{
		Name:        name,
		Description: description,
		Kind:        "images",
		Version:     version,
		Created:     time.Now().UTC(),
		Files:       paths,
	}
	if err := writeManifest(dir, manifest); err != nil {
		return err
	}
	log.Info(fmt.Sprintf("Registered dataset %s version %d with %d images", name, version, len(paths)))
	return nil
}

// ExportLabels Register a tabular dataset with one row per image
func (e *Local) ExportLabels(ctx context.Context, name, description string, records []LabelRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, version, err := e.nextVersion(name)
	if err != nil {
		return err
	}
	if err := writeLabels(filepath.Join(dir, name+".csv"), records); err != nil {
		return err
	}
	manifest := Manifest{
		Name:        name,
		Description: description,
		Kind:        "labels",
		Version:     version,
		Created:     time.Now().UTC(),
		Labels:      name + ".csv",
	}
	if err := writeManifest(dir, manifest); err != nil {
		return err
	}
	log.Info(fmt.Sprintf("Registered dataset %s version %d with labels of %d images", name, version, len(records)))
	return nil
}

// ReadManifest Read the manifest of a dataset version
func (e *Local) ReadManifest(name string, version int) (Manifest, error) {
	var manifest Manifest
	data, err := os.ReadFile(filepath.Join(e.root, name, fmt.Sprintf("v%d", version), "manifest.yaml"))
	if err != nil {
		return manifest, err
	}
	err = yaml.Unmarshal(data, &manifest)
	return manifest, err
}

// nextVersion Allocate the directory of the next version of a dataset. A file lock keeps
// concurrent exporters from claiming the same version.
func (e *Local) nextVersion(name string) (string, int, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", 0, fmt.Errorf("invalid dataset name %q", name)
	}
	base := filepath.Join(e.root, name)
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create dataset directory: %w", err)
	}

	lock := flock.New(filepath.Join(base, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", 0, fmt.Errorf("failed to lock dataset %s: %w", name, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn(fmt.Sprintf("Failed to unlock dataset %s: %s", name, err.Error()))
		}
	}()

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", 0, err
	}
	latest := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "v") {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), "v")); err == nil && v > latest {
			latest = v
		}
	}

	version := latest + 1
	dir := filepath.Join(base, fmt.Sprintf("v%d", version))
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create dataset version: %w", err)
	}
	return dir, version, nil
}

func writeManifest(dir string, manifest Manifest) error {
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.yaml"), data, 0644)
}

func writeLabels(file string, records []LabelRecord) (err error) {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"image_url", "label", "label_confidence"}); err != nil {
		return err
	}
	for _, record := range records {
		labels := record.Labels
		if labels == nil {
			labels = []Box{}
		}
		confidences := record.Confidences
		if confidences == nil {
			confidences = []*float64{}
		}
		label, err := json.Marshal(labels)
		if err != nil {
			return err
		}
		confidence, err := json.Marshal(confidences)
		if err != nil {
			return err
		}
		if err := w.Write([]string{record.ImageURL, string(label), string(confidence)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.New("failed to write labels: " + err.Error())
	}
	return nil
}
