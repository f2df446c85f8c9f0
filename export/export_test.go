package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatastorePath(t *testing.T) {
	assert.Equal(t, "uploads/set/a.png", DatastorePath("/images/uploads/set/a.png"))
	assert.Equal(t, "uploads/a.png", DatastorePath("images/uploads/a.png"))
	assert.Equal(t, "", DatastorePath("images"))
}

func TestExportImagesCreatesVersions(t *testing.T) {
	e, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, e.ExportImages(ctx, "beach_images", "first", []string{"a.png", "b.png"}))
	require.NoError(t, e.ExportImages(ctx, "beach_images", "second", []string{"c.png"}))

	first, err := e.ReadManifest("beach_images", 1)
	require.NoError(t, err)
	assert.Equal(t, "images", first.Kind)
	assert.Equal(t, []string{"a.png", "b.png"}, first.Files)

	second, err := e.ReadManifest("beach_images", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "second", second.Description)
}

func TestExportLabelsWritesCSV(t *testing.T) {
	e, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	confidence := 0.5

	records := []LabelRecord{
		{
			ImageURL:    "uploads/a.png",
			Labels:      []Box{{Label: "bottle", BottomX: 1, TopX: 10, BottomY: 2, TopY: 20}},
			Confidences: []*float64{&confidence},
		},
		{ImageURL: "uploads/b.png"},
	}
	require.NoError(t, e.ExportLabels(context.Background(), "beach_labels", "labels", records))

	manifest, err := e.ReadManifest("beach_labels", 1)
	require.NoError(t, err)
	assert.Equal(t, "beach_labels.csv", manifest.Labels)

	f, err := os.Open(filepath.Join(e.Root(), "beach_labels", "v1", "beach_labels.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"image_url", "label", "label_confidence"}, rows[0])
	assert.Equal(t, `[{"label":"bottle","bottomX":1,"topX":10,"bottomY":2,"topY":20}]`, rows[1][1])
	assert.Equal(t, `[0.5]`, rows[1][2])
	assert.Equal(t, []string{"uploads/b.png", "[]", "[]"}, rows[2])
}

func TestExportRejectsInvalidName(t *testing.T) {
	e, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, e.ExportImages(context.Background(), "../escape", "", nil))
}
