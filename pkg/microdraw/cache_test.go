package microdraw

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microdraw3d/internal/models"
)

func TestSaveLoadDatasetRoundTrip(t *testing.T) {
	record := `{"annotation":{"name":"V1","path":["Path",{"segments":[[1.5,2],[[3,4],[0,0],[1,1]]],"closed":true}]},"user":"anyone"}`
	ds := &models.Dataset{
		PixelsPerMeter: 2.5e5,
		NumSlices:      2,
		Slices: []models.SliceAnnotation{
			{models.RegionRecord(record)},
			{},
		},
		Project: json.RawMessage(`{"tileSources":["a","b"]}`),
	}

	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, SaveDataset(path, ds))

	got, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, ds.PixelsPerMeter, got.PixelsPerMeter)
	assert.Equal(t, 2, got.NumSlices)
	require.Len(t, got.Slices, 2)
	assert.JSONEq(t, record, string(got.Slices[0][0]))
	assert.Empty(t, got.Slices[1])
	assert.JSONEq(t, string(ds.Project), string(got.Project))

	// a second save is byte-identical
	again := filepath.Join(t.TempDir(), "again.json")
	require.NoError(t, SaveDataset(again, got))
	a, _ := os.ReadFile(path)
	b, _ := os.ReadFile(again)
	assert.Equal(t, string(a), string(b))
}

func TestLoadDatasetValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"numSlices":3,"slices":[[]]}`), 0644))

	_, err := LoadDataset(path)
	assert.Error(t, err)
}

func TestLoadDatasetErrorsNamePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	_, err := LoadDataset(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err = LoadDataset(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
