package microdraw

import (
	"encoding/json"
	"fmt"
	"os"

	"microdraw3d/internal/models"
)

// SaveDataset writes ds to path as JSON.
func SaveDataset(path string, ds *models.Dataset) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dataset %s: %w", path, err)
	}
	return nil
}

// LoadDataset reads a dataset written by SaveDataset and validates its shape.
func LoadDataset(path string) (*models.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	var ds models.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset %s: %w", path, err)
	}
	return &ds, nil
}
