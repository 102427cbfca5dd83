package sync

import (
	"fmt"
	"os"
)

// DiskStore is the default persistence collaborator: plain UTF-8 files on
// the local filesystem.
type DiskStore struct{}

func NewDiskStore() *DiskStore {
	return &DiskStore{}
}

func (d *DiskStore) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func (d *DiskStore) Write(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
