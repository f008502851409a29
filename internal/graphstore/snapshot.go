// internal/graphstore/snapshot.go
package graphstore

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"

	"github.com/planopticon/planopticon/api/schemas"
)

// WriteSnapshot serializes a snapshot to path as indented JSON, creating
// parent directories as needed. The file is the portable interchange format
// shared by every backend.
func WriteSnapshot(path string, snap schemas.GraphSnapshot) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return nil
}

// ReadSnapshot parses a snapshot file written by WriteSnapshot. Missing
// nodes/relationships arrays decode as empty, not nil.
func ReadSnapshot(path string) (schemas.GraphSnapshot, error) {
	var snap schemas.GraphSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("reading snapshot file: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	if snap.Nodes == nil {
		snap.Nodes = []schemas.Entity{}
	}
	if snap.Relationships == nil {
		snap.Relationships = []schemas.Relationship{}
	}
	return snap, nil
}
