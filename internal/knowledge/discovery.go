// internal/knowledge/discovery.go
package knowledge

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
	"github.com/planopticon/planopticon/internal/graphstore"
)

// Common output subdirectories where graphs may live.
var outputSubdirs = []string{"results", "output", "knowledge-base"}

// Filenames we look for, in preference order. The .db name is the embedded
// graph database's data directory; the .json name is a snapshot file.
const (
	dbGraphName   = "knowledge_graph.db"
	jsonGraphName = "knowledge_graph.json"
)

// maxDepthDown bounds the downward directory walk.
const maxDepthDown = 4

type foundGraph struct {
	distance int
	path     string
}

// FindGraphFiles finds knowledge graph files near startDir, sorted by
// proximity.
//
// Search order:
//  1. startDir itself
//  2. Common output subdirs (results/, output/, knowledge-base/)
//  3. Recursive walk downward (bounded depth)
//  4. Walk upward through parent directories
//
// Returns .db entries first, then .json, each group sorted closest-first.
func FindGraphFiles(startDir string) []string {
	if startDir == "" {
		startDir, _ = os.Getwd()
	}
	startDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil
	}

	var foundDB, foundJSON []foundGraph
	seen := make(map[string]struct{})

	record := func(path string, distance int) {
		path = filepath.Clean(path)
		if _, ok := seen[path]; ok {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		// The embedded engine keeps its data in a directory; snapshots are
		// plain files.
		isDB := filepath.Base(path) == dbGraphName
		if !isDB && info.IsDir() {
			return
		}
		seen[path] = struct{}{}
		if isDB {
			foundDB = append(foundDB, foundGraph{distance, path})
		} else {
			foundJSON = append(foundJSON, foundGraph{distance, path})
		}
	}

	// 1. Direct check in startDir.
	record(filepath.Join(startDir, dbGraphName), 0)
	record(filepath.Join(startDir, jsonGraphName), 0)

	// 2. Common output subdirs.
	for _, subdir := range outputSubdirs {
		record(filepath.Join(startDir, subdir, dbGraphName), 1)
		record(filepath.Join(startDir, subdir, jsonGraphName), 1)
	}

	// 3. Walk downward, skipping hidden directories.
	var walkDown func(dir string, depth int)
	walkDown = func(dir string, depth int) {
		if depth > maxDepthDown {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			name := entry.Name()
			child := filepath.Join(dir, name)
			if name == dbGraphName || name == jsonGraphName {
				record(child, depth)
				continue
			}
			if entry.IsDir() && !strings.HasPrefix(name, ".") {
				walkDown(child, depth+1)
			}
		}
	}
	walkDown(startDir, 1)

	// 4. Walk upward.
	parent := filepath.Dir(startDir)
	distance := 1
	for parent != filepath.Dir(parent) {
		record(filepath.Join(parent, dbGraphName), distance)
		record(filepath.Join(parent, jsonGraphName), distance)
		for _, subdir := range outputSubdirs {
			record(filepath.Join(parent, subdir, dbGraphName), distance+1)
			record(filepath.Join(parent, subdir, jsonGraphName), distance+1)
		}
		parent = filepath.Dir(parent)
		distance++
	}

	sort.SliceStable(foundDB, func(i, j int) bool { return foundDB[i].distance < foundDB[j].distance })
	sort.SliceStable(foundJSON, func(i, j int) bool { return foundJSON[i].distance < foundJSON[j].distance })

	out := make([]string, 0, len(foundDB)+len(foundJSON))
	for _, f := range foundDB {
		out = append(out, f.path)
	}
	for _, f := range foundJSON {
		out = append(out, f.path)
	}
	return out
}

// NearestGraph returns the closest knowledge graph file, if any.
func NearestGraph(startDir string) (string, bool) {
	graphs := FindGraphFiles(startDir)
	if len(graphs) == 0 {
		return "", false
	}
	return graphs[0], true
}

// Describe returns summary stats for a knowledge graph file or data
// directory.
func Describe(path string, logger *zap.Logger) (schemas.GraphStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		snap, err := graphstore.ReadSnapshot(path)
		if err != nil {
			return schemas.GraphStats{}, err
		}
		store := graphstore.NewMemoryStore(logger)
		defer store.Close()
		if err := graphstore.Restore(store, snap); err != nil {
			return schemas.GraphStats{}, err
		}
		stats := graphstore.Stats(store)
		stats.StoreType = "json"
		return stats, nil
	}

	store, err := graphstore.OpenNornic(path, logger)
	if err != nil {
		return schemas.GraphStats{}, err
	}
	defer store.Close()
	stats := graphstore.Stats(store)
	stats.StoreType = "nornic"
	return stats, nil
}
