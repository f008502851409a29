// internal/graphstore/store.go
package graphstore

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/planopticon/planopticon/api/schemas"
)

// ErrRawQueryUnsupported is returned by backends that cannot execute a
// backend-native declarative query. Callers must handle it explicitly rather
// than treating it as an empty result.
var ErrRawQueryUnsupported = errors.New("graphstore: raw queries not supported by this backend")

// GraphStore is the storage contract every knowledge-graph backend must
// satisfy. Both implementations expose identical observable semantics; a
// shared contract test suite pins them together.
//
// Entity identity is the case-insensitive name. Relationships referencing a
// nonexistent endpoint are silently dropped by every backend; integrators
// that want to surface the condition check HasEntity first.
//
// Stores are safe for concurrent readers and a single writer; the intended
// usage is single-process, single-writer.
type GraphStore interface {
	// MergeEntity upserts an entity by case-insensitive name. For an existing
	// entity it unions descriptions into the stored set and leaves the type,
	// display name, and origin tag untouched. A new entity starts with an
	// empty occurrence sequence.
	MergeEntity(name, entityType string, descriptions []string, source string)

	// AddOccurrence appends a provenance record to an existing entity. It is
	// a silent no-op when the entity does not exist.
	AddOccurrence(name, source string, timestamp *float64, text *string)

	// AddRelationship appends a relationship record of the given type. The
	// edge is dropped without error when either endpoint is missing.
	AddRelationship(source, target, relType string, contentSource *string, timestamp *float64)

	// AddTypedRelationship appends a relationship with an arbitrary custom
	// label and an optional property bag. Endpoint policy matches
	// AddRelationship.
	AddTypedRelationship(source, target, edgeLabel string, properties map[string]any)

	// SetEntityProperties merges arbitrary key/value pairs onto an existing
	// entity. It reports false when the entity does not exist.
	SetEntityProperties(name string, properties map[string]any) bool

	// HasEntity reports whether an entity exists, case-insensitively.
	HasEntity(name string) bool

	// HasRelationship reports whether any relationship connects source to
	// target. A non-empty edgeLabel restricts the check to that type.
	HasRelationship(source, target, edgeLabel string) bool

	// GetEntity returns an entity by case-insensitive name.
	GetEntity(name string) (*schemas.Entity, bool)

	// GetAllEntities materializes every entity. Ordering is not guaranteed to
	// be stable across backends.
	GetAllEntities() []schemas.Entity

	// GetAllRelationships materializes every user relationship.
	GetAllRelationships() []schemas.Relationship

	// EntityCount returns the number of entities.
	EntityCount() int

	// RelationshipCount returns the number of user relationships, excluding
	// any backend-internal bookkeeping edges.
	RelationshipCount() int

	// RawQuery executes a backend-native declarative query and returns raw
	// rows, or ErrRawQueryUnsupported.
	RawQuery(query string) ([]map[string]any, error)

	// Snapshot produces the portable interchange representation.
	Snapshot() schemas.GraphSnapshot

	// Close releases any resources held by the backend.
	Close() error
}

// Open creates the best available graph store. A non-empty path opens the
// embedded graph-database backend at that location, falling back to the
// in-memory store with a warning when the engine cannot be opened. An empty
// path always yields the in-memory store.
func Open(path string, logger *zap.Logger) GraphStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != "" {
		store, err := OpenNornic(path, logger)
		if err == nil {
			return store
		}
		logger.Warn("Failed to open graph database, falling back to in-memory store",
			zap.String("path", path), zap.Error(err))
	}
	return NewMemoryStore(logger)
}

// snapshotOf builds the interchange tree from the materialized entity and
// relationship sequences. Backends share it as their Snapshot implementation.
func snapshotOf(s GraphStore) schemas.GraphSnapshot {
	nodes := s.GetAllEntities()
	rels := s.GetAllRelationships()
	if nodes == nil {
		nodes = []schemas.Entity{}
	}
	if rels == nil {
		rels = []schemas.Relationship{}
	}
	return schemas.GraphSnapshot{Nodes: nodes, Relationships: rels}
}

// Stats summarizes a store: totals plus a per-type entity breakdown.
// StoreType is left for the caller to fill in.
func Stats(s GraphStore) schemas.GraphStats {
	types := make(map[string]int)
	for _, e := range s.GetAllEntities() {
		t := e.Type
		if t == "" {
			t = schemas.DefaultEntityType
		}
		types[t]++
	}
	return schemas.GraphStats{
		EntityCount:       s.EntityCount(),
		RelationshipCount: s.RelationshipCount(),
		EntityTypes:       types,
	}
}

// Restore replays a snapshot into a store through the normal merge
// operations, so case-insensitive identity resolution always applies.
func Restore(s GraphStore, snap schemas.GraphSnapshot) error {
	for _, node := range snap.Nodes {
		if node.Name == "" {
			return fmt.Errorf("graphstore: snapshot node with empty name")
		}
		entityType := node.Type
		if entityType == "" {
			entityType = schemas.DefaultEntityType
		}
		s.MergeEntity(node.Name, entityType, node.Descriptions, node.Source)
		for _, occ := range node.Occurrences {
			s.AddOccurrence(node.Name, occ.Source, occ.Timestamp, occ.Text)
		}
	}
	for _, rel := range snap.Relationships {
		relType := rel.Type
		if relType == "" {
			relType = schemas.DefaultRelationshipType
		}
		if len(rel.Properties) > 0 {
			s.AddTypedRelationship(rel.Source, rel.Target, relType, rel.Properties)
			continue
		}
		s.AddRelationship(rel.Source, rel.Target, relType, rel.ContentSource, rel.Timestamp)
	}
	return nil
}
