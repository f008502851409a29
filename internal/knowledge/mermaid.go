// internal/knowledge/mermaid.go
package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/planopticon/planopticon/api/schemas"
)

// renderMermaid builds a "graph LR" definition from the highest-degree
// entities. Node ids are sanitized to mermaid-safe identifiers; edges between
// selected nodes are de-duplicated on (source, target, type).
func renderMermaid(entities []schemas.Entity, rels []schemas.Relationship, maxNodes int) string {
	degree := make(map[string]int, len(entities))
	for _, e := range entities {
		degree[e.Name] = 0
	}
	for _, rel := range rels {
		if _, ok := degree[rel.Source]; ok {
			degree[rel.Source]++
		}
		if _, ok := degree[rel.Target]; ok {
			degree[rel.Target]++
		}
	}

	ranked := make([]schemas.Entity, len(entities))
	copy(ranked, entities)
	sort.Slice(ranked, func(i, j int) bool {
		if degree[ranked[i].Name] != degree[ranked[j].Name] {
			return degree[ranked[i].Name] > degree[ranked[j].Name]
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > maxNodes {
		ranked = ranked[:maxNodes]
	}

	selected := make(map[string]struct{}, len(ranked))
	for _, e := range ranked {
		selected[e.Name] = struct{}{}
	}

	var b strings.Builder
	b.WriteString("graph LR")

	for _, e := range ranked {
		entityType := e.Type
		if entityType == "" {
			entityType = schemas.DefaultEntityType
		}
		safeName := strings.ReplaceAll(e.Name, `"`, "'")
		fmt.Fprintf(&b, "\n    %s[\"%s\"]:::%s", sanitizeID(e.Name), safeName, entityType)
	}

	added := make(map[string]struct{})
	for _, rel := range rels {
		if _, ok := selected[rel.Source]; !ok {
			continue
		}
		if _, ok := selected[rel.Target]; !ok {
			continue
		}
		relType := rel.Type
		if relType == "" {
			relType = schemas.DefaultRelationshipType
		}
		key := rel.Source + "|" + rel.Target + "|" + relType
		if _, ok := added[key]; ok {
			continue
		}
		added[key] = struct{}{}
		fmt.Fprintf(&b, "\n    %s -- \"%s\" --> %s", sanitizeID(rel.Source), relType, sanitizeID(rel.Target))
	}

	b.WriteString("\n    classDef person fill:#f9d5e5,stroke:#333,stroke-width:1px")
	b.WriteString("\n    classDef concept fill:#eeeeee,stroke:#333,stroke-width:1px")
	b.WriteString("\n    classDef diagram fill:#d5f9e5,stroke:#333,stroke-width:1px")
	b.WriteString("\n    classDef time fill:#e5d5f9,stroke:#333,stroke-width:1px")

	return b.String()
}

// sanitizeID keeps letters, digits, and underscores; everything else becomes
// an underscore.
func sanitizeID(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
