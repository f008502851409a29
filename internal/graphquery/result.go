// internal/graphquery/result.go

// Package graphquery answers questions about a knowledge graph: structured
// filter queries that need no model, raw backend queries, and a guarded
// natural-language mode where a model only ever picks from a closed action
// set.
package graphquery

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/planopticon/planopticon/api/schemas"
)

// Kind tags how a result was produced.
type Kind string

const (
	KindFilter  Kind = "filter"
	KindCypher  Kind = "cypher"
	KindAgentic Kind = "agentic"
)

// Result is the uniform wrapper every query mode returns. Data holds
// schemas.Entity values, schemas.Relationship values, mixed []any of both,
// stats maps, or raw backend rows.
type Result struct {
	Data        any    `json:"data"`
	Kind        Kind   `json:"query_type"`
	Query       string `json:"raw_query"`
	Explanation string `json:"explanation"`
}

// Text renders the result for humans: the explanation, then one line per
// item. Relationship records render as arrows, entity records as typed names
// with up to three descriptions.
func (r Result) Text() string {
	var lines []string
	if r.Explanation != "" {
		lines = append(lines, r.Explanation, "")
	}

	switch data := r.Data.(type) {
	case nil:
	case schemas.GraphStats:
		lines = append(lines, statsLines(data)...)
	case map[string]any:
		lines = append(lines, mapLines(data, "")...)
	case []schemas.Entity:
		if len(data) == 0 {
			lines = append(lines, "No results found.")
		}
		for _, e := range data {
			lines = append(lines, entityLine(e))
		}
	case []schemas.Relationship:
		if len(data) == 0 {
			lines = append(lines, "No results found.")
		}
		for _, rel := range data {
			lines = append(lines, relationshipLine(rel))
		}
	case []any:
		if len(data) == 0 {
			lines = append(lines, "No results found.")
		}
		for _, item := range data {
			switch v := item.(type) {
			case schemas.Entity:
				lines = append(lines, entityLine(v))
			case schemas.Relationship:
				lines = append(lines, relationshipLine(v))
			default:
				lines = append(lines, fmt.Sprintf("  %v", v))
			}
		}
	case []map[string]any:
		if len(data) == 0 {
			lines = append(lines, "No results found.")
		}
		for _, row := range data {
			lines = append(lines, "  "+compactRow(row))
		}
	default:
		lines = append(lines, fmt.Sprint(data))
	}

	return strings.Join(lines, "\n")
}

func entityLine(e schemas.Entity) string {
	entityType := e.Type
	if entityType == "" {
		entityType = schemas.DefaultEntityType
	}
	line := fmt.Sprintf("  [%s] %s", entityType, e.Name)
	descs := e.Descriptions
	if len(descs) > 3 {
		descs = descs[:3]
	}
	if len(descs) > 0 {
		line += " — " + strings.Join(descs, "; ")
	}
	return line
}

func relationshipLine(rel schemas.Relationship) string {
	relType := rel.Type
	if relType == "" {
		relType = schemas.DefaultRelationshipType
	}
	return fmt.Sprintf("  %s --[%s]--> %s", rel.Source, relType, rel.Target)
}

func statsLines(stats schemas.GraphStats) []string {
	lines := []string{
		fmt.Sprintf("entity_count: %d", stats.EntityCount),
		fmt.Sprintf("relationship_count: %d", stats.RelationshipCount),
		"entity_types:",
	}
	types := make([]string, 0, len(stats.EntityTypes))
	for t := range stats.EntityTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		lines = append(lines, fmt.Sprintf("  %s: %d", t, stats.EntityTypes[t]))
	}
	return lines
}

func mapLines(m map[string]any, indent string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		if nested, ok := m[k].(map[string]any); ok {
			lines = append(lines, fmt.Sprintf("%s%s:", indent, k))
			lines = append(lines, mapLines(nested, indent+"  ")...)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s%s: %v", indent, k, m[k]))
	}
	return lines
}

func compactRow(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
	}
	return strings.Join(parts, " ")
}

// JSON renders the full result envelope as indented JSON.
func (r Result) JSON() (string, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding query result: %w", err)
	}
	return string(out), nil
}

// Mermaid renders whatever graph shape the result data contains. Entity
// records become typed nodes, relationship records become edges (declaring
// untyped nodes for endpoints the result did not include).
func (r Result) Mermaid() string {
	var items []any
	switch data := r.Data.(type) {
	case []any:
		items = data
	case []schemas.Entity:
		for _, e := range data {
			items = append(items, e)
		}
	case []schemas.Relationship:
		for _, rel := range data {
			items = append(items, rel)
		}
	default:
		items = []any{data}
	}

	var b strings.Builder
	b.WriteString("graph LR")

	seen := make(map[string]struct{})
	type edge struct{ src, tgt, relType string }
	var edges []edge

	declareNode := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		fmt.Fprintf(&b, "\n    %s[\"%s\"]", mermaidID(name), strings.ReplaceAll(name, `"`, "'"))
	}

	for _, item := range items {
		switch v := item.(type) {
		case schemas.Entity:
			if _, ok := seen[v.Name]; !ok {
				seen[v.Name] = struct{}{}
				entityType := v.Type
				if entityType == "" {
					entityType = schemas.DefaultEntityType
				}
				fmt.Fprintf(&b, "\n    %s[\"%s\"]:::%s",
					mermaidID(v.Name), strings.ReplaceAll(v.Name, `"`, "'"), entityType)
			}
		case schemas.Relationship:
			declareNode(v.Source)
			declareNode(v.Target)
			relType := v.Type
			if relType == "" {
				relType = schemas.DefaultRelationshipType
			}
			edges = append(edges, edge{v.Source, v.Target, relType})
		}
	}

	for _, e := range edges {
		fmt.Fprintf(&b, "\n    %s -- \"%s\" --> %s", mermaidID(e.src), e.relType, mermaidID(e.tgt))
	}

	b.WriteString("\n    classDef person fill:#f9d5e5,stroke:#333")
	b.WriteString("\n    classDef concept fill:#eeeeee,stroke:#333")
	b.WriteString("\n    classDef technology fill:#d5e5f9,stroke:#333")
	b.WriteString("\n    classDef organization fill:#f9e5d5,stroke:#333")

	return b.String()
}

func mermaidID(name string) string {
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
