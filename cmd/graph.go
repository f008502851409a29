// -- cmd/graph.go --
package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/planopticon/planopticon/internal/graphstore"
	"github.com/planopticon/planopticon/internal/knowledge"
	"github.com/planopticon/planopticon/internal/observability"
)

// newGraphCmd creates the `graph` command group for snapshot, merge, and
// discovery operations that treat the graph as a whole.
func newGraphCmd() *cobra.Command {
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Exports, merges, visualizes, and locates knowledge graphs",
	}
	graphCmd.AddCommand(newGraphExportCmd())
	graphCmd.AddCommand(newGraphMergeCmd())
	graphCmd.AddCommand(newGraphVisualizeCmd())
	graphCmd.AddCommand(newGraphDiscoverCmd())
	graphCmd.AddCommand(newGraphDescribeCmd())
	return graphCmd
}

func newGraphExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes the graph to a JSON snapshot file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			g, err := openKnowledge(nil, logger)
			if err != nil {
				return err
			}
			defer g.Store().Close()

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = activeConfig().Graph.SnapshotPath
			}
			written, err := g.Save(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Graph exported to %s\n", written)
			return nil
		},
	}
	cmd.Flags().String("out", "", "output path (defaults to the configured snapshot path)")
	return cmd
}

func newGraphMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <snapshot.json>",
		Short: "Merges another graph snapshot into the configured graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			g, err := openKnowledge(nil, logger)
			if err != nil {
				return err
			}
			defer g.Store().Close()

			other := knowledge.New(graphstore.NewMemoryStore(logger), nil, logger, knowledge.Options{})
			if err := other.Load(args[0]); err != nil {
				return fmt.Errorf("loading snapshot %s: %w", args[0], err)
			}

			g.Merge(other)
			if err := persistKnowledge(g); err != nil {
				return err
			}

			stats := g.Stats()
			logger.Info("Merged graph snapshot",
				zap.String("file", args[0]),
				zap.Int("entities", stats.EntityCount),
				zap.Int("relationships", stats.RelationshipCount),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %s. Graph now holds %d entities and %d relationships.\n",
				args[0], stats.EntityCount, stats.RelationshipCount)
			return nil
		},
	}
}

func newGraphVisualizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visualize",
		Short: "Renders the most connected entities as a Mermaid diagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openKnowledge(nil, observability.GetLogger())
			if err != nil {
				return err
			}
			defer g.Store().Close()

			maxNodes, _ := cmd.Flags().GetInt("max-nodes")
			if maxNodes <= 0 {
				maxNodes = activeConfig().Query.MaxMermaidNodes
			}
			fmt.Fprintln(cmd.OutOrStdout(), g.Mermaid(maxNodes))
			return nil
		},
	}
	cmd.Flags().Int("max-nodes", 0, "maximum nodes to render (0 uses the configured default)")
	return cmd
}

func newGraphDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Locates knowledge graph files near a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				var err error
				dir, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			found := knowledge.FindGraphFiles(dir)
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No knowledge graph files found.")
				return nil
			}
			for _, path := range found {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "directory to search from (defaults to the working directory)")
	return cmd
}

func newGraphDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <path>",
		Short: "Summarizes a graph file without loading it into the configured backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := knowledge.Describe(args[0], observability.GetLogger())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store_type: %s\n", stats.StoreType)
			fmt.Fprintf(out, "entity_count: %d\n", stats.EntityCount)
			fmt.Fprintf(out, "relationship_count: %d\n", stats.RelationshipCount)
			if len(stats.EntityTypes) > 0 {
				fmt.Fprintln(out, "entity_types:")
				types := make([]string, 0, len(stats.EntityTypes))
				for t := range stats.EntityTypes {
					types = append(types, t)
				}
				sort.Strings(types)
				for _, t := range types {
					fmt.Fprintf(out, "  %s: %d\n", t, stats.EntityTypes[t])
				}
			}
			return nil
		},
	}
}
