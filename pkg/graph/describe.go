package graph

import (
	"fmt"
	"math"
	"strings"

	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

// emptyCanvasText is returned for a graph without nodes.
const emptyCanvasText = "The canvas is currently empty. There are no nodes or edges yet."

// DescribeOptions controls how a canvas graph is rendered into text.
type DescribeOptions struct {
	IncludePositions bool
	IncludeTags      bool
	// MaxNodes caps the number of node entries; 0 means unlimited.
	MaxNodes int
	// PriorityNodeIDs are listed first, before the remaining nodes in
	// their original order.
	PriorityNodeIDs []string
	IncludeAnalysis bool
}

// Describe renders nodes and edges into a deterministic text block for
// use as model context. Calling it twice with identical inputs produces
// byte-identical output.
func Describe(nodes []common.Node, edges []common.Edge, opts DescribeOptions) string {
	if len(nodes) == 0 {
		return emptyCanvasText
	}

	included := SelectNodes(nodes, opts.PriorityNodeIDs, opts.MaxNodes)
	includedSet := make(map[string]struct{}, len(included))
	for _, n := range included {
		includedSet[n.ID] = struct{}{}
	}
	labelByID := make(map[string]string, len(included))
	for _, n := range included {
		labelByID[n.ID] = firstLine(n.Label)
	}

	var keptEdges []common.Edge
	for _, e := range edges {
		if _, ok := includedSet[e.Source]; !ok {
			continue
		}
		if _, ok := includedSet[e.Target]; !ok {
			continue
		}
		keptEdges = append(keptEdges, e)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Canvas graph: %d nodes, %d edges.\n", len(nodes), len(edges))

	b.WriteString("\nNodes:\n")
	for _, n := range included {
		writeNodeEntry(&b, n, opts)
	}
	if omitted := len(nodes) - len(included); omitted > 0 {
		fmt.Fprintf(&b, "(%d more nodes omitted)\n", omitted)
	}

	if len(edges) > 0 {
		b.WriteString("\nEdges:\n")
		for _, e := range keptEdges {
			writeEdgeEntry(&b, e, labelByID)
		}
		if omitted := len(edges) - len(keptEdges); omitted > 0 {
			fmt.Fprintf(&b, "(%d more edges omitted)\n", omitted)
		}
	}

	if opts.IncludeAnalysis {
		writeAnalysis(&b, nodes, edges)
	}

	return strings.TrimRight(b.String(), "\n")
}

// SelectNodes orders prioritized nodes first, keeps the remaining nodes
// in their original order, and truncates to maxNodes when set.
func SelectNodes(nodes []common.Node, priorityIDs []string, maxNodes int) []common.Node {
	prioritized := make(map[string]struct{}, len(priorityIDs))
	for _, id := range priorityIDs {
		prioritized[id] = struct{}{}
	}

	ordered := make([]common.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := prioritized[n.ID]; ok {
			ordered = append(ordered, n)
		}
	}
	for _, n := range nodes {
		if _, ok := prioritized[n.ID]; !ok {
			ordered = append(ordered, n)
		}
	}

	if maxNodes > 0 && len(ordered) > maxNodes {
		ordered = ordered[:maxNodes]
	}
	return ordered
}

func writeNodeEntry(b *strings.Builder, n common.Node, opts DescribeOptions) {
	shape := n.Shape
	if !common.ValidShape(shape) {
		shape = common.DefaultShape
	}

	fmt.Fprintf(b, "- [%s] %s", n.ID, shape)

	lines := strings.Split(n.Label, "\n")
	if len(lines) == 1 {
		fmt.Fprintf(b, " %q", n.Label)
	}
	if opts.IncludeTags && len(n.Tags) > 0 {
		fmt.Fprintf(b, " (tags: %s)", strings.Join(n.Tags, ", "))
	}
	if opts.IncludePositions {
		fmt.Fprintf(b, " at (%d, %d)", int(math.Round(n.Position.X)), int(math.Round(n.Position.Y)))
	}
	b.WriteString("\n")

	if len(lines) > 1 {
		for _, line := range lines {
			fmt.Fprintf(b, "    %s\n", line)
		}
	}
}

func writeEdgeEntry(b *strings.Builder, e common.Edge, labelByID map[string]string) {
	fmt.Fprintf(b, "- %q -> %q", labelByID[e.Source], labelByID[e.Target])
	if e.Label != "" {
		fmt.Fprintf(b, ": %s", firstLine(e.Label))
	}
	b.WriteString("\n")
}

func writeAnalysis(b *strings.Builder, nodes []common.Node, edges []common.Edge) {
	analysis := Analyze(nodes, edges)
	labelByID := make(map[string]string, len(nodes))
	for _, n := range nodes {
		labelByID[n.ID] = firstLine(n.Label)
	}

	b.WriteString("\nStructure:\n")
	fmt.Fprintf(b, "- %d nodes, %d edges, density %.0f%%\n",
		analysis.NodeCount, analysis.EdgeCount, analysis.Density*100)
	fmt.Fprintf(b, "- average path length %.2f\n", analysis.AvgPathLength)

	if len(analysis.Central) > 0 {
		parts := make([]string, 0, len(analysis.Central))
		for _, c := range analysis.Central {
			parts = append(parts, fmt.Sprintf("%q (degree %d, betweenness %.2f)",
				labelByID[c.ID], c.Degree, c.Betweenness))
		}
		fmt.Fprintf(b, "- central nodes: %s\n", strings.Join(parts, ", "))
	}

	if len(analysis.Isolated) > 0 {
		if len(analysis.Isolated) <= 5 {
			parts := make([]string, 0, len(analysis.Isolated))
			for _, id := range analysis.Isolated {
				parts = append(parts, fmt.Sprintf("%q", labelByID[id]))
			}
			fmt.Fprintf(b, "- %d isolated nodes: %s\n", len(analysis.Isolated), strings.Join(parts, ", "))
		} else {
			fmt.Fprintf(b, "- %d isolated nodes\n", len(analysis.Isolated))
		}
	}

	if len(analysis.Clusters) > 0 {
		shown := analysis.Clusters
		if len(shown) > 3 {
			shown = shown[:3]
		}
		parts := make([]string, 0, len(shown))
		for _, c := range shown {
			parts = append(parts, fmt.Sprintf("%d nodes (density %.0f%%, center %q)",
				len(c.NodeIDs), c.Density*100, labelByID[c.CentralID]))
		}
		fmt.Fprintf(b, "- clusters: %s\n", strings.Join(parts, "; "))
	}

	if len(analysis.Bridges) > 0 {
		shown := analysis.Bridges
		if len(shown) > 3 {
			shown = shown[:3]
		}
		parts := make([]string, 0, len(shown))
		for _, id := range shown {
			parts = append(parts, fmt.Sprintf("%q", labelByID[id]))
		}
		fmt.Fprintf(b, "- bridge nodes: %s\n", strings.Join(parts, ", "))
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
