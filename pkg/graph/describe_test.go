package graph

import (
	"strings"
	"testing"

	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

func TestDescribe_EmptyGraph(t *testing.T) {
	got := Describe(nil, nil, DescribeOptions{})
	if got != emptyCanvasText {
		t.Fatalf("expected empty-canvas sentence, got %q", got)
	}
}

func TestDescribe_NodeAndEdgeEntries(t *testing.T) {
	nodes := []common.Node{
		{ID: "n1", Shape: common.ShapeRectangle, Label: "Revenue"},
		{ID: "n2", Shape: common.ShapeEllipse, Label: "Costs"},
	}
	edges := []common.Edge{{ID: "e1", Source: "n1", Target: "n2", Label: "funds"}}

	got := Describe(nodes, edges, DescribeOptions{})
	if !strings.Contains(got, `[n1] rectangle "Revenue"`) {
		t.Fatalf("missing node entry in:\n%s", got)
	}
	if !strings.Contains(got, `"Revenue" -> "Costs": funds`) {
		t.Fatalf("missing edge entry in:\n%s", got)
	}
}

func TestDescribe_MultiLineLabelVerbatim(t *testing.T) {
	nodes := []common.Node{
		{ID: "n1", Shape: common.ShapeNote, Label: "Plan\nQ3 targets\nQ4 stretch"},
	}

	got := Describe(nodes, nil, DescribeOptions{})
	for _, line := range []string{"    Plan", "    Q3 targets", "    Q4 stretch"} {
		if !strings.Contains(got, line) {
			t.Fatalf("missing indented label line %q in:\n%s", line, got)
		}
	}
}

func TestDescribe_MaxNodesBound(t *testing.T) {
	nodes := []common.Node{
		{ID: "a", Shape: common.ShapeRectangle, Label: "A"},
		{ID: "b", Shape: common.ShapeRectangle, Label: "B"},
		{ID: "c", Shape: common.ShapeRectangle, Label: "C"},
	}
	edges := []common.Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "c"},
	}

	got := Describe(nodes, edges, DescribeOptions{MaxNodes: 2})
	if strings.Count(got, "- [") != 2 {
		t.Fatalf("expected exactly 2 node entries in:\n%s", got)
	}
	if !strings.Contains(got, "(1 more nodes omitted)") {
		t.Fatalf("missing node omission note in:\n%s", got)
	}
	// Edge b-c must be dropped since c is omitted.
	if strings.Contains(got, `"B" -> "C"`) {
		t.Fatalf("edge with omitted endpoint leaked into:\n%s", got)
	}
	if !strings.Contains(got, "(1 more edges omitted)") {
		t.Fatalf("missing edge omission note in:\n%s", got)
	}
}

func TestDescribe_PriorityNodesFirst(t *testing.T) {
	nodes := []common.Node{
		{ID: "a", Shape: common.ShapeRectangle, Label: "A"},
		{ID: "b", Shape: common.ShapeRectangle, Label: "B"},
		{ID: "c", Shape: common.ShapeRectangle, Label: "C"},
	}

	got := Describe(nodes, nil, DescribeOptions{PriorityNodeIDs: []string{"c"}, MaxNodes: 1})
	if !strings.Contains(got, `[c] rectangle "C"`) {
		t.Fatalf("prioritized node missing in:\n%s", got)
	}
	if strings.Contains(got, `[a]`) {
		t.Fatalf("non-priority node should be truncated:\n%s", got)
	}
}

func TestDescribe_PositionsAndTags(t *testing.T) {
	nodes := []common.Node{
		{
			ID: "n1", Shape: common.ShapeRectangle, Label: "Budget",
			Tags:     []string{"finance", "q3"},
			Position: common.Position{X: 100.4, Y: 199.6},
		},
	}

	got := Describe(nodes, nil, DescribeOptions{IncludePositions: true, IncludeTags: true})
	if !strings.Contains(got, "(tags: finance, q3)") {
		t.Fatalf("missing tags in:\n%s", got)
	}
	if !strings.Contains(got, "at (100, 200)") {
		t.Fatalf("missing rounded position in:\n%s", got)
	}
}

func TestDescribe_AnalysisAppendix(t *testing.T) {
	nodes := []common.Node{
		{ID: "a", Shape: common.ShapeRectangle, Label: "A"},
		{ID: "b", Shape: common.ShapeRectangle, Label: "B"},
		{ID: "solo", Shape: common.ShapeRectangle, Label: "Solo"},
	}
	edges := []common.Edge{{ID: "e1", Source: "a", Target: "b"}}

	got := Describe(nodes, edges, DescribeOptions{IncludeAnalysis: true})
	if !strings.Contains(got, "Structure:") {
		t.Fatalf("missing analysis section in:\n%s", got)
	}
	if !strings.Contains(got, "1 isolated nodes") {
		t.Fatalf("missing isolated summary in:\n%s", got)
	}
}

func TestDescribe_Idempotent(t *testing.T) {
	nodes := []common.Node{
		{ID: "a", Shape: common.ShapeRectangle, Label: "A"},
		{ID: "b", Shape: common.ShapeDiamond, Label: "B"},
		{ID: "c", Shape: common.ShapeCylinder, Label: "C\nsecond line"},
	}
	edges := []common.Edge{
		{ID: "e1", Source: "a", Target: "b", Label: "x"},
		{ID: "e2", Source: "b", Target: "c"},
	}
	opts := DescribeOptions{IncludePositions: true, IncludeTags: true, IncludeAnalysis: true}

	first := Describe(nodes, edges, opts)
	second := Describe(nodes, edges, opts)
	if first != second {
		t.Fatalf("serialization not deterministic:\n%s\n---\n%s", first, second)
	}
}

func TestDescribe_InvalidShapeFallsBack(t *testing.T) {
	nodes := []common.Node{{ID: "n1", Shape: "hexagon", Label: "X"}}

	got := Describe(nodes, nil, DescribeOptions{})
	if !strings.Contains(got, "[n1] rectangle") {
		t.Fatalf("expected default shape in:\n%s", got)
	}
}
