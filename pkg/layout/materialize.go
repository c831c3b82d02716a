// Package layout turns validated add-actions into concrete, positioned
// canvas elements. Placement always succeeds; every adjustment is
// reported as a warning, never an error.
package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

const (
	// DefaultSpacing is the gap used for automatic placement when the
	// caller does not configure one.
	DefaultSpacing = 180.0

	nodeHeight   = 60.0
	minNodeWidth = 120.0
	charWidth    = 8.0
	boxPadding   = 24.0

	overlapPadding = 20.0

	spiralAngleStep = 30.0 // degrees
	spiralAttempts  = 20
)

// Bounds restricts placement to a rectangular canvas region. A nil
// Bounds means the canvas is unbounded.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (b *Bounds) clamp(p common.Position) common.Position {
	if b == nil {
		return p
	}
	return common.Position{
		X: math.Min(math.Max(p.X, b.MinX), b.MaxX),
		Y: math.Min(math.Max(p.Y, b.MinY), b.MaxY),
	}
}

func (b *Bounds) center() common.Position {
	if b == nil {
		return common.Position{}
	}
	return common.Position{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
}

// MaterializeParams are the inputs for one materialization batch.
// NextID is a monotonically increasing counter owned by the caller;
// the returned counter must be persisted for the next batch.
type MaterializeParams struct {
	Nodes []common.NodeSpec
	Edges []common.EdgeSpec

	ExistingNodes []common.Node
	ExistingEdges []common.Edge

	NextID  int
	Spacing float64
	Bounds  *Bounds
}

// Result is the outcome of a materialization batch. Warnings record
// placement adjustments and dropped edges; Errors record per-entry
// failures that did not stop the batch.
type Result struct {
	Nodes  []common.Node
	Edges  []common.Edge
	NextID int

	Warnings []string
	Errors   []string
}

// Materialize converts node and edge specs into positioned canvas
// elements. Produced identifiers are unique against the full existing
// set plus everything produced earlier in the same batch; existing
// identifiers are never touched.
func Materialize(params MaterializeParams) Result {
	m := &materializer{
		spacing: params.Spacing,
		bounds:  params.Bounds,
		nextID:  params.NextID,
		usedIDs: map[string]bool{},
	}
	if m.spacing <= 0 {
		m.spacing = DefaultSpacing
	}
	for _, n := range params.ExistingNodes {
		m.usedIDs[n.ID] = true
	}
	for _, e := range params.ExistingEdges {
		m.usedIDs[e.ID] = true
	}

	m.placeNodes(params.Nodes, params.ExistingNodes)
	m.resolveEdges(params.Edges, params.ExistingNodes, params.ExistingEdges)

	return Result{
		Nodes:    m.placed,
		Edges:    m.edges,
		NextID:   m.nextID,
		Warnings: m.warnings,
		Errors:   m.errors,
	}
}

type materializer struct {
	spacing float64
	bounds  *Bounds

	nextID  int
	usedIDs map[string]bool

	placed []common.Node
	edges  []common.Edge

	warnings []string
	errors   []string
}

func (m *materializer) warnf(format string, args ...any) {
	m.warnings = append(m.warnings, fmt.Sprintf(format, args...))
}

func (m *materializer) errorf(format string, args ...any) {
	m.errors = append(m.errors, fmt.Sprintf(format, args...))
}

func (m *materializer) newID(prefix string) string {
	for {
		id := fmt.Sprintf("%s-%d", prefix, m.nextID)
		m.nextID++
		if !m.usedIDs[id] {
			m.usedIDs[id] = true
			return id
		}
	}
}

func (m *materializer) placeNodes(specs []common.NodeSpec, existing []common.Node) {
	unhinted := 0
	for _, spec := range specs {
		if spec.Position == nil && spec.Relative == nil {
			unhinted++
		}
	}

	grid := newGridPlacer(unhinted, existing, m.spacing, m.bounds)

	for _, spec := range specs {
		pos := m.initialPosition(spec, existing, grid)
		final := m.resolveConflicts(spec.Label, pos, existing)

		shape := spec.Shape
		if !common.ValidShape(shape) {
			shape = common.DefaultShape
		}

		m.placed = append(m.placed, common.Node{
			ID:       m.newID("node"),
			Shape:    shape,
			Label:    spec.Label,
			Tags:     spec.Tags,
			Position: final,
		})
	}
}

// initialPosition applies the placement precedence: absolute, then
// relative, then automatic.
func (m *materializer) initialPosition(
	spec common.NodeSpec,
	existing []common.Node,
	grid *gridPlacer,
) common.Position {
	if spec.Position != nil {
		clamped := m.bounds.clamp(*spec.Position)
		if clamped != *spec.Position {
			m.warnf("node %q: requested position was outside the canvas bounds", firstLine(spec.Label))
		}
		return clamped
	}

	if spec.Relative != nil {
		ref, ok := resolveReference(spec.Relative.Reference, existing, m.placed)
		if !ok {
			m.warnf(
				"node %q: reference %q not found, placing automatically",
				firstLine(spec.Label), spec.Relative.Reference,
			)
			return m.autoPosition(existing, grid)
		}
		return m.relativePosition(spec, ref)
	}

	return m.autoPosition(existing, grid)
}

// relativePosition interprets the requested offset. An offset that is
// clearly dominated by one axis reads as a cardinal direction ("to the
// right of X") and snaps to a touching placement on that side;
// anything else is applied literally.
func (m *materializer) relativePosition(spec common.NodeSpec, ref common.Node) common.Position {
	dx := spec.Relative.OffsetX
	dy := spec.Relative.OffsetY

	refW, refH := boxSize(ref.Label)
	w, h := boxSize(spec.Label)

	switch {
	case math.Abs(dx) >= 2*math.Abs(dy) && math.Abs(dx) > 0:
		gap := refW/2 + w/2 + overlapPadding
		return m.bounds.clamp(common.Position{
			X: ref.Position.X + math.Copysign(gap, dx),
			Y: ref.Position.Y,
		})
	case math.Abs(dy) >= 2*math.Abs(dx) && math.Abs(dy) > 0:
		gap := refH/2 + h/2 + overlapPadding
		return m.bounds.clamp(common.Position{
			X: ref.Position.X,
			Y: ref.Position.Y + math.Copysign(gap, dy),
		})
	default:
		return m.bounds.clamp(common.Position{
			X: ref.Position.X + dx,
			Y: ref.Position.Y + dy,
		})
	}
}

func (m *materializer) autoPosition(existing []common.Node, grid *gridPlacer) common.Position {
	if grid != nil {
		return m.bounds.clamp(grid.next())
	}

	all := len(existing) + len(m.placed)
	if all == 0 {
		return m.bounds.center()
	}

	var cx, cy float64
	for _, n := range existing {
		cx += n.Position.X
		cy += n.Position.Y
	}
	for _, n := range m.placed {
		cx += n.Position.X
		cy += n.Position.Y
	}
	return m.bounds.clamp(common.Position{
		X: cx/float64(all) + m.spacing,
		Y: cy / float64(all),
	})
}

// resolveConflicts checks the candidate position for padded
// bounding-box overlap against every existing and already-placed node,
// searching outward in a 30 degree spiral on conflict and falling back
// to "just right of the rightmost node" when the spiral is exhausted.
func (m *materializer) resolveConflicts(
	label string,
	pos common.Position,
	existing []common.Node,
) common.Position {
	if !m.overlapsAny(label, pos, existing) {
		return pos
	}

	for attempt := 1; attempt <= spiralAttempts; attempt++ {
		angle := float64(attempt) * spiralAngleStep * math.Pi / 180
		radius := m.spacing * (0.5 + 0.25*float64(attempt))
		candidate := m.bounds.clamp(common.Position{
			X: pos.X + radius*math.Cos(angle),
			Y: pos.Y + radius*math.Sin(angle),
		})
		if !m.overlapsAny(label, candidate, existing) {
			m.warnf(
				"node %q: moved to (%.0f, %.0f) to avoid overlap",
				firstLine(label), candidate.X, candidate.Y,
			)
			return candidate
		}
	}

	fallback := m.rightOfRightmost(label, existing)
	m.warnf(
		"node %q: no free spot near the requested position, placed at (%.0f, %.0f)",
		firstLine(label), fallback.X, fallback.Y,
	)
	return fallback
}

func (m *materializer) rightOfRightmost(label string, existing []common.Node) common.Position {
	var rightmost *common.Node
	for i := range existing {
		if rightmost == nil || existing[i].Position.X > rightmost.Position.X {
			rightmost = &existing[i]
		}
	}
	for i := range m.placed {
		if rightmost == nil || m.placed[i].Position.X > rightmost.Position.X {
			rightmost = &m.placed[i]
		}
	}
	if rightmost == nil {
		return m.bounds.center()
	}

	rw, _ := boxSize(rightmost.Label)
	w, _ := boxSize(label)
	return m.bounds.clamp(common.Position{
		X: rightmost.Position.X + rw/2 + w/2 + overlapPadding,
		Y: rightmost.Position.Y,
	})
}

func (m *materializer) overlapsAny(label string, pos common.Position, existing []common.Node) bool {
	for _, n := range existing {
		if boxesOverlap(label, pos, n.Label, n.Position) {
			return true
		}
	}
	for _, n := range m.placed {
		if boxesOverlap(label, pos, n.Label, n.Position) {
			return true
		}
	}
	return false
}

// boxSize estimates a node's bounding box from its label: wider labels
// produce wider boxes, height is fixed.
func boxSize(label string) (w, h float64) {
	longest := 0
	for _, line := range strings.Split(label, "\n") {
		if len(line) > longest {
			longest = len(line)
		}
	}
	w = float64(longest)*charWidth + boxPadding
	if w < minNodeWidth {
		w = minNodeWidth
	}
	return w, nodeHeight
}

func boxesOverlap(labelA string, posA common.Position, labelB string, posB common.Position) bool {
	wa, ha := boxSize(labelA)
	wb, hb := boxSize(labelB)

	return math.Abs(posA.X-posB.X) < (wa+wb)/2+overlapPadding &&
		math.Abs(posA.Y-posB.Y) < (ha+hb)/2+overlapPadding
}

// gridPlacer lays out a batch of three or more hintless nodes in a
// square-ish grid, anchored to the right of the rightmost existing node
// or at the canvas center when the canvas is empty.
type gridPlacer struct {
	origin  common.Position
	cols    int
	index   int
	spacing float64
}

func newGridPlacer(count int, existing []common.Node, spacing float64, bounds *Bounds) *gridPlacer {
	if count < 3 {
		return nil
	}

	origin := bounds.center()
	if len(existing) > 0 {
		rightmost := existing[0]
		for _, n := range existing[1:] {
			if n.Position.X > rightmost.Position.X {
				rightmost = n
			}
		}
		origin = common.Position{
			X: rightmost.Position.X + spacing*1.5,
			Y: rightmost.Position.Y,
		}
	}

	return &gridPlacer{
		origin:  origin,
		cols:    int(math.Ceil(math.Sqrt(float64(count)))),
		spacing: spacing,
	}
}

func (g *gridPlacer) next() common.Position {
	row := g.index / g.cols
	col := g.index % g.cols
	g.index++
	return common.Position{
		X: g.origin.X + float64(col)*g.spacing,
		Y: g.origin.Y + float64(row)*g.spacing,
	}
}

// resolveReference looks a node up by exact id first, then by
// case-insensitive label, across existing nodes and nodes created
// earlier in the batch. The first match wins.
func resolveReference(ref string, existing, placed []common.Node) (common.Node, bool) {
	for _, n := range existing {
		if n.ID == ref {
			return n, true
		}
	}
	for _, n := range placed {
		if n.ID == ref {
			return n, true
		}
	}

	want := strings.ToLower(strings.TrimSpace(ref))
	for _, n := range existing {
		if strings.ToLower(strings.TrimSpace(n.Label)) == want {
			return n, true
		}
	}
	for _, n := range placed {
		if strings.ToLower(strings.TrimSpace(n.Label)) == want {
			return n, true
		}
	}
	return common.Node{}, false
}

func (m *materializer) resolveEdges(
	specs []common.EdgeSpec,
	existingNodes []common.Node,
	existingEdges []common.Edge,
) {
	seen := map[[2]string]bool{}
	for _, e := range existingEdges {
		seen[[2]string{e.Source, e.Target}] = true
	}

	for _, spec := range specs {
		src, ok := resolveReference(spec.Source, existingNodes, m.placed)
		if !ok {
			m.errorf("edge source %q not found", spec.Source)
			continue
		}
		dst, ok := resolveReference(spec.Target, existingNodes, m.placed)
		if !ok {
			m.errorf("edge target %q not found", spec.Target)
			continue
		}

		if src.ID == dst.ID {
			m.warnf("dropped self-edge on %q", firstLine(src.Label))
			continue
		}

		pair := [2]string{src.ID, dst.ID}
		if seen[pair] {
			m.warnf(
				"dropped duplicate edge %q -> %q",
				firstLine(src.Label), firstLine(dst.Label),
			)
			continue
		}
		seen[pair] = true

		m.edges = append(m.edges, common.Edge{
			ID:     m.newID("edge"),
			Source: src.ID,
			Target: dst.ID,
			Label:  spec.Label,
		})
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
