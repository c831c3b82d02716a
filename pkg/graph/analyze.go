package graph

import (
	"math"
	"sort"

	"github.com/diagraph-app/diagraph/backend/pkg/common"
)

// maxExactAnalysisNodes bounds the O(n²)/O(n³) passes (betweenness,
// bridge detection). Canvases are expected to stay in the tens of
// nodes; above this ceiling those passes are skipped and reported
// empty instead of stalling the pipeline.
const maxExactAnalysisNodes = 200

// defaultMaxPathDepth bounds the all-paths search.
const defaultMaxPathDepth = 5

// Path is a route between two nodes, undirected.
type Path struct {
	NodeIDs []string      `json:"node_ids"`
	Edges   []common.Edge `json:"edges"`
	Length  int           `json:"length"`
}

// CentralNode is one entry of the centrality ranking.
type CentralNode struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Degree      int     `json:"degree"`
	Betweenness float64 `json:"betweenness"`
	Closeness   float64 `json:"closeness"`
}

// Cluster is a connected component of size greater than one.
type Cluster struct {
	NodeIDs   []string `json:"node_ids"`
	Density   float64  `json:"density"`
	CentralID string   `json:"central_id"`
}

// Analysis is the combined structural summary of a canvas graph.
type Analysis struct {
	NodeCount     int           `json:"node_count"`
	EdgeCount     int           `json:"edge_count"`
	Density       float64       `json:"density"`
	AvgPathLength float64       `json:"avg_path_length"`
	Central       []CentralNode `json:"central"`
	Clusters      []Cluster     `json:"clusters"`
	Isolated      []string      `json:"isolated"`
	Bridges       []string      `json:"bridges"`
}

// adjacency stores, per node id, its neighbors in deterministic order.
// Edges are treated as undirected for connectivity purposes.
type adjacency struct {
	order      []string
	neighbors  map[string][]string
	edgeByPair map[[2]string]common.Edge
}

func buildAdjacency(nodes []common.Node, edges []common.Edge) *adjacency {
	a := &adjacency{
		order:      make([]string, 0, len(nodes)),
		neighbors:  make(map[string][]string, len(nodes)),
		edgeByPair: make(map[[2]string]common.Edge, len(edges)),
	}
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, ok := known[n.ID]; ok {
			continue
		}
		known[n.ID] = struct{}{}
		a.order = append(a.order, n.ID)
		a.neighbors[n.ID] = nil
	}

	seen := make(map[[2]string]struct{}, len(edges))
	for _, e := range edges {
		if e.Source == e.Target {
			continue
		}
		if _, ok := known[e.Source]; !ok {
			continue
		}
		if _, ok := known[e.Target]; !ok {
			continue
		}
		pair := orderedPair(e.Source, e.Target)
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		a.neighbors[e.Source] = append(a.neighbors[e.Source], e.Target)
		a.neighbors[e.Target] = append(a.neighbors[e.Target], e.Source)
		a.edgeByPair[pair] = e
	}

	return a
}

func orderedPair(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func (a *adjacency) edgeBetween(x, y string) (common.Edge, bool) {
	e, ok := a.edgeByPair[orderedPair(x, y)]
	return e, ok
}

// bfsDistances returns hop distances from start to every reachable node.
func (a *adjacency) bfsDistances(start string) map[string]int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range a.neighbors[current] {
			if _, ok := dist[next]; ok {
				continue
			}
			dist[next] = dist[current] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

func (a *adjacency) shortestPath(from, to string) *Path {
	if _, ok := a.neighbors[from]; !ok {
		return nil
	}
	if _, ok := a.neighbors[to]; !ok {
		return nil
	}
	if from == to {
		return &Path{NodeIDs: []string{from}, Length: 0}
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	found := false
	for len(queue) > 0 && !found {
		current := queue[0]
		queue = queue[1:]
		for _, next := range a.neighbors[current] {
			if _, ok := prev[next]; ok {
				continue
			}
			prev[next] = current
			if next == to {
				found = true
				break
			}
			queue = append(queue, next)
		}
	}
	if !found {
		return nil
	}

	var reversed []string
	for at := to; at != ""; at = prev[at] {
		reversed = append(reversed, at)
	}
	ids := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		ids = append(ids, reversed[i])
	}

	pathEdges := make([]common.Edge, 0, len(ids)-1)
	for i := 0; i+1 < len(ids); i++ {
		if e, ok := a.edgeBetween(ids[i], ids[i+1]); ok {
			pathEdges = append(pathEdges, e)
		}
	}

	return &Path{NodeIDs: ids, Edges: pathEdges, Length: len(ids) - 1}
}

// ShortestPath returns the breadth-first shortest path between two nodes,
// or nil if either node is unknown or no route exists.
func ShortestPath(nodes []common.Node, edges []common.Edge, from, to string) *Path {
	return buildAdjacency(nodes, edges).shortestPath(from, to)
}

// AllPaths returns every simple path between two nodes up to maxDepth
// edges (defaultMaxPathDepth when maxDepth <= 0), sorted by length
// ascending.
func AllPaths(nodes []common.Node, edges []common.Edge, from, to string, maxDepth int) []Path {
	if maxDepth <= 0 {
		maxDepth = defaultMaxPathDepth
	}
	a := buildAdjacency(nodes, edges)
	if _, ok := a.neighbors[from]; !ok {
		return nil
	}
	if _, ok := a.neighbors[to]; !ok {
		return nil
	}

	var results []Path
	visited := map[string]struct{}{from: {}}
	trail := []string{from}

	var walk func(current string)
	walk = func(current string) {
		if current == to {
			ids := make([]string, len(trail))
			copy(ids, trail)
			pathEdges := make([]common.Edge, 0, len(ids)-1)
			for i := 0; i+1 < len(ids); i++ {
				if e, ok := a.edgeBetween(ids[i], ids[i+1]); ok {
					pathEdges = append(pathEdges, e)
				}
			}
			results = append(results, Path{NodeIDs: ids, Edges: pathEdges, Length: len(ids) - 1})
			return
		}
		if len(trail)-1 >= maxDepth {
			return
		}
		for _, next := range a.neighbors[current] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			trail = append(trail, next)
			walk(next)
			trail = trail[:len(trail)-1]
			delete(visited, next)
		}
	}
	walk(from)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Length < results[j].Length
	})
	return results
}

// RelationshipStrength scores how directly two nodes are connected:
// the inverse of the shortest path length, 1.0 for adjacent nodes and
// 0 when unreachable.
func RelationshipStrength(nodes []common.Node, edges []common.Edge, from, to string) float64 {
	p := ShortestPath(nodes, edges, from, to)
	if p == nil || p.Length == 0 {
		return 0
	}
	return 1.0 / float64(p.Length)
}

// DegreeCentrality returns the adjacency-set size per node.
func DegreeCentrality(nodes []common.Node, edges []common.Edge) map[string]int {
	a := buildAdjacency(nodes, edges)
	return a.degrees()
}

func (a *adjacency) degrees() map[string]int {
	out := make(map[string]int, len(a.order))
	for _, id := range a.order {
		out[id] = len(a.neighbors[id])
	}
	return out
}

// betweenness approximates betweenness centrality: for every unordered
// node pair excluding the node itself, if a shortest path exists and
// passes through the node, add 1/path_length.
func (a *adjacency) betweenness() map[string]float64 {
	out := make(map[string]float64, len(a.order))
	for _, id := range a.order {
		out[id] = 0
	}

	for i := 0; i < len(a.order); i++ {
		for j := i + 1; j < len(a.order); j++ {
			s, t := a.order[i], a.order[j]
			p := a.shortestPath(s, t)
			if p == nil || p.Length == 0 {
				continue
			}
			for _, via := range p.NodeIDs[1 : len(p.NodeIDs)-1] {
				out[via] += 1.0 / float64(p.Length)
			}
		}
	}
	return out
}

// closeness returns reachable_count / sum(distances) per node, 0 for
// isolated nodes.
func (a *adjacency) closeness() map[string]float64 {
	out := make(map[string]float64, len(a.order))
	for _, id := range a.order {
		dist := a.bfsDistances(id)
		reachable := 0
		total := 0
		for other, d := range dist {
			if other == id {
				continue
			}
			reachable++
			total += d
		}
		if total == 0 {
			out[id] = 0
			continue
		}
		out[id] = float64(reachable) / float64(total)
	}
	return out
}

// RankCentrality returns the topN nodes by combined centrality score:
// 0.4·degree + 0.4·betweenness + 0.2·closeness, with degree and
// betweenness normalized into [0, 1] before weighting.
func RankCentrality(nodes []common.Node, edges []common.Edge, topN int) []CentralNode {
	a := buildAdjacency(nodes, edges)
	return a.rankCentrality(topN)
}

func (a *adjacency) rankCentrality(topN int) []CentralNode {
	n := len(a.order)
	if n == 0 {
		return nil
	}

	degrees := a.degrees()
	between := make(map[string]float64, n)
	if n <= maxExactAnalysisNodes {
		between = a.betweenness()
	}
	close := a.closeness()

	maxBetween := 0.0
	for _, b := range between {
		if b > maxBetween {
			maxBetween = b
		}
	}

	ranked := make([]CentralNode, 0, n)
	for _, id := range a.order {
		degreeNorm := 0.0
		if n > 1 {
			degreeNorm = float64(degrees[id]) / float64(n-1)
		}
		betweenNorm := 0.0
		if maxBetween > 0 {
			betweenNorm = between[id] / maxBetween
		}
		ranked = append(ranked, CentralNode{
			ID:          id,
			Score:       0.4*degreeNorm + 0.4*betweenNorm + 0.2*close[id],
			Degree:      degrees[id],
			Betweenness: between[id],
			Closeness:   close[id],
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// components returns connected components as ordered id slices,
// following the original node order.
func (a *adjacency) components() [][]string {
	assigned := make(map[string]struct{}, len(a.order))
	var comps [][]string

	for _, start := range a.order {
		if _, ok := assigned[start]; ok {
			continue
		}
		var comp []string
		stack := []string{start}
		assigned[start] = struct{}{}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, current)
			for _, next := range a.neighbors[current] {
				if _, ok := assigned[next]; ok {
					continue
				}
				assigned[next] = struct{}{}
				stack = append(stack, next)
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// Clusters returns every connected component of size greater than one,
// each with its internal density and its highest-degree member.
func Clusters(nodes []common.Node, edges []common.Edge) []Cluster {
	a := buildAdjacency(nodes, edges)
	return a.clusters()
}

func (a *adjacency) clusters() []Cluster {
	degrees := a.degrees()
	var out []Cluster
	for _, comp := range a.components() {
		if len(comp) < 2 {
			continue
		}
		member := make(map[string]struct{}, len(comp))
		for _, id := range comp {
			member[id] = struct{}{}
		}

		edgesWithin := 0
		for _, id := range comp {
			for _, next := range a.neighbors[id] {
				if _, ok := member[next]; ok {
					edgesWithin++
				}
			}
		}
		edgesWithin /= 2

		k := len(comp)
		maxPossible := k * (k - 1) / 2

		central := comp[0]
		for _, id := range comp[1:] {
			if degrees[id] > degrees[central] {
				central = id
			}
		}

		sorted := make([]string, len(comp))
		copy(sorted, comp)
		sort.Strings(sorted)

		out = append(out, Cluster{
			NodeIDs:   sorted,
			Density:   float64(edgesWithin) / float64(maxPossible),
			CentralID: central,
		})
	}
	return out
}

// IsolatedNodes returns the ids of zero-degree nodes.
func IsolatedNodes(nodes []common.Node, edges []common.Edge) []string {
	a := buildAdjacency(nodes, edges)
	return a.isolated()
}

func (a *adjacency) isolated() []string {
	var out []string
	for _, id := range a.order {
		if len(a.neighbors[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// BridgeNodes returns the nodes whose removal splits their component.
// Naive articulation test: remove each node and its incident edges and
// compare the component count of the remaining graph.
func BridgeNodes(nodes []common.Node, edges []common.Edge) []string {
	a := buildAdjacency(nodes, edges)
	if len(a.order) > maxExactAnalysisNodes {
		return nil
	}
	return a.bridges()
}

func (a *adjacency) bridges() []string {
	baseline := len(a.components())
	var out []string
	for _, removed := range a.order {
		// Leaves and isolated nodes can never split anything.
		if len(a.neighbors[removed]) < 2 {
			continue
		}
		if a.componentsWithout(removed) > baseline {
			out = append(out, removed)
		}
	}
	return out
}

// componentsWithout counts connected components after excluding one node.
// The excluded node itself is not counted as a component.
func (a *adjacency) componentsWithout(removed string) int {
	assigned := map[string]struct{}{removed: {}}
	count := 0
	for _, start := range a.order {
		if _, ok := assigned[start]; ok {
			continue
		}
		count++
		stack := []string{start}
		assigned[start] = struct{}{}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, next := range a.neighbors[current] {
				if _, ok := assigned[next]; ok {
					continue
				}
				assigned[next] = struct{}{}
				stack = append(stack, next)
			}
		}
	}
	return count
}

// AveragePathLength returns the mean shortest-path length over all
// reachable node pairs, 0 when no pair is reachable.
func AveragePathLength(nodes []common.Node, edges []common.Edge) float64 {
	a := buildAdjacency(nodes, edges)
	return a.averagePathLength()
}

func (a *adjacency) averagePathLength() float64 {
	total := 0
	pairs := 0
	for _, id := range a.order {
		for other, d := range a.bfsDistances(id) {
			if other == id {
				continue
			}
			total += d
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return float64(total) / float64(pairs)
}

// Density returns edges / max_possible_edges for a simple undirected graph.
func Density(nodes []common.Node, edges []common.Edge) float64 {
	a := buildAdjacency(nodes, edges)
	return a.density()
}

func (a *adjacency) density() float64 {
	n := len(a.order)
	if n < 2 {
		return 0
	}
	edgeCount := len(a.edgeByPair)
	maxPossible := n * (n - 1) / 2
	return float64(edgeCount) / float64(maxPossible)
}

// Analyze runs the full structural analysis over a canvas graph.
func Analyze(nodes []common.Node, edges []common.Edge) *Analysis {
	a := buildAdjacency(nodes, edges)

	analysis := &Analysis{
		NodeCount:     len(a.order),
		EdgeCount:     len(a.edgeByPair),
		Density:       a.density(),
		AvgPathLength: roundTo(a.averagePathLength(), 2),
		Central:       a.rankCentrality(5),
		Clusters:      a.clusters(),
		Isolated:      a.isolated(),
	}
	if len(a.order) <= maxExactAnalysisNodes {
		analysis.Bridges = a.bridges()
	}
	return analysis
}

func roundTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}
