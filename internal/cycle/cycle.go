// Package cycle implements the Cycle Detector: bounded depth-first search
// for short circular flows (length 3-5), four-constraint validation,
// canonicalization, deduplication, and union-find ring merging.
package cycle

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/unionfind"
)

const (
	minLength          = 3
	maxLength          = 5
	minEligibleDegree  = 2
	maxEligibleDegree  = 20
	opBudgetPerNode    = 5000
	globalCandidateCap = 2000
	maxRingSize        = 30
	temporalWindow     = 72 * time.Hour
	amountVariancePct  = 0.15
	minFlowRatio       = 0.70
	maxExternalDegree  = 5
)

// Cycle is a validated, canonicalized circular flow.
type Cycle struct {
	Nodes []string     // canonical order: starts at lexicographically smallest id
	Edges []graph.Edge // Edges[i] connects Nodes[i] -> Nodes[(i+1)%len]
}

// Length returns the number of distinct nodes in the cycle.
func (c Cycle) Length() int { return len(c.Nodes) }

// Key returns the canonical dedup key for the cycle.
func (c Cycle) Key() string { return strings.Join(c.Nodes, ">") }

// Result is the detector's output for one run.
type Result struct {
	Cycles         []Cycle
	Rings          map[string][]string // ring key -> sorted member accounts, in first-discovery order
	RingOrder      []string            // ring keys in discovery order
	BudgetExceeded bool
}

// budget tracks two independent counters per §4.2: a per-node DFS step
// budget (reset at the start of each starting node's walk) and a global
// cap on the number of closing-edge candidates found across the whole
// search. An exhausted per-node budget ends that node's walk; an
// exhausted candidate cap ends the whole search.
type budget struct {
	nodeOps    int
	candidates int
	exceeded   bool
}

// step consumes one unit of the current node's DFS step budget.
func (b *budget) step() bool {
	b.nodeOps++
	if b.nodeOps > opBudgetPerNode {
		b.exceeded = true
		return false
	}
	return true
}

// candidate consumes one unit of the global candidate-closure budget.
// Called once per closing edge found, before validation.
func (b *budget) candidate() bool {
	b.candidates++
	if b.candidates > globalCandidateCap {
		b.exceeded = true
		return false
	}
	return true
}

// Detect runs the bounded-DFS cycle search over g and returns validated,
// canonical, deduplicated cycles merged into rings via union-find.
//
// Never returns an error: a detector failure is isolated per §7 — on
// panic recovery the caller gets a zero-value Result plus a logged
// failure, never an aborted pipeline.
func Detect(g *graph.DirectedMultiGraph) Result {
	res := Result{Rings: make(map[string][]string)}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("cycle detector: recovered, returning empty result")
		}
	}()

	eligible := eligibleNodes(g)
	seen := make(map[string]bool)
	b := &budget{}

	for _, start := range g.Nodes() {
		if !eligible[start] {
			continue
		}
		if b.candidates >= globalCandidateCap {
			break
		}
		b.nodeOps = 0
		walk(g, eligible, start, []string{start}, nil, make(map[string]bool, maxLength), b, func(nodes []string, edges []graph.Edge) {
			if validate(g, nodes, edges) {
				c := canonicalize(nodes, edges)
				if !seen[c.Key()] {
					seen[c.Key()] = true
					res.Cycles = append(res.Cycles, c)
				}
			}
		})
		if b.candidates >= globalCandidateCap {
			break
		}
	}

	res.BudgetExceeded = b.exceeded
	mergeRings(&res)
	return res
}

// eligibleNodes returns the set of accounts whose total degree falls in
// [minEligibleDegree, maxEligibleDegree] — isolated nodes and hubs are
// excluded from the search entirely.
func eligibleNodes(g *graph.DirectedMultiGraph) map[string]bool {
	out := make(map[string]bool)
	for _, id := range g.Nodes() {
		n := g.Node(id)
		d := n.Degree()
		if d >= minEligibleDegree && d <= maxEligibleDegree {
			out[id] = true
		}
	}
	return out
}

// walk performs the bounded DFS from start, calling onCycle for every
// simple cycle of length 3..5 closing back to start. Each edge
// examination consumes one unit of b's step budget; the walk stops
// early once the budget is exhausted.
func walk(g *graph.DirectedMultiGraph, eligible map[string]bool, start string, path []string, edges []graph.Edge, inPath map[string]bool, b *budget, onCycle func([]string, []graph.Edge)) {
	inPath[path[len(path)-1]] = true
	defer delete(inPath, path[len(path)-1])

	cur := path[len(path)-1]
	node := g.Node(cur)
	if node == nil {
		return
	}

	for _, e := range node.Out {
		if !b.step() {
			return
		}
		next := e.To
		if next == start && len(path) >= minLength {
			if !b.candidate() {
				return
			}
			closedEdges := make([]graph.Edge, len(edges)+1)
			copy(closedEdges, edges)
			closedEdges[len(edges)] = e
			onCycle(append([]string{}, path...), closedEdges)
			continue
		}
		if len(path) >= maxLength {
			continue
		}
		if inPath[next] || !eligible[next] {
			continue
		}
		nextPath := make([]string, len(path)+1)
		copy(nextPath, path)
		nextPath[len(path)] = next
		nextEdges := make([]graph.Edge, len(edges)+1)
		copy(nextEdges, edges)
		nextEdges[len(edges)] = e
		walk(g, eligible, start, nextPath, nextEdges, inPath, b, onCycle)
		if b.nodeOps > opBudgetPerNode || b.candidates > globalCandidateCap {
			return
		}
	}
}

// validate checks all four §4.2 constraints against a candidate cycle.
func validate(g *graph.DirectedMultiGraph, nodes []string, edges []graph.Edge) bool {
	if len(nodes) < minLength || len(nodes) > maxLength || len(edges) != len(nodes) {
		return false
	}

	minTs, maxTs := edges[0].Timestamp, edges[0].Timestamp
	amounts := make([]float64, len(edges))
	for i, e := range edges {
		if e.Timestamp.Before(minTs) {
			minTs = e.Timestamp
		}
		if e.Timestamp.After(maxTs) {
			maxTs = e.Timestamp
		}
		amounts[i] = e.AmountFloat()
	}

	// Temporal window.
	if maxTs.Sub(minTs) > temporalWindow {
		return false
	}

	// Amount variance: every edge within ±15% of the cycle's mean.
	mean := 0.0
	minAmt, maxAmt := amounts[0], amounts[0]
	for _, a := range amounts {
		mean += a
		if a < minAmt {
			minAmt = a
		}
		if a > maxAmt {
			maxAmt = a
		}
	}
	mean /= float64(len(amounts))
	if mean <= 0 {
		return false
	}
	for _, a := range amounts {
		if a < mean*(1-amountVariancePct) || a > mean*(1+amountVariancePct) {
			return false
		}
	}

	// Flow conservation.
	if maxAmt <= 0 || minAmt/maxAmt < minFlowRatio {
		return false
	}

	// External isolation.
	cycleSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		cycleSet[n] = true
	}
	return externalIsolationOK(g, nodes, cycleSet, minTs, maxTs)
}

// externalIsolationOK checks, for each cycle node, that the count of
// distinct non-cycle counterparties active within [minTs, maxTs] is
// bounded by maxExternalDegree.
func externalIsolationOK(g *graph.DirectedMultiGraph, nodes []string, cycleSet map[string]bool, minTs, maxTs time.Time) bool {
	for _, id := range nodes {
		n := g.Node(id)
		if n == nil {
			continue
		}
		outsiders := make(map[string]bool)
		for _, e := range n.In {
			if !withinWindow(e.Timestamp, minTs, maxTs) {
				continue
			}
			if !cycleSet[e.From] {
				outsiders[e.From] = true
			}
		}
		for _, e := range n.Out {
			if !withinWindow(e.Timestamp, minTs, maxTs) {
				continue
			}
			if !cycleSet[e.To] {
				outsiders[e.To] = true
			}
		}
		if len(outsiders) > maxExternalDegree {
			return false
		}
	}
	return true
}

func withinWindow(t, lo, hi time.Time) bool {
	return !t.Before(lo) && !t.After(hi)
}

// canonicalize rotates the cycle so it starts at its lexicographically
// smallest node id, per §3.
func canonicalize(nodes []string, edges []graph.Edge) Cycle {
	minIdx := 0
	for i, n := range nodes {
		if n < nodes[minIdx] {
			minIdx = i
		}
	}
	rotNodes := make([]string, len(nodes))
	rotEdges := make([]graph.Edge, len(edges))
	for i := range nodes {
		rotNodes[i] = nodes[(minIdx+i)%len(nodes)]
		rotEdges[i] = edges[(minIdx+i)%len(edges)]
	}
	return Cycle{Nodes: rotNodes, Edges: rotEdges}
}

// mergeRings unions cycles sharing >=1 node into rings capped at
// maxRingSize members, assigning ring keys in first-discovery order.
// Union calls refused by the cap leave their nodes in whatever group
// they already belonged to, so ring membership must come from the
// union-find's actual partition rather than the raw per-cycle node
// lists — re-walking a cycle's nodes would silently readmit a node
// the cap refused to merge.
func mergeRings(res *Result) {
	uf := unionfind.New(maxRingSize)

	for _, c := range res.Cycles {
		// Union all nodes of this cycle together.
		for j := 1; j < len(c.Nodes); j++ {
			uf.Union(c.Nodes[0], c.Nodes[j])
		}
	}

	groups := uf.Groups()

	// Deterministic ring ordering: a group takes the position of the
	// earliest-discovered cycle that has a node in it.
	for _, c := range res.Cycles {
		for _, n := range c.Nodes {
			root := uf.Find(n)
			if _, done := res.Rings[root]; done {
				continue
			}
			members := append([]string{}, groups[root]...)
			sort.Strings(members)
			res.Rings[root] = members
			res.RingOrder = append(res.RingOrder, root)
		}
	}
}
