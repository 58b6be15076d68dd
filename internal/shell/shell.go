// Package shell implements the Shell Detector: passthrough-candidate
// filtering followed by bounded BFS chain walking between distinct
// non-candidate endpoints.
package shell

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
)

const (
	minCandidateDegree  = 2
	maxCandidateDegree  = 3
	minPassthroughRatio = 0.80
	passthroughWindow   = 24 * time.Hour
	maxLifetimeFraction = 0.30
	minIntermediaries   = 2
	maxChainLength      = 7
	globalStepBudget    = 20000
)

// Chain is a validated shell chain: source and sink are non-candidate
// endpoints, Intermediaries are the candidate nodes walked between them.
type Chain struct {
	Source         string
	Sink           string
	Intermediaries []string // source -> Intermediaries[0] -> ... -> sink
}

// Members returns { source, ...intermediaries..., sink }.
func (c Chain) Members() []string {
	out := make([]string, 0, len(c.Intermediaries)+2)
	out = append(out, c.Source)
	out = append(out, c.Intermediaries...)
	out = append(out, c.Sink)
	return out
}

// Result is the detector's output for one run.
type Result struct {
	Chains         []Chain
	BudgetExceeded bool
}

// Detect filters shell candidates and walks chains of them rooted at
// every non-candidate source node in g.
func Detect(g *graph.DirectedMultiGraph) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("shell detector: recovered, returning empty result")
			res = Result{}
		}
	}()

	candidates := filterCandidates(g)
	steps := 0
	seenPairs := make(map[string]bool)

	for _, src := range g.Nodes() {
		if candidates[src] {
			continue // chains start at non-candidate sources only
		}
		n := g.Node(src)
		for _, e := range n.Out {
			if !candidates[e.To] {
				continue
			}
			if steps >= globalStepBudget {
				res.BudgetExceeded = true
				break
			}
			chain, ok, used := walkChain(g, candidates, src, e.To, globalStepBudget-steps)
			steps += used
			if !ok {
				continue
			}
			key := chain.Source + ">" + chain.Sink
			if seenPairs[key] {
				continue
			}
			seenPairs[key] = true
			res.Chains = append(res.Chains, chain)
		}
	}

	sort.Slice(res.Chains, func(i, j int) bool {
		if res.Chains[i].Source != res.Chains[j].Source {
			return res.Chains[i].Source < res.Chains[j].Source
		}
		return res.Chains[i].Sink < res.Chains[j].Sink
	})

	return res
}

// filterCandidates returns the set of shell-candidate node IDs.
func filterCandidates(g *graph.DirectedMultiGraph) map[string]bool {
	span := g.BatchSpan()
	out := make(map[string]bool)

	for _, id := range g.Nodes() {
		n := g.Node(id)
		d := n.Degree()
		if d < minCandidateDegree || d > maxCandidateDegree {
			continue
		}
		if n.InDegree == 0 || n.OutDegree == 0 {
			continue // needs at least one predecessor and one successor
		}
		if !hasDistinctPredSucc(n) {
			continue
		}
		if span > 0 {
			lifetime := n.LastSeen.Sub(n.FirstSeen)
			if float64(lifetime) > maxLifetimeFraction*float64(span) {
				continue
			}
		}
		if passthroughRatio(n) < minPassthroughRatio {
			continue
		}
		out[id] = true
	}
	return out
}

// hasDistinctPredSucc checks there's at least one predecessor p and
// successor s with p != s.
func hasDistinctPredSucc(n *graph.Node) bool {
	for _, in := range n.In {
		for _, out := range n.Out {
			if in.From != out.To {
				return true
			}
		}
	}
	return false
}

// passthroughRatio returns the fraction of inbound value forwarded
// within 24h of receipt.
func passthroughRatio(n *graph.Node) float64 {
	totalIn := 0.0
	for _, e := range n.In {
		totalIn += e.AmountFloat()
	}
	if totalIn <= 0 {
		return 0
	}

	forwarded := 0.0
	for _, out := range n.Out {
		idx := sort.Search(len(n.In), func(i int) bool {
			return n.In[i].Timestamp.After(out.Timestamp)
		})
		if idx == 0 {
			continue
		}
		nearest := n.In[idx-1]
		if out.Timestamp.Sub(nearest.Timestamp) <= passthroughWindow {
			forwarded += out.AmountFloat()
		}
	}
	return forwarded / totalIn
}

// walkChain performs a bounded BFS from src through candidate nodes,
// stopping at the first non-candidate node reached. Returns the chain,
// whether it satisfies §4.4's validity rule, and the number of BFS
// steps consumed (for the caller's global budget).
func walkChain(g *graph.DirectedMultiGraph, candidates map[string]bool, src, first string, budget int) (Chain, bool, int) {
	type state struct {
		node string
		path []string // intermediaries so far (candidates only)
	}

	used := 0
	queue := []state{{node: first, path: []string{first}}}
	visited := map[string]bool{first: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		used++
		if used > budget {
			return Chain{}, false, used
		}

		if !candidates[cur.node] {
			// Reached a non-candidate sink.
			intermediaries := cur.path[:len(cur.path)-1]
			sink := cur.node
			total := len(intermediaries) + 2
			if sink != src && len(intermediaries) >= minIntermediaries && total <= maxChainLength {
				return Chain{Source: src, Sink: sink, Intermediaries: intermediaries}, true, used
			}
			continue
		}

		n := g.Node(cur.node)
		if n == nil || len(cur.path) >= maxChainLength {
			continue
		}
		for _, e := range n.Out {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			nextPath := make([]string, len(cur.path)+1)
			copy(nextPath, cur.path)
			nextPath[len(cur.path)] = e.To
			queue = append(queue, state{node: e.To, path: nextPath})
		}
	}
	return Chain{}, false, used
}
