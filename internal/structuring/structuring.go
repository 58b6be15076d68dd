// Package structuring detects repeated near-reporting-threshold
// transfers clustered into separate windows divided by gaps of at least
// 48h — classic cash-structuring behavior distinct from the
// amount-correlated cycle, smurfing, and shell-chain patterns.
package structuring

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
)

const (
	minBandEdges = 5
	minWindows   = 2
	windowSpan   = 48 * time.Hour
	windowGap    = 48 * time.Hour
)

// band is a near-CTR-threshold amount range.
type band struct{ lo, hi float64 }

var bands = []band{
	{lo: 8000, hi: 9999},
	{lo: 4000, hi: 4999},
}

// Hit records a structuring detection for an account.
type Hit struct {
	Account    string
	EdgeCount  int
	WindowCount int
}

// Result is the detector's output for one run.
type Result struct {
	Hits []Hit // ordered by account id ascending
}

// Detect scans every account's inbound and outbound edges for
// band-clustered structuring behavior — structuring shows up as either
// a series of near-threshold deposits or a series of near-threshold
// withdrawals, so both directions are scanned.
func Detect(g *graph.DirectedMultiGraph) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("structuring detector: recovered, returning empty result")
			res = Result{}
		}
	}()

	for _, id := range g.Nodes() {
		n := g.Node(id)
		edges := make([]graph.Edge, 0, len(n.In)+len(n.Out))
		edges = append(edges, n.In...)
		edges = append(edges, n.Out...)
		bandEdges := filterBand(edges)
		if len(bandEdges) < minBandEdges {
			continue
		}
		windows := cluster(bandEdges)
		if len(windows) >= minWindows {
			res.Hits = append(res.Hits, Hit{Account: id, EdgeCount: len(bandEdges), WindowCount: len(windows)})
		}
	}
	return res
}

func filterBand(edges []graph.Edge) []graph.Edge {
	var out []graph.Edge
	for _, e := range edges {
		amt := e.AmountFloat()
		for _, b := range bands {
			if amt >= b.lo && amt <= b.hi {
				out = append(out, e)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// cluster groups sorted band edges into windows. An edge within 48h of
// the current window's first edge joins it; a later edge starts a new
// window only if it is at least 48h after the previous edge, otherwise
// it also joins, so a window can grow wider than 48h.
func cluster(edges []graph.Edge) [][]graph.Edge {
	if len(edges) == 0 {
		return nil
	}
	var windows [][]graph.Edge
	cur := []graph.Edge{edges[0]}

	for i := 1; i < len(edges); i++ {
		e := edges[i]
		gapFromLast := e.Timestamp.Sub(cur[len(cur)-1].Timestamp)
		spanFromStart := e.Timestamp.Sub(cur[0].Timestamp)
		switch {
		case spanFromStart <= windowSpan:
			cur = append(cur, e)
		case gapFromLast >= windowGap:
			windows = append(windows, cur)
			cur = []graph.Edge{e}
		default:
			cur = append(cur, e)
		}
	}
	windows = append(windows, cur)
	return windows
}
