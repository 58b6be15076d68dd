// Package smurf implements the Smurfing Detector: two independent
// sliding-window scans per account (aggregator/fan-in and
// disperser/fan-out) over a 72h window. Each window's statistics are
// recomputed from its edges; no running sums are carried between
// window steps.
package smurf

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/stats"
)

const (
	windowDuration       = 72 * time.Hour
	relayWindow          = 48 * time.Hour
	minWindowEdges       = 10
	maxAmountCV          = 0.40
	minOutboundForAgg    = 5
	maxRetentionRatio    = 0.50
	maxHoldingTime       = 30 * time.Hour
	maxFundingCounterparties = 2
)

// Hit is a single detected aggregator or disperser instance.
type Hit struct {
	Account       string
	Kind          string // "smurfing_aggregator" | "smurfing_disperser"
	CV            float64
	WindowStart   time.Time
	WindowEnd     time.Time
	Counterparties []string // senders (aggregator) or receivers (disperser), sorted
}

// Result is the detector's output for one run.
type Result struct {
	Hits []Hit // one per account per kind, ordered by account id ascending then kind
}

// Detect scans every account in g for aggregator and disperser patterns.
func Detect(g *graph.DirectedMultiGraph) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("smurf detector: recovered, returning empty result")
			res = Result{}
		}
	}()

	for _, id := range g.Nodes() {
		n := g.Node(id)
		if h, ok := scanAggregator(g, n); ok {
			res.Hits = append(res.Hits, h)
		}
		if h, ok := scanDisperser(n); ok {
			res.Hits = append(res.Hits, h)
		}
	}
	return res
}

// scanAggregator looks for the best (lowest CV) fan-in window on n's
// inbound edges satisfying every §4.3 aggregator rule.
func scanAggregator(g *graph.DirectedMultiGraph, n *graph.Node) (Hit, bool) {
	in := n.In
	best := Hit{}
	found := false

	left := 0
	for right := 0; right < len(in); right++ {
		for in[right].Timestamp.Sub(in[left].Timestamp) > windowDuration {
			left++
		}
		size := right - left + 1
		if size < minWindowEdges {
			continue
		}

		window := in[left : right+1]
		amounts := make([]float64, len(window))
		for i, e := range window {
			amounts[i] = e.AmountFloat()
		}
		cv := stats.CoefficientOfVariation(amounts)
		if cv > maxAmountCV {
			continue
		}

		windowStart := window[0].Timestamp
		windowClose := window[len(window)-1].Timestamp
		sumInbound := 0.0
		for _, a := range amounts {
			sumInbound += a
		}

		outWindow := outboundInRange(n, windowStart, windowClose.Add(relayWindow))
		if len(outWindow) < minOutboundForAgg {
			continue
		}
		sumOutbound := 0.0
		for _, e := range outWindow {
			sumOutbound += e.AmountFloat()
		}
		if sumInbound <= 0 {
			continue
		}
		retention := 1 - (sumOutbound / sumInbound)
		if retention > maxRetentionRatio {
			continue
		}

		if !holdingTimeOK(n, outWindow) {
			continue
		}

		if !found || cv < best.CV {
			senders := make(map[string]bool, len(window))
			for _, e := range window {
				senders[e.From] = true
			}
			cps := make([]string, 0, len(senders))
			for s := range senders {
				cps = append(cps, s)
			}
			sort.Strings(cps)

			best = Hit{
				Account:        n.ID,
				Kind:           "smurfing_aggregator",
				CV:             cv,
				WindowStart:    windowStart,
				WindowEnd:      windowClose,
				Counterparties: cps,
			}
			found = true
		}
	}
	return best, found
}

// scanDisperser looks for the best (lowest CV) fan-out window on n's
// outbound edges satisfying every §4.3 disperser rule.
func scanDisperser(n *graph.Node) (Hit, bool) {
	out := n.Out
	best := Hit{}
	found := false

	left := 0
	for right := 0; right < len(out); right++ {
		for out[right].Timestamp.Sub(out[left].Timestamp) > windowDuration {
			left++
		}
		size := right - left + 1
		if size < minWindowEdges {
			continue
		}

		window := out[left : right+1]
		amounts := make([]float64, len(window))
		for i, e := range window {
			amounts[i] = e.AmountFloat()
		}
		cv := stats.CoefficientOfVariation(amounts)
		if cv > maxAmountCV {
			continue
		}

		windowStart := window[0].Timestamp

		funders := make(map[string]bool)
		for _, e := range n.In {
			if e.Timestamp.Before(windowStart) || e.Timestamp.Equal(windowStart) {
				funders[e.From] = true
			}
		}
		if len(funders) > maxFundingCounterparties {
			continue
		}

		if !holdingTimeOK(n, window) {
			continue
		}

		if !found || cv < best.CV {
			receivers := make(map[string]bool, len(window))
			for _, e := range window {
				receivers[e.To] = true
			}
			cps := make([]string, 0, len(receivers))
			for r := range receivers {
				cps = append(cps, r)
			}
			sort.Strings(cps)

			best = Hit{
				Account:        n.ID,
				Kind:           "smurfing_disperser",
				CV:             cv,
				WindowStart:    windowStart,
				WindowEnd:      window[len(window)-1].Timestamp,
				Counterparties: cps,
			}
			found = true
		}
	}
	return best, found
}

// outboundInRange returns n's outbound edges with timestamp in [lo, hi].
func outboundInRange(n *graph.Node, lo, hi time.Time) []graph.Edge {
	var out []graph.Edge
	for _, e := range n.Out {
		if !e.Timestamp.Before(lo) && !e.Timestamp.After(hi) {
			out = append(out, e)
		}
	}
	return out
}

// holdingTimeOK computes, for each outbound edge, the time since the
// nearest earlier inbound edge on n, and checks the mean against
// maxHoldingTime.
func holdingTimeOK(n *graph.Node, outEdges []graph.Edge) bool {
	if len(outEdges) == 0 {
		return false
	}
	total := time.Duration(0)
	count := 0
	for _, oe := range outEdges {
		idx := sort.Search(len(n.In), func(i int) bool {
			return n.In[i].Timestamp.After(oe.Timestamp)
		})
		if idx == 0 {
			continue // no inbound edge precedes this outbound edge
		}
		nearest := n.In[idx-1].Timestamp
		total += oe.Timestamp.Sub(nearest)
		count++
	}
	if count == 0 {
		return false
	}
	mean := total / time.Duration(count)
	return mean <= maxHoldingTime
}
