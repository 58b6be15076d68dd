package composer

import (
	"sort"
	"time"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/stats"
)

const (
	merchantMinRepeatRatio = 0.30
	merchantMaxTimingCV    = 1.5
	merchantMinEdges       = 10

	payrollMinDominantRatio    = 0.70
	payrollMaxRedistributeFrac = 0.10

	suppressMinDegree       = 50
	suppressMinActiveFrac   = 0.70
	suppressMinAmountCV     = 0.5
	suppressMaxGapFrac      = 0.20
)

// combinedEdges merges a node's inbound and outbound edges into one
// timestamp-sorted slice tagged with the counterparty id.
type combinedEdge struct {
	counterparty string
	amount       float64
	timestamp    time.Time
}

func combinedEdges(n *graph.Node) []combinedEdge {
	out := make([]combinedEdge, 0, len(n.In)+len(n.Out))
	for _, e := range n.In {
		out = append(out, combinedEdge{counterparty: e.From, amount: e.AmountFloat(), timestamp: e.Timestamp})
	}
	for _, e := range n.Out {
		out = append(out, combinedEdge{counterparty: e.To, amount: e.AmountFloat(), timestamp: e.Timestamp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].timestamp.Before(out[j].timestamp) })
	return out
}

// merchantPenaltyApplies checks for merchant-like behavior (repeat-ratio
// to the single top counterparty, low inter-arrival timing CV, at least
// 10 total edges) OR'd with a payroll variant (one dominant inbound
// sender with negligible outbound redistribution).
func merchantPenaltyApplies(n *graph.Node) bool {
	edges := combinedEdges(n)
	if len(edges) < merchantMinEdges {
		return false
	}

	counts := make(map[string]int)
	for _, e := range edges {
		counts[e.counterparty]++
	}
	topCount := 0
	for _, c := range counts {
		if c > topCount {
			topCount = c
		}
	}
	repeatRatio := float64(topCount) / float64(len(edges))

	gaps := make([]float64, 0, len(edges)-1)
	for i := 1; i < len(edges); i++ {
		gaps = append(gaps, edges[i].timestamp.Sub(edges[i-1].timestamp).Hours())
	}
	timingCV := stats.CoefficientOfVariation(gaps)

	if repeatRatio >= merchantMinRepeatRatio && timingCV < merchantMaxTimingCV {
		return true
	}

	return isPayroll(n)
}

// isPayroll reports whether n fits the payroll immunity profile: a
// single dominant inbound sender with negligible outbound
// redistribution of the funds received.
func isPayroll(n *graph.Node) bool {
	if n.InDegree == 0 {
		return false
	}
	bySender := make(map[string]float64)
	totalIn := 0.0
	for _, e := range n.In {
		amt := e.AmountFloat()
		bySender[e.From] += amt
		totalIn += amt
	}
	if totalIn <= 0 {
		return false
	}
	topSenderAmt := 0.0
	for _, amt := range bySender {
		if amt > topSenderAmt {
			topSenderAmt = amt
		}
	}
	if topSenderAmt/totalIn < payrollMinDominantRatio {
		return false
	}

	totalOut := 0.0
	for _, e := range n.Out {
		totalOut += e.AmountFloat()
	}
	return totalOut <= payrollMaxRedistributeFrac*totalIn
}

// activitySuppressionApplies implements §4.7 step 4: a high-degree hub
// active across most of the batch span with volatile amounts and no
// extended idle period is treated as normal churn, not mule behavior.
func activitySuppressionApplies(n *graph.Node, batchSpan time.Duration) bool {
	if n.Degree() <= suppressMinDegree {
		return false
	}
	if batchSpan <= 0 {
		return false
	}
	activeSpan := n.LastSeen.Sub(n.FirstSeen)
	if float64(activeSpan)/float64(batchSpan) <= suppressMinActiveFrac {
		return false
	}

	edges := combinedEdges(n)
	amounts := make([]float64, len(edges))
	for i, e := range edges {
		amounts[i] = e.amount
	}
	if stats.CoefficientOfVariation(amounts) <= suppressMinAmountCV {
		return false
	}

	if activeSpan <= 0 {
		return false
	}
	maxGap := time.Duration(0)
	for i := 1; i < len(edges); i++ {
		gap := edges[i].timestamp.Sub(edges[i-1].timestamp)
		if gap > maxGap {
			maxGap = gap
		}
	}
	return float64(maxGap) < suppressMaxGapFrac*float64(activeSpan)
}
