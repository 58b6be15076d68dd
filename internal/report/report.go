// Package report renders the composer's verdicts and the underlying
// graph into the two JSON shapes §6 defines: the fraud report handed to
// the caller and the graph-data payload handed to the visualization
// collaborator.
package report

import (
	"sort"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/model"
)

// Summary is the report's top-level counters.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// RingEntry is one fraud ring in the output report.
type RingEntry struct {
	RingID         string   `json:"ring_id"`
	PatternType    string   `json:"pattern_type"`
	MemberAccounts []string `json:"member_accounts"`
	RiskScore      int      `json:"risk_score"`
}

// AccountEntry is one flagged account in the output report.
type AccountEntry struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   int      `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	RingID           *string  `json:"ring_id"`
	Explanation      string   `json:"explanation"`
}

// Report is the exact §6 output shape.
type Report struct {
	Summary             Summary        `json:"summary"`
	FraudRings          []RingEntry    `json:"fraud_rings"`
	SuspiciousAccounts  []AccountEntry `json:"suspicious_accounts"`
}

// Node is one account in the graph-data visualization payload.
type Node struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	SuspicionScore   int      `json:"suspicion_score"`
	InDegree         int      `json:"in_degree"`
	OutDegree        int      `json:"out_degree"`
	TotalIncoming    float64  `json:"total_incoming"`
	TotalOutgoing    float64  `json:"total_outgoing"`
	DetectedPatterns []string `json:"detected_patterns"`
}

// Link is one transaction edge in the graph-data visualization payload.
type Link struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Value float64 `json:"value"`
	Title string  `json:"title"`
}

// GraphData is the §6 graph-data output shape.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Link `json:"edges"`
}

// Build renders the fraud report from the composer's output. An account
// only appears in SuspiciousAccounts (and counts toward
// SuspiciousAccountsFlagged) once its post-clamp score is nonzero —
// the zero-out rule in §4.7 step 6 already enforces "no evidence ==
// absent", so surfacing zero-score accounts here would just be noise.
func Build(g *graph.DirectedMultiGraph, verdicts []model.AccountVerdict, rings []model.Ring, elapsed float64) Report {
	var accounts []AccountEntry
	for _, v := range verdicts {
		if v.SuspicionScore <= 0 {
			continue
		}
		var ringID *string
		if v.RingID != "" {
			id := v.RingID
			ringID = &id
		}
		accounts = append(accounts, AccountEntry{
			AccountID:        v.AccountID,
			SuspicionScore:   v.SuspicionScore,
			DetectedPatterns: v.DetectedPatterns,
			RingID:           ringID,
			Explanation:      v.Explanation,
		})
	}

	var ringEntries []RingEntry
	for _, r := range rings {
		ringEntries = append(ringEntries, RingEntry{
			RingID:         r.RingID,
			PatternType:    r.PatternType,
			MemberAccounts: r.MemberAccounts,
			RiskScore:      r.RiskScore,
		})
	}

	totalAccounts := 0
	if g != nil {
		totalAccounts = g.NodeCount()
	}

	return Report{
		Summary: Summary{
			TotalAccountsAnalyzed:     totalAccounts,
			SuspiciousAccountsFlagged: len(accounts),
			FraudRingsDetected:        len(ringEntries),
			ProcessingTimeSeconds:     elapsed,
		},
		FraudRings:         ringEntries,
		SuspiciousAccounts: accounts,
	}
}

// BuildGraphData renders the visualization payload: one node per
// account (carrying its verdict, if any) and one link per transaction.
func BuildGraphData(g *graph.DirectedMultiGraph, verdicts []model.AccountVerdict) GraphData {
	byAccount := make(map[string]model.AccountVerdict, len(verdicts))
	for _, v := range verdicts {
		byAccount[v.AccountID] = v
	}

	var data GraphData
	for _, id := range g.Nodes() {
		n := g.Node(id)
		v := byAccount[id]
		totalIn, _ := n.TotalIn.Float64()
		totalOut, _ := n.TotalOut.Float64()
		data.Nodes = append(data.Nodes, Node{
			ID:               id,
			Label:            id,
			SuspicionScore:   v.SuspicionScore,
			InDegree:         n.InDegree,
			OutDegree:        n.OutDegree,
			TotalIncoming:    totalIn,
			TotalOutgoing:    totalOut,
			DetectedPatterns: v.DetectedPatterns,
		})

		for _, e := range n.Out {
			data.Edges = append(data.Edges, Link{
				From:  e.From,
				To:    e.To,
				Value: e.AmountFloat(),
				Title: e.TxnID,
			})
		}
	}

	sort.Slice(data.Edges, func(i, j int) bool {
		if data.Edges[i].From != data.Edges[j].From {
			return data.Edges[i].From < data.Edges[j].From
		}
		return data.Edges[i].To < data.Edges[j].To
	})

	return data
}
