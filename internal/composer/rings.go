package composer

import (
	"fmt"

	"github.com/hybrid-sentinel/sentinel/internal/cycle"
	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/model"
	"github.com/hybrid-sentinel/sentinel/internal/shell"
	"github.com/hybrid-sentinel/sentinel/internal/smurf"
)

// buildRings assigns stable R-{TYPE}-{0001} ring IDs in discovery order
// — cycle rings first, then one ring per smurfing hit, then one ring
// per shell chain — and returns both the account->first-ring-id lookup
// and the full ring list.
func buildRings(g *graph.DirectedMultiGraph, cycleRes cycle.Result, smurfRes smurf.Result, shellRes shell.Result) (map[string]string, []model.Ring) {
	var rings []model.Ring
	firstRing := make(map[string]string)

	assign := func(prefix string, members []string, patternType string) {
		idx := 1
		for _, r := range rings {
			if r.PatternType == patternType {
				idx++
			}
		}
		id := fmt.Sprintf("R-%s-%04d", prefix, idx)
		rings = append(rings, model.Ring{RingID: id, PatternType: patternType, MemberAccounts: members})
		for _, m := range members {
			if _, ok := firstRing[m]; !ok {
				firstRing[m] = id
			}
		}
	}

	for _, key := range cycleRes.RingOrder {
		assign("C", cycleRes.Rings[key], "cycle")
	}
	for _, h := range smurfRes.Hits {
		assign("S", append([]string{h.Account}, h.Counterparties...), "smurfing")
	}
	for _, ch := range shellRes.Chains {
		assign("SH", ch.Members(), "shell")
	}

	return firstRing, rings
}

// finalizeRingScores sets each ring's risk score to the highest
// post-clamp suspicion score among its members.
func finalizeRingScores(rings []model.Ring, verdicts []model.AccountVerdict) {
	byAccount := make(map[string]int, len(verdicts))
	for _, v := range verdicts {
		byAccount[v.AccountID] = v.SuspicionScore
	}
	for i := range rings {
		max := 0
		for _, m := range rings[i].MemberAccounts {
			if s := byAccount[m]; s > max {
				max = s
			}
		}
		rings[i].RiskScore = max
	}
}
