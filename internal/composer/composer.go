// Package composer implements the Suspicion Composer: the final §4.7
// pipeline that turns five independent detector results plus the
// anomaly model's advisory bonus into per-account verdicts and named
// fraud rings.
package composer

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/hybrid-sentinel/sentinel/internal/anomaly"
	"github.com/hybrid-sentinel/sentinel/internal/cycle"
	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/model"
	"github.com/hybrid-sentinel/sentinel/internal/shell"
	"github.com/hybrid-sentinel/sentinel/internal/smurf"
	"github.com/hybrid-sentinel/sentinel/internal/structuring"
	"github.com/hybrid-sentinel/sentinel/internal/velocity"
)

const (
	clusterBoostAmount       = 8
	clusterBoostMinNeighbors = 2
	clusterBoostThreshold    = 30
	zeroOutThreshold         = 15
	scoreMax                 = 100
	scoreMin                 = 0
)

// accountState is an account's step 1-4 raw score plus its sorted
// detected pattern tags, computed independently of every other account.
type accountState struct {
	raw      int
	patterns []string
}

// Compose runs the full step 1-7 scoring pipeline and returns verdicts
// sorted by descending score (ties broken by ascending account id) plus
// every named ring, in discovery order cycle -> smurfing -> shell.
func Compose(
	g *graph.DirectedMultiGraph,
	cycleRes cycle.Result,
	smurfRes smurf.Result,
	shellRes shell.Result,
	velocityRes velocity.Result,
	structRes structuring.Result,
	anomalyRes anomaly.Result,
) (verdicts []model.AccountVerdict, rings []model.Ring) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("composer: recovered, returning partial result")
		}
	}()

	tagsByAccount := accountPatterns(cycleRes, smurfRes, shellRes, velocityRes, structRes)
	ringIDByAccount, ringList := buildRings(g, cycleRes, smurfRes, shellRes)

	// Steps 1-4: per-account raw score, independent of every other
	// account. Must be fully computed before step 5 can look at
	// neighbors' scores.
	raw := make(map[string]accountState, g.NodeCount())
	rawScore := make(map[string]int, g.NodeCount())

	for _, id := range g.Nodes() {
		n := g.Node(id)
		tagSet := tagsByAccount[id]
		score := basePatternScore(tagSet)
		score += int(anomalyRes.Scores[id])

		if merchantPenaltyApplies(n) {
			score -= 20
		}
		if activitySuppressionApplies(n, g.BatchSpan()) {
			score -= 50
		}

		raw[id] = accountState{raw: score, patterns: sortedTags(tagSet)}
		rawScore[id] = score
	}

	// Step 5: cluster booster. Barrier — every account's step-1-4 raw
	// score must be finalized before any booster decision is made, so
	// a boosted neighbor can never itself count toward boosting a third
	// account based on its boosted value.
	boosted := make(map[string]int, len(raw))
	for _, id := range g.Nodes() {
		boosted[id] = raw[id].raw
		if qualifiesForClusterBoost(g, id, rawScore) {
			boosted[id] += clusterBoostAmount
		}
	}

	for _, id := range g.Nodes() {
		score := clamp(boosted[id], scoreMin, scoreMax)
		st := raw[id]
		if score < zeroOutThreshold && len(st.patterns) == 0 {
			score = 0
		}

		verdicts = append(verdicts, model.AccountVerdict{
			AccountID:        id,
			SuspicionScore:   score,
			DetectedPatterns: st.patterns,
			RingID:           ringIDByAccount[id],
			Explanation:      explain(id, st.patterns, ringIDByAccount[id], boosted[id] != raw[id].raw, score),
		})
	}

	sort.Slice(verdicts, func(i, j int) bool {
		if verdicts[i].SuspicionScore != verdicts[j].SuspicionScore {
			return verdicts[i].SuspicionScore > verdicts[j].SuspicionScore
		}
		return verdicts[i].AccountID < verdicts[j].AccountID
	})

	finalizeRingScores(ringList, verdicts)
	rings = ringList

	return verdicts, rings
}

// qualifiesForClusterBoost reports whether id has at least
// clusterBoostMinNeighbors distinct counterparties whose pre-boost raw
// score exceeds clusterBoostThreshold.
func qualifiesForClusterBoost(g *graph.DirectedMultiGraph, id string, rawScore map[string]int) bool {
	n := g.Node(id)
	if n == nil {
		return false
	}
	neighbors := make(map[string]bool)
	for _, e := range n.In {
		neighbors[e.From] = true
	}
	for _, e := range n.Out {
		neighbors[e.To] = true
	}

	count := 0
	for nb := range neighbors {
		if rawScore[nb] > clusterBoostThreshold {
			count++
		}
	}
	return count >= clusterBoostMinNeighbors
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// explain renders a short human-readable justification for the verdict,
// preferring the dominant detected pattern and falling back to a
// cluster-proximity note for boosted-but-patternless accounts.
func explain(account string, patterns []string, ringID string, wasBoosted bool, score int) string {
	if len(patterns) == 0 {
		if wasBoosted && score > 0 {
			return fmt.Sprintf("%s has no detected pattern of its own but transacts with multiple high-risk accounts", account)
		}
		return fmt.Sprintf("%s shows no detected suspicious pattern", account)
	}

	tagSet := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		tagSet[p] = true
	}
	dominant, ok := dominantTag(tagSet)
	if !ok {
		dominant = patterns[0]
	}

	switch dominant {
	case cycleTag(3), cycleTag(4), cycleTag(5):
		if ringID != "" {
			return fmt.Sprintf("%s is part of a %s-member circular flow ring %s", account, dominant[len("cycle_length_"):], ringID)
		}
		return fmt.Sprintf("%s is part of a circular flow of pattern %s", account, dominant)
	case tagSmurfAgg:
		return fmt.Sprintf("%s aggregates many small inbound transfers then moves the funds onward (ring %s)", account, ringID)
	case tagSmurfDisp:
		return fmt.Sprintf("%s disperses funds to many small outbound recipients (ring %s)", account, ringID)
	case tagShell:
		return fmt.Sprintf("%s is a passthrough intermediary in shell chain %s", account, ringID)
	case tagStructuring:
		return fmt.Sprintf("%s has repeated near-threshold transfers clustered across separate windows", account)
	case tagVelocity:
		return fmt.Sprintf("%s moves inbound funds back out within an hour", account)
	default:
		return fmt.Sprintf("%s was flagged for %s", account, dominant)
	}
}
