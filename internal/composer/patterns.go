package composer

import (
	"fmt"
	"sort"

	"github.com/hybrid-sentinel/sentinel/internal/cycle"
	"github.com/hybrid-sentinel/sentinel/internal/shell"
	"github.com/hybrid-sentinel/sentinel/internal/smurf"
	"github.com/hybrid-sentinel/sentinel/internal/structuring"
	"github.com/hybrid-sentinel/sentinel/internal/velocity"
)

const (
	tagVelocity = "high_velocity"
	tagShell    = "shell_network"
	tagStructuring = "structuring"
	tagSmurfAgg = "smurfing_aggregator"
	tagSmurfDisp = "smurfing_disperser"
)

func cycleTag(length int) string {
	return fmt.Sprintf("cycle_length_%d", length)
}

// patternWeights is the base pattern weight table, extended with the
// supplemental structuring tag.
var patternWeights = map[string]int{
	cycleTag(3):    25,
	cycleTag(4):    20,
	cycleTag(5):    15,
	tagSmurfAgg:    22,
	tagSmurfDisp:   22,
	tagShell:       18,
	tagStructuring: 12,
	tagVelocity:    10,
}

const basePatternCap = 70

// accountPatterns collects the deterministic set of detected pattern
// tags for every account mentioned by any detector's result.
func accountPatterns(cycleRes cycle.Result, smurfRes smurf.Result, shellRes shell.Result, velocityRes velocity.Result, structRes structuring.Result) map[string]map[string]bool {
	tags := make(map[string]map[string]bool)
	add := func(account, tag string) {
		if tags[account] == nil {
			tags[account] = make(map[string]bool)
		}
		tags[account][tag] = true
	}

	for _, c := range cycleRes.Cycles {
		tag := cycleTag(c.Length())
		for _, n := range c.Nodes {
			add(n, tag)
		}
	}
	for _, h := range smurfRes.Hits {
		add(h.Account, h.Kind)
	}
	for _, ch := range shellRes.Chains {
		for _, mid := range ch.Intermediaries {
			add(mid, tagShell)
		}
	}
	for _, h := range velocityRes.Hits {
		add(h.Account, tagVelocity)
	}
	for _, h := range structRes.Hits {
		add(h.Account, tagStructuring)
	}

	return tags
}

// basePatternScore sums the weights of tags present for an account,
// gating high_velocity on the presence of another structural pattern,
// and caps the subtotal at basePatternCap.
func basePatternScore(tagSet map[string]bool) int {
	total := 0
	hasOtherStructural := false
	for tag := range tagSet {
		if tag != tagVelocity {
			hasOtherStructural = true
		}
	}
	for tag := range tagSet {
		if tag == tagVelocity && !hasOtherStructural {
			continue
		}
		total += patternWeights[tag]
	}
	if total > basePatternCap {
		total = basePatternCap
	}
	return total
}

// sortedTags returns tag as a deterministic sorted slice.
func sortedTags(tagSet map[string]bool) []string {
	out := make([]string, 0, len(tagSet))
	for t := range tagSet {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// dominantTag returns the tag with the highest pattern weight present
// in tagSet, excluding high_velocity unless it is the only tag present.
// Used to pick the explanation template.
func dominantTag(tagSet map[string]bool) (string, bool) {
	best := ""
	bestWeight := -1
	for tag := range tagSet {
		if tag == tagVelocity && len(tagSet) > 1 {
			continue
		}
		if w := patternWeights[tag]; w > bestWeight {
			bestWeight = w
			best = tag
		}
	}
	return best, best != ""
}
