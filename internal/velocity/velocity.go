// Package velocity implements the Velocity Detector: a merge-pass over
// each account's sorted inbound and outbound edges flagging rapid
// in-then-out turnover within one hour.
package velocity

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
)

const (
	maxTurnoverWindow = time.Hour
	minOutRatio       = 0.50
)

// Hit records that an account showed high-velocity turnover.
type Hit struct {
	Account string
}

// Result is the detector's output for one run.
type Result struct {
	Hits []Hit // ordered by account id ascending
}

// Detect scans every account's sorted in/out edges for a qualifying
// inbound-then-outbound pair within one hour.
func Detect(g *graph.DirectedMultiGraph) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("velocity detector: recovered, returning empty result")
			res = Result{}
		}
	}()

	for _, id := range g.Nodes() {
		n := g.Node(id)
		if hasVelocity(n) {
			res.Hits = append(res.Hits, Hit{Account: id})
		}
	}
	return res
}

func hasVelocity(n *graph.Node) bool {
	i, j := 0, 0
	for i < len(n.In) {
		in := n.In[i]
		// Advance j to the first outbound edge at or after the inbound timestamp.
		for j < len(n.Out) && n.Out[j].Timestamp.Before(in.Timestamp) {
			j++
		}
		k := j
		inAmt := in.AmountFloat()
		for k < len(n.Out) && n.Out[k].Timestamp.Sub(in.Timestamp) <= maxTurnoverWindow {
			if n.Out[k].AmountFloat() >= minOutRatio*inAmt {
				return true
			}
			k++
		}
		i++
	}
	return false
}
