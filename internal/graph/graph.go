// Package graph builds and exposes the DirectedMultiGraph the forensics
// pipeline runs every detector over. Construction is single-threaded and
// produces an immutable structure: sorted edge lists, degree and volume
// caches, and first/last-seen timestamps per node.
package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hybrid-sentinel/sentinel/internal/model"
)

// Edge is one transaction viewed as a directed edge of the multi-graph.
type Edge struct {
	TxnID     string
	From      string
	To        string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// AmountFloat returns Amount as a float64 for statistical computation.
func (e Edge) AmountFloat() float64 {
	f, _ := e.Amount.Float64()
	return f
}

// Node caches the per-account aggregates the detectors read repeatedly.
type Node struct {
	ID          string
	In          []Edge // sorted by timestamp, ties broken by TxnID
	Out         []Edge
	InDegree    int
	OutDegree   int
	TotalIn     decimal.Decimal
	TotalOut    decimal.Decimal
	FirstSeen   time.Time
	LastSeen    time.Time
}

// Degree returns in-degree + out-degree.
func (n *Node) Degree() int { return n.InDegree + n.OutDegree }

// DirectedMultiGraph is the immutable result of the Graph Builder stage.
type DirectedMultiGraph struct {
	nodes    map[string]*Node
	order    []string // node IDs in ascending order, fixed once at build time
	span     time.Duration
	earliest time.Time
	latest   time.Time
	selfLoopsDropped int
}

// Nodes returns the node IDs in ascending order — the fixed iteration
// order §5 requires wherever the engine walks the full node set.
func (g *DirectedMultiGraph) Nodes() []string { return g.order }

// Node returns the cached node for id, or nil if id is not in the graph.
func (g *DirectedMultiGraph) Node(id string) *Node { return g.nodes[id] }

// NodeCount returns the number of distinct accounts in the graph.
func (g *DirectedMultiGraph) NodeCount() int { return len(g.order) }

// BatchSpan returns the elapsed time between the earliest and latest
// transaction timestamps in the batch.
func (g *DirectedMultiGraph) BatchSpan() time.Duration { return g.span }

// SelfLoopsDropped returns the count of transactions rejected because
// sender == receiver.
func (g *DirectedMultiGraph) SelfLoopsDropped() int { return g.selfLoopsDropped }

// Build constructs a DirectedMultiGraph from a transaction batch.
//
// Returns model.ErrMalformedInput if any transaction has a non-positive
// amount or a zero timestamp. Self-loops are dropped (counted, not
// fatal). Returns model.ErrEmptyGraph if no edges survive.
func Build(txns []model.Transaction) (*DirectedMultiGraph, error) {
	g := &DirectedMultiGraph{nodes: make(map[string]*Node)}

	for _, t := range txns {
		if t.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: transaction %s has non-positive amount", model.ErrMalformedInput, t.ID)
		}
		if t.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: transaction %s has unparseable timestamp", model.ErrMalformedInput, t.ID)
		}
		if t.Sender == t.Receiver {
			g.selfLoopsDropped++
			continue
		}

		e := Edge{TxnID: t.ID, From: t.Sender, To: t.Receiver, Amount: t.Amount, Timestamp: t.Timestamp}

		from := g.ensure(t.Sender)
		to := g.ensure(t.Receiver)

		from.Out = append(from.Out, e)
		from.OutDegree++
		from.TotalOut = from.TotalOut.Add(t.Amount)

		to.In = append(to.In, e)
		to.InDegree++
		to.TotalIn = to.TotalIn.Add(t.Amount)

		for _, n := range []*Node{from, to} {
			if n.FirstSeen.IsZero() || t.Timestamp.Before(n.FirstSeen) {
				n.FirstSeen = t.Timestamp
			}
			if t.Timestamp.After(n.LastSeen) {
				n.LastSeen = t.Timestamp
			}
		}

		if g.earliest.IsZero() || t.Timestamp.Before(g.earliest) {
			g.earliest = t.Timestamp
		}
		if t.Timestamp.After(g.latest) {
			g.latest = t.Timestamp
		}
	}

	if len(g.nodes) == 0 {
		return nil, model.ErrEmptyGraph
	}

	g.span = g.latest.Sub(g.earliest)

	g.order = make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		g.order = append(g.order, id)
	}
	sort.Strings(g.order)

	for _, n := range g.nodes {
		sortEdges(n.In)
		sortEdges(n.Out)
	}

	return g, nil
}

func (g *DirectedMultiGraph) ensure(id string) *Node {
	n, ok := g.nodes[id]
	if !ok {
		n = &Node{ID: id}
		g.nodes[id] = n
	}
	return n
}

// sortEdges sorts in place by timestamp, ties broken by TxnID — the
// stability rule §4.1 requires for equal timestamps.
func sortEdges(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Timestamp.Equal(edges[j].Timestamp) {
			return edges[i].TxnID < edges[j].TxnID
		}
		return edges[i].Timestamp.Before(edges[j].Timestamp)
	})
}
