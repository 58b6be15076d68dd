package structuring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/model"
)

func tx(id, from, to string, amount float64, t time.Time) model.Transaction {
	return model.Transaction{ID: id, Sender: from, Receiver: to, Amount: decimal.NewFromFloat(amount), Timestamp: t}
}

func TestDetect_TwoSeparateWindows(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var txns []model.Transaction
	// Window 1: 3 band transfers within 48h.
	for i := 0; i < 3; i++ {
		txns = append(txns, tx(string(rune('a'+i)), "M", "X"+string(rune('a'+i)), 8500, base.Add(time.Duration(i)*10*time.Hour)))
	}
	// Window 2: 2 more band transfers, starting >48h after window 1's last edge.
	w2 := base.Add(100 * time.Hour)
	for i := 0; i < 2; i++ {
		txns = append(txns, tx("w2"+string(rune('a'+i)), "M", "Y"+string(rune('a'+i)), 9200, w2.Add(time.Duration(i)*time.Hour)))
	}

	g, err := graph.Build(txns)
	require.NoError(t, err)

	res := Detect(g)
	var hit *Hit
	for i := range res.Hits {
		if res.Hits[i].Account == "M" {
			hit = &res.Hits[i]
		}
	}
	require.NotNil(t, hit)
	assert.Equal(t, 5, hit.EdgeCount)
	assert.Equal(t, 2, hit.WindowCount)
}

func TestDetect_ScansInboundEdgesToo(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var txns []model.Transaction
	for i := 0; i < 3; i++ {
		txns = append(txns, tx(string(rune('a'+i)), "X"+string(rune('a'+i)), "M", 8500, base.Add(time.Duration(i)*10*time.Hour)))
	}
	w2 := base.Add(100 * time.Hour)
	for i := 0; i < 2; i++ {
		txns = append(txns, tx("w2"+string(rune('a'+i)), "Y"+string(rune('a'+i)), "M", 9200, w2.Add(time.Duration(i)*time.Hour)))
	}

	g, err := graph.Build(txns)
	require.NoError(t, err)

	res := Detect(g)
	var hit *Hit
	for i := range res.Hits {
		if res.Hits[i].Account == "M" {
			hit = &res.Hits[i]
		}
	}
	require.NotNil(t, hit, "structuring via inbound (deposit) edges should be detected, not just outbound")
	assert.Equal(t, 5, hit.EdgeCount)
	assert.Equal(t, 2, hit.WindowCount)
}

func TestDetect_NoHitBelowMinEdges(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := graph.Build([]model.Transaction{
		tx("t1", "M", "X", 8500, base),
		tx("t2", "M", "Y", 9200, base.Add(time.Hour)),
	})
	require.NoError(t, err)

	res := Detect(g)
	assert.Empty(t, res.Hits)
}
