package graph

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybrid-sentinel/sentinel/internal/model"
)

func tx(id, from, to string, amount float64, t time.Time) model.Transaction {
	return model.Transaction{
		ID:        id,
		Sender:    from,
		Receiver:  to,
		Amount:    decimal.NewFromFloat(amount),
		Timestamp: t,
	}
}

func TestBuild_BasicTriangle(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		tx("t1", "A", "B", 1000, base),
		tx("t2", "B", "C", 980, base.Add(time.Hour)),
		tx("t3", "C", "A", 1010, base.Add(2*time.Hour)),
	}

	g, err := Build(txns)
	require.NoError(t, err)

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, []string{"A", "B", "C"}, g.Nodes())

	a := g.Node("A")
	require.NotNil(t, a)
	assert.Equal(t, 1, a.InDegree)
	assert.Equal(t, 1, a.OutDegree)
	assert.True(t, a.TotalOut.Equal(decimal.NewFromFloat(1000)))
}

func TestBuild_SelfLoopDropped(t *testing.T) {
	base := time.Now()
	txns := []model.Transaction{
		tx("t1", "A", "A", 100, base),
		tx("t2", "A", "B", 50, base.Add(time.Minute)),
	}

	g, err := Build(txns)
	require.NoError(t, err)
	assert.Equal(t, 1, g.SelfLoopsDropped())
	assert.Equal(t, 2, g.NodeCount())
}

func TestBuild_MalformedAmount(t *testing.T) {
	txns := []model.Transaction{
		tx("t1", "A", "B", -5, time.Now()),
	}
	_, err := Build(txns)
	require.ErrorIs(t, err, model.ErrMalformedInput)
}

func TestBuild_MalformedTimestamp(t *testing.T) {
	txns := []model.Transaction{
		{ID: "t1", Sender: "A", Receiver: "B", Amount: decimal.NewFromInt(10)},
	}
	_, err := Build(txns)
	require.ErrorIs(t, err, model.ErrMalformedInput)
}

func TestBuild_EmptyGraph(t *testing.T) {
	_, err := Build(nil)
	require.ErrorIs(t, err, model.ErrEmptyGraph)
}

func TestBuild_EdgeOrderStableOnTie(t *testing.T) {
	ts := time.Now()
	txns := []model.Transaction{
		tx("t2", "A", "B", 10, ts),
		tx("t1", "A", "B", 20, ts),
	}
	g, err := Build(txns)
	require.NoError(t, err)

	a := g.Node("A")
	require.Len(t, a.Out, 2)
	assert.Equal(t, "t1", a.Out[0].TxnID)
	assert.Equal(t, "t2", a.Out[1].TxnID)
}
