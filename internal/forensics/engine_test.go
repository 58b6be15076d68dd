package forensics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybrid-sentinel/sentinel/internal/model"
)

func tx(id, from, to string, amount float64, t time.Time) model.Transaction {
	return model.Transaction{ID: id, Sender: from, Receiver: to, Amount: decimal.NewFromFloat(amount), Timestamp: t}
}

func TestEngine_Run_TriangleCycleSurfacesRing(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		tx("t1", "A", "B", 1000, base),
		tx("t2", "B", "C", 1000, base.Add(time.Hour)),
		tx("t3", "C", "A", 1000, base.Add(2*time.Hour)),
	}

	e := NewEngine(nil)
	rep, err := e.Run(context.Background(), txns)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Summary.TotalAccountsAnalyzed)
	assert.GreaterOrEqual(t, rep.Summary.FraudRingsDetected, 1)
	assert.NotEmpty(t, rep.SuspiciousAccounts)

	gd := e.GraphData()
	assert.Len(t, gd.Nodes, 3)
	assert.Len(t, gd.Edges, 3)
}

func TestEngine_Run_MalformedInputIsFatal(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Run(context.Background(), []model.Transaction{
		{ID: "t1", Sender: "A", Receiver: "B", Amount: decimal.NewFromInt(-5), Timestamp: time.Now()},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrMalformedInput)
}

func TestEngine_Run_EmptyGraphYieldsEmptyReport(t *testing.T) {
	e := NewEngine(nil)
	rep, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 0, rep.Summary.TotalAccountsAnalyzed)
	assert.Equal(t, 0, rep.Summary.SuspiciousAccountsFlagged)
	assert.Equal(t, 0, rep.Summary.FraudRingsDetected)
}
