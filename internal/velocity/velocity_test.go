package velocity

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

func TestDetect_InOutWithinHour(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := graph.Build([]model.Transaction{
		tx("t1", "S", "V", 2000, base),
		tx("t2", "V", "R", 1500, base.Add(30*time.Minute)),
	})
	require.NoError(t, err)

	res := Detect(g)
	found := false
	for _, h := range res.Hits {
		if h.Account == "V" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetect_NoHitWhenOutsideWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := graph.Build([]model.Transaction{
		tx("t1", "S", "V", 2000, base),
		tx("t2", "V", "R", 1500, base.Add(2*time.Hour)),
	})
	require.NoError(t, err)

	res := Detect(g)
	for _, h := range res.Hits {
		assert.NotEqual(t, "V", h.Account)
	}
}
