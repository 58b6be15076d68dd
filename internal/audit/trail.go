// Package audit keeps an in-memory decision log of what the pipeline
// did with a batch: which stage ran, what it found, and any
// budget-exceeded or failure diagnostics — queryable by batch id.
package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry event types.
const (
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventDetectorFailed = "detector_failed"
	EventBudgetExceeded = "budget_exceeded"
)

// Entry is a single audit trail entry for one batch run.
type Entry struct {
	BatchID   string    `json:"batch_id"`
	EventType string    `json:"event_type"`
	Stage     string    `json:"stage,omitempty"`
	Timestamp time.Time `json:"ts"`
	Detail    string    `json:"detail,omitempty"`
	Payload   string    `json:"payload,omitempty"`
}

// Trail records the decision chain for every batch run. It maintains
// an in-memory buffer capped at maxBuf; once full, the oldest entries
// are discarded (FIFO). A maxBuf of 0 means unbounded.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	maxBuf  int
}

// NewTrail creates a new audit trail. maxBuf controls the maximum
// number of entries kept; 0 means unbounded.
func NewTrail(maxBuf int) *Trail {
	if maxBuf < 0 {
		maxBuf = 0
	}
	return &Trail{entries: make([]Entry, 0, maxBuf), maxBuf: maxBuf}
}

// RecordStageStarted logs the start of a pipeline stage (graph build,
// a detector, or the composer) for batchID.
func (t *Trail) RecordStageStarted(batchID, stage string) {
	t.record(Entry{BatchID: batchID, EventType: EventStageStarted, Stage: stage, Timestamp: time.Now()})
}

// RecordStageCompleted logs a stage's completion along with an
// arbitrary result summary, JSON-encoded into Payload.
func (t *Trail) RecordStageCompleted(batchID, stage string, result interface{}) {
	t.record(Entry{
		BatchID:   batchID,
		EventType: EventStageCompleted,
		Stage:     stage,
		Timestamp: time.Now(),
		Payload:   mustMarshal(result),
	})
}

// RecordDetectorFailure logs that a detector recovered from an internal
// panic and returned an empty result, per §7's local-recovery semantics.
func (t *Trail) RecordDetectorFailure(batchID, stage, detail string) {
	t.record(Entry{BatchID: batchID, EventType: EventDetectorFailed, Stage: stage, Timestamp: time.Now(), Detail: detail})
}

// RecordBudgetExceeded logs that a detector exhausted its operation
// budget and returned partial results.
func (t *Trail) RecordBudgetExceeded(batchID, stage string) {
	t.record(Entry{BatchID: batchID, EventType: EventBudgetExceeded, Stage: stage, Timestamp: time.Now()})
}

// Query returns every entry recorded for batchID, in recording order.
func (t *Trail) Query(batchID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result []Entry
	for _, e := range t.entries {
		if e.BatchID == batchID {
			result = append(result, e)
		}
	}
	return result
}

// Entries returns a copy of every entry in the buffer.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Entry, len(t.entries))
	copy(result, t.entries)
	return result
}

// Len returns the number of entries currently buffered.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Trail) record(entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxBuf > 0 && len(t.entries) >= t.maxBuf {
		copy(t.entries, t.entries[1:])
		t.entries[len(t.entries)-1] = entry
		return
	}
	t.entries = append(t.entries, entry)
}

func mustMarshal(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("audit: failed to marshal payload")
		return "{}"
	}
	return string(data)
}
