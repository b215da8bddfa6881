package calibrator

import (
	"context"
	"sync"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/google/uuid"
)

// Memory is an in-process Calibrator backed by a mutex-guarded slice,
// grounded in the control plane's in-memory store discipline (single
// mutex, plain Go collections, no background persistence needed here
// since calibration data is recomputed from the durable backend in
// production — Memory exists for tests and single-process dev mode).
type Memory struct {
	mu      sync.Mutex
	records []resolvetypes.CalibrationRecord
}

// NewMemory returns an empty in-memory Calibrator.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(ctx context.Context, claimed float64, actualCorrect bool, content, task, agentName string, domain resolvetypes.Domain, factors map[string]string) (string, error) {
	id := uuid.NewString()
	rec := resolvetypes.CalibrationRecord{
		ID:                id,
		ClaimedConfidence: resolvetypes.Clamp(claimed),
		ActualCorrect:     actualCorrect,
		ResponseContent:   content,
		TaskDescription:   task,
		AgentName:         agentName,
		Domain:            domain,
		Timestamp:         time.Now().UTC(),
		Factors:           factors,
	}

	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()

	return id, nil
}

func (m *Memory) GetRecord(ctx context.Context, id string) (*resolvetypes.CalibrationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			rCopy := r
			return &rCopy, nil
		}
	}
	return nil, nil
}

func (m *Memory) Statistics(ctx context.Context, f Filter) (resolvetypes.CalibrationStatistics, error) {
	m.mu.Lock()
	matching := filterRecords(m.records, f)
	m.mu.Unlock()
	return computeStatistics(matching), nil
}

func (m *Memory) AdjustmentFactor(ctx context.Context, f Filter) (float64, error) {
	stats, err := m.Statistics(ctx, f)
	if err != nil {
		return 1.0, err
	}
	return adjustmentFactor(stats), nil
}

// Clear removes all records. Test-only helper, mirroring the original's
// test-only clear().
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}

func filterRecords(records []resolvetypes.CalibrationRecord, f Filter) []resolvetypes.CalibrationRecord {
	out := make([]resolvetypes.CalibrationRecord, 0, len(records))
	for _, r := range records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

var _ Calibrator = (*Memory)(nil)
