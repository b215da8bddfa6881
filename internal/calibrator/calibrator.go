// Package calibrator implements the Calibrator (C6): it records observed
// (claimed confidence, actual outcome) pairs and reports accuracy, Brier
// score, and a per-filter confidence adjustment factor.
package calibrator

import (
	"context"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

// MinRecordsForAdjustment is the minimum number of matching records before
// AdjustmentFactor returns anything other than 1.0 (no adjustment).
const MinRecordsForAdjustment = 10

// Filter narrows Statistics/AdjustmentFactor to a subset of records.
// Empty fields are wildcards.
type Filter struct {
	Agent  string
	Domain resolvetypes.Domain
}

func (f Filter) matches(r resolvetypes.CalibrationRecord) bool {
	if f.Agent != "" && r.AgentName != f.Agent {
		return false
	}
	if f.Domain != "" && r.Domain != f.Domain {
		return false
	}
	return true
}

// Calibrator is the persistence-agnostic contract; Postgres and in-memory
// variants both satisfy it.
type Calibrator interface {
	Record(ctx context.Context, claimed float64, actualCorrect bool, content, task, agentName string, domain resolvetypes.Domain, factors map[string]string) (string, error)
	GetRecord(ctx context.Context, id string) (*resolvetypes.CalibrationRecord, error)
	Statistics(ctx context.Context, f Filter) (resolvetypes.CalibrationStatistics, error)
	AdjustmentFactor(ctx context.Context, f Filter) (float64, error)
}

// binKey formats a decile bucket the way the original implementation did:
// "{start:.1}-{end:.1}", e.g. "0.8-0.9".
func binKey(claimed float64) string {
	idx := binIndex(claimed)
	start := float64(idx) / 10
	end := start + 0.1
	return formatBin(start) + "-" + formatBin(end)
}

func formatBin(v float64) string {
	// one decimal place, matching "%.1f" without pulling in fmt at the
	// call site twice.
	whole := int(v)
	frac := int((v-float64(whole))*10 + 0.5)
	if frac >= 10 {
		whole++
		frac = 0
	}
	return itoa(whole) + "." + itoa(frac)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// computeStatistics folds a slice of records into CalibrationStatistics,
// shared by both backends so the formulas live in exactly one place.
func computeStatistics(records []resolvetypes.CalibrationRecord) resolvetypes.CalibrationStatistics {
	stats := resolvetypes.CalibrationStatistics{
		ConfidenceBins: make(map[string]resolvetypes.ConfidenceBin),
	}
	if len(records) == 0 {
		return stats
	}

	type binAccum struct {
		key   string
		idx   int
		count int
		hit   int
	}
	bins := make(map[int]*binAccum)
	var sumClaimed, sumBrier float64
	var correct int

	for _, r := range records {
		actual := 0.0
		if r.ActualCorrect {
			actual = 1.0
			correct++
		}
		sumClaimed += r.ClaimedConfidence
		diff := r.ClaimedConfidence - actual
		sumBrier += diff * diff

		idx := binIndex(r.ClaimedConfidence)
		b, ok := bins[idx]
		if !ok {
			b = &binAccum{key: binKey(r.ClaimedConfidence), idx: idx}
			bins[idx] = b
		}
		b.count++
		if r.ActualCorrect {
			b.hit++
		}
	}

	total := len(records)
	stats.TotalRecords = total
	stats.CorrectPredictions = correct
	stats.Accuracy = float64(correct) / float64(total)
	stats.BrierScore = sumBrier / float64(total)
	stats.MeanClaimedConfidence = sumClaimed / float64(total)
	stats.CalibrationError = stats.MeanClaimedConfidence - stats.Accuracy

	for _, b := range bins {
		expected := float64(b.idx)/10 + 0.05
		accuracy := float64(b.hit) / float64(b.count)
		stats.ConfidenceBins[b.key] = resolvetypes.ConfidenceBin{
			Count:            b.count,
			Correct:          b.hit,
			Accuracy:         accuracy,
			ExpectedAccuracy: expected,
			Error:            accuracy - expected,
		}
	}

	return stats
}

func binIndex(claimed float64) int {
	idx := int(claimed * 10)
	if idx > 9 {
		idx = 9
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// adjustmentFactor implements clamp(1 - calibration_error, 0.5, 1.5),
// returning 1.0 (no adjustment) when there are fewer than
// MinRecordsForAdjustment matching records.
func adjustmentFactor(stats resolvetypes.CalibrationStatistics) float64 {
	if stats.TotalRecords < MinRecordsForAdjustment {
		return 1.0
	}
	adj := 1.0 - stats.CalibrationError
	if adj < 0.5 {
		return 0.5
	}
	if adj > 1.5 {
		return 1.5
	}
	return adj
}
