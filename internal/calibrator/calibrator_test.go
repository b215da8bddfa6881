package calibrator_test

import (
	"context"
	"math"
	"testing"

	"github.com/fathomly/resolver-engine/internal/calibrator"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

func TestWellCalibratedStatistics(t *testing.T) {
	m := calibrator.NewMemory()
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		mustRecord(t, ctx, m, 0.9, true)
	}
	mustRecord(t, ctx, m, 0.9, false)

	stats, err := m.Statistics(ctx, calibrator.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(stats.Accuracy-0.9) > 1e-9 {
		t.Fatalf("want accuracy 0.9, got %f", stats.Accuracy)
	}
	if math.Abs(stats.MeanClaimedConfidence-0.9) > 1e-9 {
		t.Fatalf("want mean claimed 0.9, got %f", stats.MeanClaimedConfidence)
	}
	if stats.BrierScore > 0.1 {
		t.Fatalf("want brier <= 0.1, got %f", stats.BrierScore)
	}
	if math.Abs(stats.CalibrationError) > 0.05 {
		t.Fatalf("want |calibration_error| <= 0.05, got %f", stats.CalibrationError)
	}
}

func TestOverconfidenceLowersAdjustmentFactor(t *testing.T) {
	m := calibrator.NewMemory()
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		mustRecord(t, ctx, m, 0.9, true)
	}
	mustRecord(t, ctx, m, 0.9, false)
	for i := 0; i < 6; i++ {
		mustRecord(t, ctx, m, 0.9, true)
	}
	for i := 0; i < 4; i++ {
		mustRecord(t, ctx, m, 0.9, false)
	}

	factor, err := m.AdjustmentFactor(ctx, calibrator.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if factor >= 1.0 || factor < 0.5 {
		t.Fatalf("want adjustment factor in [0.5, 1.0), got %f", factor)
	}
}

func TestFewerThanMinRecordsReturnsNoAdjustment(t *testing.T) {
	m := calibrator.NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustRecord(t, ctx, m, 0.9, false)
	}
	factor, err := m.AdjustmentFactor(ctx, calibrator.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if factor != 1.0 {
		t.Fatalf("want 1.0 (no adjustment) below minimum record count, got %f", factor)
	}
}

func TestEmptyDatasetReturnsZeroStatistics(t *testing.T) {
	m := calibrator.NewMemory()
	stats, err := m.Statistics(context.Background(), calibrator.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRecords != 0 {
		t.Fatalf("want zero records, got %d", stats.TotalRecords)
	}
}

func TestStatisticsInvariantUnderInsertionOrder(t *testing.T) {
	ctx := context.Background()
	claims := []struct {
		claimed float64
		correct bool
	}{
		{0.9, true}, {0.9, false}, {0.6, true}, {0.3, false}, {0.7, true},
	}

	m1 := calibrator.NewMemory()
	for _, c := range claims {
		mustRecord(t, ctx, m1, c.claimed, c.correct)
	}
	s1, _ := m1.Statistics(ctx, calibrator.Filter{})

	m2 := calibrator.NewMemory()
	for i := len(claims) - 1; i >= 0; i-- {
		mustRecord(t, ctx, m2, claims[i].claimed, claims[i].correct)
	}
	s2, _ := m2.Statistics(ctx, calibrator.Filter{})

	if s1.Accuracy != s2.Accuracy || s1.BrierScore != s2.BrierScore || s1.TotalRecords != s2.TotalRecords {
		t.Fatalf("statistics differ by insertion order: %+v vs %+v", s1, s2)
	}
}

func TestFilterByAgent(t *testing.T) {
	m := calibrator.NewMemory()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, _ = m.Record(ctx, 0.9, true, "r", "t", "agent-a", resolvetypes.Infrastructure, nil)
	}
	for i := 0; i < 12; i++ {
		_, _ = m.Record(ctx, 0.5, false, "r", "t", "agent-b", resolvetypes.Quality, nil)
	}

	stats, err := m.Statistics(ctx, calibrator.Filter{Agent: "agent-a"})
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRecords != 12 {
		t.Fatalf("want 12 records for agent-a, got %d", stats.TotalRecords)
	}
	if stats.Accuracy != 1.0 {
		t.Fatalf("want accuracy 1.0 for agent-a, got %f", stats.Accuracy)
	}
}

func mustRecord(t *testing.T, ctx context.Context, m *calibrator.Memory, claimed float64, correct bool) {
	t.Helper()
	if _, err := m.Record(ctx, claimed, correct, "response", "task", "agent", resolvetypes.Infrastructure, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
}
