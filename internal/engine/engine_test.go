package engine_test

import (
	"context"
	"testing"

	"github.com/fathomly/resolver-engine/internal/calibrator"
	"github.com/fathomly/resolver-engine/internal/engine"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

func TestNewRegistersOneAgentPerDomain(t *testing.T) {
	e, err := engine.New()
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	if e.DHT != nil {
		t.Fatal("want no DHT node without WithDHT")
	}
}

func TestSolveWithoutDHTDegradesGracefully(t *testing.T) {
	e, err := engine.New()
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}

	sol, err := e.Solve(context.Background(), resolvetypes.Problem{
		Description: "deploy a kubernetes cluster with autoscaling",
	})
	if err != nil {
		t.Fatalf("Solve: unexpected error: %v", err)
	}
	if sol.SourceLevel == "" {
		t.Fatal("want a populated SourceLevel even on a degraded solution")
	}
}

func TestRecordCalibrationAndStatistics(t *testing.T) {
	e, err := engine.New()
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	ctx := context.Background()

	id, err := e.RecordCalibration(ctx, 0.9, true, "response", "task", "infra-agent", resolvetypes.Infrastructure, nil)
	if err != nil {
		t.Fatalf("RecordCalibration: unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("want a non-empty record id")
	}

	stats, err := e.CalibrationStatistics(ctx, calibrator.Filter{Agent: "infra-agent"})
	if err != nil {
		t.Fatalf("CalibrationStatistics: unexpected error: %v", err)
	}
	if stats.TotalRecords != 1 {
		t.Fatalf("want 1 record, got %d", stats.TotalRecords)
	}
}

func TestAddPatternWithoutDHTSkipsReplication(t *testing.T) {
	e, err := engine.New()
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}

	p, err := e.AddPattern(context.Background(), resolvetypes.Pattern{
		Domain:  resolvetypes.Infrastructure,
		Title:   "rolling restart on deploy failure",
		Content: "roll back to last known-good revision",
	})
	if err != nil {
		t.Fatalf("AddPattern: unexpected error: %v", err)
	}
	if p.ID == "" {
		t.Fatal("want the index to assign an id")
	}
}

func TestBootstrapWithoutDHTIsNoop(t *testing.T) {
	e, err := engine.New()
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	e.Bootstrap(context.Background(), []string{"127.0.0.1:9"})
}
