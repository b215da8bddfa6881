package network_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fathomly/resolver-engine/internal/agent"
	"github.com/fathomly/resolver-engine/internal/network"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

func TestRegisterDuplicateReturnsError(t *testing.T) {
	n := network.New()
	a1 := agent.New(resolvetypes.Infrastructure, n, nil)
	a2 := agent.New(resolvetypes.Infrastructure, n, nil)

	if err := n.Register(a1); err != nil {
		t.Fatalf("first register: unexpected error: %v", err)
	}
	err := n.Register(a2)
	if err == nil {
		t.Fatal("want error on duplicate domain registration")
	}
	if kind, ok := resolvetypes.KindOf(err); !ok || kind != resolvetypes.KindInvalidArgument {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
}

func TestRouteNoAgentReturnsAgentUnavailable(t *testing.T) {
	n := network.New()
	_, err := n.Route(context.Background(), resolvetypes.Problem{Description: "deploy kubernetes cluster"})
	if err == nil {
		t.Fatal("want AgentUnavailable error")
	}
	if kind, ok := resolvetypes.KindOf(err); !ok || kind != resolvetypes.KindAgentUnavailable {
		t.Fatalf("want AgentUnavailable, got %v", err)
	}
}

func TestMentorRoutingReferencesPeerDomain(t *testing.T) {
	n := network.New()
	infra := agent.New(resolvetypes.Infrastructure, n, nil)
	quality := agent.New(resolvetypes.Quality, n, nil)
	mustRegister(t, n, infra)
	mustRegister(t, n, quality)

	sol, err := n.MentorQuery(context.Background(), resolvetypes.Infrastructure, resolvetypes.Problem{
		Description: "deployment failing unit tests",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sol.SourceLevel != resolvetypes.LevelMentor {
		t.Fatalf("want source_level Mentor, got %s", sol.SourceLevel)
	}
}

func TestMentorNeverRoutesToOrigin(t *testing.T) {
	n := network.New()
	infra := agent.New(resolvetypes.Infrastructure, n, nil)
	mustRegister(t, n, infra)

	// Only Infrastructure is registered, and the description classifies
	// as Infrastructure, so there is no eligible peer.
	_, err := n.MentorQuery(context.Background(), resolvetypes.Infrastructure, resolvetypes.Problem{
		Description: "deploy kubernetes cluster with terraform",
	})
	if err == nil {
		t.Fatal("want AgentUnavailable when the only candidate is the requesting domain itself")
	}
}

func TestConnectionRetriesAndSurfacesTimeout(t *testing.T) {
	c := network.NewConnection()
	c.Timeout = 20 * time.Millisecond
	c.MaxRetries = 2

	attempts := 0
	_, err := c.Call(context.Background(), func(ctx context.Context) (resolvetypes.Solution, error) {
		attempts++
		return resolvetypes.Solution{}, errors.New("peer unreachable")
	})

	if err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if kind, ok := resolvetypes.KindOf(err); !ok || kind != resolvetypes.KindTimeout {
		t.Fatalf("want TimeoutError, got %v", err)
	}
	if attempts != 3 { // initial attempt + 2 retries
		t.Fatalf("want 3 attempts, got %d", attempts)
	}
}

func TestConnectionSucceedsWithoutRetry(t *testing.T) {
	c := network.NewConnection()
	sol, err := c.Call(context.Background(), func(ctx context.Context) (resolvetypes.Solution, error) {
		return resolvetypes.Solution{Confidence: 0.9}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sol.Confidence != 0.9 {
		t.Fatalf("want confidence 0.9, got %f", sol.Confidence)
	}
}

func mustRegister(t *testing.T, n *network.Network, a *agent.Agent) {
	t.Helper()
	if err := n.Register(a); err != nil {
		t.Fatalf("register %s: %v", a.Domain(), err)
	}
}
