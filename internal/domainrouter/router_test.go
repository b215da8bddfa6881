package domainrouter_test

import (
	"testing"

	"github.com/fathomly/resolver-engine/internal/domainrouter"
	"github.com/fathomly/resolver-engine/internal/resolvetypes"
)

func TestClassifyInfrastructure(t *testing.T) {
	r := domainrouter.New()
	c := r.Classify("How do I deploy my application to Kubernetes?")
	if c.Domain != resolvetypes.Infrastructure {
		t.Fatalf("want Infrastructure, got %s", c.Domain)
	}
	if c.Confidence <= 0.5 {
		t.Fatalf("want score > 0.5, got %f", c.Confidence)
	}
	wantTokens := map[string]bool{"deploy": true, "kubernetes": true}
	found := map[string]bool{}
	for _, m := range c.MatchedKeywords {
		found[m] = true
	}
	for tok := range wantTokens {
		if !found[tok] {
			t.Fatalf("expected matched keyword %q in %v", tok, found)
		}
	}
}

func TestClassifyEthics(t *testing.T) {
	r := domainrouter.New()
	c := r.Classify("Ensure GDPR compliance for user data")
	if c.Domain != resolvetypes.Ethics {
		t.Fatalf("want Ethics, got %s", c.Domain)
	}
}

func TestClassifyScalability(t *testing.T) {
	r := domainrouter.New()
	c := r.Classify("Optimize database queries with caching")
	if c.Domain != resolvetypes.Scalability {
		t.Fatalf("want Scalability, got %s", c.Domain)
	}
}

func TestClassifyEmptyDescription(t *testing.T) {
	r := domainrouter.New()
	c := r.Classify("")
	if c.Confidence != 0 {
		t.Fatalf("want score 0 for empty description, got %f", c.Confidence)
	}
	if c.Domain != resolvetypes.Domains[0] {
		t.Fatalf("want deterministic first-declared domain %s, got %s", resolvetypes.Domains[0], c.Domain)
	}
	if len(c.Alternatives) != 0 {
		t.Fatalf("want no alternatives for empty description")
	}
}

func TestClassifyCoversEveryDomain(t *testing.T) {
	r := domainrouter.New()
	c := r.Classify("a reasonably generic sentence about software systems")
	if len(c.Scores) != len(resolvetypes.Domains) {
		t.Fatalf("want %d domain scores, got %d", len(resolvetypes.Domains), len(c.Scores))
	}
	for _, d := range resolvetypes.Domains {
		s, ok := c.Scores[d]
		if !ok {
			t.Fatalf("missing score for domain %s", d)
		}
		if s < 0 || s > 1 {
			t.Fatalf("score for %s out of [0,1]: %f", d, s)
		}
	}
}

func TestAlternativesExcludePrimary(t *testing.T) {
	r := domainrouter.New()
	c := r.Classify("deploy kubernetes cluster with load balancer and terraform provisioning")
	for _, alt := range c.Alternatives {
		if alt.Domain == c.Domain {
			t.Fatalf("alternatives must exclude primary domain %s", c.Domain)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	r := domainrouter.New()
	desc := "optimize caching layer for scalability under heavy load"
	first := r.Classify(desc)
	for i := 0; i < 10; i++ {
		c := r.Classify(desc)
		if c.Domain != first.Domain || c.Confidence != first.Confidence {
			t.Fatalf("classification not deterministic across repeated calls")
		}
	}
}
