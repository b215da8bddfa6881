package domainrouter

import "github.com/fathomly/resolver-engine/internal/resolvetypes"

// keywordWeights holds each domain's weighted keyword map: 1.0 = weak
// signal, 2.0 = strong, 3.0 = definitive. Tables are small and hand-tuned,
// thematically grounded in the seven original aetherlight-core domains
// (infrastructure, knowledge, scalability, innovation, quality, deployment,
// ethics).
var keywordWeights = map[resolvetypes.Domain]map[string]float64{
	resolvetypes.Infrastructure: {
		"kubernetes": 3, "k8s": 3, "docker": 2.5, "container": 2, "deploy": 2,
		"cluster": 2, "terraform": 2.5, "provision": 2, "infrastructure": 3,
		"network": 1.5, "vpc": 2, "load": 1, "balancer": 1.5, "server": 1,
		"node": 1, "pod": 2, "helm": 2, "ansible": 2, "cloud": 1.5, "aws": 1.5,
		"gcp": 1.5, "azure": 1.5, "iac": 2.5, "dns": 1.5, "firewall": 1.5,
	},
	resolvetypes.Knowledge: {
		"documentation": 2.5, "knowledge": 3, "wiki": 2, "reference": 1.5,
		"pattern": 2, "search": 1.5, "index": 1.5, "lookup": 1, "explain": 1.5,
		"learn": 1, "tutorial": 2, "concept": 1.5, "glossary": 2, "faq": 2,
		"discover": 1.5, "recall": 1.5, "remember": 1.5, "context": 1,
	},
	resolvetypes.Scalability: {
		"scale": 3, "scalability": 3, "performance": 2.5, "cache": 2.5,
		"caching": 2.5, "throughput": 2, "latency": 2, "optimize": 2,
		"optimization": 2, "database": 1.5, "query": 1.5, "queries": 1.5,
		"index": 1, "sharding": 3, "replication": 2, "bottleneck": 2.5,
		"concurrency": 2, "load": 1.5, "capacity": 2,
	},
	resolvetypes.Innovation: {
		"innovation": 3, "experiment": 2.5, "prototype": 2.5, "novel": 2,
		"research": 2, "explore": 1.5, "idea": 1, "creative": 1.5,
		"brainstorm": 2, "new": 1, "approach": 1, "alternative": 1.5,
		"greenfield": 2.5, "proof": 1.5, "concept": 1,
	},
	resolvetypes.Quality: {
		"test": 2.5, "testing": 2.5, "unit": 2, "coverage": 2.5, "lint": 2,
		"quality": 3, "bug": 2, "regression": 2.5, "review": 1.5,
		"refactor": 2, "maintainability": 2.5, "assertion": 1.5, "mock": 1.5,
		"integration": 1.5, "e2e": 2, "ci": 1.5, "static": 1.5, "analysis": 1,
	},
	resolvetypes.Deployment: {
		"deploy": 2.5, "deployment": 3, "release": 2.5, "rollout": 2.5,
		"rollback": 2.5, "pipeline": 2, "ci/cd": 3, "cicd": 3, "canary": 2.5,
		"blue-green": 2.5, "staging": 2, "production": 1.5, "artifact": 1.5,
		"version": 1, "tag": 1, "publish": 1.5, "ship": 1.5,
	},
	resolvetypes.Ethics: {
		"gdpr": 3, "privacy": 2.5, "compliance": 2.5, "ethics": 3,
		"ethical": 3, "consent": 2.5, "bias": 2.5, "fairness": 2,
		"transparency": 1.5, "accountability": 1.5, "regulation": 2,
		"data": 1, "protection": 1.5, "user": 1, "rights": 1.5, "audit": 1.5,
	},
}

// avgWeight returns the mean keyword weight for a domain's map.
func avgWeight(domain resolvetypes.Domain) float64 {
	m := keywordWeights[domain]
	if len(m) == 0 {
		return 0
	}
	var sum float64
	for _, w := range m {
		sum += w
	}
	return sum / float64(len(m))
}
