package agent

import "github.com/fathomly/resolver-engine/internal/resolvetypes"

// pattern is one entry in a domain's house-tier pattern library: an
// ordered (title, description, base_confidence) triple, per spec.md §4.3.
type pattern struct {
	title          string
	description    string
	baseConfidence float64
}

// seedPatterns holds 3-5 representative patterns per domain, paraphrased
// from the thematic content of the seven aetherlight-core domain agents
// (infrastructure.rs, knowledge.rs, scalability.rs, innovation.rs,
// quality.rs, deployment.rs, ethics.rs) rather than transliterated from
// them.
var seedPatterns = map[resolvetypes.Domain][]pattern{
	resolvetypes.Infrastructure: {
		{"container orchestration", "use Kubernetes deployments and services to run and expose containerized workloads", 0.85},
		{"infrastructure as code", "define cloud resources with Terraform modules instead of clicking through a console", 0.8},
		{"network segmentation", "isolate workloads into VPC subnets with explicit security group rules", 0.75},
		{"cluster autoscaling", "configure a horizontal pod autoscaler driven by CPU or custom metrics", 0.75},
		{"configuration management", "use Ansible playbooks to converge server configuration idempotently", 0.7},
	},
	resolvetypes.Knowledge: {
		{"pattern index lookup", "search the shared pattern index by intent before writing new documentation", 0.8},
		{"glossary maintenance", "keep a single glossary of domain terms linked from every document that uses them", 0.75},
		{"tutorial scaffolding", "structure a tutorial as a sequence of runnable, incrementally complex steps", 0.7},
		{"discovery capture", "record a discovery as soon as it is made so it is searchable later", 0.75},
	},
	resolvetypes.Scalability: {
		{"read-through caching", "front a hot read path with a read-through cache keyed by the query shape", 0.85},
		{"query optimization", "add a covering index for the query's WHERE and ORDER BY columns", 0.8},
		{"horizontal sharding", "partition a large table by a high-cardinality key to spread write load", 0.75},
		{"connection pooling", "bound database connections with a pool sized to the available backend capacity", 0.7},
	},
	resolvetypes.Innovation: {
		{"proof of concept", "build the smallest slice that proves the riskiest assumption first", 0.8},
		{"spike and stabilize", "timebox an exploratory spike, then rewrite the winning approach cleanly", 0.75},
		{"alternative approach survey", "list at least two alternative designs before committing to one", 0.7},
	},
	resolvetypes.Quality: {
		{"unit test coverage", "write unit tests for every function, prioritizing edge cases and error paths", 0.85},
		{"regression guard", "add a failing test that reproduces a bug before fixing it", 0.85},
		{"static analysis gate", "run a linter and static analyzer in CI before merge", 0.75},
		{"code review checklist", "review for correctness, readability, and test coverage before approving", 0.7},
	},
	resolvetypes.Deployment: {
		{"canary rollout", "shift a small percentage of traffic to the new version before a full rollout", 0.85},
		{"blue-green release", "run both versions in parallel and switch traffic at the load balancer", 0.8},
		{"automated rollback", "wire an automatic rollback to the last healthy artifact on failed health checks", 0.8},
		{"pipeline promotion", "promote the same build artifact from staging to production unchanged", 0.75},
	},
	resolvetypes.Ethics: {
		{"data minimization", "collect only the user data strictly necessary for the feature at hand", 0.85},
		{"consent tracking", "record and honor explicit user consent before processing personal data", 0.85},
		{"bias audit", "audit a model's predictions across demographic slices before shipping", 0.8},
		{"compliance review", "check new data flows against GDPR and relevant regulations before launch", 0.8},
	},
}

// domainKeywords is the per-domain 16-26 term list used by
// agentKeywordConfidence, distinct from the Domain Router's weighted
// tables: this is a flat presence list, not a weighted scoring table.
var domainKeywords = map[resolvetypes.Domain][]string{
	resolvetypes.Infrastructure: {
		"kubernetes", "k8s", "docker", "container", "containers", "deploy",
		"cluster", "terraform", "provision", "infrastructure", "network",
		"vpc", "load", "balancer", "server", "node", "pod", "helm",
		"ansible", "cloud", "aws", "gcp", "azure", "dns", "firewall", "subnet",
	},
	resolvetypes.Knowledge: {
		"documentation", "knowledge", "wiki", "reference", "pattern",
		"search", "index", "lookup", "explain", "learn", "tutorial",
		"concept", "glossary", "faq", "discover", "recall", "remember",
		"context", "notes", "docs",
	},
	resolvetypes.Scalability: {
		"scale", "scalability", "performance", "cache", "caching",
		"throughput", "latency", "optimize", "optimization", "database",
		"query", "queries", "sharding", "replication", "bottleneck",
		"concurrency", "load", "capacity", "pool", "pooling",
	},
	resolvetypes.Innovation: {
		"innovation", "experiment", "prototype", "novel", "research",
		"explore", "idea", "creative", "brainstorm", "new", "approach",
		"alternative", "greenfield", "proof", "concept", "spike",
	},
	resolvetypes.Quality: {
		"test", "testing", "unit", "coverage", "lint", "quality", "bug",
		"regression", "review", "refactor", "maintainability", "assertion",
		"mock", "integration", "e2e", "ci", "static", "analysis", "tests",
	},
	resolvetypes.Deployment: {
		"deploy", "deployment", "release", "rollout", "rollback", "pipeline",
		"cicd", "canary", "staging", "production", "artifact", "version",
		"tag", "publish", "ship", "promote",
	},
	resolvetypes.Ethics: {
		"gdpr", "privacy", "compliance", "ethics", "ethical", "consent",
		"bias", "fairness", "transparency", "accountability", "regulation",
		"data", "protection", "user", "rights", "audit",
	},
}
