// Package deployment provides pure functions for deployment planning.
//
// This package contains the functional core that turns an analysis snapshot
// (stories, enforcement findings, conflict index) into an ordered,
// risk-annotated deployment plan. All functions are pure (no I/O, no side
// effects) and deterministic: identical input yields identical plans, so the
// package may be called concurrently as long as each caller owns its input.
//
// # Functions
//
//   - Identifiers: Derive a numeric sort key from a story ID (ExtractNumber)
//   - Risk: Score the blast radius of a story (ScoreRisk)
//   - Classification: Partition stories into deployable, conflicted and behind-prod (Classify)
//   - Ordering: Deduplicate, order and number deployable stories (Sequence)
//   - Planning: Combine classification and sequence into a plan (Assemble, BuildPlan)
//
// # Usage
//
// The imperative shell (internal/shell/planning) loads an analysis and calls
// BuildPlan, then hands the plan to the API, the CLI or the publisher.
//
//	plan := deployment.BuildPlan(analysis, deployment.DefaultOptions())
package deployment
