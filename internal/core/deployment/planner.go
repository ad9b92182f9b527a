package deployment

import "github.com/artpar/releaseplan/internal/core/domain"

// =============================================================================
// Plan Assembly
// =============================================================================

// Assemble combines a classification and its sequence into a plan.
//
// Summary counts reflect deduplicated, uncapped totals: Deployable is the
// length of the sequence, not of the raw deployable group. Slices are copied,
// so the plan shares no memory with its inputs.
func Assemble(c Classification, sequences []SequenceEntry) Plan {
	plan := Plan{
		Summary: Summary{
			Deployable: len(sequences),
			Conflicted: c.ConflictedTotal,
			BehindProd: c.BehindProdTotal,
		},
		Sequences:     append(make([]SequenceEntry, 0, len(sequences)), sequences...),
		ConflictedIDs: append(make([]string, 0, len(c.ConflictedIDs)), c.ConflictedIDs...),
		BehindProdIDs: append(make([]string, 0, len(c.BehindProdIDs)), c.BehindProdIDs...),
	}
	plan.Summary.Total = plan.Summary.Deployable + plan.Summary.Conflicted + plan.Summary.BehindProd
	return plan
}

// BuildPlan runs the full planning pipeline on an analysis snapshot:
// Classify, then Sequence the deployable group, then Assemble.
//
// This is a pure function; it never fails on malformed input. Stories without
// an ID and enforcement results without a story ID are skipped, and an empty
// analysis yields a plan with a zero summary and empty lists.
//
// Example:
//
//	plan := BuildPlan(domain.Analysis{
//	    Stories: []domain.Story{{ID: "US-0033600"}, {ID: "US-0033553"}},
//	    EnforcementResults: []domain.EnforcementResult{
//	        {PrimaryStoryID: "US-0033600", Status: domain.EnforcementBehindProd},
//	    },
//	}, DefaultOptions())
//	// plan.Summary: {Total: 2, Deployable: 1, Conflicted: 0, BehindProd: 1}
func BuildPlan(a domain.Analysis, opts Options) Plan {
	opts = opts.withDefaults()
	c := Classify(a.Stories, a.EnforcementResults, a.ConflictIndex(), opts)
	return Assemble(c, Sequence(c.Deployable, opts))
}
