package deployment

import (
	"sort"

	"github.com/artpar/releaseplan/internal/core/domain"
)

// =============================================================================
// Classification
// =============================================================================

// Classification is the partition of an analysis into deployment groups.
// The three story groups are disjoint and keep input order; duplicates are
// not yet removed.
type Classification struct {
	Deployable []domain.Story
	Conflicted []domain.Story
	BehindProd []domain.Story

	// ConflictedIDs and BehindProdIDs are deduplicated, ordered by key and capped
	// to the display limit.
	ConflictedIDs []string
	BehindProdIDs []string

	// ConflictedTotal and BehindProdTotal count distinct IDs before capping.
	ConflictedTotal int
	BehindProdTotal int
}

// Classify partitions stories into behind-prod, conflicted and deployable groups.
//
// The algorithm:
//  1. Collect IDs of enforcement results with status BEHIND_PROD
//  2. Drop stories without an ID
//  3. Stories in the behind-prod set are excluded as behind-prod
//  4. Remaining stories in the conflict index are excluded as conflicted
//  5. Everything else is deployable
//
// Behind-prod takes priority over conflict: a story in both sets is reported
// as behind-prod only. Story IDs are normalized in the returned groups.
//
// Example:
//
//	c := Classify(stories, results, domain.NewConflictIndex("US-7"), DefaultOptions())
//	for _, s := range c.Deployable {
//	    // s is neither behind production nor conflicted
//	}
func Classify(stories []domain.Story, results []domain.EnforcementResult, conflicts domain.ConflictIndex, opts Options) Classification {
	opts = opts.withDefaults()

	behindProd := make(map[string]struct{})
	for _, r := range results {
		if r.IsBehindProd() {
			behindProd[domain.NormalizeStoryID(r.PrimaryStoryID)] = struct{}{}
		}
	}

	var c Classification
	for _, s := range stories {
		if !s.Valid() {
			continue
		}
		s.ID = s.Key()

		if _, ok := behindProd[s.ID]; ok {
			c.BehindProd = append(c.BehindProd, s)
			continue
		}
		if conflicts.Has(s.ID) {
			c.Conflicted = append(c.Conflicted, s)
			continue
		}
		c.Deployable = append(c.Deployable, s)
	}

	c.ConflictedIDs, c.ConflictedTotal = DisplayIDs(c.Conflicted, opts.Key, opts.DisplayLimit)
	c.BehindProdIDs, c.BehindProdTotal = DisplayIDs(c.BehindProd, opts.Key, opts.DisplayLimit)
	return c
}

// DisplayIDs returns the distinct IDs of stories ordered by key and capped to
// limit, together with the uncapped distinct count. A limit <= 0 disables the cap;
// Options maps its zero value to DefaultDisplayLimit before calling this.
// The returned slice is never nil.
func DisplayIDs(stories []domain.Story, key KeyFunc, limit int) ([]string, int) {
	if key == nil {
		key = ExtractNumber
	}

	ids := make([]string, 0, len(stories))
	seen := make(map[string]struct{}, len(stories))
	for _, s := range stories {
		id := s.Key()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	sortByKey(ids, key)

	total := len(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, total
}

// sortByKey orders IDs ascending by key. Ties keep their relative order.
func sortByKey(ids []string, key KeyFunc) {
	keys := make(map[string]int, len(ids))
	for _, id := range ids {
		keys[id] = key(id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return keys[ids[i]] < keys[ids[j]]
	})
}
