package deployment

import (
	"fmt"
	"sort"

	"github.com/artpar/releaseplan/internal/core/domain"
)

// =============================================================================
// Story Ordering Functions
// =============================================================================

// RationaleFirst is the rationale of the first entry in a sequence.
const RationaleFirst = "Lowest identifier. Deploy first."

// Rationale returns the rationale text for the entry at the given 1-based sequence.
// The dependency it mentions is advisory; sequence order is not enforced.
func Rationale(sequence int) string {
	if sequence <= 1 {
		return RationaleFirst
	}
	return fmt.Sprintf("Sequence %d. Depends on previous sequences.", sequence)
}

// Sequence orders deployable stories and numbers them from 1.
//
// The function:
//  1. Drops stories without an ID and later duplicates of an ID (first occurrence wins)
//  2. Sorts ascending by key with a stable sort, so ties keep input order
//  3. Numbers entries 1..N
//  4. Scores each entry with ScoreRisk (no conflicts, not behind production)
//
// The returned slice is never nil.
//
// Example:
//
//	stories := []domain.Story{{ID: "US-30"}, {ID: "US-4"}, {ID: "US-30"}}
//	entries := Sequence(stories, DefaultOptions())
//	// Result: [1 US-4, 2 US-30]
func Sequence(deployable []domain.Story, opts Options) []SequenceEntry {
	opts = opts.withDefaults()

	type keyed struct {
		story domain.Story
		id    string
		key   int
	}

	seen := make(map[string]struct{}, len(deployable))
	unique := make([]keyed, 0, len(deployable))
	for _, s := range deployable {
		id := s.Key()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, keyed{story: s, id: id, key: opts.Key(id)})
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].key < unique[j].key
	})

	entries := make([]SequenceEntry, 0, len(unique))
	for i, k := range unique {
		components := k.story.ComponentCount()
		developers := k.story.DeveloperCount()
		entries = append(entries, SequenceEntry{
			Sequence:       i + 1,
			StoryID:        k.id,
			Risk:           ScoreRisk(components, developers, 0, false),
			Rationale:      Rationale(i + 1),
			ComponentCount: components,
			DeveloperCount: developers,
		})
	}
	return entries
}
