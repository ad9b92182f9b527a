package domain

// =============================================================================
// Enforcement Results
// =============================================================================

// EnforcementStatus is the outcome of comparing a story with production.
type EnforcementStatus string

const (
	// EnforcementBehindProd marks a story whose components are older than production.
	EnforcementBehindProd EnforcementStatus = "BEHIND_PROD"
)

// EnforcementResult is a staleness finding about one story.
// Only EnforcementBehindProd is meaningful to planning; other statuses are carried through untouched.
type EnforcementResult struct {
	PrimaryStoryID string            `json:"primaryStoryId" yaml:"primaryStoryId"`
	Status         EnforcementStatus `json:"status" yaml:"status"`
}

// IsBehindProd reports whether the finding excludes its story from deployment.
// Findings without a story ID never do.
func (r EnforcementResult) IsBehindProd() bool {
	return r.Status == EnforcementBehindProd && NormalizeStoryID(r.PrimaryStoryID) != ""
}

// =============================================================================
// Conflicts
// =============================================================================

// ComponentConflict records stories that modify the same component.
type ComponentConflict struct {
	Component Component `json:"component" yaml:"component"`
	StoryIDs  []string  `json:"storyIds" yaml:"storyIds"`
}

// ConflictIndex is the set of story IDs known to participate in a conflict.
type ConflictIndex map[string]struct{}

// NewConflictIndex builds an index from story IDs. Empty IDs are ignored.
func NewConflictIndex(ids ...string) ConflictIndex {
	idx := make(ConflictIndex, len(ids))
	for _, id := range ids {
		idx.Add(id)
	}
	return idx
}

// Add inserts a story ID into the index.
func (c ConflictIndex) Add(id string) {
	if key := NormalizeStoryID(id); key != "" {
		c[key] = struct{}{}
	}
}

// Has reports whether the story ID is in conflict. A nil index contains nothing.
func (c ConflictIndex) Has(id string) bool {
	_, ok := c[NormalizeStoryID(id)]
	return ok
}

// Len returns the number of distinct story IDs in the index.
func (c ConflictIndex) Len() int {
	return len(c)
}

// =============================================================================
// Analysis
// =============================================================================

// Analysis is one immutable snapshot of planning input handed over by the
// analysis service.
type Analysis struct {
	Stories            []Story             `json:"stories" yaml:"stories"`
	EnforcementResults []EnforcementResult `json:"enforcementResults,omitempty" yaml:"enforcementResults,omitempty"`
	ConflictedStoryIDs []string            `json:"conflictedStoryIds,omitempty" yaml:"conflictedStoryIds,omitempty"`
	Conflicts          []ComponentConflict `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
}

// ConflictIndex reduces explicit IDs and component conflicts to one set.
func (a Analysis) ConflictIndex() ConflictIndex {
	idx := NewConflictIndex(a.ConflictedStoryIDs...)
	for _, c := range a.Conflicts {
		for _, id := range c.StoryIDs {
			idx.Add(id)
		}
	}
	return idx
}
