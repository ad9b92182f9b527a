package deployment

// =============================================================================
// Plan Types
// =============================================================================

// SequenceEntry is one deployable story in deployment order.
type SequenceEntry struct {
	Sequence       int     `json:"sequence"`
	StoryID        string  `json:"storyId"`
	Risk           float64 `json:"risk"`
	Rationale      string  `json:"rationale"`
	ComponentCount int     `json:"componentCount"`
	DeveloperCount int     `json:"developerCount"`
}

// Summary holds the group sizes of a plan. Counts are deduplicated and uncapped.
type Summary struct {
	Total      int `json:"total"`
	Deployable int `json:"deployable"`
	Conflicted int `json:"conflicted"`
	BehindProd int `json:"behindProd"`
}

// Plan is the ordered, risk-annotated deployment plan.
// Field names are a stable contract for renderers and exporters.
type Plan struct {
	Summary       Summary         `json:"summary"`
	Sequences     []SequenceEntry `json:"sequences"`
	ConflictedIDs []string        `json:"conflictedIds"`
	BehindProdIDs []string        `json:"behindProdIds"`
}

// =============================================================================
// Options
// =============================================================================

const (
	// DefaultDisplayLimit caps the conflicted and behind-prod ID lists of a plan.
	DefaultDisplayLimit = 10

	// NoDisplayLimit disables the cap on displayed IDs.
	NoDisplayLimit = -1
)

// KeyFunc maps a story ID to its sort key.
type KeyFunc func(id string) int

// Options configures planning. The zero value is usable and equals DefaultOptions.
type Options struct {
	// Key orders stories. Defaults to ExtractNumber.
	Key KeyFunc

	// DisplayLimit caps ConflictedIDs and BehindProdIDs. Zero uses
	// DefaultDisplayLimit; negative values (NoDisplayLimit) disable the cap.
	DisplayLimit int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Key:          ExtractNumber,
		DisplayLimit: DefaultDisplayLimit,
	}
}

func (o Options) withDefaults() Options {
	if o.Key == nil {
		o.Key = ExtractNumber
	}
	if o.DisplayLimit == 0 {
		o.DisplayLimit = DefaultDisplayLimit
	}
	return o
}
