package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// Story
// =============================================================================

// UnknownDeveloper is the developer recorded for stories that name none.
const UnknownDeveloper = "Unknown"

// Component is a deployable artifact touched by a story.
// Components are counted for risk, never inspected individually.
type Component struct {
	Type      string `json:"type" yaml:"type"`
	Name      string `json:"name" yaml:"name"`
	Developer string `json:"developer,omitempty" yaml:"developer,omitempty"` // Last developer to touch the component, if known
}

// Story is a change unit proposed for deployment.
// Stories are produced by the analysis service and are read-only here.
type Story struct {
	ID         string      `json:"id" yaml:"id"`
	Developer  string      `json:"developer,omitempty" yaml:"developer,omitempty"`
	Components []Component `json:"components,omitempty" yaml:"components,omitempty"`
}

// Key returns the normalized story ID used for set membership and deduplication.
func (s Story) Key() string {
	return NormalizeStoryID(s.ID)
}

// Valid reports whether the story has a resolvable ID.
func (s Story) Valid() bool {
	return s.Key() != ""
}

// DeveloperName returns the story developer, defaulting to UnknownDeveloper.
func (s Story) DeveloperName() string {
	if d := strings.TrimSpace(s.Developer); d != "" {
		return d
	}
	return UnknownDeveloper
}

// ComponentCount returns the number of components the story touches.
func (s Story) ComponentCount() int {
	return len(s.Components)
}

// DeveloperCount returns the number of distinct developers involved in the story:
// the story developer plus any component-level developers.
func (s Story) DeveloperCount() int {
	seen := map[string]struct{}{s.DeveloperName(): {}}
	for _, c := range s.Components {
		if d := strings.TrimSpace(c.Developer); d != "" {
			seen[d] = struct{}{}
		}
	}
	return len(seen)
}

// NormalizeStoryID trims surrounding whitespace and applies Unicode NFC so that
// visually identical identifiers compare equal.
//
// Example:
//
//	NormalizeStoryID("  US-0033553 ") // returns "US-0033553"
//	NormalizeStoryID("   ")           // returns ""
func NormalizeStoryID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}
