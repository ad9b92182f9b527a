package deployment

import "math"

// =============================================================================
// Risk Scoring
// =============================================================================

// Risk bounds and weights.
const (
	MinRisk = 0.0
	MaxRisk = 10.0

	componentWeight = 0.1
	componentCap    = 3.0
	developerWeight = 0.2
	developerCap    = 2.0
	conflictWeight  = 2.0
)

// ScoreRisk estimates the blast radius of a story on a 0-10 scale,
// rounded to one decimal place.
//
// Formula:
//   - Components: 0.1 each, capped at 3
//   - Developers: 0.2 each, capped at 2
//   - Conflicts: 2 each, uncapped before clamping
//
// A story behind production always scores MaxRisk. Negative counts count as zero.
//
// Example:
//
//	ScoreRisk(5, 1, 0, false)  // returns 0.7
//	ScoreRisk(50, 20, 0, false) // returns 5
//	ScoreRisk(1, 1, 0, true)   // returns 10
func ScoreRisk(componentCount, developerCount, conflictCount int, behindProd bool) float64 {
	if behindProd {
		return MaxRisk
	}

	risk := math.Min(float64(max(componentCount, 0))*componentWeight, componentCap) +
		math.Min(float64(max(developerCount, 0))*developerWeight, developerCap) +
		float64(max(conflictCount, 0))*conflictWeight

	risk = math.Max(MinRisk, math.Min(risk, MaxRisk))
	return math.Round(risk*10) / 10
}
