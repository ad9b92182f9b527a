package deployment

import (
	"math"
	"strconv"
)

// =============================================================================
// Identifier Functions
// =============================================================================

// ExtractNumber returns the first run of decimal digits in a story ID as an integer.
// It returns 0 when the ID has no digits, so such stories sort first.
// Runs too large for an int saturate to math.MaxInt.
//
// The key is only used for ordering. Different IDs sharing a digit run tie,
// and ties keep their input order.
//
// Example:
//
//	ExtractNumber("US-0033553") // returns 33553
//	ExtractNumber("HOTFIX")     // returns 0
//	ExtractNumber("R2-D2")      // returns 2
func ExtractNumber(id string) int {
	start := -1
	end := len(id)
	for i := 0; i < len(id); i++ {
		isDigit := id[i] >= '0' && id[i] <= '9'
		if start < 0 {
			if isDigit {
				start = i
			}
			continue
		}
		if !isDigit {
			end = i
			break
		}
	}
	if start < 0 {
		return 0
	}

	n, err := strconv.Atoi(id[start:end])
	if err != nil {
		return math.MaxInt
	}
	return n
}
