package capture

import (
	"fmt"

	"github.com/glaslos/ssdeep"
)

// Similarity returns the ssdeep match score (0-100) of two images.
// Images too small to hash yield an error.
func Similarity(a, b []byte) (int, error) {
	h1, err := ssdeep.FuzzyBytes(a)
	if err != nil {
		return 0, fmt.Errorf("hash image: %w", err)
	}
	h2, err := ssdeep.FuzzyBytes(b)
	if err != nil {
		return 0, fmt.Errorf("hash image: %w", err)
	}
	return ssdeep.Distance(h1, h2)
}

// IsSimilar reports whether a and b score at least threshold. Hashing errors count as different.
func IsSimilar(a, b []byte, threshold int) bool {
	if threshold < 1 || threshold > 100 {
		return false
	}
	score, err := Similarity(a, b)
	if err != nil {
		return false
	}
	return score >= threshold
}
